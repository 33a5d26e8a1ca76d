//go:build wireinject
// +build wireinject

package di

import (
	"BarPull/pkg/config"
	"BarPull/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// The cleanup closes infrastructure and must run after the app stops.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideStore,
		ProvideRedisCache,
		ProvideCache,
		ProvideEventPublisher,

		// Repositories
		ProvideLocker,
		ProvideJobStatus,
		ProvideRegistry,
		ProvideChunkFetcher,

		// Use cases
		ProvideBackfiller,
		ProvideGapRepairer,
		ProvideQualityAssessor,
		ProvideEngine,
		ProvideBarsUseCase,

		// Workers and triggers
		ProvideQueue,
		ProvideScheduler,

		// Application server
		ProvideIngestionHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil, nil
}

// InitializeEngine wires the job engine alone, for one-shot runs.
func InitializeEngine(cfg *config.Config) (*Runtime, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideStore,
		ProvideRedisCache,
		ProvideCache,
		ProvideEventPublisher,
		ProvideLocker,
		ProvideJobStatus,
		ProvideRegistry,
		ProvideChunkFetcher,
		ProvideBackfiller,
		ProvideGapRepairer,
		ProvideQualityAssessor,
		ProvideEngine,
		ProvideRuntime,
	)
	return &Runtime{}, nil, nil
}
