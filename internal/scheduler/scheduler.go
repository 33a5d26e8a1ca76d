package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"BarPull/internal/domain/models"
	domrepo "BarPull/internal/domain/repository"
	"BarPull/internal/usecase"
	"BarPull/pkg/logger"
)

// SymbolSource lists the symbols that should be kept fresh.
type SymbolSource interface {
	Active(ctx context.Context) []string
}

// Config holds the cron specs. Specs use six fields, seconds first. An
// empty cron expression disables that trigger.
type Config struct {
	BackfillCron  string
	RepairCron    string
	QualityCron   string
	Timeframes    []models.Timeframe
	LookbackHours int
	QualityHours  int
}

// Scheduler turns cron ticks into queued jobs, one per (symbol, timeframe).
type Scheduler struct {
	cron       *cron.Cron
	dispatcher domrepo.JobDispatcher
	symbols    SymbolSource
	cfg        Config
	logger     *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func New(dispatcher domrepo.JobDispatcher, symbols SymbolSource, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.LookbackHours <= 0 {
		cfg.LookbackHours = 168
	}
	if cfg.QualityHours <= 0 {
		cfg.QualityHours = 24
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		dispatcher: dispatcher,
		symbols:    symbols,
		cfg:        cfg,
		logger:     log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// RegisterAll adds the backfill, repair and quality triggers.
func (s *Scheduler) RegisterAll() error {
	triggers := []struct {
		name string
		expr string
		fn   func()
	}{
		{"backfill", s.cfg.BackfillCron, s.EnqueueBackfills},
		{"repair", s.cfg.RepairCron, s.EnqueueRepairs},
		{"quality", s.cfg.QualityCron, s.EnqueueQuality},
	}
	for _, t := range triggers {
		if t.expr == "" {
			continue
		}
		if _, err := s.cron.AddFunc(t.expr, t.fn); err != nil {
			return fmt.Errorf("register %s trigger: %w", t.name, err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", logger.Int("entries", len(s.cron.Entries())))
}

// Stop stops cron and waits for a running trigger to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// EnqueueBackfills queues an incremental backfill for every series.
func (s *Scheduler) EnqueueBackfills() {
	s.fanOut(usecase.MsgBackfill, func(symbol string, tf models.Timeframe) interface{} {
		return models.BackfillCommand{Symbol: symbol, Timeframe: tf.String(), Incremental: true}
	})
}

// EnqueueRepairs queues a gap repair over the lookback window for every series.
func (s *Scheduler) EnqueueRepairs() {
	s.fanOut(usecase.MsgRepair, func(symbol string, tf models.Timeframe) interface{} {
		return models.RepairCommand{Symbol: symbol, Timeframe: tf.String(), LookbackHours: s.cfg.LookbackHours}
	})
}

// EnqueueQuality queues a quality assessment for every series.
func (s *Scheduler) EnqueueQuality() {
	s.fanOut(usecase.MsgQuality, func(symbol string, tf models.Timeframe) interface{} {
		return models.QualityCommand{Symbol: symbol, Timeframe: tf.String(), LookbackHours: s.cfg.QualityHours}
	})
}

func (s *Scheduler) fanOut(msgType string, build func(string, models.Timeframe) interface{}) {
	symbols := s.symbols.Active(s.ctx)
	queued, failed := 0, 0
	for _, symbol := range symbols {
		for _, tf := range s.cfg.Timeframes {
			if s.ctx.Err() != nil {
				return
			}
			if err := s.dispatcher.PublishMessage(s.ctx, msgType, build(symbol, tf)); err != nil {
				failed++
				s.logger.Warn("enqueue scheduled job failed",
					logger.String("type", msgType),
					logger.String("symbol", symbol),
					logger.String("timeframe", tf.String()),
					logger.Error(err),
				)
				continue
			}
			queued++
		}
	}
	s.logger.Info("scheduled jobs enqueued",
		logger.String("type", msgType),
		logger.Int("queued", queued),
		logger.Int("failed", failed),
	)
}
