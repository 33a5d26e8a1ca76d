package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
)

func TestBuildOptions(t *testing.T) {
	cfg := ClientConfig{Port: 9000, Database: "default", User: "default"}
	for _, opt := range []ClientOption{
		WithHost("ch.local"),
		WithPort(9440),
		WithDatabase("barpull"),
		WithCredentials("ingest", "secret"),
		WithTimeouts(2*time.Second, 0),
		WithMaxExecutionTime(90 * time.Second),
		WithAsyncInsert(true, true),
	} {
		opt(&cfg)
	}

	opts := buildOptions(cfg)
	assert.Equal(t, []string{"ch.local:9440"}, opts.Addr)
	assert.Equal(t, "barpull", opts.Auth.Database)
	assert.Equal(t, "ingest", opts.Auth.Username)
	assert.Equal(t, "secret", opts.Auth.Password)
	assert.Equal(t, clickhouse.Native, opts.Protocol)
	assert.Equal(t, 2*time.Second, opts.DialTimeout)
	assert.Equal(t, 90, opts.Settings["max_execution_time"])
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 1, opts.Settings["wait_for_async_insert"])
}

func TestBuildOptionsHTTPWithoutAsync(t *testing.T) {
	cfg := ClientConfig{Host: "localhost", Port: 8123}
	WithHTTP(true)(&cfg)

	opts := buildOptions(cfg)
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
	assert.NotContains(t, opts.Settings, "async_insert")
	assert.NotContains(t, opts.Settings, "max_execution_time")
}
