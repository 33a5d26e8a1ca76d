package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeService struct {
	name     string
	j        *journal
	startErr error
}

func (f *fakeService) Start() error {
	f.j.add("start " + f.name)
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.j.add("stop " + f.name)
	return nil
}

type fakeTrigger struct{ j *journal }

func (f *fakeTrigger) Start() { f.j.add("start cron") }
func (f *fakeTrigger) Stop()  { f.j.add("stop cron") }

func TestAppShutdownOrder(t *testing.T) {
	j := &journal{}
	app := New(nil,
		&fakeService{name: "http", j: j},
		&fakeService{name: "queue", j: j},
		&fakeTrigger{j: j},
		time.Second,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return len(j.all()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("app did not stop")
	}

	assert.Equal(t, []string{
		"start queue", "start http", "start cron",
		"stop cron", "stop queue", "stop http",
	}, j.all())
}

func TestAppStartFailureStopsStartedServices(t *testing.T) {
	j := &journal{}
	app := New(nil,
		&fakeService{name: "http", j: j, startErr: errors.New("port in use")},
		&fakeService{name: "queue", j: j},
		nil,
		time.Second,
	)

	err := app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
	assert.Equal(t, []string{"start queue", "start http", "stop queue", "stop http"}, j.all())
}
