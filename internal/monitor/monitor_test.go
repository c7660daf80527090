package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chain-sentry/internal/alerting"
)

type stubBlockSource struct {
	mu      sync.Mutex
	batches [][]Block
	errs    []error
	calls   int
}

func (s *stubBlockSource) NextBlocks(_ context.Context) ([]Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return nil, s.errs[idx]
	}
	if idx < len(s.batches) {
		return s.batches[idx], nil
	}
	return nil, nil
}

func (s *stubBlockSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newQuietHub() *alerting.Hub {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return alerting.NewHub(nil, nil, logger)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met within deadline")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMonitorFeedsAlertsToHub(t *testing.T) {
	source := &stubBlockSource{
		batches: [][]Block{{
			*blockAt(1, time.Now(), tx("0xwhale", "0xany", 50000)),
		}},
	}
	hub := newQuietHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := NewMonitor(source, NewDetector(testConfig()), hub, 5*time.Millisecond, logger)
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool {
		return len(hub.Alerts(alerting.AlertFilter{})) == 1
	})

	alerts := hub.Alerts(alerting.AlertFilter{})
	if alerts[0].Category != alerting.CategoryWhaleTransaction {
		t.Errorf("category = %s, want whale_transaction", alerts[0].Category)
	}
}

func TestMonitorSurvivesSourceErrors(t *testing.T) {
	source := &stubBlockSource{
		errs: []error{errors.New("rpc down"), errors.New("rpc down")},
		batches: [][]Block{nil, nil, {
			*blockAt(1, time.Now(), tx("0xwhale", "0xany", 50000)),
		}},
	}
	hub := newQuietHub()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := NewMonitor(source, NewDetector(testConfig()), hub, 5*time.Millisecond, logger)
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, func() bool {
		return len(hub.Alerts(alerting.AlertFilter{})) == 1
	})
}

func TestMonitorStopsCleanly(t *testing.T) {
	source := &stubBlockSource{}
	m := NewMonitor(source, NewDetector(testConfig()), newQuietHub(), 5*time.Millisecond,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.Start(context.Background())
	waitFor(t, func() bool { return source.callCount() > 0 })
	m.Stop()

	calls := source.callCount()
	time.Sleep(20 * time.Millisecond)
	if source.callCount() != calls {
		t.Error("polling continued after Stop")
	}
}
