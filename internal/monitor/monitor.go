package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chain-sentry/internal/alerting"
)

const defaultPollInterval = 15 * time.Second

// Monitor drives the detector: it polls the block source on an interval,
// feeds blocks through the detector in order, and hands resulting alerts
// to the hub. Transient source errors are logged and the loop continues
// on the next tick.
type Monitor struct {
	source   BlockSource
	detector *Detector
	hub      *alerting.Hub
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a chain monitor.
func NewMonitor(source BlockSource, detector *Detector, hub *alerting.Hub, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		source:   source,
		detector: detector,
		hub:      hub,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a background goroutine.
func (m *Monitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go m.run(ctx)
	m.logger.Info("chain monitor started", "interval", m.interval)
}

// Stop halts the polling loop and waits for the in-flight poll.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("chain monitor stopped")
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	blocks, err := m.source.NextBlocks(ctx)
	if err != nil {
		m.logger.Warn("failed to read blocks", "error", err)
		return
	}

	for i := range blocks {
		alerts := m.detector.Observe(&blocks[i])
		for _, a := range alerts {
			m.hub.Process(ctx, a)
		}
		if len(alerts) > 0 {
			m.logger.Debug("block produced alerts",
				"block", blocks[i].Number,
				"alerts", len(alerts),
			)
		}
	}
}
