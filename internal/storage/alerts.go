package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"chain-sentry/internal/alerting"
)

// batchPreparer is the slice of the client the alert store needs.
// Narrowed for testability.
type batchPreparer interface {
	PrepareBatch(ctx context.Context, query string) (driver.Batch, error)
	Exec(ctx context.Context, query string, args ...any) error
}

// AlertStoreConfig holds configuration for the batched alert writer.
type AlertStoreConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	Retention     time.Duration `yaml:"retention"` // TTL on the alerts table
}

// DefaultAlertStoreConfig returns the default alert store configuration.
func DefaultAlertStoreConfig() AlertStoreConfig {
	return AlertStoreConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		Retention:     90 * 24 * time.Hour,
	}
}

// AlertStore persists alerts to ClickHouse in batches. Insert buffers;
// a full buffer or the flush timer pushes the batch out.
type AlertStore struct {
	client batchPreparer
	config AlertStoreConfig

	buffer []*alerting.Alert
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	totalWritten uint64
	totalFailed  uint64
	batchCount   uint64
}

// NewAlertStore creates a batched alert store.
func NewAlertStore(client batchPreparer, cfg AlertStoreConfig) *AlertStore {
	def := DefaultAlertStoreConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	s := &AlertStore{
		client: client,
		config: cfg,
		buffer: make([]*alerting.Alert, 0, cfg.BatchSize),
	}
	s.flushTimer = time.AfterFunc(cfg.FlushInterval, s.timerFlush)
	return s
}

// EnsureSchema creates the alerts table if it doesn't exist.
func (s *AlertStore) EnsureSchema(ctx context.Context) error {
	ttlDays := int(s.config.Retention.Hours() / 24)
	if ttlDays <= 0 {
		ttlDays = 90
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS alerts (
			id String,
			category LowCardinality(String),
			title String,
			description String,
			source LowCardinality(String),
			severity LowCardinality(String),
			timestamp DateTime64(3),
			affected_addresses Array(String),
			affected_protocols Array(String)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (category, timestamp)
		TTL toDateTime(timestamp) + INTERVAL %d DAY
	`, ttlDays)
	return s.client.Exec(ctx, query)
}

// Insert buffers an alert for batched persistence. Satisfies
// alerting.HistoryStore.
func (s *AlertStore) Insert(_ context.Context, alert *alerting.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.buffer = append(s.buffer, alert)

	if len(s.buffer) >= s.config.BatchSize {
		return s.flushLocked()
	}
	return nil
}

func (s *AlertStore) timerFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	if len(s.buffer) > 0 {
		if err := s.flushLocked(); err != nil {
			slog.Error("alert flush failed", "error", err)
		}
	}

	s.flushTimer.Reset(s.config.FlushInterval)
}

// flushLocked flushes the buffer. Caller must hold the lock.
func (s *AlertStore) flushLocked() error {
	if len(s.buffer) == 0 {
		return nil
	}

	alerts := s.buffer
	s.buffer = make([]*alerting.Alert, 0, s.config.BatchSize)

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(s.config.RetryDelay * time.Duration(attempt))
		}

		if err := s.insertBatch(alerts); err != nil {
			lastErr = err
			slog.Warn("alert batch insert failed, retrying",
				"attempt", attempt+1,
				"max_retries", s.config.MaxRetries,
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&s.totalWritten, uint64(len(alerts)))
		atomic.AddUint64(&s.batchCount, 1)
		return nil
	}

	atomic.AddUint64(&s.totalFailed, uint64(len(alerts)))
	return fmt.Errorf("%w: after %d retries: %v", ErrBatchInsertFailed, s.config.MaxRetries, lastErr)
}

func (s *AlertStore) insertBatch(alerts []*alerting.Alert) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	batch, err := s.client.PrepareBatch(ctx, `
		INSERT INTO alerts (
			id, category, title, description, source,
			severity, timestamp, affected_addresses, affected_protocols
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, a := range alerts {
		addresses := make([]string, len(a.AffectedAddresses))
		for i, addr := range a.AffectedAddresses {
			addresses[i] = strings.ToLower(addr)
		}

		err := batch.Append(
			a.ID,
			string(a.Category),
			a.Title,
			a.Description,
			a.Source,
			string(a.Severity),
			a.Timestamp,
			addresses,
			a.AffectedProtocols,
		)
		if err != nil {
			return fmt.Errorf("failed to append alert: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	slog.Debug("alert batch inserted", "count", len(alerts))
	return nil
}

// Flush forces a flush of the current buffer.
func (s *AlertStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close stops the flush timer and flushes remaining alerts.
func (s *AlertStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	err := s.flushLocked()
	s.closed = true
	s.mu.Unlock()

	s.flushTimer.Stop()
	return err
}

// Metrics returns alert store statistics.
func (s *AlertStore) Metrics() AlertStoreMetrics {
	s.mu.Lock()
	pending := len(s.buffer)
	s.mu.Unlock()

	return AlertStoreMetrics{
		Written: atomic.LoadUint64(&s.totalWritten),
		Failed:  atomic.LoadUint64(&s.totalFailed),
		Batches: atomic.LoadUint64(&s.batchCount),
		Pending: pending,
	}
}

// AlertStoreMetrics holds alert store statistics.
type AlertStoreMetrics struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Batches uint64 `json:"batches"`
	Pending int    `json:"pending"`
}
