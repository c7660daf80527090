package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"chain-sentry/internal/metrics"
)

// DeliveryStatus represents the delivery state of an alert to one sink.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryRetrying   DeliveryStatus = "retrying"
	DeliveryDeadLetter DeliveryStatus = "dead_letter"
)

// DeliveryRecord tracks the delivery of an alert to a specific sink.
type DeliveryRecord struct {
	ID          uuid.UUID      `json:"id"`
	AlertID     string         `json:"alert_id"`
	SinkName    string         `json:"sink_name"`
	Status      DeliveryStatus `json:"status"`
	Attempts    int            `json:"attempts"`
	LastAttempt time.Time      `json:"last_attempt"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
}

// DeliveryConfig configures the reliable delivery system.
type DeliveryConfig struct {
	MaxRetries     int           // Maximum retry attempts (default 5)
	InitialBackoff time.Duration // First retry delay (default 1s)
	MaxBackoff     time.Duration // Maximum backoff duration (default 30s)
	BackoffFactor  float64       // Backoff multiplier (default 2.0)
	RetryTimeout   time.Duration // Per-attempt timeout (default 10s)
}

// DefaultDeliveryConfig returns sensible delivery defaults.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		RetryTimeout:   10 * time.Second,
	}
}

// ReliableDispatcher delivers alerts to sinks with retries and
// dead-letter support. A failing sink never blocks the others; each
// delivery runs in its own goroutine.
type ReliableDispatcher struct {
	config     DeliveryConfig
	records    map[uuid.UUID]*DeliveryRecord
	deadLetter []*DeliveryRecord
	mu         sync.RWMutex
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// NewReliableDispatcher creates a new dispatcher.
func NewReliableDispatcher(cfg DeliveryConfig) *ReliableDispatcher {
	return &ReliableDispatcher{
		config:  cfg,
		records: make(map[uuid.UUID]*DeliveryRecord),
		stopCh:  make(chan struct{}),
	}
}

// Dispatch sends an alert to every given sink with retry logic.
func (d *ReliableDispatcher) Dispatch(ctx context.Context, alert *Alert, sinks []Sink) {
	for _, s := range sinks {
		record := &DeliveryRecord{
			ID:        uuid.New(),
			AlertID:   alert.ID,
			SinkName:  s.Name(),
			Status:    DeliveryPending,
			CreatedAt: time.Now(),
		}

		d.mu.Lock()
		d.records[record.ID] = record
		d.mu.Unlock()

		d.wg.Add(1)
		go d.deliverWithRetry(ctx, s, alert, record)
	}
}

// deliverWithRetry attempts delivery with exponential backoff.
func (d *ReliableDispatcher) deliverWithRetry(ctx context.Context, s Sink, alert *Alert, record *DeliveryRecord) {
	defer d.wg.Done()

	backoff := d.config.InitialBackoff
	maxRetries := d.config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		d.mu.Lock()
		record.Attempts = attempt
		record.LastAttempt = time.Now()
		if attempt > 1 {
			record.Status = DeliveryRetrying
		}
		d.mu.Unlock()

		attemptCtx, cancel := context.WithTimeout(ctx, d.config.RetryTimeout)
		err := s.Deliver(attemptCtx, alert)
		cancel()

		if err == nil {
			now := time.Now()
			d.mu.Lock()
			record.Status = DeliverySent
			record.DeliveredAt = &now
			d.mu.Unlock()

			metrics.SinkDelivery(s.Name(), "delivered")
			slog.Debug("alert delivered",
				"sink", s.Name(),
				"alert_id", alert.ID,
				"attempts", attempt,
			)
			return
		}

		d.mu.Lock()
		record.LastError = err.Error()
		d.mu.Unlock()

		metrics.SinkDelivery(s.Name(), "failed")
		slog.Warn("alert delivery failed",
			"sink", s.Name(),
			"alert_id", alert.ID,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		// Don't sleep after the last attempt
		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				d.moveToDeadLetter(record, "context cancelled")
				return
			case <-d.stopCh:
				d.moveToDeadLetter(record, "dispatcher stopped")
				return
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * d.config.BackoffFactor)
			if backoff > d.config.MaxBackoff {
				backoff = d.config.MaxBackoff
			}
		}
	}

	d.moveToDeadLetter(record, record.LastError)
}

func (d *ReliableDispatcher) moveToDeadLetter(record *DeliveryRecord, reason string) {
	d.mu.Lock()
	record.Status = DeliveryDeadLetter
	record.LastError = reason
	d.deadLetter = append(d.deadLetter, record)
	d.mu.Unlock()

	metrics.SinkDelivery(record.SinkName, "dead_letter")
	slog.Error("alert moved to dead letter queue",
		"alert_id", record.AlertID,
		"sink", record.SinkName,
		"attempts", record.Attempts,
		"reason", reason,
	)
}

// DeadLetterQueue returns all failed delivery records.
func (d *ReliableDispatcher) DeadLetterQueue() []*DeliveryRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*DeliveryRecord, len(d.deadLetter))
	copy(result, d.deadLetter)
	return result
}

// GetDeliveryRecords returns delivery records for a given alert.
func (d *ReliableDispatcher) GetDeliveryRecords(alertID string) []*DeliveryRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var records []*DeliveryRecord
	for _, rec := range d.records {
		if rec.AlertID == alertID {
			records = append(records, rec)
		}
	}
	return records
}

// Stats returns delivery statistics.
func (d *ReliableDispatcher) Stats() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	statusCounts := make(map[string]int)
	sinkCounts := make(map[string]map[string]int)

	for _, rec := range d.records {
		statusCounts[string(rec.Status)]++

		if _, ok := sinkCounts[rec.SinkName]; !ok {
			sinkCounts[rec.SinkName] = make(map[string]int)
		}
		sinkCounts[rec.SinkName][string(rec.Status)]++
	}

	return map[string]interface{}{
		"total_deliveries":  len(d.records),
		"dead_letter_count": len(d.deadLetter),
		"by_status":         statusCounts,
		"by_sink":           sinkCounts,
	}
}

// Stop waits for all pending deliveries to complete.
func (d *ReliableDispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
}

// Wait blocks until in-flight deliveries finish. Used by tests.
func (d *ReliableDispatcher) Wait() {
	d.wg.Wait()
}
