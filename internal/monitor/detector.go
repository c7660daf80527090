package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"chain-sentry/internal/alerting"
	"chain-sentry/internal/metrics"
)

// DetectorConfig holds anomaly detection thresholds.
type DetectorConfig struct {
	WhaleThreshold float64       `yaml:"whale_threshold"` // native units, default 10000
	BurstThreshold int           `yaml:"burst_threshold"` // observations per window, default 50
	Window         time.Duration `yaml:"window"`          // lookback, default 5m
}

// DefaultDetectorConfig returns the default thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		WhaleThreshold: 10000,
		BurstThreshold: 50,
		Window:         5 * time.Minute,
	}
}

type observation struct {
	value float64
	at    time.Time
}

// Detector consumes blocks in order and emits alerts for whale
// transfers, burst activity, and flagged contract interaction.
//
// The detector performs no deduplication by transaction hash: the block
// source guarantees at-most-once delivery, so re-observing a
// transaction would double-count toward the burst threshold.
type Detector struct {
	config DetectorConfig

	mu         sync.Mutex
	windows    map[string][]observation // lowercase from-address
	vulnerable map[string]struct{}      // lowercase contract address
}

// NewDetector creates a detector with the given thresholds. Zero-valued
// fields fall back to defaults.
func NewDetector(cfg DetectorConfig) *Detector {
	def := DefaultDetectorConfig()
	if cfg.WhaleThreshold <= 0 {
		cfg.WhaleThreshold = def.WhaleThreshold
	}
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = def.BurstThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Detector{
		config:     cfg,
		windows:    make(map[string][]observation),
		vulnerable: make(map[string]struct{}),
	}
}

// FlagContract adds a contract address to the known-bad set.
func (d *Detector) FlagContract(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vulnerable[strings.ToLower(address)] = struct{}{}
}

// UnflagContract removes a contract address from the known-bad set.
func (d *Detector) UnflagContract(address string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.vulnerable, strings.ToLower(address))
}

// Observe processes one block and returns the alerts it triggers. Blocks
// must arrive in increasing number order; observation timestamps come
// from the block.
func (d *Detector) Observe(block *Block) []*alerting.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	metrics.BlockObserved()

	var alerts []*alerting.Alert
	for i := range block.Transactions {
		tx := &block.Transactions[i]

		if a := d.checkWhale(tx, block); a != nil {
			alerts = append(alerts, a)
		}
		if a := d.checkBurst(tx, block); a != nil {
			alerts = append(alerts, a)
		}
		if a := d.checkVulnerable(tx, block); a != nil {
			alerts = append(alerts, a)
		}
	}

	d.pruneLocked(block.Timestamp)
	metrics.SetActiveWindows(len(d.windows))
	return alerts
}

// checkWhale is stateless: any single transaction at or above the
// threshold fires.
func (d *Detector) checkWhale(tx *Transaction, block *Block) *alerting.Alert {
	if tx.Value < d.config.WhaleThreshold {
		return nil
	}

	severity := alerting.SeverityMedium
	if tx.Value >= d.config.WhaleThreshold*10 {
		severity = alerting.SeverityHigh
	}

	a := alerting.NewAlert(
		alerting.CategoryWhaleTransaction,
		severity,
		fmt.Sprintf("Whale transfer of %.0f units", tx.Value),
		fmt.Sprintf("Transaction %s moved %.2f units from %s to %s in block %d.",
			tx.Hash, tx.Value, tx.From, tx.To, block.Number),
		"chain-monitor",
	)
	a.Timestamp = block.Timestamp
	a.AffectedAddresses = []string{strings.ToLower(tx.From), strings.ToLower(tx.To)}
	return a
}

// checkBurst appends the observation to the sender's window and fires
// when the in-window count reaches the threshold. The window is cleared
// after firing so one burst produces one alert.
func (d *Detector) checkBurst(tx *Transaction, block *Block) *alerting.Alert {
	addr := strings.ToLower(tx.From)
	cutoff := block.Timestamp.Add(-d.config.Window)

	win := d.windows[addr]

	// Drop expired entries before counting. Entries are chronological,
	// so find the first still-valid index.
	keep := 0
	for keep < len(win) && win[keep].at.Before(cutoff) {
		keep++
	}
	win = win[keep:]

	win = append(win, observation{value: tx.Value, at: block.Timestamp})

	if len(win) >= d.config.BurstThreshold {
		delete(d.windows, addr)

		a := alerting.NewAlert(
			alerting.CategoryUnusualActivity,
			alerting.SeverityHigh,
			fmt.Sprintf("Burst activity from %s", addr),
			fmt.Sprintf("Address %s sent %d transactions within %s (threshold %d).",
				addr, len(win), d.config.Window, d.config.BurstThreshold),
			"chain-monitor",
		)
		a.Timestamp = block.Timestamp
		a.AffectedAddresses = []string{addr}
		return a
	}

	d.windows[addr] = win
	return nil
}

func (d *Detector) checkVulnerable(tx *Transaction, block *Block) *alerting.Alert {
	to := strings.ToLower(tx.To)
	if _, flagged := d.vulnerable[to]; !flagged {
		return nil
	}

	a := alerting.NewAlert(
		alerting.CategoryVulnerableContract,
		alerting.SeverityHigh,
		fmt.Sprintf("Interaction with flagged contract %s", to),
		fmt.Sprintf("Transaction %s from %s interacted with flagged contract %s in block %d.",
			tx.Hash, tx.From, to, block.Number),
		"chain-monitor",
	)
	a.Timestamp = block.Timestamp
	a.AffectedAddresses = []string{strings.ToLower(tx.From), to}
	return a
}

// pruneLocked drops expired window entries and removes addresses whose
// window emptied. Caller holds d.mu.
func (d *Detector) pruneLocked(now time.Time) {
	cutoff := now.Add(-d.config.Window)
	for addr, win := range d.windows {
		keep := 0
		for keep < len(win) && win[keep].at.Before(cutoff) {
			keep++
		}
		if keep == len(win) {
			delete(d.windows, addr)
			continue
		}
		if keep > 0 {
			d.windows[addr] = win[keep:]
		}
	}
}

// ActiveWindows returns the number of addresses with a non-empty window.
func (d *Detector) ActiveWindows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.windows)
}
