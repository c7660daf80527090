package monitor

import (
	"fmt"
	"testing"
	"time"

	"chain-sentry/internal/alerting"
)

func testConfig() DetectorConfig {
	return DetectorConfig{
		WhaleThreshold: 10000,
		BurstThreshold: 3,
		Window:         5 * time.Minute,
	}
}

func blockAt(num uint64, ts time.Time, txs ...Transaction) *Block {
	return &Block{
		Number:       num,
		Hash:         fmt.Sprintf("0xblock%d", num),
		Timestamp:    ts,
		Transactions: txs,
	}
}

func tx(from, to string, value float64) Transaction {
	return Transaction{
		Hash:  fmt.Sprintf("0xtx-%s-%s-%f", from, to, value),
		From:  from,
		To:    to,
		Value: value,
	}
}

func countCategory(alerts []*alerting.Alert, cat alerting.Category) int {
	n := 0
	for _, a := range alerts {
		if a.Category == cat {
			n++
		}
	}
	return n
}

// ---
// Whale rule
// ---

func TestWhaleTransactionDetected(t *testing.T) {
	d := NewDetector(testConfig())
	now := time.Now()

	alerts := d.Observe(blockAt(1, now, tx("0xsender", "0xreceiver", 15000)))

	if got := countCategory(alerts, alerting.CategoryWhaleTransaction); got != 1 {
		t.Fatalf("expected exactly 1 whale alert, got %d", got)
	}

	var whale *alerting.Alert
	for _, a := range alerts {
		if a.Category == alerting.CategoryWhaleTransaction {
			whale = a
		}
	}
	if whale.Severity != alerting.SeverityMedium {
		t.Errorf("severity = %s, want medium below the high multiple", whale.Severity)
	}
	if len(whale.AffectedAddresses) != 2 {
		t.Errorf("affected addresses = %v, want sender and receiver", whale.AffectedAddresses)
	}
}

func TestWhaleSeverityHighAtTenTimesThreshold(t *testing.T) {
	d := NewDetector(testConfig())

	alerts := d.Observe(blockAt(1, time.Now(), tx("0xa", "0xb", 100000)))

	if len(alerts) != 1 || alerts[0].Severity != alerting.SeverityHigh {
		t.Errorf("expected one high-severity whale alert, got %v", alerts)
	}
}

func TestBelowWhaleThresholdIgnored(t *testing.T) {
	d := NewDetector(testConfig())

	alerts := d.Observe(blockAt(1, time.Now(), tx("0xa", "0xb", 9999.99)))

	if got := countCategory(alerts, alerting.CategoryWhaleTransaction); got != 0 {
		t.Errorf("expected no whale alert below threshold, got %d", got)
	}
}

// ---
// Burst rule
// ---

func TestBurstFiresExactlyAtThreshold(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	for i := 0; i < 2; i++ {
		alerts := d.Observe(blockAt(uint64(i+1), base.Add(time.Duration(i)*time.Second),
			tx("0xbursty", "0xany", 1)))
		if got := countCategory(alerts, alerting.CategoryUnusualActivity); got != 0 {
			t.Fatalf("burst alert fired early on observation %d", i+1)
		}
	}

	alerts := d.Observe(blockAt(3, base.Add(2*time.Second), tx("0xbursty", "0xany", 1)))
	if got := countCategory(alerts, alerting.CategoryUnusualActivity); got != 1 {
		t.Fatalf("expected burst alert on threshold observation, got %d", got)
	}
}

func TestBurstWindowExpiry(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	// Two observations, then advance past the window.
	d.Observe(blockAt(1, base, tx("0xa", "0xb", 1)))
	d.Observe(blockAt(2, base.Add(time.Second), tx("0xa", "0xb", 1)))

	later := base.Add(10 * time.Minute)
	alerts := d.Observe(blockAt(3, later, tx("0xa", "0xb", 1)))
	if got := countCategory(alerts, alerting.CategoryUnusualActivity); got != 0 {
		t.Fatal("expired entries must not count toward the burst threshold")
	}

	// Two more inside the new window reach the threshold of 3.
	d.Observe(blockAt(4, later.Add(time.Second), tx("0xa", "0xb", 1)))
	alerts = d.Observe(blockAt(5, later.Add(2*time.Second), tx("0xa", "0xb", 1)))
	if got := countCategory(alerts, alerting.CategoryUnusualActivity); got != 1 {
		t.Errorf("expected burst alert after window reset, got %d", got)
	}
}

func TestBurstPerAddress(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	d.Observe(blockAt(1, base, tx("0xa", "0xx", 1), tx("0xb", "0xx", 1)))
	d.Observe(blockAt(2, base.Add(time.Second), tx("0xa", "0xx", 1), tx("0xb", "0xx", 1)))
	alerts := d.Observe(blockAt(3, base.Add(2*time.Second), tx("0xa", "0xx", 1)))

	if got := countCategory(alerts, alerting.CategoryUnusualActivity); got != 1 {
		t.Errorf("expected burst for 0xa only, got %d alerts", got)
	}
}

// The detector assumes at-most-once block delivery and performs no
// deduplication by transaction hash: the same transaction observed
// twice counts twice toward the burst threshold.
func TestRepeatedObservationCountsTwice(t *testing.T) {
	cfg := testConfig()
	cfg.BurstThreshold = 2
	d := NewDetector(cfg)
	base := time.Now()

	same := tx("0xa", "0xb", 1)
	d.Observe(blockAt(1, base, same))
	alerts := d.Observe(blockAt(1, base, same))

	if got := countCategory(alerts, alerting.CategoryUnusualActivity); got != 1 {
		t.Errorf("re-observed transaction should count toward the threshold, got %d alerts", got)
	}
}

func TestEmptyWindowsRemoved(t *testing.T) {
	d := NewDetector(testConfig())
	base := time.Now()

	d.Observe(blockAt(1, base, tx("0xa", "0xb", 1)))
	if d.ActiveWindows() != 1 {
		t.Fatalf("expected 1 active window, got %d", d.ActiveWindows())
	}

	// A later block from another address prunes the stale window.
	d.Observe(blockAt(2, base.Add(10*time.Minute), tx("0xc", "0xd", 1)))
	if d.ActiveWindows() != 1 {
		t.Errorf("expected stale window pruned, got %d active", d.ActiveWindows())
	}
}

// ---
// Known-bad-contract rule
// ---

func TestVulnerableContractInteraction(t *testing.T) {
	d := NewDetector(testConfig())
	d.FlagContract("0xBadContract")

	alerts := d.Observe(blockAt(1, time.Now(), tx("0xuser", "0xBADCONTRACT", 5)))

	if got := countCategory(alerts, alerting.CategoryVulnerableContract); got != 1 {
		t.Fatalf("expected vulnerable contract alert, got %d", got)
	}
	for _, a := range alerts {
		if a.Category == alerting.CategoryVulnerableContract && a.Severity != alerting.SeverityHigh {
			t.Errorf("severity = %s, want high", a.Severity)
		}
	}
}

func TestUnflagContract(t *testing.T) {
	d := NewDetector(testConfig())
	d.FlagContract("0xbad")
	d.UnflagContract("0xBAD")

	alerts := d.Observe(blockAt(1, time.Now(), tx("0xuser", "0xbad", 5)))

	if got := countCategory(alerts, alerting.CategoryVulnerableContract); got != 0 {
		t.Errorf("expected no alert for unflagged contract, got %d", got)
	}
}

// ---
// Combined
// ---

func TestSingleTransactionCanTriggerMultipleRules(t *testing.T) {
	cfg := testConfig()
	cfg.BurstThreshold = 1
	d := NewDetector(cfg)
	d.FlagContract("0xbad")

	alerts := d.Observe(blockAt(1, time.Now(), tx("0xwhale", "0xbad", 20000)))

	if countCategory(alerts, alerting.CategoryWhaleTransaction) != 1 ||
		countCategory(alerts, alerting.CategoryUnusualActivity) != 1 ||
		countCategory(alerts, alerting.CategoryVulnerableContract) != 1 {
		t.Errorf("expected all three rules to fire, got %d alerts", len(alerts))
	}
}
