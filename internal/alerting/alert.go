// Package alerting contains the alert hub: category-keyed sink fan-out,
// subscriber interest matching, and reliable delivery with retries.
package alerting

import (
	"time"

	"github.com/google/uuid"
)

// Category classifies an alert.
type Category string

const (
	CategoryWhaleTransaction   Category = "whale_transaction"
	CategoryUnusualActivity    Category = "unusual_activity"
	CategoryVulnerableContract Category = "vulnerable_contract"
	CategorySecurityNews       Category = "security_news"
	CategoryProtocolCompromise Category = "protocol_compromise"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryWhaleTransaction, CategoryUnusualActivity,
		CategoryVulnerableContract, CategorySecurityNews,
		CategoryProtocolCompromise:
		return true
	}
	return false
}

// Categories returns all alert categories.
func Categories() []Category {
	return []Category{
		CategoryWhaleTransaction,
		CategoryUnusualActivity,
		CategoryVulnerableContract,
		CategorySecurityNews,
		CategoryProtocolCompromise,
	}
}

// Severity indicates alert urgency.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Alert is an emitted security alert. Append-only once processed.
type Alert struct {
	ID                string    `json:"id"`
	Category          Category  `json:"category"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Source            string    `json:"source"`
	Severity          Severity  `json:"severity"`
	Timestamp         time.Time `json:"timestamp"`
	AffectedAddresses []string  `json:"affected_addresses,omitempty"`
	AffectedProtocols []string  `json:"affected_protocols,omitempty"`

	// seq is the insertion sequence assigned by the hub, used as the
	// tie-break for history ordering.
	seq uint64
}

// NewAlert creates an alert with a fresh id and the current timestamp.
func NewAlert(category Category, severity Severity, title, description, source string) *Alert {
	return &Alert{
		ID:          uuid.NewString(),
		Category:    category,
		Title:       title,
		Description: description,
		Source:      source,
		Severity:    severity,
		Timestamp:   time.Now().UTC(),
	}
}
