// Package risk provides multi-source risk assessment for chain targets.
// Independent assessment sources are queried concurrently and their
// verdicts reconciled into a single ranked result by majority vote.
package risk

import (
	"strings"
	"time"
)

// Level is the severity scale used both per finding and for the
// aggregate verdict. Levels are totally ordered: low < medium < high < critical.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// levelRank maps a level to its position in the total order.
var levelRank = map[Level]int{
	LevelLow:      0,
	LevelMedium:   1,
	LevelHigh:     2,
	LevelCritical: 3,
}

// Rank returns the ordinal position of the level (low=0 .. critical=3).
// Unknown levels rank below low.
func (l Level) Rank() int {
	if r, ok := levelRank[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is one of the four defined levels.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// ParseLevel maps a raw level string to a Level, defaulting to medium
// for anything unrecognized. Sources are black boxes; an invalid level
// must never cause a finding to be dropped.
func ParseLevel(s string) Level {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if l.Valid() {
		return l
	}
	return LevelMedium
}

// Levels returns all levels in ascending severity order.
func Levels() []Level {
	return []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical}
}

// Category classifies a finding.
type Category string

const (
	CategorySmartContractVulnerability Category = "smart_contract_vulnerability"
	CategoryProtocolDesignFlaw         Category = "protocol_design_flaw"
	CategoryCentralizationRisk         Category = "centralization_risk"
	CategoryEconomicAttackVector       Category = "economic_attack_vector"
	CategoryOracleManipulation         Category = "oracle_manipulation"
	CategoryGovernanceRisk             Category = "governance_risk"
	CategoryLiquidityRisk              Category = "liquidity_risk"
	CategoryFlashLoanAttackVector      Category = "flash_loan_attack_vector"
	CategoryReentrancyVulnerability    Category = "reentrancy_vulnerability"
	CategoryAccessControlIssue         Category = "access_control_issue"
)

// Categories returns the closed set of finding categories.
func Categories() []Category {
	return []Category{
		CategorySmartContractVulnerability,
		CategoryProtocolDesignFlaw,
		CategoryCentralizationRisk,
		CategoryEconomicAttackVector,
		CategoryOracleManipulation,
		CategoryGovernanceRisk,
		CategoryLiquidityRisk,
		CategoryFlashLoanAttackVector,
		CategoryReentrancyVulnerability,
		CategoryAccessControlIssue,
	}
}

var validCategories = func() map[Category]bool {
	m := make(map[Category]bool, len(Categories()))
	for _, c := range Categories() {
		m[c] = true
	}
	return m
}()

// ParseCategory maps a raw category string to a Category. Unrecognized
// values map to smart_contract_vulnerability rather than being dropped.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if validCategories[c] {
		return c
	}
	return CategorySmartContractVulnerability
}

// DisplayName renders a category as a human-readable title
// ("oracle_manipulation" -> "Oracle Manipulation").
func (c Category) DisplayName() string {
	parts := strings.Split(string(c), "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// TargetType identifies what kind of subject is being assessed.
type TargetType string

const (
	TargetContract TargetType = "contract"
	TargetProtocol TargetType = "protocol"
	TargetAddress  TargetType = "address"
)

// Valid reports whether t is a recognized target type.
func (t TargetType) Valid() bool {
	switch t {
	case TargetContract, TargetProtocol, TargetAddress:
		return true
	}
	return false
}

// Finding is a single identified risk within a verdict.
type Finding struct {
	Category       Category `json:"category"`
	Level          Level    `json:"level"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Sources        []string `json:"sources"`
}

// duplicateOf reports whether two findings describe the same issue.
// Findings are duplicates when their titles or their descriptions are
// case-insensitively equal; an empty field never matches, so findings
// carrying only a title (or only a description) stay distinct. Multiple
// sources restating the same issue should reinforce it, not multiply it.
func (f *Finding) duplicateOf(other *Finding) bool {
	if f.Title != "" && other.Title != "" && strings.EqualFold(f.Title, other.Title) {
		return true
	}
	return f.Description != "" && other.Description != "" &&
		strings.EqualFold(f.Description, other.Description)
}

// Verdict is the immutable result of one assessment.
type Verdict struct {
	TargetType TargetType     `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Overall    Level          `json:"overall_risk_level"`
	Findings   []Finding      `json:"findings"`
	Summary    string         `json:"summary"`
	Degraded   bool           `json:"degraded"`
	ProducedAt time.Time      `json:"produced_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// RawFinding is a finding as reported by a single source, before
// category/level normalization.
type RawFinding struct {
	Category       string  `json:"category"`
	Level          string  `json:"level"`
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	Recommendation string  `json:"recommendation"`
	Confidence     float64 `json:"confidence"`
}

// RawVerdict is the structurally typed result an assessment source
// returns. Sources that wrap free-form model output are responsible
// for parsing it into this shape before handing it to the engine.
type RawVerdict struct {
	OverallLevel string       `json:"overall_risk_level"`
	Findings     []RawFinding `json:"findings"`
	Summary      string       `json:"summary"`
}
