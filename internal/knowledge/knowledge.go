// Package knowledge provides the security knowledge base backing risk
// assessments: historical exploits keyed by protocol, audit reports
// keyed by contract address, and general security advisories.
package knowledge

import (
	"fmt"
	"strings"
	"sync"
)

// Exploit records a historical incident against a protocol.
type Exploit struct {
	Date         string `json:"date"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	LossAmount   string `json:"loss_amount"`
	AttackVector string `json:"attack_vector"`
}

// AuditFinding is a single finding inside an audit report.
type AuditFinding struct {
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AuditReport records a third-party audit of a contract.
type AuditReport struct {
	Auditor  string         `json:"auditor"`
	Date     string         `json:"date"`
	Findings []AuditFinding `json:"findings"`
}

// Advisory is a general security advisory tagged with the categories
// it applies to.
type Advisory struct {
	Date               string   `json:"date"`
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	AffectedCategories []string `json:"affected_categories"`
}

// SearchResult is one hit from a knowledge base search.
type SearchResult struct {
	Type     string `json:"type"` // "exploit", "audit_finding", "advisory"
	Protocol string `json:"protocol,omitempty"`
	Contract string `json:"contract,omitempty"`
	Auditor  string `json:"auditor,omitempty"`
	Data     any    `json:"data"`
}

// Base is the in-memory security knowledge base. Lookups are read-mostly;
// a RWMutex guards concurrent registration from loaders.
type Base struct {
	mu         sync.RWMutex
	exploits   map[string][]Exploit     // lowercase protocol name
	audits     map[string][]AuditReport // contract address as given
	advisories []Advisory
}

// NewBase creates a knowledge base seeded with the built-in sample corpus.
func NewBase() *Base {
	b := &Base{
		exploits: make(map[string][]Exploit),
		audits:   make(map[string][]AuditReport),
	}
	b.loadSeedData()
	return b
}

func (b *Base) loadSeedData() {
	b.exploits["uniswap"] = []Exploit{{
		Date:         "2023-04-15",
		Title:        "Price manipulation attack",
		Description:  "Attackers manipulated price oracles to drain liquidity pools.",
		LossAmount:   "$3.2M",
		AttackVector: "Oracle manipulation",
	}}
	b.exploits["aave"] = []Exploit{{
		Date:         "2022-11-22",
		Title:        "Flash loan exploit",
		Description:  "Attacker used flash loans to manipulate collateral prices.",
		LossAmount:   "$1.5M",
		AttackVector: "Flash loan + oracle manipulation",
	}}

	b.audits["0x742d35Cc6634C0532925a3b844Bc454e4438f44e"] = []AuditReport{{
		Auditor: "CertiK",
		Date:    "2023-01-10",
		Findings: []AuditFinding{
			{Severity: "high", Title: "Reentrancy vulnerability", Description: "Potential reentrancy in withdraw function"},
			{Severity: "medium", Title: "Centralization risk", Description: "Admin has excessive privileges"},
		},
	}}

	b.advisories = []Advisory{
		{
			Date:               "2023-09-05",
			Title:              "Increasing flash loan attacks in DeFi",
			Description:        "Recent trend shows increasing use of flash loans in exploits",
			AffectedCategories: []string{"lending", "dex", "defi"},
		},
		{
			Date:               "2023-10-12",
			Title:              "Vulnerable solidity patterns",
			Description:        "Common vulnerable patterns in Solidity smart contracts",
			AffectedCategories: []string{"smart_contracts", "defi"},
		},
	}
}

// AddExploit registers a historical exploit for a protocol.
func (b *Base) AddExploit(protocol string, e Exploit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := strings.ToLower(protocol)
	b.exploits[key] = append(b.exploits[key], e)
}

// AddAuditReport registers an audit report for a contract address.
func (b *Base) AddAuditReport(contract string, r AuditReport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.audits[contract] = append(b.audits[contract], r)
}

// AddAdvisory registers a security advisory.
func (b *Base) AddAdvisory(a Advisory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advisories = append(b.advisories, a)
}

// ExploitHistory returns known exploits for a protocol.
func (b *Base) ExploitHistory(protocol string) []Exploit {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Exploit(nil), b.exploits[strings.ToLower(protocol)]...)
}

// AuditReports returns known audit reports for a contract address.
func (b *Base) AuditReports(contract string) []AuditReport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]AuditReport(nil), b.audits[contract]...)
}

// RelevantAdvisories returns advisories affecting any of the given categories.
func (b *Base) RelevantAdvisories(categories []string) []Advisory {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Advisory
	for _, adv := range b.advisories {
		for _, want := range categories {
			if containsFold(adv.AffectedCategories, want) {
				out = append(out, adv)
				break
			}
		}
	}
	return out
}

// Build assembles the context string for an assessment of the given
// target. Protocols get their exploit history, contracts their audit
// reports, addresses a short identification stanza; category-relevant
// advisories and the general security notes are appended for all.
func (b *Base) Build(targetType, targetID string) string {
	var sb strings.Builder

	switch targetType {
	case "protocol":
		exploits := b.ExploitHistory(targetID)
		if len(exploits) > 0 {
			sb.WriteString("EXPLOIT HISTORY:\n")
			for _, e := range exploits {
				fmt.Fprintf(&sb, "- Date: %s\n", e.Date)
				fmt.Fprintf(&sb, "  Title: %s\n", e.Title)
				fmt.Fprintf(&sb, "  Description: %s\n", e.Description)
				fmt.Fprintf(&sb, "  Loss: %s\n", e.LossAmount)
				fmt.Fprintf(&sb, "  Attack Vector: %s\n", e.AttackVector)
			}
			sb.WriteString("\n")
		}
		b.writeAdvisories(&sb, []string{"defi", "protocol"})

	case "contract":
		reports := b.AuditReports(targetID)
		if len(reports) > 0 {
			sb.WriteString("AUDIT REPORTS:\n")
			for _, r := range reports {
				fmt.Fprintf(&sb, "- Auditor: %s\n", r.Auditor)
				fmt.Fprintf(&sb, "  Date: %s\n", r.Date)
				sb.WriteString("  Findings:\n")
				for _, f := range r.Findings {
					fmt.Fprintf(&sb, "  - Severity: %s\n", f.Severity)
					fmt.Fprintf(&sb, "    Title: %s\n", f.Title)
					fmt.Fprintf(&sb, "    Description: %s\n", f.Description)
				}
			}
			sb.WriteString("\n")
		}
		b.writeAdvisories(&sb, []string{"smart_contracts"})

	case "address":
		sb.WriteString("ADDRESS INFORMATION:\n")
		fmt.Fprintf(&sb, "- Address: %s\n", targetID)
		sb.WriteString("- No specific history available for this address\n\n")
	}

	sb.WriteString("GENERAL SECURITY KNOWLEDGE:\n")
	sb.WriteString("- Smart contracts should follow the checks-effects-interactions pattern\n")
	sb.WriteString("- Reentrancy vulnerabilities are common in DeFi protocols\n")
	sb.WriteString("- Oracle manipulation is a frequent attack vector\n")
	sb.WriteString("- Flash loan attacks can exploit price manipulation vulnerabilities\n")
	sb.WriteString("- Access control issues can lead to unauthorized fund withdrawals")

	return sb.String()
}

func (b *Base) writeAdvisories(sb *strings.Builder, categories []string) {
	advisories := b.RelevantAdvisories(categories)
	if len(advisories) == 0 {
		return
	}
	sb.WriteString("SECURITY ADVISORIES:\n")
	for _, adv := range advisories {
		fmt.Fprintf(sb, "- Date: %s\n", adv.Date)
		fmt.Fprintf(sb, "  Title: %s\n", adv.Title)
		fmt.Fprintf(sb, "  Description: %s\n", adv.Description)
	}
	sb.WriteString("\n")
}

// Search performs a keyword search across exploits, audit findings,
// and advisories.
func (b *Base) Search(query string) []SearchResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q := strings.ToLower(query)
	var results []SearchResult

	for protocol, exploits := range b.exploits {
		for _, e := range exploits {
			if strings.Contains(protocol, q) ||
				strings.Contains(strings.ToLower(e.Title), q) ||
				strings.Contains(strings.ToLower(e.Description), q) {
				results = append(results, SearchResult{Type: "exploit", Protocol: protocol, Data: e})
			}
		}
	}

	for contract, reports := range b.audits {
		for _, r := range reports {
			for _, f := range r.Findings {
				if strings.Contains(strings.ToLower(f.Title), q) ||
					strings.Contains(strings.ToLower(f.Description), q) {
					results = append(results, SearchResult{
						Type:     "audit_finding",
						Contract: contract,
						Auditor:  r.Auditor,
						Data:     f,
					})
				}
			}
		}
	}

	for _, adv := range b.advisories {
		if strings.Contains(strings.ToLower(adv.Title), q) ||
			strings.Contains(strings.ToLower(adv.Description), q) {
			results = append(results, SearchResult{Type: "advisory", Data: adv})
		}
	}

	return results
}

func containsFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(s, want) {
			return true
		}
	}
	return false
}
