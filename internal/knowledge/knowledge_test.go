package knowledge

import (
	"strings"
	"testing"
)

func TestBuildProtocolContext(t *testing.T) {
	b := NewBase()

	ctx := b.Build("protocol", "Uniswap")

	if !strings.Contains(ctx, "EXPLOIT HISTORY:") {
		t.Error("expected exploit history section for known protocol")
	}
	if !strings.Contains(ctx, "Price manipulation attack") {
		t.Error("expected seeded uniswap exploit in context")
	}
	if !strings.Contains(ctx, "GENERAL SECURITY KNOWLEDGE:") {
		t.Error("expected general knowledge section")
	}
}

func TestBuildProtocolContextUnknown(t *testing.T) {
	b := NewBase()

	ctx := b.Build("protocol", "nonexistent")

	if strings.Contains(ctx, "EXPLOIT HISTORY:") {
		t.Error("unknown protocol should not produce an exploit history section")
	}
	if !strings.Contains(ctx, "GENERAL SECURITY KNOWLEDGE:") {
		t.Error("general knowledge section should always be present")
	}
}

func TestBuildContractContext(t *testing.T) {
	b := NewBase()

	ctx := b.Build("contract", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e")

	if !strings.Contains(ctx, "AUDIT REPORTS:") {
		t.Error("expected audit reports section for audited contract")
	}
	if !strings.Contains(ctx, "CertiK") {
		t.Error("expected auditor name in context")
	}
	if !strings.Contains(ctx, "Reentrancy vulnerability") {
		t.Error("expected audit finding title in context")
	}
}

func TestBuildAddressContext(t *testing.T) {
	b := NewBase()

	ctx := b.Build("address", "0xabc123")

	if !strings.Contains(ctx, "ADDRESS INFORMATION:") {
		t.Error("expected address information section")
	}
	if !strings.Contains(ctx, "0xabc123") {
		t.Error("expected the address itself in context")
	}
}

func TestExploitHistoryCaseInsensitive(t *testing.T) {
	b := NewBase()

	if got := b.ExploitHistory("UNISWAP"); len(got) != 1 {
		t.Errorf("expected 1 exploit for UNISWAP, got %d", len(got))
	}
	if got := b.ExploitHistory("Aave"); len(got) != 1 {
		t.Errorf("expected 1 exploit for Aave, got %d", len(got))
	}
}

func TestAddExploit(t *testing.T) {
	b := NewBase()
	b.AddExploit("Curve", Exploit{
		Date:         "2023-07-30",
		Title:        "Vyper reentrancy",
		Description:  "Compiler bug enabled reentrancy in several pools.",
		LossAmount:   "$61M",
		AttackVector: "Reentrancy",
	})

	if got := b.ExploitHistory("curve"); len(got) != 1 {
		t.Fatalf("expected 1 exploit for curve, got %d", len(got))
	}

	ctx := b.Build("protocol", "curve")
	if !strings.Contains(ctx, "Vyper reentrancy") {
		t.Error("expected added exploit in built context")
	}
}

func TestSearch(t *testing.T) {
	b := NewBase()

	tests := []struct {
		query    string
		wantType string
	}{
		{"flash loan", "exploit"},
		{"reentrancy", "audit_finding"},
		{"solidity", "advisory"},
	}

	for _, tt := range tests {
		results := b.Search(tt.query)
		if len(results) == 0 {
			t.Errorf("Search(%q) returned no results", tt.query)
			continue
		}
		found := false
		for _, r := range results {
			if r.Type == tt.wantType {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Search(%q) missing result of type %q", tt.query, tt.wantType)
		}
	}
}

func TestSearchNoMatch(t *testing.T) {
	b := NewBase()

	if results := b.Search("zzzznotfound"); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestRelevantAdvisories(t *testing.T) {
	b := NewBase()

	advs := b.RelevantAdvisories([]string{"defi"})
	if len(advs) != 2 {
		t.Errorf("expected 2 defi advisories, got %d", len(advs))
	}

	advs = b.RelevantAdvisories([]string{"lending"})
	if len(advs) != 1 {
		t.Errorf("expected 1 lending advisory, got %d", len(advs))
	}

	if advs := b.RelevantAdvisories([]string{"unrelated"}); len(advs) != 0 {
		t.Errorf("expected no advisories, got %d", len(advs))
	}
}
