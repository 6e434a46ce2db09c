package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writePolicy(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

func TestLoadPolicy(t *testing.T) {
	path := writePolicy(t, `{
		"blocked_tools": ["shell_admin"],
		"tool_capabilities": {"exec": ["ls", "cat"]},
		"require_2fa": ["delete_file"],
		"pii_detection": false,
		"daily_cost_limit_usd": 25.5,
		"operator_key_hash": "$2a$10$abcdefghijklmnopqrstuv"
	}`)

	p, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if len(p.BlockedTools) != 1 || p.BlockedTools[0] != "shell_admin" {
		t.Fatalf("BlockedTools = %v", p.BlockedTools)
	}
	if ops := p.ToolCapabilities["exec"]; len(ops) != 2 {
		t.Fatalf("ToolCapabilities = %v", p.ToolCapabilities)
	}
	if p.PIIDetection {
		t.Fatal("explicit false should stick")
	}
	if p.DailyCostLimitUSD != 25.5 {
		t.Fatalf("DailyCostLimitUSD = %v", p.DailyCostLimitUSD)
	}
}

func TestLoadPolicyDefaults(t *testing.T) {
	p, err := LoadPolicy(writePolicy(t, `{}`))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	if !p.PIIDetection {
		t.Fatal("PII detection should default on")
	}
	if p.DailyCostLimitUSD != 0 {
		t.Fatalf("DailyCostLimitUSD = %v, want 0 (unlimited)", p.DailyCostLimitUSD)
	}
}

func TestLoadPolicyRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"unknown key", `{"blokced_tools": ["rm"]}`},
		{"wrong type", `{"blocked_tools": "rm"}`},
		{"negative cost cap", `{"daily_cost_limit_usd": -1}`},
		{"empty tool name", `{"blocked_tools": [""]}`},
		{"not json", `blocked_tools: [rm]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadPolicy(writePolicy(t, tt.contents)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadPolicyMissingFile(t *testing.T) {
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
