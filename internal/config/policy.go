// Package config loads and validates the security policy file.
//
// Runtime tuning (ports, DSNs, log level) stays in environment variables;
// the policy file holds only the authorization surface so it can be
// reviewed and diffed like code.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Policy is the reviewed security policy consumed at construction time.
// Zero value: nothing blocked, no capability restrictions, no 2FA, PII
// scanning on, unlimited budget, no operator key.
type Policy struct {
	// BlockedTools may never be invoked.
	BlockedTools []string `json:"blocked_tools"`
	// ToolCapabilities restricts listed tools to the named operations.
	ToolCapabilities map[string][]string `json:"tool_capabilities"`
	// Require2FA lists tools held behind out-of-band confirmation.
	Require2FA []string `json:"require_2fa"`
	// PIIDetection toggles completion scanning.
	PIIDetection bool `json:"pii_detection"`
	// DailyCostLimitUSD caps estimated daily LLM spend; 0 = unlimited.
	DailyCostLimitUSD float64 `json:"daily_cost_limit_usd"`
	// OperatorKeyHash is the bcrypt hash of the dashboard bearer token.
	// Empty disables the operator API's auth-protected routes.
	OperatorKeyHash string `json:"operator_key_hash"`
}

// Default returns the policy used when no file is configured.
func Default() Policy {
	return Policy{PIIDetection: true}
}

const policySchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "blocked_tools": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "tool_capabilities": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string", "minLength": 1}
      }
    },
    "require_2fa": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "pii_detection": {"type": "boolean"},
    "daily_cost_limit_usd": {"type": "number", "minimum": 0},
    "operator_key_hash": {"type": "string"}
  }
}`

// LoadPolicy reads, schema-validates and decodes a policy file. An
// unknown key or a malformed value is a hard error: a typo in a security
// policy must fail startup, not silently weaken enforcement.
func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read policy file: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Policy{}, fmt.Errorf("policy file is not valid JSON: %w", err)
	}

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(policySchema))
	if err != nil {
		return Policy{}, fmt.Errorf("policy schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("policy-schema.json", schemaDoc); err != nil {
		return Policy{}, fmt.Errorf("policy schema: %w", err)
	}
	sch, err := c.Compile("policy-schema.json")
	if err != nil {
		return Policy{}, fmt.Errorf("policy schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return Policy{}, fmt.Errorf("policy validation failed: %w", err)
	}

	policy := Default()
	if err := json.Unmarshal(raw, &policy); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return policy, nil
}
