package permissions

import (
	"testing"

	"github.com/netpilot-labs/unifi-agent/internal/config"
)

func TestAllowedExplicitRule(t *testing.T) {
	c := New(config.PermissionsConfig{
		Rules: map[string][]string{
			"device":  {"read", "update"},
			"network": {"read"},
		},
	})

	tests := []struct {
		resource, verb string
		want           bool
	}{
		{"device", "read", true},
		{"device", "update", true},
		{"device", "delete", false},
		{"network", "read", true},
		{"network", "create", false},
		{"firewall", "read", false}, // no rule, default deny
	}

	for _, tt := range tests {
		if got := c.Allowed(tt.resource, tt.verb); got != tt.want {
			t.Errorf("Allowed(%q, %q) = %v, want %v", tt.resource, tt.verb, got, tt.want)
		}
	}
}

func TestAllowedWildcardResource(t *testing.T) {
	c := New(config.PermissionsConfig{
		Rules: map[string][]string{
			"*":      {"read"},
			"device": {"read", "update"},
		},
	})

	// Explicit rule beats the wildcard.
	if !c.Allowed("device", "update") {
		t.Error("explicit device rule should allow update")
	}
	// Wildcard covers resources without their own rule.
	if !c.Allowed("wlan", "read") {
		t.Error("wildcard should allow wlan read")
	}
	if c.Allowed("wlan", "delete") {
		t.Error("wildcard grants only read")
	}
}

func TestAllowedWildcardVerb(t *testing.T) {
	c := New(config.PermissionsConfig{
		Rules: map[string][]string{
			"device": {"*"},
		},
	})

	for _, verb := range []string{VerbRead, VerbCreate, VerbUpdate, VerbDelete} {
		if !c.Allowed("device", verb) {
			t.Errorf("verb wildcard should allow %s", verb)
		}
	}
}

func TestAllowedDefaultAllow(t *testing.T) {
	c := New(config.PermissionsConfig{DefaultAllow: true})
	if !c.Allowed("anything", "delete") {
		t.Error("default-allow with no rules should permit everything")
	}

	c = New(config.PermissionsConfig{
		DefaultAllow: true,
		Rules:        map[string][]string{"device": {"read"}},
	})
	// An explicit rule still restricts even under default-allow.
	if c.Allowed("device", "delete") {
		t.Error("explicit rule should override default-allow")
	}
}

func TestAllowedCaseInsensitive(t *testing.T) {
	c := New(config.PermissionsConfig{
		Rules: map[string][]string{"Device": {"READ"}},
	})
	if !c.Allowed("device", "read") {
		t.Error("rule matching should be case-insensitive")
	}
	if !c.Allowed("DEVICE", "Read") {
		t.Error("lookup should be case-insensitive")
	}
}
