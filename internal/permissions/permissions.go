// Package permissions implements the capability policy that gates every
// tool invocation. Policy is loaded once from config and evaluated
// locally; a denial never generates controller traffic.
package permissions

import (
	"sort"
	"strings"

	"github.com/netpilot-labs/unifi-agent/internal/config"
)

// Verbs recognized by the policy. "*" in a rule grants all of them.
const (
	VerbRead   = "read"
	VerbCreate = "create"
	VerbUpdate = "update"
	VerbDelete = "delete"
)

// Checker evaluates resource/verb capability checks against the
// configured rule set.
type Checker struct {
	defaultAllow bool
	rules        map[string][]string
}

// New builds a Checker from the permissions section of the config.
// Rule keys are resource names ("device", "network", ...) or "*";
// values are verb lists, where "*" grants every verb.
func New(cfg config.PermissionsConfig) *Checker {
	rules := make(map[string][]string, len(cfg.Rules))
	for resource, verbs := range cfg.Rules {
		normalized := make([]string, 0, len(verbs))
		for _, v := range verbs {
			normalized = append(normalized, strings.ToLower(strings.TrimSpace(v)))
		}
		rules[strings.ToLower(strings.TrimSpace(resource))] = normalized
	}
	return &Checker{
		defaultAllow: cfg.DefaultAllow,
		rules:        rules,
	}
}

// Allowed reports whether verb is permitted on resource. An explicit
// rule for the resource takes precedence over the "*" rule; if neither
// exists, the default-allow switch decides.
func (c *Checker) Allowed(resource, verb string) bool {
	resource = strings.ToLower(strings.TrimSpace(resource))
	verb = strings.ToLower(strings.TrimSpace(verb))

	if verbs, ok := c.rules[resource]; ok {
		return containsVerb(verbs, verb)
	}
	if verbs, ok := c.rules["*"]; ok {
		return containsVerb(verbs, verb)
	}
	return c.defaultAllow
}

func containsVerb(verbs []string, verb string) bool {
	for _, v := range verbs {
		if v == "*" || v == verb {
			return true
		}
	}
	return false
}

// Describe returns a stable, human-readable summary of the policy for
// diagnostics output.
func (c *Checker) Describe() []string {
	out := make([]string, 0, len(c.rules)+1)
	for resource, verbs := range c.rules {
		out = append(out, resource+": "+strings.Join(verbs, ","))
	}
	sort.Strings(out)
	if c.defaultAllow {
		out = append(out, "default: allow")
	} else {
		out = append(out, "default: deny")
	}
	return out
}
