// Package tools defines the callable tool surface over the resource
// managers. Every tool takes JSON-serializable arguments and returns a
// JSON-serializable result that always carries a "success" flag; no
// error ever propagates past the registry. Mutating tools pass through
// a common pipeline: permission check, argument decode, confirmation
// gate, then the manager call, with the invocation recorded in the
// audit log.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/netpilot-labs/unifi-agent/internal/audit"
	"github.com/netpilot-labs/unifi-agent/internal/devices"
	"github.com/netpilot-labs/unifi-agent/internal/dhcp"
	"github.com/netpilot-labs/unifi-agent/internal/firewall"
	"github.com/netpilot-labs/unifi-agent/internal/networks"
	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
	"github.com/netpilot-labs/unifi-agent/internal/wan"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`

	// Resource and Verb are checked against the permission policy
	// before the handler runs.
	Resource string `json:"-"`
	Verb     string `json:"-"`

	// Mutating tools require confirm:true; without it the handler is
	// not called and the caller gets a warning describing the pending
	// side effect.
	Mutating bool                             `json:"-"`
	Warn     func(args map[string]any) string `json:"-"`

	Handler func(ctx context.Context, args map[string]any) map[string]any `json:"-"`
}

// Deps are the collaborators the tool handlers work against.
type Deps struct {
	Session  *unifi.Session
	Devices  *devices.Manager
	Networks *networks.Manager
	DHCP     *dhcp.Manager
	WAN      *wan.Manager
	Firewall *firewall.Manager
	Perms    *permissions.Checker
	Audit    *audit.Store // optional
	Logger   *slog.Logger
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	deps   Deps
	logger *slog.Logger
}

// NewRegistry creates a registry with every tool family registered.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	r := &Registry{
		tools:  make(map[string]*Tool),
		deps:   deps,
		logger: deps.Logger,
	}
	r.registerDeviceTools()
	r.registerSwitchPortTools()
	r.registerNetworkTools()
	r.registerWLANTools()
	r.registerDHCPTools()
	r.registerWANTools()
	r.registerFirewallTools()
	r.registerAuditTools()
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tool descriptors sorted by name.
func (r *Registry) List() []map[string]any {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]map[string]any, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		result = append(result, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
			"mutating":    t.Mutating,
		})
	}
	return result
}

// Execute runs a tool by name with the given JSON arguments. The
// returned map always carries "success"; the error return is only
// non-nil for a tool that does not exist.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (map[string]any, error) {
	tool := r.tools[name]
	if tool == nil {
		return nil, &ErrToolUnavailable{ToolName: name}
	}

	requestID := uuid.NewString()

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return withRequestID(errResult("invalid arguments: %v", err), requestID), nil
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	if !r.deps.Perms.Allowed(tool.Resource, tool.Verb) {
		r.logger.Warn("permission denied", "tool", name, "resource", tool.Resource, "verb", tool.Verb)
		return withRequestID(errResult("Permission denied to %s %s.", tool.Verb, tool.Resource), requestID), nil
	}

	if tool.Mutating && !boolArg(args, "confirm", false) {
		warning := "This operation changes controller state."
		if tool.Warn != nil {
			warning = tool.Warn(args)
		}
		return withRequestID(map[string]any{
			"success": false,
			"error":   "Confirmation required. Set 'confirm' to true.",
			"warning": warning,
		}, requestID), nil
	}

	result := tool.Handler(ctx, args)
	if result == nil {
		result = errResult("tool %s returned no result", name)
	}
	result = withRequestID(result, requestID)

	if tool.Mutating {
		r.recordAudit(ctx, requestID, name, args, result)
	}
	return result, nil
}

func (r *Registry) recordAudit(ctx context.Context, requestID, tool string, args, result map[string]any) {
	if r.deps.Audit == nil {
		return
	}
	errMsg, _ := result["error"].(string)
	rec := audit.Record{
		RequestID: requestID,
		Tool:      tool,
		Args:      audit.EncodeArgs(args),
		Success:   boolArg(result, "success", false),
		Error:     errMsg,
	}
	if err := r.deps.Audit.Append(ctx, rec); err != nil {
		r.logger.Error("audit append failed", "tool", tool, "error", err)
	}
}

func withRequestID(result map[string]any, requestID string) map[string]any {
	result["request_id"] = requestID
	return result
}

// errResult shapes a failure payload. Every tool error path terminates
// here rather than in a Go error.
func errResult(format string, args ...any) map[string]any {
	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	}
}

// Argument accessors. JSON numbers arrive as float64.

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func objArg(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)
	return v
}

// schema helpers keep the JSON-schema parameter maps readable.

func schema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

// confirmProp documents the confirmation gate on mutating tools.
func confirmProp() map[string]any {
	return prop("boolean", "Must be true to execute this state-changing operation")
}
