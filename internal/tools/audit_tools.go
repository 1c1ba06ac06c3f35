package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
)

func (r *Registry) registerAuditTools() {
	r.Register(&Tool{
		Name:        "unifi_audit_log",
		Description: "List recent state-changing tool invocations from the local audit log, most recent first",
		Parameters: schema(map[string]any{
			"limit": prop("integer", "Maximum number of records to return (default 50)"),
			"tool":  prop("string", "Only show invocations of this tool"),
		}),
		Resource: "audit",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			if r.deps.Audit == nil {
				return errResult("audit log is not enabled")
			}

			limit := intArg(args, "limit", 50)
			var records any
			var err error
			if tool := strArg(args, "tool"); tool != "" {
				records, err = r.deps.Audit.ByTool(ctx, tool, limit)
			} else {
				records, err = r.deps.Audit.Recent(ctx, limit)
			}
			if err != nil {
				return errResult("read audit log: %v", err)
			}
			return map[string]any{"success": true, "records": records}
		},
	})
}
