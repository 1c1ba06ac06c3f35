package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
)

func (r *Registry) registerWANTools() {
	r.Register(&Tool{
		Name:        "unifi_wan_status",
		Description: "Get WAN uplink status: interfaces, IPs, gateway identity, and the WAN network configuration",
		Parameters:  schema(map[string]any{}),
		Resource:    "wan",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			status, err := r.deps.WAN.Status(ctx)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "status": status}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_wan_connectivity",
		Description: "Quick per-uplink connectivity summary: which WAN is active and whether WAN health is ok",
		Parameters:  schema(map[string]any{}),
		Resource:    "wan",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			summary, err := r.deps.WAN.ConnectivitySummary(ctx)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "connectivity": summary}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_wan_failover_settings",
		Description: "Get the multi-WAN failover / load-balance configuration",
		Parameters:  schema(map[string]any{}),
		Resource:    "wan",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			settings, err := r.deps.WAN.FailoverSettings(ctx)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "settings": settings}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_set_wan_failover",
		Description: "Configure multi-WAN behavior: failover, or weighted load balancing with per-uplink weights",
		Parameters: schema(map[string]any{
			"mode":        prop("string", "failover or weighted"),
			"wan1_weight": prop("integer", "Weight for WAN1 in weighted mode (1-100, default 50)"),
			"wan2_weight": prop("integer", "Weight for WAN2 in weighted mode (1-100, default 50)"),
			"confirm":     confirmProp(),
		}, "mode", "confirm"),
		Resource: "wan",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Changing WAN failover mode can briefly interrupt internet connectivity while uplinks renegotiate."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mode := strArg(args, "mode")
			wan1 := intArg(args, "wan1_weight", 50)
			wan2 := intArg(args, "wan2_weight", 50)
			if err := r.deps.WAN.SetFailover(ctx, mode, wan1, wan2); err != nil {
				return errResult("%v", err)
			}
			result := map[string]any{"success": true, "mode": mode}
			if mode == "weighted" {
				result["wan1_weight"] = wan1
				result["wan2_weight"] = wan2
			}
			return result
		},
	})
}
