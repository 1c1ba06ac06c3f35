package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// policySummary shapes one firewall policy down to its listing fields.
func policySummary(p unifi.Raw) map[string]any {
	return map[string]any{
		"_id":         unifi.String(p, "_id", ""),
		"name":        unifi.String(p, "name", ""),
		"enabled":     unifi.Bool(p, "enabled", false),
		"action":      unifi.String(p, "action", ""),
		"ruleset":     unifi.String(p, "ruleset", ""),
		"rule_index":  unifi.Int(p, "index", 0),
		"predefined":  unifi.Bool(p, "predefined", false),
		"description": unifi.String(p, "description", ""),
	}
}

func (r *Registry) registerFirewallTools() {
	r.Register(&Tool{
		Name:        "unifi_list_firewall_policies",
		Description: "List firewall policies. Predefined system policies are hidden unless include_predefined is true",
		Parameters: schema(map[string]any{
			"include_predefined": prop("boolean", "Include the controller's built-in system policies"),
		}),
		Resource: "firewall",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			policies := r.deps.Firewall.Policies(ctx, boolArg(args, "include_predefined", false))
			summaries := make([]map[string]any, 0, len(policies))
			for _, p := range policies {
				summaries = append(summaries, policySummary(p))
			}
			return map[string]any{"success": true, "count": len(summaries), "policies": summaries}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_firewall_policy_details",
		Description: "Get the full configuration of one firewall policy by id",
		Parameters: schema(map[string]any{
			"policy_id": prop("string", "Policy id (_id field from unifi_list_firewall_policies)"),
		}, "policy_id"),
		Resource: "firewall",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "policy_id")
			if id == "" {
				return errResult("policy_id is required")
			}
			policy, ok := r.deps.Firewall.PolicyDetail(ctx, id)
			if !ok {
				return errResult("firewall policy %s not found", id)
			}
			return map[string]any{"success": true, "policy": policy}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_toggle_firewall_policy",
		Description: "Enable or disable a firewall policy (flips the current state)",
		Parameters: schema(map[string]any{
			"policy_id": prop("string", "Policy id to toggle"),
			"confirm":   confirmProp(),
		}, "policy_id", "confirm"),
		Resource: "firewall",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Toggling firewall policy " + strArg(args, "policy_id") + " changes what traffic is allowed through immediately."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "policy_id")
			if id == "" {
				return errResult("policy_id is required")
			}
			enabled, err := r.deps.Firewall.TogglePolicy(ctx, id)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "policy_id": id, "enabled": enabled}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_update_firewall_policy",
		Description: "Update fields on an existing firewall policy. Only the given fields change",
		Parameters: schema(map[string]any{
			"policy_id": prop("string", "Policy id to update"),
			"updates":   prop("object", "Fields to change (e.g. action, enabled, logging)"),
			"confirm":   confirmProp(),
		}, "policy_id", "updates", "confirm"),
		Resource: "firewall",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Editing firewall policy " + strArg(args, "policy_id") + " changes traffic filtering immediately."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "policy_id")
			if id == "" {
				return errResult("policy_id is required")
			}
			updates := objArg(args, "updates")
			if len(updates) == 0 {
				return errResult("updates is required")
			}
			merged, err := r.deps.Firewall.UpdatePolicy(ctx, id, updates)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "policy": policySummary(merged)}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_list_firewall_zones",
		Description: "List the controller's firewall zones",
		Parameters:  schema(map[string]any{}),
		Resource:    "firewall",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			zones := r.deps.Firewall.Zones(ctx)
			return map[string]any{"success": true, "count": len(zones), "zones": zones}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_list_ip_groups",
		Description: "List the controller's IP groups used by firewall policies",
		Parameters:  schema(map[string]any{}),
		Resource:    "firewall",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			groups := r.deps.Firewall.IPGroups(ctx)
			return map[string]any{"success": true, "count": len(groups), "ip_groups": groups}
		},
	})
}
