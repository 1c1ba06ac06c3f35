package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// networkSummary shapes one network definition down to its listing
// fields.
func networkSummary(n unifi.Raw) map[string]any {
	return map[string]any{
		"_id":          unifi.String(n, "_id", ""),
		"name":         unifi.String(n, "name", ""),
		"purpose":      unifi.String(n, "purpose", ""),
		"ip_subnet":    unifi.String(n, "ip_subnet", ""),
		"vlan_enabled": unifi.Bool(n, "vlan_enabled", false),
		"vlan":         n["vlan"],
		"enabled":      unifi.Bool(n, "enabled", true),
	}
}

func (r *Registry) registerNetworkTools() {
	r.Register(&Tool{
		Name:        "unifi_list_networks",
		Description: "List all wired network definitions (LANs, VLANs, WAN) with subnet and VLAN info",
		Parameters:  schema(map[string]any{}),
		Resource:    "network",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			networks := r.deps.Networks.Networks(ctx)
			summaries := make([]map[string]any, 0, len(networks))
			for _, n := range networks {
				summaries = append(summaries, networkSummary(n))
			}
			return map[string]any{"success": true, "count": len(summaries), "networks": summaries}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_network_details",
		Description: "Get the full configuration of one network by id",
		Parameters: schema(map[string]any{
			"network_id": prop("string", "Network id (_id field from unifi_list_networks)"),
		}, "network_id"),
		Resource: "network",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "network_id")
			if id == "" {
				return errResult("network_id is required")
			}
			network, ok := r.deps.Networks.NetworkDetail(ctx, id)
			if !ok {
				return errResult("network %s not found", id)
			}
			return map[string]any{"success": true, "network": network}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_create_network",
		Description: "Create a wired network (LAN or VLAN). Requires name and purpose; other controller fields pass through as given",
		Parameters: schema(map[string]any{
			"data":    prop("object", "Network configuration. Must include name and purpose (e.g. corporate, guest); may include ip_subnet, vlan, dhcpd_enabled, dhcpd_start, dhcpd_stop"),
			"confirm": confirmProp(),
		}, "data", "confirm"),
		Resource: "network",
		Verb:     permissions.VerbCreate,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			data := objArg(args, "data")
			if data == nil {
				return errResult("data is required")
			}
			created, err := r.deps.Networks.CreateNetwork(ctx, data)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "network": created}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_update_network",
		Description: "Update fields on an existing network. Only the given fields change; everything else is preserved",
		Parameters: schema(map[string]any{
			"network_id": prop("string", "Network id to update"),
			"updates":    prop("object", "Fields to change"),
			"confirm":    confirmProp(),
		}, "network_id", "updates", "confirm"),
		Resource: "network",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Changing network configuration can interrupt connectivity for clients on network " + strArg(args, "network_id") + "."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "network_id")
			if id == "" {
				return errResult("network_id is required")
			}
			updates := objArg(args, "updates")
			if len(updates) == 0 {
				return errResult("updates is required")
			}
			if err := r.deps.Networks.UpdateNetwork(ctx, id, updates); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "network_id": id, "updated_fields": len(updates)}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_delete_network",
		Description: "Delete a wired network. Clients on it lose their configuration",
		Parameters: schema(map[string]any{
			"network_id": prop("string", "Network id to delete"),
			"confirm":    confirmProp(),
		}, "network_id", "confirm"),
		Resource: "network",
		Verb:     permissions.VerbDelete,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Deleting network " + strArg(args, "network_id") + " removes its subnet, VLAN, and DHCP configuration permanently."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "network_id")
			if id == "" {
				return errResult("network_id is required")
			}
			if err := r.deps.Networks.DeleteNetwork(ctx, id); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "network_id": id, "deleted": true}
		},
	})
}
