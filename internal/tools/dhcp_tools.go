package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
)

func (r *Registry) registerDHCPTools() {
	r.Register(&Tool{
		Name:        "unifi_list_dhcp_reservations",
		Description: "List all fixed IP reservations with the owning client and network",
		Parameters:  schema(map[string]any{}),
		Resource:    "dhcp",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			reservations := r.deps.DHCP.Reservations(ctx)
			return map[string]any{
				"success":      true,
				"count":        len(reservations),
				"reservations": reservations,
			}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_get_dhcp_reservation",
		Description: "Get the fixed IP reservation for one client by MAC address",
		Parameters: schema(map[string]any{
			"mac": prop("string", "Client MAC address in any common notation"),
		}, "mac"),
		Resource: "dhcp",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			if mac == "" {
				return errResult("mac is required")
			}
			reservation, ok := r.deps.DHCP.Reservation(ctx, mac)
			if !ok {
				return errResult("no reservation found for %s", mac)
			}
			return map[string]any{"success": true, "reservation": reservation}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_set_fixed_ip",
		Description: "Bind an existing client's MAC to a fixed IP address. The owning network is auto-detected from the IP when not given",
		Parameters: schema(map[string]any{
			"mac":        prop("string", "Client MAC address"),
			"ip":         prop("string", "Fixed IP address to assign"),
			"network_id": prop("string", "Network id; leave empty to auto-detect from the IP"),
			"confirm":    confirmProp(),
		}, "mac", "ip", "confirm"),
		Resource: "dhcp",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "The client takes the new address " + strArg(args, "ip") + " on its next DHCP renewal or reconnect."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac, ip := strArg(args, "mac"), strArg(args, "ip")
			if err := r.deps.DHCP.SetFixedIP(ctx, mac, ip, strArg(args, "network_id")); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "fixed_ip": ip}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_remove_fixed_ip",
		Description: "Remove a client's fixed IP reservation, returning it to dynamic DHCP leasing",
		Parameters: schema(map[string]any{
			"mac":     prop("string", "Client MAC address"),
			"confirm": confirmProp(),
		}, "mac", "confirm"),
		Resource: "dhcp",
		Verb:     permissions.VerbDelete,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			if err := r.deps.DHCP.RemoveFixedIP(ctx, mac); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "removed": true}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_create_dhcp_reservation",
		Description: "Create a fixed IP reservation for a device that has never connected, creating its client record",
		Parameters: schema(map[string]any{
			"mac":        prop("string", "MAC address of the device"),
			"ip":         prop("string", "Fixed IP address to reserve"),
			"name":       prop("string", "Optional display name for the client"),
			"network_id": prop("string", "Network id; leave empty to auto-detect from the IP"),
			"confirm":    confirmProp(),
		}, "mac", "ip", "confirm"),
		Resource: "dhcp",
		Verb:     permissions.VerbCreate,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac, ip := strArg(args, "mac"), strArg(args, "ip")
			err := r.deps.DHCP.CreateReservation(ctx, mac, ip, strArg(args, "name"), strArg(args, "network_id"))
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "fixed_ip": ip}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_list_available_ips",
		Description: "List free addresses in a network's DHCP range (not reserved, not held by a connected client), capped at 50",
		Parameters: schema(map[string]any{
			"network_id": prop("string", "Network id whose DHCP range to scan"),
		}, "network_id"),
		Resource: "dhcp",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "network_id")
			if id == "" {
				return errResult("network_id is required")
			}
			ips, err := r.deps.DHCP.AvailableIPs(ctx, id)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "network_id": id, "count": len(ips), "available_ips": ips}
		},
	})
}
