package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// deviceStates maps controller state codes to readable status strings.
var deviceStates = map[int]string{
	0:  "disconnected",
	1:  "connected",
	2:  "pending adoption",
	4:  "upgrading",
	5:  "provisioning",
	6:  "heartbeat missed",
	9:  "adopting",
	11: "isolated",
}

func deviceStatus(d unifi.Raw) string {
	if s, ok := deviceStates[unifi.Int(d, "state", -1)]; ok {
		return s
	}
	return "unknown"
}

// deviceSummary shapes one device record down to its inventory fields.
func deviceSummary(d unifi.Raw) map[string]any {
	return map[string]any{
		"mac":     unifi.String(d, "mac", ""),
		"name":    unifi.String(d, "name", unifi.String(d, "model", "unnamed")),
		"model":   unifi.String(d, "model", ""),
		"type":    unifi.String(d, "type", ""),
		"ip":      unifi.String(d, "ip", ""),
		"status":  deviceStatus(d),
		"version": unifi.String(d, "version", ""),
		"uptime":  unifi.Int(d, "uptime", 0),
		"adopted": unifi.Bool(d, "adopted", false),
	}
}

func (r *Registry) registerDeviceTools() {
	r.Register(&Tool{
		Name:        "unifi_list_devices",
		Description: "List all adopted UniFi devices (access points, switches, gateways) with model, IP, and status",
		Parameters:  schema(map[string]any{}),
		Resource:    "device",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			devices := r.deps.Devices.List(ctx)
			summaries := make([]map[string]any, 0, len(devices))
			for _, d := range devices {
				summaries = append(summaries, deviceSummary(d))
			}
			return map[string]any{
				"success": true,
				"count":   len(summaries),
				"devices": summaries,
			}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_device_details",
		Description: "Get the full controller record for one device by MAC address",
		Parameters: schema(map[string]any{
			"mac": prop("string", "Device MAC address in any common notation"),
		}, "mac"),
		Resource: "device",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			if mac == "" {
				return errResult("mac is required")
			}
			device, ok := r.deps.Devices.Detail(ctx, mac)
			if !ok {
				return errResult("device %s not found", mac)
			}
			return map[string]any{"success": true, "device": device}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_reboot_device",
		Description: "Reboot a UniFi device. The device drops off the network until it finishes restarting",
		Parameters: schema(map[string]any{
			"mac":     prop("string", "MAC address of the device to reboot"),
			"confirm": confirmProp(),
		}, "mac", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Rebooting device " + strArg(args, "mac") + " will disconnect all of its clients until it comes back up."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			if err := r.deps.Devices.Reboot(ctx, mac); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "message": "reboot command sent", "mac": mac}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_adopt_device",
		Description: "Adopt a pending device into this site",
		Parameters: schema(map[string]any{
			"mac":     prop("string", "MAC address of the device to adopt"),
			"confirm": confirmProp(),
		}, "mac", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbCreate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Adopting device " + strArg(args, "mac") + " binds it to this controller and reprovisions it."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			if err := r.deps.Devices.Adopt(ctx, mac); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "message": "adopt command sent", "mac": mac}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_upgrade_device",
		Description: "Start a firmware upgrade on a device. The device reboots as part of the upgrade",
		Parameters: schema(map[string]any{
			"mac":     prop("string", "MAC address of the device to upgrade"),
			"confirm": confirmProp(),
		}, "mac", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Upgrading device " + strArg(args, "mac") + " reboots it and disconnects its clients for several minutes."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			if err := r.deps.Devices.Upgrade(ctx, mac); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "message": "upgrade started", "mac": mac}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_rename_device",
		Description: "Set the display name of a device",
		Parameters: schema(map[string]any{
			"mac":     prop("string", "MAC address of the device"),
			"name":    prop("string", "New display name"),
			"confirm": confirmProp(),
		}, "mac", "name", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac, name := strArg(args, "mac"), strArg(args, "name")
			if name == "" {
				return errResult("name is required")
			}
			if err := r.deps.Devices.Rename(ctx, mac, name); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "name": name}
		},
	})
}
