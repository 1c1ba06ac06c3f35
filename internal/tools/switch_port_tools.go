package tools

import (
	"context"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// switchTypes are the device type codes that carry a port table.
var switchTypes = map[string]bool{
	"usw": true,
	"usl": true,
	"usf": true,
}

// portView merges one port_table entry with its override. The override
// wins for name, PoE mode, and profile; a forward mode of "disabled" in
// the override means the port is administratively down.
func portView(port, override unifi.Raw) map[string]any {
	view := map[string]any{
		"port_idx":    unifi.Int(port, "port_idx", 0),
		"name":        unifi.String(port, "name", ""),
		"enabled":     true,
		"up":          unifi.Bool(port, "up", false),
		"speed":       unifi.Int(port, "speed", 0),
		"full_duplex": unifi.Bool(port, "full_duplex", false),
		"poe_enable":  unifi.Bool(port, "poe_enable", false),
		"poe_mode":    unifi.String(port, "poe_mode", ""),
		"poe_power":   unifi.String(port, "poe_power", ""),
		"portconf_id": unifi.String(port, "portconf_id", ""),
		"media":       unifi.String(port, "media", ""),
	}
	if override == nil {
		return view
	}
	view["enabled"] = unifi.String(override, "forward", "") != "disabled"
	if name := unifi.String(override, "name", ""); name != "" {
		view["name"] = name
	}
	if mode := unifi.String(override, "poe_mode", ""); mode != "" {
		view["poe_mode"] = mode
	}
	if id := unifi.String(override, "portconf_id", ""); id != "" {
		view["portconf_id"] = id
	}
	return view
}

func (r *Registry) registerSwitchPortTools() {
	r.Register(&Tool{
		Name:        "unifi_list_switch_ports",
		Description: "List the ports of one switch with link state, PoE, and the effective per-port configuration",
		Parameters: schema(map[string]any{
			"mac": prop("string", "MAC address of the switch"),
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
			if !switchTypes[unifi.String(device, "type", "")] {
				return errResult("device %s is not a switch (type %q)", mac, unifi.String(device, "type", ""))
			}

			overrideByIdx := make(map[int]unifi.Raw)
			for _, o := range unifi.ListField(device, "port_overrides") {
				overrideByIdx[unifi.Int(o, "port_idx", -1)] = o
			}

			ports := unifi.ListField(device, "port_table")
			views := make([]map[string]any, 0, len(ports))
			for _, p := range ports {
				views = append(views, portView(p, overrideByIdx[unifi.Int(p, "port_idx", -1)]))
			}
			return map[string]any{
				"success": true,
				"mac":     mac,
				"name":    unifi.String(device, "name", ""),
				"count":   len(views),
				"ports":   views,
			}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_toggle_switch_port",
		Description: "Enable or disable one switch port. Disabling drops whatever is connected to it",
		Parameters: schema(map[string]any{
			"mac":      prop("string", "MAC address of the switch"),
			"port_idx": prop("integer", "Port number"),
			"enabled":  prop("boolean", "true to enable the port, false to disable it"),
			"confirm":  confirmProp(),
		}, "mac", "port_idx", "enabled", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			if boolArg(args, "enabled", true) {
				return "This re-enables the port and reprovisions the switch."
			}
			return "Disabling this port disconnects whatever is plugged into it, and reprovisions the switch."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			portIdx := intArg(args, "port_idx", -1)
			if portIdx < 0 {
				return errResult("port_idx is required")
			}
			enabled := boolArg(args, "enabled", true)
			if err := r.deps.Devices.TogglePort(ctx, mac, portIdx, enabled); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "port_idx": portIdx, "enabled": enabled}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_set_port_poe_mode",
		Description: "Set the PoE mode (auto, passive, passthrough, off) on one switch port",
		Parameters: schema(map[string]any{
			"mac":      prop("string", "MAC address of the switch"),
			"port_idx": prop("integer", "Port number"),
			"mode":     prop("string", "PoE mode: auto, passive, passthrough, or off"),
			"confirm":  confirmProp(),
		}, "mac", "port_idx", "mode", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Changing the PoE mode may power-cycle the device attached to the port."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			portIdx := intArg(args, "port_idx", -1)
			if portIdx < 0 {
				return errResult("port_idx is required")
			}
			mode := strArg(args, "mode")
			if err := r.deps.Devices.SetPortPoEMode(ctx, mac, portIdx, mode); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "port_idx": portIdx, "poe_mode": mode}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_set_port_profile",
		Description: "Assign a port profile to one switch port",
		Parameters: schema(map[string]any{
			"mac":         prop("string", "MAC address of the switch"),
			"port_idx":    prop("integer", "Port number"),
			"portconf_id": prop("string", "Port profile id (see unifi_list_port_profiles)"),
			"confirm":     confirmProp(),
		}, "mac", "port_idx", "portconf_id", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			portIdx := intArg(args, "port_idx", -1)
			if portIdx < 0 {
				return errResult("port_idx is required")
			}
			portconfID := strArg(args, "portconf_id")
			if err := r.deps.Devices.SetPortProfile(ctx, mac, portIdx, portconfID); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "port_idx": portIdx, "portconf_id": portconfID}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_set_port_name",
		Description: "Set a custom name on one switch port",
		Parameters: schema(map[string]any{
			"mac":      prop("string", "MAC address of the switch"),
			"port_idx": prop("integer", "Port number"),
			"name":     prop("string", "New port name"),
			"confirm":  confirmProp(),
		}, "mac", "port_idx", "name", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			portIdx := intArg(args, "port_idx", -1)
			if portIdx < 0 {
				return errResult("port_idx is required")
			}
			name := strArg(args, "name")
			if err := r.deps.Devices.SetPortName(ctx, mac, portIdx, name); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "port_idx": portIdx, "name": name}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_power_cycle_port",
		Description: "Power-cycle PoE on one switch port, rebooting the powered device",
		Parameters: schema(map[string]any{
			"mac":      prop("string", "MAC address of the switch"),
			"port_idx": prop("integer", "Port number"),
			"confirm":  confirmProp(),
		}, "mac", "port_idx", "confirm"),
		Resource: "device",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Power-cycling the port cuts power to the attached device until it boots again."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			mac := strArg(args, "mac")
			portIdx := intArg(args, "port_idx", -1)
			if portIdx < 0 {
				return errResult("port_idx is required")
			}
			if err := r.deps.Devices.PowerCyclePort(ctx, mac, portIdx); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "mac": mac, "port_idx": portIdx}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_list_port_profiles",
		Description: "List the site's configured switch port profiles",
		Parameters:  schema(map[string]any{}),
		Resource:    "device",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			profiles := r.deps.Devices.PortProfiles(ctx)
			summaries := make([]map[string]any, 0, len(profiles))
			for _, p := range profiles {
				summaries = append(summaries, map[string]any{
					"_id":      unifi.String(p, "_id", ""),
					"name":     unifi.String(p, "name", ""),
					"forward":  unifi.String(p, "forward", ""),
					"poe_mode": unifi.String(p, "poe_mode", ""),
				})
			}
			return map[string]any{"success": true, "count": len(summaries), "profiles": summaries}
		},
	})
}
