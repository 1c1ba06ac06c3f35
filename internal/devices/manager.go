// Package devices manages UniFi network hardware: access points,
// switches, and gateways. It covers inventory reads, device commands
// (reboot, adopt, upgrade), and switch port configuration through the
// port-override overlay.
package devices

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/netpilot-labs/unifi-agent/internal/unifi"
	"github.com/netpilot-labs/unifi-agent/internal/validate"
)

// cachePrefix keys the device family in the session cache. Every
// mutation drops the whole family.
const cachePrefix = "devices_"

// Manager wraps device operations over a shared controller session.
type Manager struct {
	session *unifi.Session
	logger  *slog.Logger
}

// New creates a device manager on the given session.
func New(session *unifi.Session, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{session: session, logger: logger}
}

func (m *Manager) cacheKey() string {
	return cachePrefix + m.session.Site()
}

// List returns all adopted devices for the site. Errors degrade to an
// empty list: the inventory is a best-effort telemetry surface and
// callers prefer an empty result over a hard failure.
func (m *Manager) List(ctx context.Context) []unifi.Raw {
	if cached, ok := m.session.Cache().GetCached(m.cacheKey()); ok {
		if devices, ok := cached.([]unifi.Raw); ok {
			return devices
		}
	}

	payload, err := m.session.Do(ctx, unifi.Get("/stat/device"))
	if err != nil {
		m.logger.Error("list devices failed", "error", err)
		return nil
	}

	devices := unifi.NormalizeList(payload, m.logger)
	m.session.Cache().UpdateCache(m.cacheKey(), devices)
	return devices
}

// Detail returns the device with the given MAC, in any accepted MAC
// notation. The second return is false when no such device exists.
func (m *Manager) Detail(ctx context.Context, mac string) (unifi.Raw, bool) {
	want, err := validate.NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}
	for _, d := range m.List(ctx) {
		got, err := validate.NormalizeMAC(unifi.String(d, "mac", ""))
		if err == nil && got == want {
			return d, true
		}
	}
	return nil, false
}

// deviceCommand sends a device-manager command (restart, adopt,
// upgrade, power-cycle) for the given MAC.
func (m *Manager) deviceCommand(ctx context.Context, mac string, body unifi.Raw) error {
	normalized, err := validate.NormalizeMAC(mac)
	if err != nil {
		return err
	}
	body["mac"] = normalized

	if _, err := m.session.Do(ctx, unifi.Post("/cmd/devmgr", body)); err != nil {
		return err
	}
	m.session.Cache().InvalidateCache(cachePrefix)
	return nil
}

// Reboot restarts the device with the given MAC.
func (m *Manager) Reboot(ctx context.Context, mac string) error {
	if err := m.deviceCommand(ctx, mac, unifi.Raw{"cmd": "restart"}); err != nil {
		return fmt.Errorf("reboot device %s: %w", mac, err)
	}
	m.logger.Info("reboot command sent", "mac", mac)
	return nil
}

// Adopt adopts a pending device into the site.
func (m *Manager) Adopt(ctx context.Context, mac string) error {
	if err := m.deviceCommand(ctx, mac, unifi.Raw{"cmd": "adopt"}); err != nil {
		return fmt.Errorf("adopt device %s: %w", mac, err)
	}
	m.logger.Info("adopt command sent", "mac", mac)
	return nil
}

// Upgrade starts a firmware upgrade on the device.
func (m *Manager) Upgrade(ctx context.Context, mac string) error {
	if err := m.deviceCommand(ctx, mac, unifi.Raw{"cmd": "upgrade"}); err != nil {
		return fmt.Errorf("upgrade device %s: %w", mac, err)
	}
	m.logger.Info("upgrade command sent", "mac", mac)
	return nil
}

// PowerCyclePort power-cycles PoE on one switch port.
func (m *Manager) PowerCyclePort(ctx context.Context, mac string, portIdx int) error {
	err := m.deviceCommand(ctx, mac, unifi.Raw{"cmd": "power-cycle", "port_idx": portIdx})
	if err != nil {
		return fmt.Errorf("power-cycle port %d on %s: %w", portIdx, mac, err)
	}
	m.logger.Info("power-cycle command sent", "mac", mac, "port_idx", portIdx)
	return nil
}

// Rename sets the display name of a device.
func (m *Manager) Rename(ctx context.Context, mac, name string) error {
	device, ok := m.Detail(ctx, mac)
	if !ok {
		return fmt.Errorf("device %s not found", mac)
	}
	id := unifi.String(device, "_id", "")
	if id == "" {
		return fmt.Errorf("device %s has no id", mac)
	}

	_, err := m.session.Do(ctx, unifi.Put("/rest/device/"+id, unifi.Raw{"name": name}))
	if err != nil {
		return fmt.Errorf("rename device %s: %w", mac, err)
	}
	m.session.Cache().InvalidateCache(cachePrefix)
	m.logger.Info("device renamed", "mac", mac, "name", name)
	return nil
}

// PortOverrides returns the device's current port override list. A
// device without overrides yields an empty list, not an error.
func (m *Manager) PortOverrides(ctx context.Context, mac string) ([]unifi.Raw, error) {
	device, ok := m.Detail(ctx, mac)
	if !ok {
		return nil, fmt.Errorf("device %s not found", mac)
	}
	return unifi.ListField(device, "port_overrides"), nil
}

// UpdatePortOverrides replaces the device's full port override list.
// The controller treats the list as whole-resource state: the PUT
// carries every override, not just changed entries.
func (m *Manager) UpdatePortOverrides(ctx context.Context, mac string, overrides []unifi.Raw) error {
	device, ok := m.Detail(ctx, mac)
	if !ok {
		return fmt.Errorf("device %s not found", mac)
	}
	id := unifi.String(device, "_id", "")
	if id == "" {
		return fmt.Errorf("device %s has no id", mac)
	}

	body := unifi.Raw{"port_overrides": overrides}
	if _, err := m.session.Do(ctx, unifi.Put("/rest/device/"+id, body)); err != nil {
		// Controller state is unknown after a rejected write; the next
		// read must refetch rather than serve the pre-write snapshot.
		m.session.Cache().InvalidateCache(cachePrefix)
		return fmt.Errorf("update port overrides on %s: %w", mac, err)
	}
	m.session.Cache().InvalidateCache(cachePrefix)
	m.logger.Info("port overrides updated", "mac", mac, "count", len(overrides))
	return nil
}

// editPortOverride applies edit to the override entry for portIdx,
// creating the entry first when the port has never been overridden,
// then writes the full override list back. The override maps belong to
// the cached device snapshot, so the edit works on copies: a rejected
// write must never surface in cached reads.
func (m *Manager) editPortOverride(ctx context.Context, mac string, portIdx int, edit func(unifi.Raw)) error {
	overrides, err := m.PortOverrides(ctx, mac)
	if err != nil {
		return err
	}

	copied := make([]unifi.Raw, 0, len(overrides)+1)
	var override unifi.Raw
	for _, o := range overrides {
		c := unifi.Merge(o, nil)
		if unifi.Int(c, "port_idx", -1) == portIdx {
			override = c
		}
		copied = append(copied, c)
	}
	if override == nil {
		override = unifi.Raw{"port_idx": portIdx}
		copied = append(copied, override)
	}

	edit(override)
	return m.UpdatePortOverrides(ctx, mac, copied)
}

// TogglePort enables or disables one switch port. Disabling sets the
// override's forward mode to "disabled"; enabling removes the forward
// key so the port falls back to its profile default.
func (m *Manager) TogglePort(ctx context.Context, mac string, portIdx int, enabled bool) error {
	return m.editPortOverride(ctx, mac, portIdx, func(o unifi.Raw) {
		if enabled {
			delete(o, "forward")
		} else {
			o["forward"] = "disabled"
		}
	})
}

// PoE operating modes accepted by the controller.
var validPoEModes = map[string]bool{
	"auto":        true,
	"passive":     true,
	"passthrough": true,
	"off":         true,
}

// SetPortPoEMode sets the PoE mode (auto, passive, passthrough, off)
// on one switch port.
func (m *Manager) SetPortPoEMode(ctx context.Context, mac string, portIdx int, mode string) error {
	if !validPoEModes[mode] {
		return fmt.Errorf("invalid PoE mode %q", mode)
	}
	return m.editPortOverride(ctx, mac, portIdx, func(o unifi.Raw) {
		o["poe_mode"] = mode
	})
}

// SetPortProfile assigns a port profile to one switch port.
func (m *Manager) SetPortProfile(ctx context.Context, mac string, portIdx int, portconfID string) error {
	if portconfID == "" {
		return fmt.Errorf("port profile id is required")
	}
	return m.editPortOverride(ctx, mac, portIdx, func(o unifi.Raw) {
		o["portconf_id"] = portconfID
	})
}

// SetPortName sets a custom name on one switch port.
func (m *Manager) SetPortName(ctx context.Context, mac string, portIdx int, name string) error {
	return m.editPortOverride(ctx, mac, portIdx, func(o unifi.Raw) {
		o["name"] = name
	})
}

// PortProfiles lists the site's configured port profiles.
func (m *Manager) PortProfiles(ctx context.Context) []unifi.Raw {
	payload, err := m.session.Do(ctx, unifi.Get("/rest/portconf"))
	if err != nil {
		m.logger.Error("list port profiles failed", "error", err)
		return nil
	}
	return unifi.NormalizeList(payload, m.logger)
}
