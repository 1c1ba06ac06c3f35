// Package networks manages wired networks (LAN/VLAN/WAN definitions)
// and wireless networks on the controller. Updates follow the
// merge-before-PUT rule: the controller clears any field a PUT omits,
// so partial updates always travel as the full merged object.
package networks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// Cache family prefixes.
const (
	networksPrefix = "networks_"
	wlansPrefix    = "wlans_"
)

// Manager wraps network and WLAN configuration over a shared session.
type Manager struct {
	session *unifi.Session
	logger  *slog.Logger
}

// New creates a network manager on the given session.
func New(session *unifi.Session, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{session: session, logger: logger}
}

// Networks returns all wired network definitions for the site. Errors
// degrade to an empty list.
func (m *Manager) Networks(ctx context.Context) []unifi.Raw {
	key := networksPrefix + m.session.Site()
	if cached, ok := m.session.Cache().GetCached(key); ok {
		if networks, ok := cached.([]unifi.Raw); ok {
			return networks
		}
	}

	payload, err := m.session.Do(ctx, unifi.Get("/rest/networkconf"))
	if err != nil {
		m.logger.Error("list networks failed", "error", err)
		return nil
	}

	networks := unifi.NormalizeList(payload, m.logger)
	m.session.Cache().UpdateCache(key, networks)
	return networks
}

// NetworkDetail returns the network with the given id.
func (m *Manager) NetworkDetail(ctx context.Context, id string) (unifi.Raw, bool) {
	for _, n := range m.Networks(ctx) {
		if unifi.String(n, "_id", "") == id {
			return n, true
		}
	}
	return nil, false
}

// CreateNetwork creates a wired network and returns the created
// object as reported by the controller.
func (m *Manager) CreateNetwork(ctx context.Context, data unifi.Raw) (unifi.Raw, error) {
	for _, field := range []string{"name", "purpose"} {
		if unifi.String(data, field, "") == "" {
			return nil, fmt.Errorf("missing required field %q", field)
		}
	}

	payload, err := m.session.Do(ctx, unifi.Post("/rest/networkconf", data))
	if err != nil {
		return nil, fmt.Errorf("create network %q: %w", data["name"], err)
	}
	m.session.Cache().InvalidateCache(networksPrefix)
	m.logger.Info("network created", "name", data["name"])
	return unifi.FirstObject(payload, m.logger), nil
}

// UpdateNetwork applies a partial update to a network. The existing
// object is fetched and the update fields merged over it before the
// PUT. Changing a WAN-purpose network is allowed but logged loudly:
// it can take down internet connectivity.
func (m *Manager) UpdateNetwork(ctx context.Context, id string, updates unifi.Raw) error {
	if len(updates) == 0 {
		return nil
	}

	existing, ok := m.NetworkDetail(ctx, id)
	if !ok {
		return fmt.Errorf("network %s not found", id)
	}
	if unifi.String(existing, "purpose", "") == "wan" {
		m.logger.Warn("modifying WAN network, internet connectivity may be affected", "network_id", id)
	}

	merged := unifi.Merge(existing, updates)
	if _, err := m.session.Do(ctx, unifi.Put("/rest/networkconf/"+id, merged)); err != nil {
		return fmt.Errorf("update network %s: %w", id, err)
	}
	m.session.Cache().InvalidateCache(networksPrefix)
	m.logger.Info("network updated", "network_id", id, "fields", len(updates))
	return nil
}

// DeleteNetwork deletes a wired network. WAN networks are deletable
// but logged loudly first.
func (m *Manager) DeleteNetwork(ctx context.Context, id string) error {
	if n, ok := m.NetworkDetail(ctx, id); ok && unifi.String(n, "purpose", "") == "wan" {
		m.logger.Warn("deleting WAN network, internet connectivity may be affected", "network_id", id)
	}

	if _, err := m.session.Do(ctx, unifi.Delete("/rest/networkconf/"+id)); err != nil {
		return fmt.Errorf("delete network %s: %w", id, err)
	}
	m.session.Cache().InvalidateCache(networksPrefix)
	m.logger.Info("network deleted", "network_id", id)
	return nil
}

// WLANs returns all wireless networks for the site. Errors degrade to
// an empty list.
func (m *Manager) WLANs(ctx context.Context) []unifi.Raw {
	key := wlansPrefix + m.session.Site()
	if cached, ok := m.session.Cache().GetCached(key); ok {
		if wlans, ok := cached.([]unifi.Raw); ok {
			return wlans
		}
	}

	payload, err := m.session.Do(ctx, unifi.Get("/rest/wlanconf"))
	if err != nil {
		m.logger.Error("list wlans failed", "error", err)
		return nil
	}

	wlans := unifi.NormalizeList(payload, m.logger)
	m.session.Cache().UpdateCache(key, wlans)
	return wlans
}

// WLANDetail returns the WLAN with the given id.
func (m *Manager) WLANDetail(ctx context.Context, id string) (unifi.Raw, bool) {
	for _, w := range m.WLANs(ctx) {
		if unifi.String(w, "_id", "") == id {
			return w, true
		}
	}
	return nil, false
}

// wlanDefaults are filled in for fields the caller omits on creation.
// The controller rejects creation without ap_group_ids; an empty list
// means "all APs".
var wlanDefaults = unifi.Raw{
	"usergroup_id":     "",
	"wlangroup_id":     "",
	"hide_ssid":        false,
	"is_guest":         false,
	"wpa_mode":         "wpa2",
	"wpa_enc":          "ccmp",
	"uapsd_enabled":    false,
	"schedule_enabled": false,
	"schedule":         []any{},
	"ap_group_ids":     []any{},
}

// CreateWLAN creates a wireless network. name, security, and enabled
// are required; non-open security also requires x_passphrase.
func (m *Manager) CreateWLAN(ctx context.Context, data unifi.Raw) (unifi.Raw, error) {
	if unifi.String(data, "name", "") == "" {
		return nil, fmt.Errorf("missing required field %q", "name")
	}
	security := unifi.String(data, "security", "")
	if security == "" {
		return nil, fmt.Errorf("missing required field %q", "security")
	}
	if _, ok := data["enabled"]; !ok {
		return nil, fmt.Errorf("missing required field %q", "enabled")
	}
	if security != "open" && unifi.String(data, "x_passphrase", "") == "" {
		return nil, fmt.Errorf("x_passphrase is required for security %q", security)
	}

	body := unifi.Merge(wlanDefaults, data)
	payload, err := m.session.Do(ctx, unifi.Post("/rest/wlanconf", body))
	if err != nil {
		return nil, fmt.Errorf("create wlan %q: %w", data["name"], err)
	}
	m.session.Cache().InvalidateCache(wlansPrefix)
	m.logger.Info("wlan created", "name", data["name"])

	created := unifi.FirstObject(payload, m.logger)
	if created == nil {
		return nil, fmt.Errorf("create wlan %q: controller returned no object", data["name"])
	}
	return created, nil
}

// UpdateWLAN applies a partial update to a WLAN via merge-before-PUT.
func (m *Manager) UpdateWLAN(ctx context.Context, id string, updates unifi.Raw) error {
	if len(updates) == 0 {
		return nil
	}

	existing, ok := m.WLANDetail(ctx, id)
	if !ok {
		return fmt.Errorf("wlan %s not found", id)
	}

	merged := unifi.Merge(existing, updates)
	if _, err := m.session.Do(ctx, unifi.Put("/rest/wlanconf/"+id, merged)); err != nil {
		return fmt.Errorf("update wlan %s: %w", id, err)
	}
	m.session.Cache().InvalidateCache(wlansPrefix)
	m.logger.Info("wlan updated", "wlan_id", id, "fields", len(updates))
	return nil
}

// DeleteWLAN deletes a wireless network.
func (m *Manager) DeleteWLAN(ctx context.Context, id string) error {
	if _, err := m.session.Do(ctx, unifi.Delete("/rest/wlanconf/"+id)); err != nil {
		return fmt.Errorf("delete wlan %s: %w", id, err)
	}
	m.session.Cache().InvalidateCache(wlansPrefix)
	m.logger.Info("wlan deleted", "wlan_id", id)
	return nil
}

// ToggleWLAN flips a WLAN's enabled flag and returns the new state.
func (m *Manager) ToggleWLAN(ctx context.Context, id string) (bool, error) {
	existing, ok := m.WLANDetail(ctx, id)
	if !ok {
		return false, fmt.Errorf("wlan %s not found", id)
	}

	newState := !unifi.Bool(existing, "enabled", false)
	merged := unifi.Merge(existing, unifi.Raw{"enabled": newState})
	if _, err := m.session.Do(ctx, unifi.Put("/rest/wlanconf/"+id, merged)); err != nil {
		return false, fmt.Errorf("toggle wlan %s: %w", id, err)
	}
	m.session.Cache().InvalidateCache(wlansPrefix)
	m.logger.Info("wlan toggled", "wlan_id", id, "enabled", newState)
	return newState, nil
}
