// Package wan reports uplink status and failover configuration. WAN
// information lives in different places depending on hardware: a
// discrete managed gateway carries wan1/wan2 sub-objects on its device
// record, while an integrated Dream Machine appliance never appears in
// the device list at all and must be read from the system-info and
// health endpoints. The manager synthesizes one uniform status shape
// from whichever path applies and tags it with its provenance.
package wan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/netpilot-labs/unifi-agent/internal/devices"
	"github.com/netpilot-labs/unifi-agent/internal/networks"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// Provenance tags on the synthesized status.
const (
	SourceDevice  = "device"
	SourceSysinfo = "sysinfo"
)

// gatewayTypes are the device type codes of discrete managed gateways.
var gatewayTypes = map[string]bool{
	"ugw":  true,
	"udm":  true,
	"udmp": true,
	"uxg":  true,
}

// Manager synthesizes WAN status over the device and network managers.
type Manager struct {
	session  *unifi.Session
	devices  *devices.Manager
	networks *networks.Manager
	logger   *slog.Logger
}

// New creates a WAN manager.
func New(session *unifi.Session, devices *devices.Manager, networks *networks.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{session: session, devices: devices, networks: networks, logger: logger}
}

// Status returns the synthesized WAN status. The result always carries
// a "source" field naming which path produced it; absence of a managed
// gateway device is handled by falling back, never by reporting "no
// WAN data".
func (m *Manager) Status(ctx context.Context) (unifi.Raw, error) {
	for _, device := range m.devices.List(ctx) {
		if gatewayTypes[unifi.String(device, "type", "")] {
			return m.statusFromDevice(ctx, device), nil
		}
	}
	m.logger.Debug("no managed gateway device, falling back to sysinfo")
	return m.statusFromSysinfo(ctx)
}

// statusFromDevice extracts WAN status from a discrete gateway's
// device record.
func (m *Manager) statusFromDevice(ctx context.Context, gateway unifi.Raw) unifi.Raw {
	status := unifi.Raw{
		"source":        SourceDevice,
		"gateway_mac":   unifi.String(gateway, "mac", ""),
		"gateway_model": unifi.String(gateway, "model", ""),
	}

	var interfaces []unifi.Raw
	if wan1 := unifi.ObjectField(gateway, "wan1"); wan1 != nil {
		interfaces = append(interfaces, wanInterface("wan1", wan1, "dhcp", true))
	}
	if wan2 := unifi.ObjectField(gateway, "wan2"); wan2 != nil {
		interfaces = append(interfaces, wanInterface("wan2", wan2, "disabled", false))
	}
	status["wan_interfaces"] = interfaces

	if wanNet := m.wanNetwork(ctx); wanNet != nil {
		status["wan_network"] = wanNet
	}
	return status
}

// wanInterface shapes one wanN sub-object into the uniform interface
// record. Default type and enabled state differ between the primary
// and secondary uplink.
func wanInterface(name string, raw unifi.Raw, defaultType string, defaultEnabled bool) unifi.Raw {
	return unifi.Raw{
		"name":    name,
		"ip":      unifi.String(raw, "ip", ""),
		"netmask": unifi.String(raw, "netmask", ""),
		"gateway": unifi.String(raw, "gateway", ""),
		"dns":     raw["dns"],
		"type":    unifi.String(raw, "type", defaultType),
		"enabled": unifi.Bool(raw, "enable", defaultEnabled),
		"uptime":  unifi.Int(raw, "uptime", 0),
	}
}

// wanNetwork returns the WAN-purpose network definition, shaped down
// to its uplink-relevant fields. Best-effort.
func (m *Manager) wanNetwork(ctx context.Context) unifi.Raw {
	for _, n := range m.networks.Networks(ctx) {
		if unifi.String(n, "purpose", "") != "wan" {
			continue
		}
		return unifi.Raw{
			"_id":         unifi.String(n, "_id", ""),
			"name":        unifi.String(n, "name", ""),
			"wan_type":    unifi.String(n, "wan_type", "dhcp"),
			"wan_ip":      unifi.String(n, "wan_ip", ""),
			"wan_netmask": unifi.String(n, "wan_netmask", ""),
			"wan_gateway": unifi.String(n, "wan_gateway", ""),
			"wan_dns1":    unifi.String(n, "wan_dns1", ""),
			"wan_dns2":    unifi.String(n, "wan_dns2", ""),
		}
	}
	return nil
}

// statusFromSysinfo extracts WAN status for integrated appliances from
// the system-info and health endpoints.
func (m *Manager) statusFromSysinfo(ctx context.Context) (unifi.Raw, error) {
	sysPayload, err := m.session.Do(ctx, unifi.Get("/stat/sysinfo"))
	if err != nil {
		return nil, fmt.Errorf("fetch sysinfo: %w", err)
	}
	sysinfo := unifi.FirstObject(sysPayload, m.logger)
	if sysinfo == nil {
		return nil, fmt.Errorf("sysinfo returned no data")
	}

	status := unifi.Raw{
		"source": SourceSysinfo,
		"controller": unifi.Raw{
			"model":   unifi.String(sysinfo, "ubnt_device_type", unifi.String(sysinfo, "model", "")),
			"version": unifi.String(sysinfo, "version", ""),
			"name":    unifi.String(sysinfo, "name", ""),
		},
	}

	// Health is best-effort on top of sysinfo.
	healthPayload, err := m.session.Do(ctx, unifi.Get("/stat/health"))
	if err != nil {
		m.logger.Warn("fetch health failed", "error", err)
		return status, nil
	}

	var interfaces []unifi.Raw
	for _, subsystem := range unifi.NormalizeList(healthPayload, m.logger) {
		if unifi.String(subsystem, "subsystem", "") != "wan" {
			continue
		}
		status["health"] = unifi.Raw{
			"status":  unifi.String(subsystem, "status", "unknown"),
			"wan_ip":  unifi.String(subsystem, "wan_ip", ""),
			"gw_mac":  unifi.String(subsystem, "gw_mac", ""),
			"gw_name": unifi.String(subsystem, "gw_name", ""),
		}
		if ip := unifi.String(subsystem, "wan_ip", ""); ip != "" {
			interfaces = append(interfaces, unifi.Raw{
				"name":    "wan1",
				"ip":      ip,
				"gateway": unifi.String(subsystem, "gw_mac", ""),
				"type":    "dhcp",
				"enabled": unifi.String(subsystem, "status", "") == "ok",
				"uptime":  unifi.Int(subsystem, "uptime", 0),
			})
		}
	}
	status["wan_interfaces"] = interfaces

	if wanNet := m.wanNetwork(ctx); wanNet != nil {
		status["wan_network"] = wanNet
	}
	return status, nil
}

// FailoverSettings returns the site's multi-WAN configuration.
func (m *Manager) FailoverSettings(ctx context.Context) (unifi.Raw, error) {
	payload, err := m.session.Do(ctx, unifi.Get("/get/setting/connectivity"))
	if err != nil {
		return nil, fmt.Errorf("fetch connectivity settings: %w", err)
	}

	connectivity := unifi.FirstObject(payload, m.logger)
	if connectivity == nil {
		return nil, fmt.Errorf("no connectivity settings found")
	}

	uplinkType := unifi.String(connectivity, "uplink_type", "failover")
	return unifi.Raw{
		"failover_enabled":     uplinkType == "failover",
		"load_balance_enabled": uplinkType == "weighted",
		"wan1_weight":          unifi.Int(connectivity, "wan1_weight", 50),
		"wan2_weight":          unifi.Int(connectivity, "wan2_weight", 50),
	}, nil
}

// SetFailover configures multi-WAN behavior: "failover" or "weighted"
// load balancing. Weights only apply in weighted mode and are clamped
// to 1..100.
func (m *Manager) SetFailover(ctx context.Context, mode string, wan1Weight, wan2Weight int) error {
	if mode != "failover" && mode != "weighted" {
		return fmt.Errorf("invalid failover mode %q", mode)
	}

	payload, err := m.session.Do(ctx, unifi.Get("/get/setting/connectivity"))
	if err != nil {
		return fmt.Errorf("fetch connectivity settings: %w", err)
	}
	current := unifi.FirstObject(payload, m.logger)
	if current == nil {
		return fmt.Errorf("no connectivity settings found")
	}

	update := unifi.Raw{
		"_id":         unifi.String(current, "_id", ""),
		"key":         "connectivity",
		"uplink_type": mode,
	}
	if mode == "weighted" {
		update["wan1_weight"] = clampWeight(wan1Weight)
		update["wan2_weight"] = clampWeight(wan2Weight)
	}

	if _, err := m.session.Do(ctx, unifi.Put("/set/setting/connectivity", update)); err != nil {
		return fmt.Errorf("set failover mode: %w", err)
	}
	m.session.Cache().InvalidateCache("")
	m.logger.Info("wan failover mode set", "mode", mode)
	return nil
}

func clampWeight(w int) int {
	if w < 1 {
		return 1
	}
	if w > 100 {
		return 100
	}
	return w
}

// ConnectivitySummary condenses the synthesized status into per-uplink
// configured/active flags for quick health checks.
func (m *Manager) ConnectivitySummary(ctx context.Context) (unifi.Raw, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	summary := unifi.Raw{
		"source":          status["source"],
		"wan1_configured": false,
		"wan2_configured": false,
		"active_wan":      nil,
	}

	interfaces, _ := status["wan_interfaces"].([]unifi.Raw)
	for _, iface := range interfaces {
		name := unifi.String(iface, "name", "")
		switch name {
		case "wan1":
			summary["wan1_configured"] = unifi.Bool(iface, "enabled", false)
			summary["wan1_ip"] = iface["ip"]
			summary["wan1_type"] = iface["type"]
			if unifi.Int(iface, "uptime", 0) > 0 {
				summary["active_wan"] = "wan1"
			}
		case "wan2":
			summary["wan2_configured"] = unifi.Bool(iface, "enabled", false)
			summary["wan2_ip"] = iface["ip"]
			summary["wan2_type"] = iface["type"]
			if unifi.Int(iface, "uptime", 0) > 0 && summary["active_wan"] == nil {
				summary["active_wan"] = "wan2"
			}
		}
	}

	if health, ok := status["health"].(unifi.Raw); ok {
		summary["wan_health_status"] = health["status"]
		summary["wan_health_ok"] = unifi.String(health, "status", "") == "ok"
	}
	return summary, nil
}
