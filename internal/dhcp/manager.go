// Package dhcp manages fixed IP reservations: listing reservations
// from the client table, binding a client MAC to an address, and
// enumerating free addresses in a network's DHCP range. Reservations
// live on client (user) records on the controller, so the manager
// works with both the known-client table and the live client list.
package dhcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/netpilot-labs/unifi-agent/internal/networks"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
	"github.com/netpilot-labs/unifi-agent/internal/validate"
)

// Cache family prefixes. users_ holds the known-client table,
// clients_ the live (connected) client list.
const (
	usersPrefix   = "users_"
	clientsPrefix = "clients_"
)

// availableIPsCap bounds the AvailableIPs result to keep tool
// responses a readable size on large ranges.
const availableIPsCap = 50

// Manager wraps DHCP reservation operations over a shared session.
type Manager struct {
	session  *unifi.Session
	networks *networks.Manager
	logger   *slog.Logger
}

// New creates a DHCP manager. The network manager is used for subnet
// auto-detection and reservation augmentation.
func New(session *unifi.Session, networks *networks.Manager, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{session: session, networks: networks, logger: logger}
}

// knownClients returns the controller's client table, including
// offline clients. Errors degrade to an empty list.
func (m *Manager) knownClients(ctx context.Context) []unifi.Raw {
	key := usersPrefix + m.session.Site()
	if cached, ok := m.session.Cache().GetCached(key); ok {
		if clients, ok := cached.([]unifi.Raw); ok {
			return clients
		}
	}

	payload, err := m.session.Do(ctx, unifi.Get("/rest/user"))
	if err != nil {
		m.logger.Error("list known clients failed", "error", err)
		return nil
	}

	clients := unifi.NormalizeList(payload, m.logger)
	m.session.Cache().UpdateCache(key, clients)
	return clients
}

// activeClients returns the currently connected clients. Errors
// degrade to an empty list.
func (m *Manager) activeClients(ctx context.Context) []unifi.Raw {
	key := clientsPrefix + m.session.Site()
	if cached, ok := m.session.Cache().GetCached(key); ok {
		if clients, ok := cached.([]unifi.Raw); ok {
			return clients
		}
	}

	payload, err := m.session.Do(ctx, unifi.Get("/stat/sta"))
	if err != nil {
		m.logger.Error("list active clients failed", "error", err)
		return nil
	}

	clients := unifi.NormalizeList(payload, m.logger)
	m.session.Cache().UpdateCache(key, clients)
	return clients
}

func (m *Manager) invalidate() {
	m.session.Cache().InvalidateCache(usersPrefix)
	m.session.Cache().InvalidateCache(clientsPrefix)
}

// Reservations lists every fixed IP reservation, augmented best-effort
// with the owning network's name and subnet. A missing network lookup
// degrades to absent network fields, never an error.
func (m *Manager) Reservations(ctx context.Context) []unifi.Raw {
	nets := m.networks.Networks(ctx)
	netByID := make(map[string]unifi.Raw, len(nets))
	for _, n := range nets {
		netByID[unifi.String(n, "_id", "")] = n
	}

	var reservations []unifi.Raw
	for _, client := range m.knownClients(ctx) {
		if !unifi.Bool(client, "use_fixedip", false) {
			continue
		}
		res := unifi.Raw{
			"_id":         unifi.String(client, "_id", ""),
			"mac":         unifi.String(client, "mac", ""),
			"name":        clientName(client),
			"fixed_ip":    unifi.String(client, "fixed_ip", ""),
			"network_id":  unifi.String(client, "network_id", ""),
			"use_fixedip": true,
			"noted":       unifi.Bool(client, "noted", false),
			"blocked":     unifi.Bool(client, "blocked", false),
		}
		if n, ok := netByID[unifi.String(client, "network_id", "")]; ok {
			res["network_name"] = unifi.String(n, "name", "")
			res["network_subnet"] = unifi.String(n, "ip_subnet", "")
		}
		reservations = append(reservations, res)
	}
	return reservations
}

// clientName prefers the operator-assigned name, falling back to the
// reported hostname.
func clientName(client unifi.Raw) string {
	if name := unifi.String(client, "name", ""); name != "" {
		return name
	}
	return unifi.String(client, "hostname", "unknown")
}

// Reservation returns the fixed IP configuration for one client MAC,
// or false when the client has no reservation.
func (m *Manager) Reservation(ctx context.Context, mac string) (unifi.Raw, bool) {
	client, ok := m.findClient(ctx, mac)
	if !ok || !unifi.Bool(client, "use_fixedip", false) {
		return nil, false
	}
	return unifi.Raw{
		"_id":         unifi.String(client, "_id", ""),
		"mac":         unifi.String(client, "mac", ""),
		"name":        clientName(client),
		"fixed_ip":    unifi.String(client, "fixed_ip", ""),
		"network_id":  unifi.String(client, "network_id", ""),
		"use_fixedip": true,
	}, true
}

func (m *Manager) findClient(ctx context.Context, mac string) (unifi.Raw, bool) {
	want, err := validate.NormalizeMAC(mac)
	if err != nil {
		return nil, false
	}
	for _, c := range m.knownClients(ctx) {
		got, err := validate.NormalizeMAC(unifi.String(c, "mac", ""))
		if err == nil && got == want {
			return c, true
		}
	}
	return nil, false
}

// DetectNetwork returns the first network (in controller list order)
// whose declared subnet contains ip. Subnet order is the tie-break
// when subnets overlap. No match is an explicit failure: the caller
// must then name the network.
func (m *Manager) DetectNetwork(ctx context.Context, ip string) (unifi.Raw, error) {
	target, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("invalid IP address %q", ip)
	}

	for _, n := range m.networks.Networks(ctx) {
		subnet := unifi.String(n, "ip_subnet", "")
		if subnet == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(subnet)
		if err != nil {
			continue
		}
		if prefix.Contains(target) {
			m.logger.Info("auto-detected network for IP",
				"ip", ip, "network", unifi.String(n, "name", ""))
			return n, nil
		}
	}
	return nil, fmt.Errorf("no configured network contains IP %s", ip)
}

// SetFixedIP binds a client's MAC to a fixed IP. With an empty
// networkID the owning network is auto-detected from the IP.
func (m *Manager) SetFixedIP(ctx context.Context, mac, fixedIP, networkID string) error {
	if !validate.IPAddress(fixedIP) {
		return fmt.Errorf("invalid IP address %q", fixedIP)
	}

	client, ok := m.findClient(ctx, mac)
	if !ok {
		return fmt.Errorf("client %s not found", mac)
	}

	if networkID == "" {
		network, err := m.DetectNetwork(ctx, fixedIP)
		if err != nil {
			return err
		}
		networkID = unifi.String(network, "_id", "")
	}

	id := unifi.String(client, "_id", "")
	update := unifi.Raw{
		"_id":         id,
		"use_fixedip": true,
		"fixed_ip":    fixedIP,
		"network_id":  networkID,
	}
	if _, err := m.session.Do(ctx, unifi.Put("/rest/user/"+id, update)); err != nil {
		return fmt.Errorf("set fixed IP for %s: %w", mac, err)
	}
	m.invalidate()
	m.logger.Info("fixed IP set", "mac", mac, "ip", fixedIP, "network_id", networkID)
	return nil
}

// RemoveFixedIP clears a client's reservation, returning it to
// dynamic leasing.
func (m *Manager) RemoveFixedIP(ctx context.Context, mac string) error {
	client, ok := m.findClient(ctx, mac)
	if !ok {
		return fmt.Errorf("client %s not found", mac)
	}

	id := unifi.String(client, "_id", "")
	update := unifi.Raw{"_id": id, "use_fixedip": false}
	if _, err := m.session.Do(ctx, unifi.Put("/rest/user/"+id, update)); err != nil {
		return fmt.Errorf("remove fixed IP for %s: %w", mac, err)
	}
	m.invalidate()
	m.logger.Info("fixed IP removed", "mac", mac)
	return nil
}

// CreateReservation creates a reservation for a device that has never
// connected, creating its client record in the process.
func (m *Manager) CreateReservation(ctx context.Context, mac, fixedIP, name, networkID string) error {
	normalized, err := validate.NormalizeMAC(mac)
	if err != nil {
		return err
	}
	if !validate.IPAddress(fixedIP) {
		return fmt.Errorf("invalid IP address %q", fixedIP)
	}

	if networkID == "" {
		network, err := m.DetectNetwork(ctx, fixedIP)
		if err != nil {
			return err
		}
		networkID = unifi.String(network, "_id", "")
	}

	body := unifi.Raw{
		"mac":         normalized,
		"use_fixedip": true,
		"fixed_ip":    fixedIP,
		"network_id":  networkID,
	}
	if name != "" {
		body["name"] = name
		body["noted"] = true
	}

	if _, err := m.session.Do(ctx, unifi.Post("/rest/user", body)); err != nil {
		return fmt.Errorf("create reservation for %s: %w", mac, err)
	}
	m.invalidate()
	m.logger.Info("reservation created", "mac", normalized, "ip", fixedIP)
	return nil
}

// AvailableIPs enumerates addresses in the network's DHCP range that
// are neither reserved nor held by a connected client, capped at
// availableIPsCap entries.
func (m *Manager) AvailableIPs(ctx context.Context, networkID string) ([]string, error) {
	network, ok := m.networks.NetworkDetail(ctx, networkID)
	if !ok {
		return nil, fmt.Errorf("network %s not found", networkID)
	}

	start, err := netip.ParseAddr(unifi.String(network, "dhcpd_start", ""))
	if err != nil {
		return nil, fmt.Errorf("network %s has no usable DHCP range", networkID)
	}
	stop, err := netip.ParseAddr(unifi.String(network, "dhcpd_stop", ""))
	if err != nil {
		return nil, fmt.Errorf("network %s has no usable DHCP range", networkID)
	}

	taken := make(map[string]bool)
	for _, r := range m.Reservations(ctx) {
		if ip := unifi.String(r, "fixed_ip", ""); ip != "" {
			taken[ip] = true
		}
	}
	for _, c := range m.activeClients(ctx) {
		if ip := unifi.String(c, "ip", ""); ip != "" {
			taken[ip] = true
		}
	}

	var available []string
	for cur := start; cur.Compare(stop) <= 0; cur = cur.Next() {
		if !taken[cur.String()] {
			available = append(available, cur.String())
			if len(available) >= availableIPsCap {
				break
			}
		}
	}
	return available, nil
}

