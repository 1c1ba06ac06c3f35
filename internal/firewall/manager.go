// Package firewall manages V2 firewall policies, zones, and IP
// groups. Policy creation is deliberately absent: the controller's V2
// creation endpoint does not behave reliably, so only list, toggle,
// and update are exposed.
package firewall

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

const cachePrefix = "firewall_"

// Manager wraps firewall policy operations over a shared session.
type Manager struct {
	session *unifi.Session
	logger  *slog.Logger
}

// New creates a firewall manager on the given session.
func New(session *unifi.Session, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{session: session, logger: logger}
}

// Policies lists firewall policies. Predefined system policies are
// filtered out unless includePredefined is set. Errors degrade to an
// empty list.
func (m *Manager) Policies(ctx context.Context, includePredefined bool) []unifi.Raw {
	key := cachePrefix + m.session.Site()
	var policies []unifi.Raw
	hit := false
	if cached, ok := m.session.Cache().GetCached(key); ok {
		policies, hit = cached.([]unifi.Raw)
	}

	if !hit {
		payload, err := m.session.Do(ctx, unifi.Get("/v2/firewall-policies"))
		if err != nil {
			m.logger.Error("list firewall policies failed", "error", err)
			return nil
		}
		policies = unifi.NormalizeList(payload, m.logger)
		m.session.Cache().UpdateCache(key, policies)
	}

	if includePredefined {
		return policies
	}
	var user []unifi.Raw
	for _, p := range policies {
		if !unifi.Bool(p, "predefined", false) {
			user = append(user, p)
		}
	}
	return user
}

// PolicyDetail returns the policy with the given id, predefined or
// not.
func (m *Manager) PolicyDetail(ctx context.Context, id string) (unifi.Raw, bool) {
	for _, p := range m.Policies(ctx, true) {
		if unifi.String(p, "_id", "") == id {
			return p, true
		}
	}
	return nil, false
}

// UpdatePolicy applies a partial update via merge-before-PUT and
// returns the merged object sent to the controller.
func (m *Manager) UpdatePolicy(ctx context.Context, id string, updates unifi.Raw) (unifi.Raw, error) {
	if len(updates) == 0 {
		return nil, fmt.Errorf("no update fields given")
	}

	existing, ok := m.PolicyDetail(ctx, id)
	if !ok {
		return nil, fmt.Errorf("firewall policy %s not found", id)
	}

	merged := unifi.Merge(existing, updates)
	if _, err := m.session.Do(ctx, unifi.Put("/v2/firewall-policies/"+id, merged)); err != nil {
		return nil, fmt.Errorf("update firewall policy %s: %w", id, err)
	}
	m.session.Cache().InvalidateCache(cachePrefix)
	m.logger.Info("firewall policy updated", "policy_id", id, "fields", len(updates))
	return merged, nil
}

// TogglePolicy flips a policy's enabled flag and returns the new
// state.
func (m *Manager) TogglePolicy(ctx context.Context, id string) (bool, error) {
	existing, ok := m.PolicyDetail(ctx, id)
	if !ok {
		return false, fmt.Errorf("firewall policy %s not found", id)
	}

	newState := !unifi.Bool(existing, "enabled", false)
	if _, err := m.UpdatePolicy(ctx, id, unifi.Raw{"enabled": newState}); err != nil {
		return false, err
	}
	m.logger.Info("firewall policy toggled", "policy_id", id, "enabled", newState)
	return newState, nil
}

// Zones lists the controller's firewall zones.
func (m *Manager) Zones(ctx context.Context) []unifi.Raw {
	payload, err := m.session.Do(ctx, unifi.Get("/v2/firewall/zones"))
	if err != nil {
		m.logger.Error("list firewall zones failed", "error", err)
		return nil
	}
	return unifi.NormalizeList(payload, m.logger)
}

// IPGroups lists the controller's IP groups.
func (m *Manager) IPGroups(ctx context.Context) []unifi.Raw {
	payload, err := m.session.Do(ctx, unifi.Get("/v2/firewall/ip-groups"))
	if err != nil {
		m.logger.Error("list ip groups failed", "error", err)
		return nil
	}
	return unifi.NormalizeList(payload, m.logger)
}
