package firewall

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/netpilot-labs/unifi-agent/internal/config"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

type fakeController struct {
	policyGets    int
	emptyPolicies bool
	lastMethod    string
	lastPath      string
	lastBody      map[string]any
}

func newFakeController(t *testing.T) (*fakeController, *Manager) {
	t.Helper()
	fc := &fakeController{}

	mux := http.NewServeMux()
	// V2 endpoints return bare JSON, no envelope.
	mux.HandleFunc("/proxy/network/v2/api/site/default/firewall-policies", func(w http.ResponseWriter, r *http.Request) {
		fc.policyGets++
		if fc.emptyPolicies {
			json.NewEncoder(w).Encode([]map[string]any{})
			return
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{
				"_id": "pol1", "name": "Allow Established", "enabled": true,
				"action": "accept", "index": float64(2000), "ruleset": "WAN_IN",
				"predefined": true,
			},
			{
				"_id": "pol2", "name": "Block IoT to LAN", "enabled": true,
				"action": "drop", "index": float64(2010), "ruleset": "LAN_IN",
				"predefined": false, "logging": false,
			},
		})
	})
	mux.HandleFunc("/proxy/network/v2/api/site/default/firewall-policies/", func(w http.ResponseWriter, r *http.Request) {
		fc.lastMethod = r.Method
		fc.lastPath = r.URL.Path
		fc.lastBody = nil
		json.NewDecoder(r.Body).Decode(&fc.lastBody)
		json.NewEncoder(w).Encode(fc.lastBody)
	})
	mux.HandleFunc("/proxy/network/v2/api/site/default/firewall/zones", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"_id": "z1", "name": "trusted"}, {"_id": "z2", "name": "wan"},
		})
	})
	mux.HandleFunc("/proxy/network/v2/api/site/default/firewall/ip-groups", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"_id": "g1", "name": "cameras", "members": []string{"192.168.40.0/24"}},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session := unifi.NewSession(config.ControllerConfig{
		URL:    srv.URL,
		APIKey: "test-key",
		Site:   "default",
	}, slog.Default())

	return fc, New(session, slog.Default())
}

func TestPoliciesFiltersPredefined(t *testing.T) {
	_, m := newFakeController(t)

	user := m.Policies(context.Background(), false)
	if len(user) != 1 || unifi.String(user[0], "_id", "") != "pol2" {
		t.Errorf("expected only user policies, got %v", user)
	}

	all := m.Policies(context.Background(), true)
	if len(all) != 2 {
		t.Errorf("expected 2 policies with predefined, got %d", len(all))
	}
}

func TestPoliciesCachesEmptyList(t *testing.T) {
	fc, m := newFakeController(t)
	fc.emptyPolicies = true

	// A site with zero policies still caches the (empty) fetch result.
	m.Policies(context.Background(), true)
	m.Policies(context.Background(), true)
	if fc.policyGets != 1 {
		t.Errorf("expected the empty list to be served from cache, got %d fetches", fc.policyGets)
	}
}

func TestPolicyDetail(t *testing.T) {
	_, m := newFakeController(t)

	p, ok := m.PolicyDetail(context.Background(), "pol1")
	if !ok || unifi.String(p, "name", "") != "Allow Established" {
		t.Errorf("detail lookup failed: %v (found=%v)", p, ok)
	}
	if _, ok := m.PolicyDetail(context.Background(), "nope"); ok {
		t.Error("expected not-found for unknown policy")
	}
}

func TestUpdatePolicyMergesBeforePut(t *testing.T) {
	fc, m := newFakeController(t)

	merged, err := m.UpdatePolicy(context.Background(), "pol2", unifi.Raw{"logging": true})
	if err != nil {
		t.Fatal(err)
	}
	if fc.lastMethod != http.MethodPut || !strings.HasSuffix(fc.lastPath, "/firewall-policies/pol2") {
		t.Fatalf("unexpected request %s %s", fc.lastMethod, fc.lastPath)
	}
	// Wire payload carries both the change and the untouched fields.
	if fc.lastBody["logging"] != true || fc.lastBody["action"] != "drop" || fc.lastBody["ruleset"] != "LAN_IN" {
		t.Errorf("merged payload wrong: %v", fc.lastBody)
	}
	if merged["logging"] != true {
		t.Errorf("returned merged object wrong: %v", merged)
	}
}

func TestUpdatePolicyErrors(t *testing.T) {
	_, m := newFakeController(t)

	if _, err := m.UpdatePolicy(context.Background(), "pol2", nil); err == nil {
		t.Error("expected error for empty update")
	}
	if _, err := m.UpdatePolicy(context.Background(), "ghost", unifi.Raw{"enabled": false}); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestTogglePolicy(t *testing.T) {
	fc, m := newFakeController(t)

	newState, err := m.TogglePolicy(context.Background(), "pol2")
	if err != nil {
		t.Fatal(err)
	}
	if newState {
		t.Error("enabled policy should toggle to disabled")
	}
	if fc.lastBody["enabled"] != false || fc.lastBody["name"] != "Block IoT to LAN" {
		t.Errorf("toggle payload wrong: %v", fc.lastBody)
	}
}

func TestToggleInvalidatesCache(t *testing.T) {
	fc, m := newFakeController(t)

	m.Policies(context.Background(), true)
	if _, err := m.TogglePolicy(context.Background(), "pol2"); err != nil {
		t.Fatal(err)
	}
	m.Policies(context.Background(), true)
	if fc.policyGets != 2 {
		t.Errorf("expected cache bypass after toggle, got %d fetches", fc.policyGets)
	}
}

func TestZonesAndIPGroups(t *testing.T) {
	_, m := newFakeController(t)

	zones := m.Zones(context.Background())
	if len(zones) != 2 || unifi.String(zones[0], "name", "") != "trusted" {
		t.Errorf("zones wrong: %v", zones)
	}

	groups := m.IPGroups(context.Background())
	if len(groups) != 1 || unifi.String(groups[0], "name", "") != "cameras" {
		t.Errorf("ip groups wrong: %v", groups)
	}
}
