package wan

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netpilot-labs/unifi-agent/internal/config"
	"github.com/netpilot-labs/unifi-agent/internal/devices"
	"github.com/netpilot-labs/unifi-agent/internal/networks"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

func envelope(data ...map[string]any) map[string]any {
	items := make([]any, len(data))
	for i, d := range data {
		items[i] = d
	}
	return map[string]any{"meta": map[string]any{"rc": "ok"}, "data": items}
}

// newManager wires a WAN manager against a fake controller whose
// device list and health payloads the test controls.
func newManager(t *testing.T, deviceList []map[string]any, mutate func(*http.ServeMux, *recorded)) (*Manager, *recorded) {
	t.Helper()
	rec := &recorded{}

	mux := http.NewServeMux()
	mux.HandleFunc("/proxy/network/api/s/default/stat/device", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(deviceList...))
	})
	mux.HandleFunc("/proxy/network/api/s/default/rest/networkconf", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(
			map[string]any{"_id": "net-wan", "name": "WAN", "purpose": "wan", "wan_type": "pppoe"},
			map[string]any{"_id": "net-lan", "name": "LAN", "purpose": "corporate"},
		))
	})
	mux.HandleFunc("/proxy/network/api/s/default/stat/sysinfo", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(
			map[string]any{"ubnt_device_type": "UDM-Pro", "version": "3.2.7", "name": "Dream Machine"},
		))
	})
	mux.HandleFunc("/proxy/network/api/s/default/stat/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(
			map[string]any{"subsystem": "wlan", "status": "ok"},
			map[string]any{
				"subsystem": "wan", "status": "ok", "wan_ip": "203.0.113.10",
				"gw_mac": "78:45:58:c1:36:fb", "gw_name": "UDM", "uptime": float64(86400),
			},
		))
	})
	if mutate != nil {
		mutate(mux, rec)
	}

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session := unifi.NewSession(config.ControllerConfig{
		URL:    srv.URL,
		APIKey: "test-key",
		Site:   "default",
	}, slog.Default())

	dm := devices.New(session, slog.Default())
	nm := networks.New(session, slog.Default())
	return New(session, dm, nm, slog.Default()), rec
}

type recorded struct {
	method string
	path   string
	body   map[string]any
}

func gatewayDevice() map[string]any {
	return map[string]any{
		"_id": "gw1", "mac": "aa:bb:cc:dd:ee:ff", "model": "UGW3", "type": "ugw",
		"wan1": map[string]any{
			"ip": "203.0.113.10", "netmask": "255.255.255.0", "gateway": "203.0.113.1",
			"type": "dhcp", "enable": true, "uptime": float64(3600),
		},
		"wan2": map[string]any{
			"ip": "", "enable": false,
		},
	}
}

func TestStatusFromGatewayDevice(t *testing.T) {
	m, _ := newManager(t, []map[string]any{
		{"_id": "sw1", "mac": "11:22:33:44:55:66", "type": "usw"},
		gatewayDevice(),
	}, nil)

	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status["source"] != SourceDevice {
		t.Fatalf("expected device source, got %v", status["source"])
	}
	if status["gateway_mac"] != "aa:bb:cc:dd:ee:ff" || status["gateway_model"] != "UGW3" {
		t.Errorf("gateway identity wrong: %v", status)
	}

	interfaces := status["wan_interfaces"].([]unifi.Raw)
	if len(interfaces) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(interfaces))
	}
	wan1 := interfaces[0]
	if wan1["name"] != "wan1" || wan1["ip"] != "203.0.113.10" || wan1["enabled"] != true {
		t.Errorf("wan1 wrong: %v", wan1)
	}
	wan2 := interfaces[1]
	if wan2["enabled"] != false || wan2["type"] != "disabled" {
		t.Errorf("wan2 defaults wrong: %v", wan2)
	}

	wanNet := status["wan_network"].(unifi.Raw)
	if wanNet["name"] != "WAN" || wanNet["wan_type"] != "pppoe" {
		t.Errorf("wan network wrong: %v", wanNet)
	}
}

func TestStatusFallsBackToSysinfo(t *testing.T) {
	// Integrated appliances never appear in the device list.
	m, _ := newManager(t, []map[string]any{
		{"_id": "sw1", "mac": "11:22:33:44:55:66", "type": "usw"},
	}, nil)

	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status["source"] != SourceSysinfo {
		t.Fatalf("expected sysinfo source, got %v", status["source"])
	}

	controller := status["controller"].(unifi.Raw)
	if controller["model"] != "UDM-Pro" || controller["version"] != "3.2.7" {
		t.Errorf("controller info wrong: %v", controller)
	}

	health := status["health"].(unifi.Raw)
	if health["status"] != "ok" || health["wan_ip"] != "203.0.113.10" {
		t.Errorf("health info wrong: %v", health)
	}

	interfaces := status["wan_interfaces"].([]unifi.Raw)
	if len(interfaces) != 1 || interfaces[0]["ip"] != "203.0.113.10" {
		t.Errorf("synthesized interface wrong: %v", interfaces)
	}
}

func TestConnectivitySummary(t *testing.T) {
	m, _ := newManager(t, []map[string]any{gatewayDevice()}, nil)

	summary, err := m.ConnectivitySummary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary["wan1_configured"] != true || summary["active_wan"] != "wan1" {
		t.Errorf("summary wrong: %v", summary)
	}
	if summary["wan2_configured"] != false {
		t.Errorf("wan2 should be unconfigured: %v", summary)
	}
}

func withConnectivity(mux *http.ServeMux, rec *recorded) {
	mux.HandleFunc("/proxy/network/api/s/default/get/setting/connectivity", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(
			map[string]any{"_id": "set1", "key": "connectivity", "uplink_type": "failover"},
		))
	})
	mux.HandleFunc("/proxy/network/api/s/default/set/setting/connectivity", func(w http.ResponseWriter, r *http.Request) {
		rec.method = r.Method
		rec.path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&rec.body)
		json.NewEncoder(w).Encode(envelope())
	})
}

func TestFailoverSettings(t *testing.T) {
	m, _ := newManager(t, nil, withConnectivity)

	settings, err := m.FailoverSettings(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if settings["failover_enabled"] != true || settings["load_balance_enabled"] != false {
		t.Errorf("settings wrong: %v", settings)
	}
	if settings["wan1_weight"] != 50 {
		t.Errorf("default weight wrong: %v", settings)
	}
}

func TestSetFailoverWeighted(t *testing.T) {
	m, rec := newManager(t, nil, withConnectivity)

	if err := m.SetFailover(context.Background(), "weighted", 70, 900); err != nil {
		t.Fatal(err)
	}
	if rec.method != http.MethodPut {
		t.Fatalf("expected PUT, got %s", rec.method)
	}
	if rec.body["uplink_type"] != "weighted" || rec.body["_id"] != "set1" {
		t.Errorf("payload wrong: %v", rec.body)
	}
	if rec.body["wan1_weight"] != float64(70) || rec.body["wan2_weight"] != float64(100) {
		t.Errorf("weights not clamped: %v", rec.body)
	}
}

func TestSetFailoverRejectsBadMode(t *testing.T) {
	m, _ := newManager(t, nil, withConnectivity)
	if err := m.SetFailover(context.Background(), "round-robin", 50, 50); err == nil {
		t.Error("expected error for invalid mode")
	}
}
