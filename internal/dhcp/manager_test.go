package dhcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netpilot-labs/unifi-agent/internal/config"
	"github.com/netpilot-labs/unifi-agent/internal/networks"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

type fakeController struct {
	lastMethod string
	lastPath   string
	lastBody   map[string]any
}

func envelope(data ...map[string]any) map[string]any {
	items := make([]any, len(data))
	for i, d := range data {
		items[i] = d
	}
	return map[string]any{"meta": map[string]any{"rc": "ok"}, "data": items}
}

func newFakeController(t *testing.T) (*fakeController, *Manager) {
	t.Helper()
	fc := &fakeController{}

	mux := http.NewServeMux()
	mux.HandleFunc("/proxy/network/api/s/default/rest/networkconf", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(
			map[string]any{
				"_id": "net-lan", "name": "LAN", "purpose": "corporate",
				"ip_subnet": "192.168.1.1/24", "dhcpd_start": "192.168.1.100", "dhcpd_stop": "192.168.1.110",
			},
			map[string]any{
				"_id": "net-iot", "name": "IoT", "purpose": "corporate",
				"ip_subnet": "10.20.0.1/16",
			},
			map[string]any{
				// Overlaps net-iot; list order decides.
				"_id": "net-iot-overlap", "name": "IoT overlap", "purpose": "corporate",
				"ip_subnet": "10.20.30.1/24",
			},
			map[string]any{
				"_id": "net-big", "name": "Big", "purpose": "corporate",
				"ip_subnet": "10.99.0.1/16", "dhcpd_start": "10.99.0.10", "dhcpd_stop": "10.99.3.250",
			},
		))
	})
	mux.HandleFunc("/proxy/network/api/s/default/rest/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(envelope(
				map[string]any{
					"_id": "u1", "mac": "aa:bb:cc:dd:ee:ff", "name": "printer",
					"use_fixedip": true, "fixed_ip": "192.168.1.100", "network_id": "net-lan",
				},
				map[string]any{
					"_id": "u2", "mac": "11:22:33:44:55:66", "hostname": "laptop",
					"use_fixedip": false,
				},
			))
			return
		}
		fc.record(r)
		json.NewEncoder(w).Encode(envelope())
	})
	mux.HandleFunc("/proxy/network/api/s/default/rest/user/", func(w http.ResponseWriter, r *http.Request) {
		fc.record(r)
		json.NewEncoder(w).Encode(envelope())
	})
	mux.HandleFunc("/proxy/network/api/s/default/stat/sta", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(
			map[string]any{"mac": "11:22:33:44:55:66", "ip": "192.168.1.101"},
		))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	session := unifi.NewSession(config.ControllerConfig{
		URL:    srv.URL,
		APIKey: "test-key",
		Site:   "default",
	}, slog.Default())

	nm := networks.New(session, slog.Default())
	return fc, New(session, nm, slog.Default())
}

func (fc *fakeController) record(r *http.Request) {
	fc.lastMethod = r.Method
	fc.lastPath = r.URL.Path
	fc.lastBody = nil
	json.NewDecoder(r.Body).Decode(&fc.lastBody)
}

func TestReservationsAugmentedWithNetwork(t *testing.T) {
	_, m := newFakeController(t)

	reservations := m.Reservations(context.Background())
	if len(reservations) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(reservations))
	}

	r := reservations[0]
	if unifi.String(r, "mac", "") != "aa:bb:cc:dd:ee:ff" || unifi.String(r, "fixed_ip", "") != "192.168.1.100" {
		t.Errorf("unexpected reservation: %v", r)
	}
	if unifi.String(r, "network_name", "") != "LAN" || unifi.String(r, "network_subnet", "") != "192.168.1.1/24" {
		t.Errorf("missing network augmentation: %v", r)
	}
}

func TestReservationLookup(t *testing.T) {
	_, m := newFakeController(t)

	r, ok := m.Reservation(context.Background(), "AA-BB-CC-DD-EE-FF")
	if !ok || unifi.String(r, "name", "") != "printer" {
		t.Errorf("expected printer reservation, got %v (found=%v)", r, ok)
	}

	// Known client without a reservation.
	if _, ok := m.Reservation(context.Background(), "11:22:33:44:55:66"); ok {
		t.Error("expected no reservation for dynamic client")
	}
}

func TestDetectNetworkFirstMatchWins(t *testing.T) {
	_, m := newFakeController(t)

	n, err := m.DetectNetwork(context.Background(), "10.20.30.40")
	if err != nil {
		t.Fatal(err)
	}
	// Both net-iot (/16) and net-iot-overlap (/24) contain the IP;
	// list order decides.
	if unifi.String(n, "_id", "") != "net-iot" {
		t.Errorf("expected first matching network, got %v", n)
	}

	if _, err := m.DetectNetwork(context.Background(), "172.16.0.1"); err == nil {
		t.Error("expected failure when no subnet contains the IP")
	}
	if _, err := m.DetectNetwork(context.Background(), "not-an-ip"); err == nil {
		t.Error("expected failure for invalid IP")
	}
}

func TestSetFixedIPAutoDetectsNetwork(t *testing.T) {
	fc, m := newFakeController(t)

	if err := m.SetFixedIP(context.Background(), "11:22:33:44:55:66", "192.168.1.105", ""); err != nil {
		t.Fatal(err)
	}
	if fc.lastMethod != http.MethodPut || fc.lastPath != "/proxy/network/api/s/default/rest/user/u2" {
		t.Fatalf("unexpected request %s %s", fc.lastMethod, fc.lastPath)
	}
	if fc.lastBody["fixed_ip"] != "192.168.1.105" || fc.lastBody["network_id"] != "net-lan" {
		t.Errorf("unexpected update payload: %v", fc.lastBody)
	}
	if fc.lastBody["use_fixedip"] != true {
		t.Errorf("use_fixedip not set: %v", fc.lastBody)
	}
}

func TestSetFixedIPValidation(t *testing.T) {
	_, m := newFakeController(t)

	if err := m.SetFixedIP(context.Background(), "11:22:33:44:55:66", "999.1.1.1", ""); err == nil {
		t.Error("expected error for invalid IP")
	}
	if err := m.SetFixedIP(context.Background(), "00:00:00:00:00:01", "192.168.1.105", ""); err == nil {
		t.Error("expected error for unknown client")
	}
	if err := m.SetFixedIP(context.Background(), "11:22:33:44:55:66", "172.16.9.9", ""); err == nil {
		t.Error("expected error when no network contains the IP")
	}
}

func TestRemoveFixedIP(t *testing.T) {
	fc, m := newFakeController(t)

	if err := m.RemoveFixedIP(context.Background(), "aa:bb:cc:dd:ee:ff"); err != nil {
		t.Fatal(err)
	}
	if fc.lastBody["use_fixedip"] != false {
		t.Errorf("expected use_fixedip=false, got %v", fc.lastBody)
	}
	if _, present := fc.lastBody["fixed_ip"]; present {
		t.Errorf("fixed_ip should not ride on a removal: %v", fc.lastBody)
	}
}

func TestCreateReservationForOfflineDevice(t *testing.T) {
	fc, m := newFakeController(t)

	err := m.CreateReservation(context.Background(), "AABB.CCDD.0011", "192.168.1.107", "camera", "")
	if err != nil {
		t.Fatal(err)
	}
	if fc.lastMethod != http.MethodPost || fc.lastPath != "/proxy/network/api/s/default/rest/user" {
		t.Fatalf("unexpected request %s %s", fc.lastMethod, fc.lastPath)
	}
	if fc.lastBody["mac"] != "aa:bb:cc:dd:00:11" {
		t.Errorf("MAC not normalized on the wire: %v", fc.lastBody)
	}
	if fc.lastBody["name"] != "camera" || fc.lastBody["noted"] != true {
		t.Errorf("name handling wrong: %v", fc.lastBody)
	}
	if fc.lastBody["network_id"] != "net-lan" {
		t.Errorf("network not auto-detected: %v", fc.lastBody)
	}
}

func TestAvailableIPs(t *testing.T) {
	_, m := newFakeController(t)

	// Range .100-.110 with .100 reserved and .101 active leaves
	// exactly .102-.110.
	available, err := m.AvailableIPs(context.Background(), "net-lan")
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 9 {
		t.Fatalf("expected 9 available IPs, got %d: %v", len(available), available)
	}
	if available[0] != "192.168.1.102" || available[8] != "192.168.1.110" {
		t.Errorf("unexpected range: %v", available)
	}
}

func TestAvailableIPsCapped(t *testing.T) {
	_, m := newFakeController(t)

	available, err := m.AvailableIPs(context.Background(), "net-big")
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 50 {
		t.Errorf("expected result capped at 50, got %d", len(available))
	}
}

func TestAvailableIPsErrors(t *testing.T) {
	_, m := newFakeController(t)

	if _, err := m.AvailableIPs(context.Background(), "ghost"); err == nil {
		t.Error("expected error for unknown network")
	}
	// net-iot declares no DHCP range.
	if _, err := m.AvailableIPs(context.Background(), "net-iot"); err == nil {
		t.Error("expected error for network without DHCP range")
	}
}
