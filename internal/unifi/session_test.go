package unifi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/netpilot-labs/unifi-agent/internal/config"
)

func testSession(t *testing.T, url string) *Session {
	t.Helper()
	return NewSession(config.ControllerConfig{
		URL:    url,
		APIKey: "test-key",
	}, nil)
}

func TestDoUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/proxy/network/api/s/default/rest/networkconf" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("X-API-KEY"); got != "test-key" {
			t.Errorf("expected X-API-KEY test-key, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meta":{"rc":"ok"},"data":[{"_id":"n1","name":"LAN"}]}`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL)
	payload, err := s.Do(context.Background(), Get("/rest/networkconf"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	var list []Raw
	if err := json.Unmarshal(payload, &list); err != nil {
		t.Fatalf("payload is not a bare list after unwrap: %v", err)
	}
	if len(list) != 1 || list[0]["name"] != "LAN" {
		t.Errorf("unexpected payload: %s", payload)
	}
}

func TestDoPassesThroughBareV2Payload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/proxy/network/v2/api/site/default/firewall-policies" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"_id":"fw1","action":"drop"}]`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL)
	payload, err := s.Do(context.Background(), Get("/v2/firewall-policies"))
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	var list []Raw
	if err := json.Unmarshal(payload, &list); err != nil || len(list) != 1 {
		t.Fatalf("unexpected V2 payload: %s", payload)
	}
}

func TestDoEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meta":{"rc":"error","msg":"api.err.NoSiteContext"},"data":[]}`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL)
	if _, err := s.Do(context.Background(), Get("/rest/networkconf")); err == nil {
		t.Fatal("expected envelope error")
	}
}

func TestDoHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"meta":{"rc":"error"}}`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL)
	if _, err := s.Do(context.Background(), Get("/rest/networkconf")); err == nil {
		t.Fatal("expected error for 400 response")
	}
}

func TestDoMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{invalid`))
	}))
	defer srv.Close()

	s := testSession(t, srv.URL)
	if _, err := s.Do(context.Background(), Get("/rest/networkconf")); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestEnsureConnectedLogsInOnce(t *testing.T) {
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			logins++
			var creds map[string]string
			if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
				t.Fatalf("decode credentials: %v", err)
			}
			if creds["username"] != "admin" || creds["password"] != "secret" {
				t.Errorf("unexpected credentials: %v", creds)
			}
			w.Header().Set("X-CSRF-Token", "csrf-abc")
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := NewSession(config.ControllerConfig{
		URL:      srv.URL,
		Username: "admin",
		Password: "secret",
	}, nil)

	if !s.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected returned false")
	}
	if !s.EnsureConnected(context.Background()) {
		t.Fatal("second EnsureConnected returned false")
	}
	if logins != 1 {
		t.Errorf("expected 1 login, got %d", logins)
	}
}

func TestEnsureConnectedAuthFailureReturnsFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSession(config.ControllerConfig{
		URL:      srv.URL,
		Username: "admin",
		Password: "wrong",
	}, nil)

	if s.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected should return false on auth failure")
	}
}

func TestMutationCarriesCSRFToken(t *testing.T) {
	var gotCSRF string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			w.Header().Set("X-CSRF-Token", "csrf-abc")
			w.WriteHeader(http.StatusOK)
		default:
			gotCSRF = r.Header.Get("X-CSRF-Token")
			w.Write([]byte(`{"meta":{"rc":"ok"},"data":[]}`))
		}
	}))
	defer srv.Close()

	s := NewSession(config.ControllerConfig{
		URL:      srv.URL,
		Username: "admin",
		Password: "secret",
	}, nil)

	if !s.EnsureConnected(context.Background()) {
		t.Fatal("EnsureConnected returned false")
	}
	if _, err := s.Do(context.Background(), Put("/rest/networkconf/n1", Raw{"name": "x"})); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if gotCSRF != "csrf-abc" {
		t.Errorf("expected CSRF header csrf-abc, got %q", gotCSRF)
	}
}

func TestLegacyURLLayout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/s/branch/stat/health" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte(`{"meta":{"rc":"ok"},"data":[]}`))
	}))
	defer srv.Close()

	s := NewSession(config.ControllerConfig{
		URL:    srv.URL,
		Site:   "branch",
		APIKey: "k",
		Legacy: true,
	}, nil)

	if _, err := s.Do(context.Background(), Get("/stat/health")); err != nil {
		t.Fatalf("Do: %v", err)
	}
}
