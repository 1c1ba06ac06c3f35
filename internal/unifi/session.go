// Package unifi implements the session and request layer for the UniFi
// Network controller API: one authenticated session per site, a uniform
// request primitive over the controller's REST, legacy, and V2
// endpoints, and a prefix-keyed TTL read cache.
package unifi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/netpilot-labs/unifi-agent/internal/config"
	"github.com/netpilot-labs/unifi-agent/internal/httpkit"
)

// Session owns the authenticated connection to one controller site.
// All reads and writes go through [Session.Do]; reads may be served
// from [Session.Cache]. Safe for concurrent use.
type Session struct {
	cfg        config.ControllerConfig
	httpClient *http.Client
	logger     *slog.Logger
	cache      *Cache
	jar        http.CookieJar

	mu        sync.Mutex
	csrfToken string
	loggedIn  bool
}

// NewSession creates a session for the configured controller. No
// network traffic happens until [Session.EnsureConnected] or
// [Session.Do] is called.
func NewSession(cfg config.ControllerConfig, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []httpkit.ClientOption{
		httpkit.WithTimeout(cfg.Timeout()),
		httpkit.WithRetry(2, 2*time.Second),
		httpkit.WithLogger(logger),
	}
	if !cfg.VerifyTLS {
		opts = append(opts, httpkit.WithTLSInsecureSkipVerify())
	}
	var jar http.CookieJar
	if cfg.APIKey == "" {
		// Cookie-based auth needs a jar; the API-key path is stateless.
		jar, _ = cookiejar.New(nil)
		opts = append(opts, httpkit.WithCookieJar(jar))
	}

	return &Session{
		cfg:        cfg,
		httpClient: httpkit.NewClient(opts...),
		logger:     logger,
		cache:      NewCache(cfg.CacheTTL()),
		jar:        jar,
	}
}

// Cache returns the session's read cache.
func (s *Session) Cache() *Cache { return s.cache }

// CookieJar returns the jar holding the session's login cookies, or
// nil in API-key mode. Shared with the websocket event stream so its
// dial authenticates the same way the HTTP calls do.
func (s *Session) CookieJar() http.CookieJar { return s.jar }

// Site returns the controller site this session is bound to.
func (s *Session) Site() string { return s.cfg.SiteName() }

// EnsureConnected reports whether a usable session exists, logging in
// first if needed. It never returns an error: authentication and
// network failures are logged and reported as false, so callers must
// check the boolean rather than assume success.
func (s *Session) EnsureConnected(ctx context.Context) bool {
	if s.cfg.APIKey != "" {
		// API-key auth is stateless; a health probe stands in for a
		// session check.
		if _, err := s.Do(ctx, Get("/stat/health")); err != nil {
			s.logger.Warn("controller not reachable", "url", s.cfg.URL, "error", err)
			return false
		}
		return true
	}

	s.mu.Lock()
	loggedIn := s.loggedIn
	s.mu.Unlock()
	if loggedIn {
		return true
	}

	if err := s.login(ctx); err != nil {
		s.logger.Warn("controller login failed", "url", s.cfg.URL, "error", err)
		return false
	}
	return true
}

// login performs cookie-based authentication. UniFi OS appliances use
// /api/auth/login; standalone controllers use /api/login. The CSRF
// token from the response header is kept for mutating requests.
func (s *Session) login(ctx context.Context) error {
	loginPath := "/api/auth/login"
	if s.cfg.Legacy {
		loginPath = "/api/login"
	}

	body, err := json.Marshal(map[string]string{
		"username": s.cfg.Username,
		"password": s.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL+loginPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed with status %d: %s",
			resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 256))
	}

	s.mu.Lock()
	s.csrfToken = resp.Header.Get("X-CSRF-Token")
	s.loggedIn = true
	s.mu.Unlock()

	s.logger.Info("controller session established", "url", s.cfg.URL, "site", s.Site())
	return nil
}

// Do performs one controller API call and returns the payload with the
// {"meta": ..., "data": ...} envelope already stripped where the
// endpoint uses one. Non-2xx responses, envelope-level errors, and
// malformed payloads all surface as errors; callers at the tool
// boundary convert them into {success: false, error} results.
//
// After a successful mutation the caller is responsible for
// invalidating the affected cache family.
func (s *Session) Do(ctx context.Context, r Request) (json.RawMessage, error) {
	urlPath, err := r.urlPath(s.Site(), s.cfg.Legacy)
	if err != nil {
		return nil, err
	}

	if s.cfg.APIKey == "" {
		s.mu.Lock()
		loggedIn := s.loggedIn
		s.mu.Unlock()
		if !loggedIn {
			if err := s.login(ctx); err != nil {
				return nil, fmt.Errorf("session login: %w", err)
			}
		}
	}

	var bodyReader *bytes.Reader
	if r.Body != nil {
		encoded, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	} else {
		bodyReader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, s.cfg.URL+urlPath, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-KEY", s.cfg.APIKey)
	}
	if r.IsMutation() {
		s.mu.Lock()
		if s.csrfToken != "" {
			req.Header.Set("X-CSRF-Token", s.csrfToken)
		}
		s.mu.Unlock()
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(r.Method, "transport_error").Inc()
		return nil, fmt.Errorf("request %s %s: %w", r.Method, r.Path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	// A rotated CSRF token rides on any response that carries one.
	if token := resp.Header.Get("X-CSRF-Token"); token != "" {
		s.mu.Lock()
		s.csrfToken = token
		s.mu.Unlock()
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		// Session expired out from under us; next EnsureConnected
		// re-authenticates.
		s.mu.Lock()
		s.loggedIn = false
		s.mu.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		requestsTotal.WithLabelValues(r.Method, "http_error").Inc()
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("controller API error %d on %s %s: %s",
			resp.StatusCode, r.Method, r.Path, body)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		requestsTotal.WithLabelValues(r.Method, "decode_error").Inc()
		return nil, fmt.Errorf("decode response for %s %s: %w", r.Method, r.Path, err)
	}

	payload, err := unwrapEnvelope(raw)
	if err != nil {
		requestsTotal.WithLabelValues(r.Method, "envelope_error").Inc()
		return nil, fmt.Errorf("%s %s: %w", r.Method, r.Path, err)
	}

	s.logger.Log(ctx, config.LevelTrace, "controller response",
		"method", r.Method, "path", r.Path, "payload", string(payload))

	requestsTotal.WithLabelValues(r.Method, "ok").Inc()
	return payload, nil
}

// envelope is the classic controller response wrapper. V2 endpoints
// return bare JSON with no wrapper, so both meta and data are optional.
type envelope struct {
	Meta *struct {
		RC  string `json:"rc"`
		Msg string `json:"msg"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// unwrapEnvelope strips the {"meta", "data"} wrapper when present and
// surfaces envelope-level errors (rc != "ok"). Payloads without the
// wrapper pass through unchanged.
func unwrapEnvelope(raw json.RawMessage) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Not an object (e.g. a bare V2 array): pass through.
		return raw, nil
	}
	if env.Meta != nil {
		if env.Meta.RC != "" && env.Meta.RC != "ok" {
			if env.Meta.Msg != "" {
				return nil, fmt.Errorf("controller error: %s (%s)", env.Meta.RC, env.Meta.Msg)
			}
			return nil, fmt.Errorf("controller error: %s", env.Meta.RC)
		}
		if env.Data != nil {
			return env.Data, nil
		}
	}
	return raw, nil
}
