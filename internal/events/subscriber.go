// Package events subscribes to the controller's websocket event stream
// and turns push notifications into cache invalidation, so reads after
// a controller-side change (an adoption, a client joining, a config
// edit made in the UI) see fresh data instead of waiting out the TTL.
package events

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/netpilot-labs/unifi-agent/internal/config"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// reconnectDelay is the pause between reconnect attempts after the
// stream drops. The controller closes idle streams routinely, so this
// stays short.
const reconnectDelay = 5 * time.Second

// familyByKeyword maps event message keywords to the cache families
// they stale. Keywords are matched as substrings of the meta message
// ("device:sync", "sta:sync", "setting:sync", ...).
var familyByKeyword = []struct {
	keyword  string
	families []string
}{
	{"device", []string{"devices_"}},
	{"sta", []string{"clients_", "users_"}},
	{"user", []string{"users_", "clients_"}},
	{"network", []string{"networks_"}},
	{"wlan", []string{"wlans_"}},
	{"firewall", []string{"firewall_"}},
}

// Subscriber owns one websocket connection to the controller event
// stream and reconnects until its context is cancelled.
type Subscriber struct {
	cfg     config.ControllerConfig
	session *unifi.Session
	logger  *slog.Logger
}

// NewSubscriber creates an event subscriber that invalidates the given
// session's cache. In cookie-auth mode the dial reuses the session's
// login cookies. No connection is made until [Subscriber.Run].
func NewSubscriber(cfg config.ControllerConfig, session *unifi.Session, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{cfg: cfg, session: session, logger: logger}
}

// streamURL resolves the websocket endpoint for the controller
// variant: UniFi OS proxies the stream under /proxy/network, legacy
// controllers serve it at the root.
func (s *Subscriber) streamURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse controller URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	prefix := "/proxy/network"
	if s.cfg.Legacy {
		prefix = ""
	}
	u.Path = fmt.Sprintf("%s/wss/s/%s/events", prefix, s.cfg.SiteName())
	return u.String(), nil
}

// Run connects and processes events until ctx is cancelled, redialing
// after every disconnect. It never returns an error once the URL
// parses: transient failures are logged and retried.
func (s *Subscriber) Run(ctx context.Context) error {
	target, err := s.streamURL()
	if err != nil {
		return err
	}

	for {
		if err := s.streamOnce(ctx, target); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("event stream disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectDelay):
		}
	}
}

// streamOnce dials the stream and reads events until the connection
// drops or ctx is cancelled.
func (s *Subscriber) streamOnce(ctx context.Context, target string) error {
	dialer := websocket.Dialer{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 4 * 1024,
	}
	if !s.cfg.VerifyTLS {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // self-signed controller certs
	}

	header := http.Header{}
	if s.cfg.APIKey != "" {
		header.Set("X-API-KEY", s.cfg.APIKey)
	} else {
		// Cookie auth: log in through the session and carry its
		// cookies on the upgrade request.
		if !s.session.EnsureConnected(ctx) {
			return fmt.Errorf("controller login for event stream failed")
		}
		dialer.Jar = s.session.CookieJar()
	}

	conn, _, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	s.logger.Info("event stream connected", "url", target)

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg eventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("event stream closed by controller")
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		s.handle(msg)
	}
}

// eventMessage is the controller's push notification envelope. The
// meta message names what changed; data carries the affected objects,
// which the subscriber does not need.
type eventMessage struct {
	Meta struct {
		RC      string `json:"rc"`
		Message string `json:"message"`
	} `json:"meta"`
	Data json.RawMessage `json:"data"`
}

// handle maps one notification onto cache invalidation.
func (s *Subscriber) handle(msg eventMessage) {
	message := strings.ToLower(msg.Meta.Message)
	if message == "" {
		return
	}

	for _, m := range familyByKeyword {
		if !strings.Contains(message, m.keyword) {
			continue
		}
		for _, family := range m.families {
			s.session.Cache().InvalidateCache(family)
		}
		eventsInvalidated.Inc()
		s.logger.Debug("cache invalidated by controller event",
			"message", msg.Meta.Message, "families", m.families)
		return
	}

	s.logger.Debug("ignoring controller event", "message", msg.Meta.Message)
}
