// Package mqtt publishes WAN and agent health state to an MQTT broker
// so dashboards and automations can watch the network without polling
// the agent. The publisher maintains the broker connection itself and
// marks the agent offline via a retained will message when it dies.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/netpilot-labs/unifi-agent/internal/buildinfo"
	"github.com/netpilot-labs/unifi-agent/internal/config"
)

// StatusSource provides the state snapshots the publisher pushes. The
// concrete adapter is wired in main to keep this package decoupled
// from the manager layer.
type StatusSource interface {
	// WANSummary returns the per-uplink connectivity summary.
	WANSummary(ctx context.Context) (map[string]any, error)
	// ControllerReachable reports whether the controller answers.
	ControllerReachable(ctx context.Context) bool
	// CacheEntries returns the current read cache size.
	CacheEntries() int
}

// Publisher manages the MQTT connection and runs a periodic loop that
// pushes WAN and agent state to the broker.
type Publisher struct {
	cfg    config.MQTTConfig
	site   string
	source StatusSource
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Publisher but does not connect. Call [Publisher.Start]
// to begin the connection and publish loop.
func New(cfg config.MQTTConfig, site string, source StatusSource, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, site: site, source: source, logger: logger}
}

// Start connects to the broker and runs the periodic publish loop
// until ctx is cancelled. On every (re-)connect it publishes an online
// availability message; the broker publishes the offline will message
// if the agent dies without saying goodbye.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("mqtt connected to broker", "broker", p.cfg.Broker)
			p.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			p.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "unifi-agent-" + p.site,
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		p.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	p.runLoop(ctx)
	return nil
}

// Stop publishes an offline availability message before disconnecting.
func (p *Publisher) Stop(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	p.publishAvailability(ctx, p.cm, "offline")
	return p.cm.Disconnect(ctx)
}

// Topic layout: {prefix}/{site}/availability, {prefix}/{site}/wan/state,
// {prefix}/{site}/agent/state.

func (p *Publisher) baseTopic() string {
	prefix := p.cfg.TopicPrefix
	if prefix == "" {
		prefix = "unifi-agent"
	}
	return prefix + "/" + p.site
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) wanTopic() string {
	return p.baseTopic() + "/wan/state"
}

func (p *Publisher) agentTopic() string {
	return p.baseTopic() + "/agent/state"
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		p.logger.Info("mqtt availability published", "status", status)
	}
}

func (p *Publisher) runLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PublishInterval())
	defer ticker.Stop()

	p.publishStates(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishStates(ctx)
		}
	}
}

// agentState builds the agent health payload.
func (p *Publisher) agentState(ctx context.Context) map[string]any {
	return map[string]any{
		"version":              buildinfo.Version,
		"uptime":               buildinfo.Uptime().Truncate(time.Second).String(),
		"site":                 p.site,
		"controller_reachable": p.source.ControllerReachable(ctx),
		"cache_entries":        p.source.CacheEntries(),
	}
}

func (p *Publisher) publishStates(ctx context.Context) {
	if p.cm == nil {
		return
	}

	if summary, err := p.source.WANSummary(ctx); err != nil {
		p.logger.Warn("mqtt wan summary unavailable", "error", err)
	} else {
		p.publishJSON(ctx, p.wanTopic(), summary)
	}

	p.publishJSON(ctx, p.agentTopic(), p.agentState(ctx))
}

func (p *Publisher) publishJSON(ctx context.Context, topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("mqtt marshal payload", "topic", topic, "error", err)
		return
	}
	if _, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: data,
		QoS:     0,
		Retain:  true,
	}); err != nil {
		p.logger.Debug("mqtt state publish failed", "topic", topic, "error", err)
		return
	}
	p.logger.Debug("mqtt state published", "topic", topic, "bytes", len(data))
}
