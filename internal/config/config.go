// Package config handles unifi-agent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/unifi-agent/config.yaml,
// /etc/unifi-agent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "unifi-agent", "config.yaml"))
	}

	paths = append(paths, "/etc/unifi-agent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all unifi-agent configuration.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"`
	Controller  ControllerConfig  `yaml:"controller"`
	Permissions PermissionsConfig `yaml:"permissions"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Events      EventsConfig      `yaml:"events"`
	AuditDB     string            `yaml:"audit_db"`
	LogLevel    string            `yaml:"log_level"`
}

// ListenConfig defines the tool API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ControllerConfig defines the UniFi Network controller connection.
type ControllerConfig struct {
	// URL is the controller base URL including scheme and host,
	// e.g. "https://192.168.1.1". No trailing slash.
	URL string `yaml:"url"`
	// Site is the controller site name (default "default").
	Site string `yaml:"site"`
	// APIKey authenticates via the X-API-KEY header (UniFi OS 3.x+).
	// Takes precedence over username/password when set.
	APIKey string `yaml:"api_key"`
	// Username and Password authenticate via cookie login on
	// controllers without API key support.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Legacy marks a software controller on port 8443 that uses the
	// /api prefix instead of UniFi OS's /proxy/network/api.
	Legacy bool `yaml:"legacy"`
	// VerifyTLS enables certificate verification. Off by default since
	// controllers ship with self-signed certificates.
	VerifyTLS bool `yaml:"verify_tls"`
	// CacheTTLSec is the read cache lifetime in seconds (default 30).
	CacheTTLSec int `yaml:"cache_ttl_sec"`
	// TimeoutSec is the per-request timeout in seconds (default 15).
	TimeoutSec int `yaml:"timeout_sec"`
}

// CacheTTL returns the configured cache lifetime.
func (c ControllerConfig) CacheTTL() time.Duration {
	if c.CacheTTLSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.CacheTTLSec) * time.Second
}

// Timeout returns the configured per-request timeout.
func (c ControllerConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// SiteName returns the configured site, defaulting to "default".
func (c ControllerConfig) SiteName() string {
	if c.Site == "" {
		return "default"
	}
	return c.Site
}

// PermissionsConfig defines the capability policy checked before any
// tool contacts the controller. Keys are resource names (device,
// network, wlan, dhcp, wan, firewall, audit) or "*"; values are verb
// lists (read, create, update, delete) or ["*"].
type PermissionsConfig struct {
	// DefaultAllow grants any capability not covered by an explicit
	// rule. Off by default: unknown resources are denied.
	DefaultAllow bool                `yaml:"default_allow"`
	Rules        map[string][]string `yaml:"rules"`
}

// MQTTConfig defines the optional status publisher.
type MQTTConfig struct {
	Enabled bool `yaml:"enabled"`
	// Broker is the broker URL, e.g. "mqtt://broker.local:1883" or
	// "mqtts://broker.local:8883".
	Broker   string `yaml:"broker"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TopicPrefix defaults to "unifi-agent".
	TopicPrefix string `yaml:"topic_prefix"`
	// PublishIntervalSec is how often WAN/health state is published
	// (default 60).
	PublishIntervalSec int `yaml:"publish_interval_sec"`
}

// PublishInterval returns the configured publish interval.
func (c MQTTConfig) PublishInterval() time.Duration {
	if c.PublishIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.PublishIntervalSec) * time.Second
}

// EventsConfig defines the controller event stream subscriber.
type EventsConfig struct {
	// Enabled turns on the websocket event subscription used for
	// push-driven cache invalidation.
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file. Environment variables in
// the file ($VAR or ${VAR}) are expanded before parsing, so secrets
// can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if cfg.Controller.URL == "" {
		return nil, fmt.Errorf("controller.url is required")
	}
	if cfg.Controller.APIKey == "" && cfg.Controller.Username == "" {
		return nil, fmt.Errorf("controller.api_key or controller.username/password is required")
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8422},
		Controller: ControllerConfig{
			Site: "default",
		},
		Permissions: PermissionsConfig{
			Rules: map[string][]string{
				"*": {"read"},
			},
		},
	}
}
