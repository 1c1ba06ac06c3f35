// unifi-agent exposes a UniFi Network controller as a tool-calling API
// for automation and agent frameworks.
//
// It connects to one controller site, wraps the controller's device,
// network, WLAN, DHCP, WAN, and firewall operations as named tools with
// a permission policy and confirmation gates, and serves them over
// HTTP. Optional extras: a websocket subscription to the controller's
// event stream for push-driven cache invalidation, and an MQTT
// publisher for WAN/agent health state.
//
// Usage:
//
//	unifi-agent serve     Start the tool API server
//	unifi-agent check     Verify controller connectivity and exit
//	unifi-agent version   Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/netpilot-labs/unifi-agent/internal/api"
	"github.com/netpilot-labs/unifi-agent/internal/audit"
	"github.com/netpilot-labs/unifi-agent/internal/buildinfo"
	"github.com/netpilot-labs/unifi-agent/internal/config"
	"github.com/netpilot-labs/unifi-agent/internal/devices"
	"github.com/netpilot-labs/unifi-agent/internal/dhcp"
	"github.com/netpilot-labs/unifi-agent/internal/events"
	"github.com/netpilot-labs/unifi-agent/internal/firewall"
	"github.com/netpilot-labs/unifi-agent/internal/mqtt"
	"github.com/netpilot-labs/unifi-agent/internal/networks"
	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/tools"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
	"github.com/netpilot-labs/unifi-agent/internal/wan"
)

// main constructs the OS-level environment and delegates to [run] so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, and the surface here is two
// flags and three commands.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			return fmt.Errorf("unknown argument %q (try -h)", args[i])
		}
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "check":
		return runCheck(ctx, stdout, configPath)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command %q (try -h)", command)
	}
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "unifi-agent - UniFi Network controller tool API")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: unifi-agent [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Start the tool API server")
	fmt.Fprintln(w, "  check     Verify controller connectivity and exit")
	fmt.Fprintln(w, "  version   Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/unifi-agent/config.yaml, /etc/unifi-agent/config.yaml")
	return nil
}

func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// runCheck connects to the configured controller and reports whether
// it answers. Exits non-zero when it does not, so the command works as
// a deploy-time probe.
func runCheck(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(os.Stderr, slog.LevelWarn)
	session := unifi.NewSession(cfg.Controller, logger)

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if !session.EnsureConnected(checkCtx) {
		return fmt.Errorf("controller %s is not reachable (config: %s)", cfg.Controller.URL, path)
	}

	deviceCount := len(devices.New(session, logger).List(checkCtx))
	fmt.Fprintf(stdout, "controller %s site %q: ok (%d devices)\n",
		cfg.Controller.URL, cfg.Controller.SiteName(), deviceCount)
	return nil
}

// runServe wires the full stack and blocks until a shutdown signal.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	slog.SetDefault(logger)

	logger.Info("starting", "build", buildinfo.String(), "config", path)

	session := unifi.NewSession(cfg.Controller, logger)
	deviceMgr := devices.New(session, logger)
	networkMgr := networks.New(session, logger)
	dhcpMgr := dhcp.New(session, networkMgr, logger)
	wanMgr := wan.New(session, deviceMgr, networkMgr, logger)
	firewallMgr := firewall.New(session, logger)
	perms := permissions.New(cfg.Permissions)

	auditPath := cfg.AuditDB
	if auditPath == "" {
		auditPath = "unifi-agent-audit.db"
	}
	auditStore, err := audit.NewStore(auditPath)
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	registry := tools.NewRegistry(tools.Deps{
		Session:  session,
		Devices:  deviceMgr,
		Networks: networkMgr,
		DHCP:     dhcpMgr,
		WAN:      wanMgr,
		Firewall: firewallMgr,
		Perms:    perms,
		Audit:    auditStore,
		Logger:   logger,
	})

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, registry, session, perms, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A first connectivity probe up front: the server starts either
	// way, but an unreachable controller should be loud in the log.
	if !session.EnsureConnected(ctx) {
		logger.Warn("controller not reachable at startup, continuing anyway",
			"url", cfg.Controller.URL)
	}

	if cfg.Events.Enabled {
		subscriber := events.NewSubscriber(cfg.Controller, session, logger)
		go func() {
			if err := subscriber.Run(ctx); err != nil {
				logger.Error("event subscriber stopped", "error", err)
			}
		}()
	} else {
		logger.Info("controller event stream disabled")
	}

	var mqttPub *mqtt.Publisher
	if cfg.MQTT.Enabled {
		mqttPub = mqtt.New(cfg.MQTT, cfg.Controller.SiteName(), &mqttStatusAdapter{
			session: session,
			wan:     wanMgr,
		}, logger)
		go func() {
			if err := mqttPub.Start(ctx); err != nil {
				logger.Error("mqtt publisher stopped", "error", err)
			}
		}()
		logger.Info("mqtt publishing enabled",
			"broker", cfg.MQTT.Broker, "interval", cfg.MQTT.PublishInterval())
	} else {
		logger.Info("mqtt publishing disabled (not configured)")
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if mqttPub != nil {
			offlineCtx, offlineCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer offlineCancel()
			if err := mqttPub.Stop(offlineCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("unifi-agent stopped")
	return nil
}

// mqttStatusAdapter bridges the session and WAN manager to the MQTT
// publisher's StatusSource without coupling the packages.
type mqttStatusAdapter struct {
	session *unifi.Session
	wan     *wan.Manager
}

func (a *mqttStatusAdapter) WANSummary(ctx context.Context) (map[string]any, error) {
	return a.wan.ConnectivitySummary(ctx)
}

func (a *mqttStatusAdapter) ControllerReachable(ctx context.Context) bool {
	return a.session.EnsureConnected(ctx)
}

func (a *mqttStatusAdapter) CacheEntries() int {
	return a.session.Cache().Len()
}

// newLogger standardizes the slog handler configuration across
// subcommands, including the TRACE level rename.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file, returning
// the config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, path, nil
}
