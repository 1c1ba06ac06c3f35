package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFindConfig_Explicit(t *testing.T) {
	// Create a temp config file
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 9999\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	// When no config exists anywhere, should error
	// (Save and restore CWD to avoid finding the repo's config.yaml)
	dir := t.TempDir()
	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	os.WriteFile(path, []byte("listen:\n  port: 8080\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "config.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "config.yaml")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	path := writeConfig(t, "controller:\n  url: https://192.168.1.1\n  api_key: ${UNIFI_TEST_KEY}\n")
	os.Setenv("UNIFI_TEST_KEY", "secret123")
	defer os.Unsetenv("UNIFI_TEST_KEY")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Controller.APIKey != "secret123" {
		t.Errorf("api_key = %q, want %q", cfg.Controller.APIKey, "secret123")
	}
}

func TestLoad_InlineSecrets(t *testing.T) {
	path := writeConfig(t, "controller:\n  url: https://192.168.1.1\n  username: admin\n  password: hunter2\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Controller.Password != "hunter2" {
		t.Errorf("password = %q, want %q", cfg.Controller.Password, "hunter2")
	}
}

func TestLoad_RequiresControllerURL(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 8422\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load without controller.url should error")
	}
}

func TestLoad_RequiresCredentials(t *testing.T) {
	path := writeConfig(t, "controller:\n  url: https://192.168.1.1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("Load without api_key or username should error")
	}
}

func TestControllerDefaults(t *testing.T) {
	path := writeConfig(t, "controller:\n  url: https://192.168.1.1\n  api_key: k\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if got := cfg.Controller.SiteName(); got != "default" {
		t.Errorf("SiteName() = %q, want %q", got, "default")
	}
	if got := cfg.Controller.CacheTTL(); got != 30*time.Second {
		t.Errorf("CacheTTL() = %v, want 30s", got)
	}
	if got := cfg.Controller.Timeout(); got != 15*time.Second {
		t.Errorf("Timeout() = %v, want 15s", got)
	}
	if got := cfg.MQTT.PublishInterval(); got != 60*time.Second {
		t.Errorf("PublishInterval() = %v, want 60s", got)
	}
	if cfg.Controller.VerifyTLS {
		t.Error("VerifyTLS should default to false")
	}
}

func TestDefaultPermissionsReadOnly(t *testing.T) {
	cfg := Default()
	verbs, ok := cfg.Permissions.Rules["*"]
	if !ok {
		t.Fatal("default permissions should carry a * rule")
	}
	if len(verbs) != 1 || verbs[0] != "read" {
		t.Errorf("default * rule = %v, want [read]", verbs)
	}
}
