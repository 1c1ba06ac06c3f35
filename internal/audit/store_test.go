package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	recs := []Record{
		{RequestID: "req1", Tool: "unifi_reboot_device", Args: `{"device_mac":"aa:bb:cc:dd:ee:ff"}`, Success: true},
		{RequestID: "req2", Tool: "unifi_toggle_wlan", Args: `{"wlan_id":"w1"}`, Success: false, Error: "not found"},
	}
	for i, rec := range recs {
		rec.Timestamp = time.Date(2026, 8, 1, 12, i, 0, 0, time.UTC)
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	// Most recent first.
	if got[0].Tool != "unifi_toggle_wlan" || got[0].Success {
		t.Errorf("unexpected first record: %+v", got[0])
	}
	if got[1].Tool != "unifi_reboot_device" || !got[1].Success {
		t.Errorf("unexpected second record: %+v", got[1])
	}
	if got[0].ID == "" {
		t.Error("expected generated ID")
	}
}

func TestByTool(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := Record{RequestID: "r", Tool: "unifi_reboot_device", Success: true,
			Timestamp: time.Date(2026, 8, 1, 12, i, 0, 0, time.UTC)}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Append(ctx, Record{RequestID: "r", Tool: "unifi_toggle_wlan", Success: true}); err != nil {
		t.Fatal(err)
	}

	got, err := s.ByTool(ctx, "unifi_reboot_device", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
	for _, rec := range got {
		if rec.Tool != "unifi_reboot_device" {
			t.Errorf("wrong tool in filtered result: %+v", rec)
		}
	}
}

func TestEncodeArgsRedactsSecrets(t *testing.T) {
	encoded := EncodeArgs(map[string]any{
		"name":         "Guest",
		"x_passphrase": "hunter22",
	})
	if strings.Contains(encoded, "hunter22") {
		t.Errorf("passphrase leaked into audit args: %s", encoded)
	}
	if !strings.Contains(encoded, "Guest") {
		t.Errorf("non-secret fields should survive: %s", encoded)
	}

	if got := EncodeArgs(nil); got != "{}" {
		t.Errorf("expected empty object for nil args, got %s", got)
	}
}
