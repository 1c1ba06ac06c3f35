package tools

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/netpilot-labs/unifi-agent/internal/permissions"
	"github.com/netpilot-labs/unifi-agent/internal/unifi"
)

// wlanSummary shapes one WLAN down to its listing fields. The
// passphrase never leaves through a list call.
func wlanSummary(w unifi.Raw) map[string]any {
	return map[string]any{
		"_id":       unifi.String(w, "_id", ""),
		"name":      unifi.String(w, "name", ""),
		"enabled":   unifi.Bool(w, "enabled", false),
		"security":  unifi.String(w, "security", ""),
		"hide_ssid": unifi.Bool(w, "hide_ssid", false),
		"is_guest":  unifi.Bool(w, "is_guest", false),
		"vlan":      w["vlan"],
	}
}

// wifiQRContent builds the standard WIFI: join string that phone
// cameras understand. Semicolons, commas, and backslashes in the SSID
// or passphrase are escaped per the de facto format.
func wifiQRContent(ssid, security, passphrase string) string {
	esc := strings.NewReplacer(`\`, `\\`, `;`, `\;`, `,`, `\,`, `:`, `\:`)
	if security == "open" {
		return fmt.Sprintf("WIFI:S:%s;;", esc.Replace(ssid))
	}
	return fmt.Sprintf("WIFI:S:%s;T:WPA;P:%s;;", esc.Replace(ssid), esc.Replace(passphrase))
}

func (r *Registry) registerWLANTools() {
	r.Register(&Tool{
		Name:        "unifi_list_wlans",
		Description: "List all wireless networks with enabled state and security mode. Passphrases are not included",
		Parameters:  schema(map[string]any{}),
		Resource:    "wlan",
		Verb:        permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			wlans := r.deps.Networks.WLANs(ctx)
			summaries := make([]map[string]any, 0, len(wlans))
			for _, w := range wlans {
				summaries = append(summaries, wlanSummary(w))
			}
			return map[string]any{"success": true, "count": len(summaries), "wlans": summaries}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_wlan_details",
		Description: "Get the full configuration of one wireless network by id, including its passphrase",
		Parameters: schema(map[string]any{
			"wlan_id": prop("string", "WLAN id (_id field from unifi_list_wlans)"),
		}, "wlan_id"),
		Resource: "wlan",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "wlan_id")
			if id == "" {
				return errResult("wlan_id is required")
			}
			wlan, ok := r.deps.Networks.WLANDetail(ctx, id)
			if !ok {
				return errResult("wlan %s not found", id)
			}
			return map[string]any{"success": true, "wlan": wlan}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_create_wlan",
		Description: "Create a wireless network. Requires name, security mode, and enabled; non-open security also requires x_passphrase",
		Parameters: schema(map[string]any{
			"data":    prop("object", "WLAN configuration: name, security (open, wpapsk, wpa3), enabled, x_passphrase, and any other controller fields"),
			"confirm": confirmProp(),
		}, "data", "confirm"),
		Resource: "wlan",
		Verb:     permissions.VerbCreate,
		Mutating: true,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			data := objArg(args, "data")
			if data == nil {
				return errResult("data is required")
			}
			created, err := r.deps.Networks.CreateWLAN(ctx, data)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "wlan": wlanSummary(created), "wlan_id": unifi.String(created, "_id", "")}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_update_wlan",
		Description: "Update fields on an existing wireless network. Only the given fields change",
		Parameters: schema(map[string]any{
			"wlan_id": prop("string", "WLAN id to update"),
			"updates": prop("object", "Fields to change"),
			"confirm": confirmProp(),
		}, "wlan_id", "updates", "confirm"),
		Resource: "wlan",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Changing WLAN settings briefly disconnects wireless clients while access points reprovision."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "wlan_id")
			if id == "" {
				return errResult("wlan_id is required")
			}
			updates := objArg(args, "updates")
			if len(updates) == 0 {
				return errResult("updates is required")
			}
			if err := r.deps.Networks.UpdateWLAN(ctx, id, updates); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "wlan_id": id, "updated_fields": len(updates)}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_delete_wlan",
		Description: "Delete a wireless network. Connected clients are dropped",
		Parameters: schema(map[string]any{
			"wlan_id": prop("string", "WLAN id to delete"),
			"confirm": confirmProp(),
		}, "wlan_id", "confirm"),
		Resource: "wlan",
		Verb:     permissions.VerbDelete,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Deleting WLAN " + strArg(args, "wlan_id") + " removes the SSID permanently and drops its clients."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "wlan_id")
			if id == "" {
				return errResult("wlan_id is required")
			}
			if err := r.deps.Networks.DeleteWLAN(ctx, id); err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "wlan_id": id, "deleted": true}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_toggle_wlan",
		Description: "Enable or disable a wireless network (flips the current state)",
		Parameters: schema(map[string]any{
			"wlan_id": prop("string", "WLAN id to toggle"),
			"confirm": confirmProp(),
		}, "wlan_id", "confirm"),
		Resource: "wlan",
		Verb:     permissions.VerbUpdate,
		Mutating: true,
		Warn: func(args map[string]any) string {
			return "Toggling WLAN " + strArg(args, "wlan_id") + " drops its wireless clients if it is currently enabled."
		},
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "wlan_id")
			if id == "" {
				return errResult("wlan_id is required")
			}
			enabled, err := r.deps.Networks.ToggleWLAN(ctx, id)
			if err != nil {
				return errResult("%v", err)
			}
			return map[string]any{"success": true, "wlan_id": id, "enabled": enabled}
		},
	})

	r.Register(&Tool{
		Name:        "unifi_wifi_qr_code",
		Description: "Generate a QR code image (PNG, base64) that joins a phone to a wireless network when scanned",
		Parameters: schema(map[string]any{
			"wlan_id": prop("string", "WLAN id to encode"),
		}, "wlan_id"),
		Resource: "wlan",
		Verb:     permissions.VerbRead,
		Handler: func(ctx context.Context, args map[string]any) map[string]any {
			id := strArg(args, "wlan_id")
			if id == "" {
				return errResult("wlan_id is required")
			}
			wlan, ok := r.deps.Networks.WLANDetail(ctx, id)
			if !ok {
				return errResult("wlan %s not found", id)
			}

			ssid := unifi.String(wlan, "name", "")
			security := unifi.String(wlan, "security", "")
			passphrase := unifi.String(wlan, "x_passphrase", "")
			if security != "open" && passphrase == "" {
				return errResult("wlan %s has no passphrase available", id)
			}

			png, err := qrcode.Encode(wifiQRContent(ssid, security, passphrase), qrcode.Medium, 256)
			if err != nil {
				return errResult("generate QR code: %v", err)
			}
			return map[string]any{
				"success":   true,
				"ssid":      ssid,
				"format":    "png",
				"image_b64": base64.StdEncoding.EncodeToString(png),
			}
		},
	})
}
