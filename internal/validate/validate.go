// Package validate holds pure input validators for tool arguments.
// Everything here runs before any controller traffic: a malformed MAC
// or IP is rejected locally with no network cost.
package validate

import (
	"fmt"
	"net/netip"
	"strings"
)

// macSeparators are the accepted MAC notation separators: colon
// (aa:bb:cc:dd:ee:ff), hyphen (aa-bb-cc-dd-ee-ff), and dot
// (aabb.ccdd.eeff). Bare 12-digit strings are accepted too.
var macSeparators = strings.NewReplacer(":", "", "-", "", ".", "")

// MACAddress reports whether mac is a syntactically valid MAC address
// in any accepted separator style. The test is that stripping
// separators leaves exactly 12 hex digits.
func MACAddress(mac string) bool {
	if mac == "" {
		return false
	}
	stripped := macSeparators.Replace(strings.ToLower(mac))
	if len(stripped) != 12 {
		return false
	}
	for _, c := range stripped {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NormalizeMAC returns mac in the controller's canonical form:
// lowercase, colon-separated. Returns an error for invalid input.
func NormalizeMAC(mac string) (string, error) {
	if !MACAddress(mac) {
		return "", fmt.Errorf("invalid MAC address: %q", mac)
	}
	stripped := macSeparators.Replace(strings.ToLower(mac))
	var b strings.Builder
	for i := 0; i < 12; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(stripped[i : i+2])
	}
	return b.String(), nil
}

// IPAddress reports whether ip is a valid IPv4 or IPv6 literal.
func IPAddress(ip string) bool {
	if ip == "" {
		return false
	}
	_, err := netip.ParseAddr(ip)
	return err == nil
}

// CIDR reports whether s is a valid CIDR prefix such as
// "192.168.1.0/24".
func CIDR(s string) bool {
	if s == "" {
		return false
	}
	_, err := netip.ParsePrefix(s)
	return err == nil
}
