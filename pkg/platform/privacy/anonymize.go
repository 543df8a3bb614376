// Package privacy provides helpers for keeping client identifiers out of logs
// and diagnostics responses in a recognisable but non-identifying form.
package privacy

import (
	"encoding/hex"
	"fmt"
	"net/netip"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// AnonymizeIP truncates an IP address to remove the host-identifying portion.
//
// IPv4 addresses keep their /24 network ("192.168.1.47" -> "192.168.1.0").
// IPv6 addresses keep their /48 prefix ("2001:db8:85a3::8a2e:370:7334" -> "2001:0db8:85a3::").
//
// Returns "invalid" for unparseable IP addresses, and "unknown" for empty strings.
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil || addr.Zone() != "" {
		return "invalid"
	}
	addr = addr.Unmap()

	if addr.Is4() {
		b := addr.As4()
		return fmt.Sprintf("%d.%d.%d.0", b[0], b[1], b[2])
	}

	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::", b[0], b[1], b[2], b[3], b[4], b[5])
}

// FingerprintToken returns a short, stable, non-reversible fingerprint of a
// device or session token. Two log lines for the same token share a fingerprint.
func FingerprintToken(token string) string {
	if token == "" {
		return "none"
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}

// AnonymizeIdentity renders a client identity ("ip:<addr>" or "device:<token>")
// for logging: addresses are truncated and tokens fingerprinted.
func AnonymizeIdentity(id string) string {
	kind, value, ok := strings.Cut(id, ":")
	if !ok {
		return "opaque:" + FingerprintToken(id)
	}
	switch kind {
	case "ip":
		return "ip:" + AnonymizeIP(value)
	case "device":
		return "device:" + FingerprintToken(value)
	default:
		return kind + ":" + FingerprintToken(value)
	}
}
