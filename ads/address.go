package ads

import (
	"fmt"
	"strconv"
	"strings"
)

// AmsNetId is the 6-byte AMS Network ID ("x.x.x.x.x.x", each x 0-255) that
// every AMS header carries twice: once for the source, once for the target.
type AmsNetId [6]byte

// parseDottedBytes splits s on "." and parses exactly want decimal octets
// (0-255) into out[:want]. Both AmsNetId (6 octets) and an IPv4 address
// (4 octets, via AmsNetIdFromIP) share this shape; only the arity and error
// label differ.
func parseDottedBytes(s, label string, want int, out []byte) error {
	parts := strings.Split(s, ".")
	if len(parts) != want {
		return fmt.Errorf("invalid %s %q: want %d dotted components, got %d", label, s, want, len(parts))
	}
	for i, part := range parts {
		val, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return fmt.Errorf("invalid %s component %q: %w", label, part, err)
		}
		out[i] = byte(val)
	}
	return nil
}

// ParseAmsNetId parses a dotted AMS Net ID, e.g. "192.168.1.100.1.1".
func ParseAmsNetId(s string) (AmsNetId, error) {
	var netId AmsNetId
	if s == "" {
		return netId, fmt.Errorf("empty AMS Net ID")
	}
	if err := parseDottedBytes(s, "AMS Net ID", 6, netId[:]); err != nil {
		return AmsNetId{}, err
	}
	return netId, nil
}

// String renders the dotted form.
func (n AmsNetId) String() string {
	return fmt.Sprintf("%d.%d.%d.%d.%d.%d", n[0], n[1], n[2], n[3], n[4], n[5])
}

// IsZero reports whether every octet is zero, the sentinel for "not yet
// assigned" used by ConnectionOptions.applyDefaults to trigger IP-derived
// fallback.
func (n AmsNetId) IsZero() bool {
	return n == AmsNetId{}
}

// AmsNetIdFromIP derives a Net ID from an IPv4 address using the standard
// TwinCAT convention: the address itself plus a ".1.1" AMS router suffix
// (e.g. 192.168.1.100 -> 192.168.1.100.1.1). A trailing ":port" is stripped
// first so callers can pass a dial address directly.
func AmsNetIdFromIP(ip string) (AmsNetId, error) {
	if idx := strings.Index(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}

	var netId AmsNetId
	if err := parseDottedBytes(ip, "IP address", 4, netId[:4]); err != nil {
		return AmsNetId{}, err
	}
	netId[4], netId[5] = 1, 1
	return netId, nil
}

// AmsAddress pairs a Net ID with the AMS port of one specific route (a PLC
// runtime instance, a router port, ...) within that device.
type AmsAddress struct {
	NetId AmsNetId
	Port  uint16
}

// String renders "netid:port", the form used in debug/log output.
func (a AmsAddress) String() string {
	return fmt.Sprintf("%s:%d", a.NetId, a.Port)
}

