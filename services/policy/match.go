package policy

import (
	"fmt"
	"net/netip"
	"strings"
)

// MatchMode selects how whitelist entries are compared with the caller address.
type MatchMode string

const (
	// MatchStrict compares parsed addresses for equality, or tests CIDR
	// containment when the entry is a prefix.
	MatchStrict MatchMode = "strict"
	// MatchContains is the historical substring test: "1.2.3.4" also
	// admits "1.2.3.44". Kept so deployments can migrate deliberately.
	MatchContains MatchMode = "contains"
)

func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case MatchStrict, "":
		return MatchStrict, nil
	case MatchContains:
		return MatchContains, nil
	default:
		return "", fmt.Errorf("unknown whitelist match mode %q", s)
	}
}

func (m MatchMode) Match(entry, clientIP string) bool {
	entry = strings.TrimSpace(entry)
	clientIP = strings.TrimSpace(clientIP)
	if entry == "" || clientIP == "" {
		return false
	}

	if m == MatchContains {
		return strings.Contains(clientIP, entry)
	}

	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return false
	}
	addr = addr.Unmap().WithZone("")

	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return false
		}
		return prefix.Contains(addr)
	}

	want, err := netip.ParseAddr(entry)
	if err != nil {
		return false
	}
	return want.Unmap() == addr
}

// ValidateEntry reports whether entry is an address or CIDR prefix that
// strict matching can use.
func ValidateEntry(entry string) error {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		if _, err := netip.ParsePrefix(entry); err != nil {
			return fmt.Errorf("invalid whitelist prefix %q: %w", entry, err)
		}
		return nil
	}
	if _, err := netip.ParseAddr(entry); err != nil {
		return fmt.Errorf("invalid whitelist address %q: %w", entry, err)
	}
	return nil
}
