package identity

import (
	"net"
	"net/netip"
	"strings"

	"tenant-gateway/pkg/errutil"
)

// HeaderTenantKey carries an explicit tenant key and wins over the host.
const HeaderTenantKey = "X-Tenant-ID"

var reservedLabels = map[string]struct{}{
	"":          {},
	"localhost": {},
	"www":       {},
}

type Resolver struct {
	// RootDomain, when set, stops the bare platform domain from being read
	// as a tenant ("example.com" would otherwise yield "example").
	RootDomain string
}

func NewResolver(rootDomain string) *Resolver {
	return &Resolver{RootDomain: strings.ToLower(strings.TrimSpace(rootDomain))}
}

// Resolve returns the tenant key for a request, or *errutil.ResolutionError.
func (r *Resolver) Resolve(host, override string) (string, error) {
	if key := strings.TrimSpace(override); key != "" {
		return key, nil
	}

	if key := r.fromHost(host); key != "" {
		return key, nil
	}

	return "", &errutil.ResolutionError{}
}

func (r *Resolver) fromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")

	if _, err := netip.ParseAddr(host); err == nil {
		return ""
	}
	if r.RootDomain != "" && host == r.RootDomain {
		return ""
	}

	label, _, _ := strings.Cut(host, ".")
	if _, reserved := reservedLabels[label]; reserved {
		return ""
	}
	return label
}
