package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Hostnames that must never receive server-originated webhook traffic,
// regardless of what they resolve to.
var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
	"metadata.google":          {},
}

// ValidateEndpointURL rejects URLs that would let a configured webhook
// reach internal infrastructure. Only http and https schemes are
// accepted, and the host must not be (or resolve to) a loopback,
// private, link-local, or unspecified address.
func ValidateEndpointURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a host")
	}

	if _, ok := blockedHosts[strings.ToLower(host)]; ok {
		return fmt.Errorf("URL host %q is not allowed", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkAddr(ip)
	}

	// Hostname: every resolved address must pass, not just the first.
	addrs, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("cannot resolve URL host: %s", host)
	}
	for _, ip := range addrs {
		if err := checkAddr(ip); err != nil {
			return fmt.Errorf("URL host %q resolves to blocked address: %v", host, err)
		}
	}
	return nil
}

func checkAddr(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback addresses are not allowed")
	case ip.IsPrivate():
		return fmt.Errorf("private addresses are not allowed")
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local addresses are not allowed")
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified addresses are not allowed")
	}
	return nil
}
