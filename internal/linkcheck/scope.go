package linkcheck

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope decides whether a link belongs to the site under test. Any host
// sharing the base URL's registrable domain (eTLD+1) is internal, so
// staging.example.org and example.org are the same site.
type Scope struct {
	rootDomain string
}

// NewScope derives the scope from the base URL of the environment.
func NewScope(baseURL string) (*Scope, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("base URL must have a hostname: %s", baseURL)
	}

	domain := hostname
	if net.ParseIP(hostname) == nil {
		// Bare hosts such as localhost have no public suffix and keep the host itself as the domain.
		if d, err := publicsuffix.EffectiveTLDPlusOne(hostname); err == nil {
			domain = d
		}
	}
	return &Scope{rootDomain: strings.ToLower(domain)}, nil
}

// IsInternal reports whether rawURL is on the same site.
func (s *Scope) IsInternal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == s.rootDomain || strings.HasSuffix(host, "."+s.rootDomain)
}

// RootDomain returns the registrable domain defining the scope.
func (s *Scope) RootDomain() string {
	return s.rootDomain
}
