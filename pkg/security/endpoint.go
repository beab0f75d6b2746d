// Package security decides which endpoints the client may send the api key
// to.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrDisallowedURL = errors.New("disallowed endpoint URL")

// Policy relaxes the default endpoint checks, which only accept https to
// public hosts.
type Policy struct {
	// AllowHTTP accepts plain http endpoints.
	AllowHTTP bool
	// AllowLocalNetworks accepts localhost, loopback, private and link-local
	// targets, for self-hosted OpenAI compatible servers.
	AllowLocalNetworks bool
}

func disallowed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrDisallowedURL, format, args...)
}

// Check parses rawURL and verifies it against the policy. Hosts are judged
// by name or IP literal, nothing is resolved. Every rejection except a
// parse failure matches ErrDisallowedURL.
func (p Policy) Check(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, errors.Wrap(err, "invalid endpoint URL")
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !p.AllowHTTP {
			return nil, disallowed("plain http to %s", u.Host)
		}
	default:
		return nil, disallowed("scheme %q", u.Scheme)
	}

	// credentials in the URL would end up in logs and error messages
	if u.User != nil {
		return nil, disallowed("credentials in URL")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, disallowed("query or fragment in base URL")
	}

	if err := p.checkHost(strings.ToLower(u.Hostname())); err != nil {
		return nil, err
	}
	return u, nil
}

func (p Policy) checkHost(host string) error {
	if host == "" {
		return disallowed("missing host")
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		if !p.AllowLocalNetworks && isLocalName(host) {
			return disallowed("local host %q", host)
		}
		return nil
	}

	if addr.Zone() != "" && !p.AllowLocalNetworks {
		return disallowed("zoned address %q", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return disallowed("address %q", host)
	}
	if !p.AllowLocalNetworks && isLocalAddr(addr) {
		return disallowed("local address %q", host)
	}
	return nil
}

func isLocalName(host string) bool {
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") ||
		strings.HasSuffix(host, ".internal")
}

func isLocalAddr(addr netip.Addr) bool {
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast()
}

// Endpoint checks base and joins path to it:
// ("https://api.openai.com/", "/v1/models") gives
// "https://api.openai.com/v1/models". A path prefix on base is kept.
func (p Policy) Endpoint(base string, path string) (string, error) {
	u, err := p.Check(base)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(u.String(), "/") + "/" + strings.TrimLeft(path, "/"), nil
}
