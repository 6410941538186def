package match

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// ErrMalformedURL is returned when scheme, host and path cannot be separated.
var ErrMalformedURL = errors.New("malformed url")

// URLProfile captures the normalization output for a scanned URL.
type URLProfile struct {
	Original    string
	Scheme      string
	Host        string
	Port        string
	Path        string
	RawQuery    string
	Labels      []string
	Suffix      string
	Registrable string
	SLD         string
	IP          net.IP
}

// ParseURL splits the supplied URL into the pieces the scorers work on. The host is
// lower-cased, stripped of any trailing dot and converted to its ASCII (punycode) form.
func ParseURL(raw string) (URLProfile, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return URLProfile{}, ErrMalformedURL
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return URLProfile{}, ErrMalformedURL
	}
	if u.Scheme == "" || u.Host == "" {
		return URLProfile{}, ErrMalformedURL
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return URLProfile{}, ErrMalformedURL
	}

	profile := URLProfile{
		Original: raw,
		Scheme:   strings.ToLower(u.Scheme),
		Port:     u.Port(),
		Path:     u.EscapedPath(),
		RawQuery: u.RawQuery,
	}

	if ip := net.ParseIP(host); ip != nil {
		profile.Host = host
		profile.IP = ip
		return profile, nil
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		// Keep the raw lower-cased host; odd characters are evidence, not a parse failure.
		ascii = host
	}
	profile.Host = ascii
	profile.Labels = compactSegments(strings.Split(ascii, "."))
	if len(profile.Labels) == 0 {
		return URLProfile{}, ErrMalformedURL
	}

	profile.Suffix, _ = publicsuffix.PublicSuffix(ascii)
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii); err == nil {
		profile.Registrable = registrable
		profile.SLD = strings.TrimSuffix(registrable, "."+profile.Suffix)
	} else {
		profile.Registrable = ascii
		profile.SLD = secondLevel(profile.Labels)
	}
	return profile, nil
}

// IsIP reports whether the host is an IP literal.
func (p URLProfile) IsIP() bool {
	return p.IP != nil
}

// IsLocal reports whether the host is localhost, a loopback address or a private-range IP literal.
func (p URLProfile) IsLocal() bool {
	if p.Host == "localhost" || strings.HasSuffix(p.Host, ".localhost") {
		return true
	}
	if p.IP == nil {
		return false
	}
	return p.IP.IsLoopback() || p.IP.IsPrivate() || p.IP.IsLinkLocalUnicast() || p.IP.IsUnspecified()
}

// PathAndQuery returns the lower-cased path and query portion of the URL.
func (p URLProfile) PathAndQuery() string {
	out := p.Path
	if p.RawQuery != "" {
		out += "?" + p.RawQuery
	}
	return strings.ToLower(out)
}

// HostMatches reports whether host equals domain or is one of its subdomains. Only whole
// labels match, so "paypal.com.evil.io" never matches "paypal.com".
func HostMatches(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	domain = strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// HostUnderSuffix reports whether host ends with the supplied dot-separated suffix (e.g. "gov" or "gov.uk").
func HostUnderSuffix(host, suffix string) bool {
	suffix = strings.Trim(strings.ToLower(strings.TrimSpace(suffix)), ".")
	if suffix == "" {
		return false
	}
	return strings.HasSuffix(strings.ToLower(host), "."+suffix)
}

func compactSegments(in []string) []string {
	var out []string
	for _, seg := range in {
		if trimmed := strings.TrimSpace(seg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func secondLevel(labels []string) string {
	if len(labels) < 2 {
		if len(labels) == 1 {
			return labels[0]
		}
		return ""
	}
	return labels[len(labels)-2]
}
