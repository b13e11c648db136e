// Package discovery turns raw text or fetched pages into ranked candidate
// project URLs.
package discovery

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// trackingParams are query parameters stripped during normalization.
var trackingParams = map[string]bool{
	"ref":      true,
	"source":   true,
	"fbclid":   true,
	"gclid":    true,
	"mc_eid":   true,
	"mc_cid":   true,
	"igshid":   true,
	"referrer": true,
}

// Normalize canonicalizes a URL for dedup: lowercased scheme and host,
// default ports and fragments dropped, tracking query parameters removed,
// trailing slash trimmed from non-root paths. Idempotent:
// Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", eris.New("discovery: empty url")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", eris.Wrap(err, "discovery: parse url")
	}
	if u.Host == "" {
		return "", eris.Errorf("discovery: url has no host: %s", raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	// Drop default ports.
	if (u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) ||
		(u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) {
		u.Host = u.Host[:strings.LastIndexByte(u.Host, ':')]
	}

	// Strip tracking params, keep the rest in stable (sorted) order.
	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			if trackingParams[key] || strings.HasPrefix(key, "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	// Trailing-slash-insensitive paths, root stays "/".
	if u.Path == "" {
		u.Path = "/"
	} else if u.Path != "/" {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}

	return u.String(), nil
}

// Host returns the lowercased hostname of a URL, or "" if unparseable.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Dedupe removes URLs that normalize to an already-seen value, preserving
// first-appearance order. Unparseable URLs are dropped.
func Dedupe(urls []string) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		n, err := Normalize(raw)
		if err != nil {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
