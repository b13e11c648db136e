// Package fetcher fetches prospect pages with SSRF guards, a wall-clock
// timeout, and a response-size ceiling.
package fetcher

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Page is a fetched page: raw HTML plus a plaintext rendering.
type Page struct {
	URL        string
	Title      string
	HTML       string
	Text       string
	StatusCode int
}

// Options configures the fetcher.
type Options struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	UserAgent    string

	// AllowPrivateHosts disables the SSRF host guard. Local testing only.
	AllowPrivateHosts bool
}

// Client fetches pages over http(s) only, refusing private and loopback
// hosts, with a per-host rate limiter.
type Client struct {
	http *http.Client
	opts Options

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Client with the given options, applying defaults for
// anything unset.
func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodyBytes == 0 {
		opts.MaxBodyBytes = 2 * 1024 * 1024
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "Mozilla/5.0 (compatible; ProspectBot/1.0)"
	}
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: opts.Timeout,
				}).DialContext,
				TLSHandshakeTimeout: opts.Timeout,
				MaxIdleConnsPerHost: 10,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiterFor returns the rate limiter for a host, creating it on first use.
func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(5, 5)
		c.limiters[host] = lim
	}
	return lim
}

// Fetch downloads a page. It errors on non-http(s) schemes, blocked hosts,
// statuses >= 400, and bodies over the size ceiling.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: parse url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, eris.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if !c.opts.AllowPrivateHosts && blockedHost(u.Hostname()) {
		return nil, eris.Errorf("fetch: blocked host %q", u.Hostname())
	}

	if err := c.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limiter wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("fetch: status %d from %s", resp.StatusCode, rawURL)
	}

	// Read one byte past the cap to distinguish "at cap" from "over cap".
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "fetch: read body")
	}
	if int64(len(body)) > c.opts.MaxBodyBytes {
		return nil, eris.Errorf("fetch: body exceeds %d bytes from %s", c.opts.MaxBodyBytes, rawURL)
	}

	html := string(body)
	return &Page{
		URL:        rawURL,
		Title:      ExtractTitle(body),
		HTML:       html,
		Text:       StripHTML(html),
		StatusCode: resp.StatusCode,
	}, nil
}

// blockedHost reports whether the hostname points at loopback, private, or
// link-local space. Literal IPs are checked directly; a handful of internal
// hostname patterns are refused outright.
func blockedHost(host string) bool {
	if host == "" {
		return true
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") ||
		strings.HasSuffix(lower, ".local") || strings.HasSuffix(lower, ".internal") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() || ip.IsUnspecified()
	}
	return false
}

var titleRe = regexp.MustCompile(`(?i)<title[^>]*>(.*?)</title>`)

// ExtractTitle pulls the <title> from HTML.
func ExtractTitle(body []byte) string {
	m := titleRe.FindSubmatch(body)
	if len(m) > 1 {
		return strings.TrimSpace(string(m[1]))
	}
	return ""
}

// StripHTML removes scripts/styles/nav/footer, strips tags, decodes common
// entities, and collapses whitespace into plaintext suitable for analysis.
func StripHTML(html string) string {
	for _, tag := range []string{"script", "style", "nav", "footer"} {
		re := regexp.MustCompile(`(?is)<` + tag + `[^>]*>.*?</` + tag + `>`)
		html = re.ReplaceAllString(html, "")
	}

	tagRe := regexp.MustCompile(`<[^>]+>`)
	html = tagRe.ReplaceAllString(html, " ")

	r := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
	html = r.Replace(html)

	spaceRe := regexp.MustCompile(`[ \t]+`)
	html = spaceRe.ReplaceAllString(html, " ")

	nlRe := regexp.MustCompile(`\n{3,}`)
	html = nlRe.ReplaceAllString(html, "\n\n")

	return strings.TrimSpace(html)
}
