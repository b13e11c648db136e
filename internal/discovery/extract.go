package discovery

import (
	"net/url"
	"regexp"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `\)\]]+`)

// ExtractFromText pulls all well-formed http(s) URLs out of free text,
// deduplicated by normalized form, in order of first appearance. No ranking
// is applied in text mode.
func ExtractFromText(text string) []string {
	matches := urlRe.FindAllString(text, -1)
	cleaned := make([]string, 0, len(matches))
	for _, m := range matches {
		// Trim trailing punctuation that the regexp swallows from prose.
		m = strings.TrimRight(m, ".,;:!?")
		cleaned = append(cleaned, m)
	}
	return Dedupe(cleaned)
}

// ExtractLinks walks href attributes in HTML, resolves them against the
// page's base URL, and returns absolute http(s) URLs deduplicated in
// document order. Anchors, javascript: and mailto: links are skipped.
func ExtractLinks(html string, base *url.URL) []string {
	var links []string
	seen := make(map[string]bool)

	idx := 0
	for {
		pos := strings.Index(html[idx:], `href="`)
		if pos == -1 {
			break
		}
		idx += pos + 6

		end := strings.Index(html[idx:], `"`)
		if end == -1 {
			break
		}
		href := html[idx : idx+end]
		idx += end + 1

		if href == "" || strings.HasPrefix(href, "#") ||
			strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			continue
		}

		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		absolute := base.ResolveReference(ref)
		if absolute.Scheme != "http" && absolute.Scheme != "https" {
			continue
		}
		absolute.Fragment = ""

		resolved := absolute.String()
		if !seen[resolved] {
			seen[resolved] = true
			links = append(links, resolved)
		}
	}

	return links
}

// SplitByHost partitions candidate URLs into same-host (internal) and
// different-host (external) sets relative to the source host.
func SplitByHost(urls []string, sourceHost string) (internal, external []string) {
	sourceHost = strings.ToLower(sourceHost)
	for _, u := range urls {
		if Host(u) == sourceHost {
			internal = append(internal, u)
		} else {
			external = append(external, u)
		}
	}
	return internal, external
}
