// Package contact holds contact dedup matching and merge policy.
package contact

import (
	"strings"

	"github.com/chainreach/prospect-cli/internal/model"
)

// Handles carries the social identifiers usable for dedup. Name alone never
// dedupes.
type Handles struct {
	Email         string
	LinkedinURL   string
	TwitterHandle string
	Telegram      string
}

// DedupFilter describes "same project AND any supplied handle matches" for
// the store to evaluate. Empty fields are not matched. Comparison is exact
// string equality; callers normalize handles first (see NormalizeHandles).
type DedupFilter struct {
	ProjectID     string
	Email         string
	LinkedinURL   string
	TwitterHandle string
	Telegram      string
}

// BuildDedupFilter returns the dedup filter for a new contact, or nil when
// every handle is empty.
func BuildDedupFilter(projectID string, h Handles) *DedupFilter {
	if h.Email == "" && h.LinkedinURL == "" && h.TwitterHandle == "" && h.Telegram == "" {
		return nil
	}
	return &DedupFilter{
		ProjectID:     projectID,
		Email:         h.Email,
		LinkedinURL:   h.LinkedinURL,
		TwitterHandle: h.TwitterHandle,
		Telegram:      h.Telegram,
	}
}

// Matches evaluates the filter against a contact in memory. The store's SQL
// translation must agree with this.
func (f *DedupFilter) Matches(c model.Contact) bool {
	if c.ProjectID != f.ProjectID {
		return false
	}
	if f.Email != "" && c.Email == f.Email {
		return true
	}
	if f.LinkedinURL != "" && c.LinkedinURL == f.LinkedinURL {
		return true
	}
	if f.TwitterHandle != "" && c.TwitterHandle == f.TwitterHandle {
		return true
	}
	if f.Telegram != "" && c.Telegram == f.Telegram {
		return true
	}
	return false
}

// NormalizeHandles applies the canonical prefixes so equality comparisons
// line up: "@handle" for twitter/telegram, "https://" for linkedin URLs,
// lowercased email.
func NormalizeHandles(h Handles) Handles {
	out := Handles{
		Email:         strings.ToLower(strings.TrimSpace(h.Email)),
		LinkedinURL:   strings.TrimSpace(h.LinkedinURL),
		TwitterHandle: strings.TrimSpace(h.TwitterHandle),
		Telegram:      strings.TrimSpace(h.Telegram),
	}
	if out.LinkedinURL != "" && !strings.HasPrefix(out.LinkedinURL, "http://") && !strings.HasPrefix(out.LinkedinURL, "https://") {
		out.LinkedinURL = "https://" + out.LinkedinURL
	}
	if out.TwitterHandle != "" && !strings.HasPrefix(out.TwitterHandle, "@") {
		out.TwitterHandle = "@" + out.TwitterHandle
	}
	if out.Telegram != "" && !strings.HasPrefix(out.Telegram, "@") {
		out.Telegram = "@" + out.Telegram
	}
	return out
}

// Merge applies the quick-capture merge policy: fill only empty fields on
// the existing contact, never overwrite a value already present.
func Merge(existing, incoming model.Contact) model.Contact {
	out := existing
	if out.Role == "" {
		out.Role = incoming.Role
	}
	if out.Email == "" {
		out.Email = incoming.Email
	}
	if out.LinkedinURL == "" {
		out.LinkedinURL = incoming.LinkedinURL
	}
	if out.TwitterHandle == "" {
		out.TwitterHandle = incoming.TwitterHandle
	}
	if out.Telegram == "" {
		out.Telegram = incoming.Telegram
	}
	if out.Persona == "" {
		out.Persona = incoming.Persona
	}
	return out
}
