package discovery

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainreach/prospect-cli/internal/fetcher"
)

// PageFetcher is the fetch collaborator the scanner needs.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Page, error)
}

// Scanner extracts and ranks candidate project URLs from pages.
type Scanner struct {
	fetcher       PageFetcher
	detailPageCap int
	fetchParallel int
}

// NewScanner creates a Scanner. detailPageCap bounds how many same-host
// detail pages an aggregator scan will fetch; fetchParallel bounds the
// concurrent fetches.
func NewScanner(f PageFetcher, detailPageCap, fetchParallel int) *Scanner {
	if detailPageCap <= 0 {
		detailPageCap = 15
	}
	if fetchParallel <= 0 {
		fetchParallel = 5
	}
	return &Scanner{fetcher: f, detailPageCap: detailPageCap, fetchParallel: fetchParallel}
}

// FromPage fetches a source page and returns ranked, deduplicated candidate
// URLs. Aggregator pages get two-stage extraction: same-host detail pages
// are fetched (bounded, settle-independently) and their external links
// unioned with the listing page's own external links.
//
// The result is never empty: fetch failures and zero-candidate pages fall
// back to the source URL itself.
func (s *Scanner) FromPage(ctx context.Context, sourceURL string) []string {
	normalized, err := Normalize(sourceURL)
	if err != nil {
		zap.L().Warn("scan: bad source url", zap.String("url", sourceURL), zap.Error(err))
		return nil
	}

	page, err := s.fetcher.Fetch(ctx, normalized)
	if err != nil {
		zap.L().Warn("scan: source fetch failed, falling back to source url",
			zap.String("url", normalized),
			zap.Error(err),
		)
		return []string{normalized}
	}

	base, err := url.Parse(normalized)
	if err != nil {
		return []string{normalized}
	}
	sourceHost := base.Hostname()

	links := ExtractLinks(page.HTML, base)
	internal, external := SplitByHost(links, sourceHost)

	candidates := external
	if IsAggregatorHost(sourceHost) && len(internal) > 0 {
		detail := s.expandDetailPages(ctx, internal, sourceHost)
		candidates = append(candidates, detail...)
	}

	candidates = Dedupe(candidates)
	// Never surface the source page as its own candidate.
	candidates = without(candidates, normalized)

	if len(candidates) == 0 {
		zap.L().Info("scan: no candidates extracted, falling back to source url",
			zap.String("url", normalized),
		)
		return []string{normalized}
	}

	return RankCandidates(candidates, sourceHost)
}

// expandDetailPages fetches up to detailPageCap same-host detail pages and
// collects links pointing off the source host. Each fetch settles
// independently; failures are logged and skipped.
func (s *Scanner) expandDetailPages(ctx context.Context, internal []string, sourceHost string) []string {
	if len(internal) > s.detailPageCap {
		internal = internal[:s.detailPageCap]
	}

	var (
		mu    sync.Mutex
		found []string
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchParallel)

	for _, detailURL := range internal {
		g.Go(func() error {
			page, err := s.fetcher.Fetch(gCtx, detailURL)
			if err != nil {
				zap.L().Debug("scan: detail page fetch failed",
					zap.String("url", detailURL),
					zap.Error(err),
				)
				return nil
			}

			base, err := url.Parse(detailURL)
			if err != nil {
				return nil
			}

			_, external := SplitByHost(ExtractLinks(page.HTML, base), sourceHost)
			if len(external) == 0 {
				return nil
			}

			mu.Lock()
			found = append(found, external...)
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return found
}

func without(urls []string, drop string) []string {
	out := urls[:0]
	for _, u := range urls {
		if u != drop {
			out = append(out, u)
		}
	}
	return out
}
