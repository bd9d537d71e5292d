package recommend

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/justestif/go-moodtunes/internal/mood"
)

// pendingSuggestions holds the in-flight activity and relaxation lookups.
type pendingSuggestions struct {
	f           *Fetcher
	g           errgroup.Group
	activities  []string
	relaxations []string
}

// startSuggestions looks up both suggestion lists concurrently with the
// track fetch. Failures are logged and fall back on wait.
func (f *Fetcher) startSuggestions(ctx context.Context, m mood.Label) *pendingSuggestions {
	p := &pendingSuggestions{f: f}
	if f.suggestions == nil {
		return p
	}

	p.g.Go(func() error {
		items, err := f.suggestions.Activities(ctx, string(m))
		if err != nil {
			f.logger.Warn("activity suggestion unavailable", "mood", m, "error", err)
			return nil
		}
		p.activities = items
		return nil
	})
	p.g.Go(func() error {
		items, err := f.suggestions.Relaxations(ctx, string(m))
		if err != nil {
			f.logger.Warn("relaxation suggestion unavailable", "mood", m, "error", err)
			return nil
		}
		p.relaxations = items
		return nil
	})
	return p
}

// wait blocks for both lookups and picks one entry from each.
func (p *pendingSuggestions) wait() (activity, relaxation string) {
	_ = p.g.Wait()
	return p.f.choose(p.activities, FallbackActivity), p.f.choose(p.relaxations, FallbackRelaxation)
}

func (f *Fetcher) choose(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	f.rngMu.Lock()
	defer f.rngMu.Unlock()
	return items[f.rng.IntN(len(items))]
}
