package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/registry"
	"github.com/sagerenn/lexis/internal/observability"
)

var errStale = errors.New("search superseded")

type Query struct {
	Text  string
	Limit int
	// Token comes from NextToken, or is 0 for an untracked search.
	Token uint64
	// Dictionaries restricts the search to these ids or names.
	Dictionaries []string
}

// Result of a search. Entries is nil whenever Current is false and must not
// be shown.
type Result struct {
	Entries []dict.DictEntry
	Current bool
}

// Search fans q out over the open dictionaries, merges the hits, sorts them
// by case-folded term keeping dictionary order for ties, and truncates to the
// limit. Per-dictionary failures are logged and skipped.
func (s *Service) Search(ctx context.Context, q Query) Result {
	start := time.Now()
	s.advance(q.Token)
	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	if err := s.acquire(ctx); err != nil {
		s.metrics.ObserveSearch(observability.SearchStale, time.Since(start))
		return Result{}
	}
	defer s.release()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	stale := func() bool {
		return gctx.Err() != nil || !s.IsCurrent(q.Token)
	}

	sources := s.Select(q.Dictionaries)
	hits := make([][]dict.DictEntry, len(sources))
	if q.Text != "" {
		for i, src := range sources {
			g.Go(func() error {
				if stale() {
					return errStale
				}
				found, err := scan(src, q.Text, limit, stale)
				if errors.Is(err, errStale) {
					return err
				}
				if err != nil {
					s.log.Warn("search dictionary", "id", src.ID, "query", q.Text, "error", err)
					return nil
				}
				hits[i] = found
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil || ctx.Err() != nil || !s.IsCurrent(q.Token) {
		s.metrics.ObserveSearch(observability.SearchStale, time.Since(start))
		return Result{}
	}

	entries := merge(hits, limit)
	if ctx.Err() != nil || !s.IsCurrent(q.Token) {
		s.metrics.ObserveSearch(observability.SearchStale, time.Since(start))
		return Result{}
	}
	outcome := observability.SearchOK
	if len(entries) == 0 {
		outcome = observability.SearchEmpty
	}
	s.metrics.ObserveSearch(outcome, time.Since(start))
	return Result{Entries: entries, Current: true}
}

// SearchAsync runs Search in the background. The channel receives the result
// only if it is still current and is closed afterwards.
func (s *Service) SearchAsync(ctx context.Context, q Query) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		if r := s.Search(ctx, q); r.Current {
			out <- r
		}
	}()
	return out
}

// scan collects up to limit prefix hits from one dictionary, checking stale
// before every hit.
func scan(src registry.Live, query string, limit int, stale func() bool) ([]dict.DictEntry, error) {
	var (
		out       []dict.DictEntry
		cancelled bool
	)
	err := src.Handle.FindPrefix(query, func(_ int, b dict.Blob) bool {
		if stale() {
			cancelled = true
			return false
		}
		out = append(out, dict.DictEntry{
			DictID:   src.ID,
			DictName: src.DisplayName,
			TermID:   b.ID,
			Term:     b.Key,
		})
		return len(out) < limit
	})
	if cancelled {
		return nil, errStale
	}
	return out, err
}

func merge(hits [][]dict.DictEntry, limit int) []dict.DictEntry {
	type keyed struct {
		folded string
		entry  dict.DictEntry
	}
	var all []keyed
	for _, h := range hits {
		for _, e := range h {
			all = append(all, keyed{folded: dict.Fold(e.Term), entry: e})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].folded < all[j].folded
	})
	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]dict.DictEntry, len(all))
	for i, k := range all {
		out[i] = k.entry
	}
	return out
}
