// Package service runs searches across the open dictionaries and resolves
// entries to content.
//
// Every search may carry a token obtained from NextToken. Issuing a token
// makes all searches with older tokens stale: they stop at the next check
// and report Current=false with no entries. Tokens are only ever issued
// here, so callers cannot move the current token backwards or past the
// counter. Token 0 is untracked and only honours context cancellation.
package service

import (
	"context"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/sagerenn/lexis/internal/cache"
	"github.com/sagerenn/lexis/internal/dict/registry"
	"github.com/sagerenn/lexis/internal/observability"
)

const (
	DefaultLimit = 100
	MaxLimit     = 10000

	termCacheSize = 4096
)

// Sources is the part of the registry the service reads.
type Sources interface {
	Sources() []registry.Live
	Get(id string) (registry.Live, bool)
	Subscribe(registry.Observer) *registry.Subscription
}

type Options struct {
	DefaultLimit int
	MaxLimit     int
	// Workers bounds concurrent search and resolve calls.
	Workers int
	// Parallelism bounds the per-search fan-out across dictionaries.
	Parallelism int
	Logger      *observability.Logger
	Metrics     *observability.Metrics
}

type Service struct {
	src     Sources
	issued  atomic.Uint64
	current atomic.Uint64
	pool    *semaphore.Weighted
	terms   *cache.Cache[termKey, int]
	sub     *registry.Subscription

	defaultLimit int
	maxLimit     int
	parallelism  int
	log          *observability.Logger
	metrics      *observability.Metrics
}

type termKey struct {
	dictID string
	term   string
}

func New(src Sources, opts Options) *Service {
	s := &Service{
		src:          src,
		terms:        cache.New[termKey, int](termCacheSize, 0),
		defaultLimit: opts.DefaultLimit,
		maxLimit:     opts.MaxLimit,
		parallelism:  opts.Parallelism,
		log:          opts.Logger,
		metrics:      opts.Metrics,
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = DefaultLimit
	}
	if s.maxLimit <= 0 {
		s.maxLimit = MaxLimit
	}
	if s.parallelism <= 0 {
		s.parallelism = 4
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	s.pool = semaphore.NewWeighted(int64(workers))
	if s.log == nil {
		s.log = observability.Nop()
	}
	s.sub = src.Subscribe(registry.ObserverFunc(func(registry.ChangeEvent) {
		s.terms.Purge()
	}))
	return s
}

// Close stops listening to registry changes.
func (s *Service) Close() {
	s.sub.Unsubscribe()
}

// NextToken issues a new, strictly increasing search token and records it
// as current, superseding every search holding an older one.
func (s *Service) NextToken() uint64 {
	t := s.issued.Add(1)
	s.advance(t)
	return t
}

// advance records token as current unless a newer one already is.
func (s *Service) advance(token uint64) {
	if token == 0 {
		return
	}
	for {
		cur := s.current.Load()
		if cur >= token || s.current.CompareAndSwap(cur, token) {
			return
		}
	}
}

// IsCurrent reports whether token is still the newest recorded token. Token
// 0 is always current.
func (s *Service) IsCurrent(token uint64) bool {
	return token == 0 || s.current.Load() == token
}

// Limits returns the default and maximum search limits.
func (s *Service) Limits() (def, max int) {
	return s.defaultLimit, s.maxLimit
}

// Sources lists the dictionaries open for search.
func (s *Service) Sources() []registry.Live {
	return s.src.Sources()
}

// Select narrows the snapshot to the named dictionaries. Names match
// the embedded id, the installed id or the display name.
func (s *Service) Select(names []string) []registry.Live {
	all := s.src.Sources()
	var want []string
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			want = append(want, n)
		}
	}
	if len(want) == 0 {
		return all
	}
	out := make([]registry.Live, 0, len(want))
	for _, l := range all {
		for _, n := range want {
			if n == l.ID || n == l.InstalledID || strings.EqualFold(n, l.DisplayName) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

func (s *Service) acquire(ctx context.Context) error {
	return s.pool.Acquire(ctx, 1)
}

func (s *Service) release() {
	s.pool.Release(1)
}
