package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/registry"
)

type fakeHandle struct {
	id      string
	blobs   []dict.Blob
	findErr error
	onYield func()
}

func newHandle(id string, keys ...string) *fakeHandle {
	h := &fakeHandle{id: id}
	for i, k := range keys {
		h.blobs = append(h.blobs, dict.Blob{ID: i, Key: k, ContentType: dict.ContentTypeHTML, Content: []byte("<p>" + k + "</p>")})
	}
	return h
}

func (h *fakeHandle) ID() string              { return h.id }
func (h *fakeHandle) Tags() map[string]string { return nil }
func (h *fakeHandle) EntryCount() int         { return len(h.blobs) }
func (h *fakeHandle) Close() error            { return nil }

func (h *fakeHandle) FindPrefix(q string, yield func(int, dict.Blob) bool) error {
	if h.findErr != nil {
		return h.findErr
	}
	sorted := append([]dict.Blob(nil), h.blobs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		fi, fj := dict.Fold(sorted[i].Key), dict.Fold(sorted[j].Key)
		if fi != fj {
			return fi < fj
		}
		return sorted[i].ID < sorted[j].ID
	})
	prefix := dict.Fold(q)
	n := 0
	for _, b := range sorted {
		if !strings.HasPrefix(dict.Fold(b.Key), prefix) {
			continue
		}
		if h.onYield != nil {
			h.onYield()
		}
		if !yield(n, b) {
			return nil
		}
		n++
	}
	return nil
}

func (h *fakeHandle) GetByID(id int) (dict.Blob, error) {
	for _, b := range h.blobs {
		if b.ID == id {
			return b, nil
		}
	}
	return dict.Blob{}, dict.ErrNotFound
}

type fakeSources struct {
	mu   sync.Mutex
	live []registry.Live
	obs  []registry.Observer
}

func (f *fakeSources) Sources() []registry.Live {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]registry.Live(nil), f.live...)
}

func (f *fakeSources) Get(id string) (registry.Live, bool) {
	for _, l := range f.Sources() {
		if l.ID == id {
			return l, true
		}
	}
	return registry.Live{}, false
}

func (f *fakeSources) Subscribe(o registry.Observer) *registry.Subscription {
	f.obs = append(f.obs, o)
	return &registry.Subscription{}
}

func (f *fakeSources) fire() {
	for _, o := range f.obs {
		o.DictionariesChanged(registry.ChangeEvent{})
	}
}

func live(name string, h *fakeHandle) registry.Live {
	return registry.Live{
		Source: registry.Source{ID: h.id, InstalledID: h.id + ".lexd", DisplayName: name, Enabled: true},
		Handle: h,
	}
}

func newService(t *testing.T, handles ...registry.Live) (*Service, *fakeSources) {
	t.Helper()
	src := &fakeSources{live: handles}
	s := New(src, Options{})
	t.Cleanup(s.Close)
	return s, src
}

func terms(entries []dict.DictEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Term + "@" + e.DictName
	}
	return out
}

func TestSearchMergesAcrossSources(t *testing.T) {
	s, _ := newService(t,
		live("A", newHandle("a", "cat", "catalog", "dog")),
		live("B", newHandle("b", "category")),
	)
	res := s.Search(context.Background(), Query{Text: "cat", Limit: 10})
	require.True(t, res.Current)
	assert.Equal(t, []string{"cat@A", "catalog@A", "category@B"}, terms(res.Entries))
	assert.Equal(t, 0, res.Entries[0].TermID)
	assert.Equal(t, "a", res.Entries[0].DictID)
}

func TestSearchStableTies(t *testing.T) {
	s, _ := newService(t,
		live("A", newHandle("a", "Cat")),
		live("B", newHandle("b", "cat")),
		live("C", newHandle("c", "CAT", "ca")),
	)
	res := s.Search(context.Background(), Query{Text: "ca", Limit: 10})
	require.True(t, res.Current)
	assert.Equal(t, []string{"ca@C", "Cat@A", "cat@B", "CAT@C"}, terms(res.Entries))
}

func TestSearchTruncates(t *testing.T) {
	s, _ := newService(t,
		live("A", newHandle("a", "b1", "b2", "b3")),
		live("B", newHandle("b", "b0", "b4")),
	)
	for limit := 1; limit <= 6; limit++ {
		res := s.Search(context.Background(), Query{Text: "b", Limit: limit})
		assert.LessOrEqual(t, len(res.Entries), limit)
	}
	res := s.Search(context.Background(), Query{Text: "b", Limit: 3})
	assert.Equal(t, []string{"b0@B", "b1@A", "b2@A"}, terms(res.Entries))
}

func TestSearchSupersededIsSuppressed(t *testing.T) {
	h := newHandle("a", "cat", "catalog", "category")
	s, _ := newService(t, live("A", h))

	old := s.NextToken()
	newer := s.NextToken()
	h.onYield = func() { s.advance(newer) }

	res := s.Search(context.Background(), Query{Text: "cat", Limit: 10, Token: old})
	assert.False(t, res.Current)
	assert.Nil(t, res.Entries)

	h.onYield = nil
	res = s.Search(context.Background(), Query{Text: "cat", Limit: 10, Token: newer})
	assert.True(t, res.Current)
	assert.Len(t, res.Entries, 3)
}

func TestOlderTokenNeverWins(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "cat")))
	t1, t2 := s.NextToken(), s.NextToken()
	s.advance(t2)
	s.advance(t1)
	assert.True(t, s.IsCurrent(t2))
	assert.False(t, s.IsCurrent(t1))

	res := s.Search(context.Background(), Query{Text: "cat", Token: t1})
	assert.False(t, res.Current)
	assert.True(t, s.IsCurrent(t2))
}

func TestNextTokenSupersedes(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "cat")))
	t1 := s.NextToken()
	assert.True(t, s.IsCurrent(t1))

	t2 := s.NextToken()
	assert.Greater(t, t2, t1)
	assert.False(t, s.IsCurrent(t1))
	assert.True(t, s.IsCurrent(t2))

	res := s.Search(context.Background(), Query{Text: "cat", Token: t1})
	assert.False(t, res.Current)
	res = s.Search(context.Background(), Query{Text: "cat", Token: t2})
	assert.True(t, res.Current)
}

func TestUntrackedSearch(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "cat")))
	s.advance(s.NextToken())
	res := s.Search(context.Background(), Query{Text: "cat"})
	assert.True(t, res.Current)
	assert.Len(t, res.Entries, 1)
}

func TestSearchCancelledContext(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "cat")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := s.Search(ctx, Query{Text: "cat"})
	assert.False(t, res.Current)
	assert.Nil(t, res.Entries)
}

func TestSearchSkipsFailingSource(t *testing.T) {
	bad := newHandle("bad", "cat")
	bad.findErr = errors.New("disk on fire")
	s, _ := newService(t, live("Bad", bad), live("A", newHandle("a", "cat")))
	res := s.Search(context.Background(), Query{Text: "cat"})
	require.True(t, res.Current)
	assert.Equal(t, []string{"cat@A"}, terms(res.Entries))
}

func TestSearchDictionaryFilter(t *testing.T) {
	s, _ := newService(t,
		live("English", newHandle("a", "cat")),
		live("French", newHandle("b", "cat")),
	)
	res := s.Search(context.Background(), Query{Text: "cat", Dictionaries: []string{"french"}})
	assert.Equal(t, []string{"cat@French"}, terms(res.Entries))
	res = s.Search(context.Background(), Query{Text: "cat", Dictionaries: []string{"a", "b.lexd"}})
	assert.Len(t, res.Entries, 2)
	res = s.Search(context.Background(), Query{Text: "cat", Dictionaries: []string{"nope"}})
	assert.True(t, res.Current)
	assert.Empty(t, res.Entries)
}

func TestSearchAsync(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "cat")))
	r, ok := <-s.SearchAsync(context.Background(), Query{Text: "cat", Token: s.NextToken()})
	require.True(t, ok)
	assert.Len(t, r.Entries, 1)

	h := newHandle("b", "dog")
	s2, _ := newService(t, live("B", h))
	stale := s2.NextToken()
	newer := s2.NextToken()
	h.onYield = func() { s2.advance(newer) }
	_, ok = <-s2.SearchAsync(context.Background(), Query{Text: "dog", Token: stale})
	assert.False(t, ok)
}

func TestResolveByID(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "cat", "dog")))
	c, err := s.Resolve(context.Background(), ByID("a", "dog", 1))
	require.NoError(t, err)
	assert.Equal(t, "dog", c.Term)
	assert.Equal(t, "A", c.DictName)
	assert.Equal(t, "<p>dog</p>", string(c.Content))
	assert.Equal(t, dict.Rich, c.Kind())

	_, err = s.Resolve(context.Background(), ByID("a", "x", 9))
	assert.ErrorIs(t, err, dict.ErrNotFound)
	_, err = s.Resolve(context.Background(), ByID("missing", "x", 0))
	assert.ErrorIs(t, err, dict.ErrNotFound)
}

func TestResolveByTerm(t *testing.T) {
	cases := []struct {
		name   string
		keys   []string
		term   string
		want   string
		wantID int
	}{
		{name: "exact", keys: []string{"catalog", "cat"}, term: "cat", want: "cat", wantID: 1},
		{name: "exact after case variant", keys: []string{"CAT", "cat"}, term: "cat", want: "cat", wantID: 1},
		{name: "not longer fallback", keys: []string{"Cat", "cats"}, term: "cat", want: "Cat", wantID: 0},
		{name: "only longer", keys: []string{"cats", "catalog"}, term: "cat", want: ""},
		{name: "no hits", keys: []string{"dog"}, term: "cat", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newService(t, live("A", newHandle("a", tc.keys...)))
			c, err := s.Resolve(context.Background(), ByTerm("a", tc.term))
			if tc.want == "" {
				assert.ErrorIs(t, err, dict.ErrNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, c.Term)
			assert.Equal(t, tc.wantID, c.TermID)
		})
	}
}

func TestResolveAgreesWithID(t *testing.T) {
	s, _ := newService(t, live("A", newHandle("a", "apple", "apricot", "banana")))
	byID, err := s.Resolve(context.Background(), ByID("a", "apricot", 1))
	require.NoError(t, err)
	byTerm, err := s.Resolve(context.Background(), ByTerm("a", "apricot"))
	require.NoError(t, err)
	assert.Equal(t, byID, byTerm)
}

func TestResolveTermCachePurgedOnChange(t *testing.T) {
	s, src := newService(t, live("A", newHandle("a", "cat")))
	_, err := s.Resolve(context.Background(), ByTerm("a", "cat"))
	require.NoError(t, err)
	assert.Equal(t, 1, s.terms.Len())
	src.fire()
	assert.Equal(t, 0, s.terms.Len())
}
