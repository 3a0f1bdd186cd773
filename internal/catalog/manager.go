package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/diskcache"
	"github.com/sagerenn/lexis/internal/observability"
)

const (
	DefaultFetchTimeout = 30 * time.Second

	maxCatalogSize = 64 << 20
)

type Options struct {
	// CacheDir holds the on-disk cache of remote catalogs.
	CacheDir     string
	Client       *http.Client
	FetchTimeout time.Duration
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// Entry pairs a descriptor with the catalog it was found in. Ids are only
// unique within one catalog.
type Entry struct {
	Source     string     `json:"source"`
	Dictionary Descriptor `json:"dictionary"`
}

type Stats struct {
	TotalCatalogs     int      `json:"total_catalogs"`
	TotalDictionaries int      `json:"total_dictionaries"`
	Languages         []string `json:"languages"`
	Sources           []string `json:"sources"`
}

// Manager keeps loaded catalogs in memory, in load order, and remote ones in
// a disk cache.
type Manager struct {
	mu       sync.RWMutex
	catalogs map[string]*Catalog
	order    []string

	group   singleflight.Group
	cache   *diskcache.Store
	client  *http.Client
	timeout time.Duration
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewManager(opts Options) (*Manager, error) {
	cache, err := diskcache.New(opts.CacheDir)
	if err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	log := opts.Logger
	if log == nil {
		log = observability.Nop()
	}
	log.Info("catalog manager ready", "cache_dir", cache.Dir())
	return &Manager{
		catalogs: make(map[string]*Catalog),
		cache:    cache,
		client:   client,
		timeout:  timeout,
		log:      log,
		metrics:  opts.Metrics,
		now:      time.Now,
	}, nil
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	lower := strings.ToLower(source)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// localPath maps a file:// URL to its path; anything else is already a path.
func localPath(source string) string {
	if !strings.HasPrefix(strings.ToLower(source), "file://") {
		return source
	}
	u, err := url.Parse(source)
	if err != nil || u.Path == "" {
		return source
	}
	return u.Path
}

// Load returns the catalog for source, a file path or http(s) URL. A resident
// catalog is returned as is unless force is set. Remote catalogs are read
// from the disk cache before the network when not forced; a forced refresh
// revalidates with the cached ETag and keeps the cached copy on 304.
func (m *Manager) Load(ctx context.Context, source string, force bool) (*Catalog, error) {
	if !force {
		if c := m.Catalog(source); c != nil {
			m.metrics.ObserveCatalogLoad(observability.OriginMemory)
			return c, nil
		}
	}
	key := "load\x00" + source
	if force {
		key = "refresh\x00" + source
	}
	v, err, _ := m.group.Do(key, func() (any, error) {
		return m.load(ctx, source, force)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Catalog), nil
}

func (m *Manager) load(ctx context.Context, source string, force bool) (*Catalog, error) {
	if !IsRemote(source) {
		content, err := os.ReadFile(localPath(source))
		if err != nil {
			return nil, fmt.Errorf("%w: read catalog %s: %w", dict.ErrSourceUnavailable, source, err)
		}
		doc, err := Parse(content, source)
		if err != nil {
			return nil, err
		}
		m.log.Info("catalog loaded", "source", source, "dictionaries", len(doc.Dictionaries))
		return m.store(newCatalog(source, doc, "", m.now()), observability.OriginFile), nil
	}

	if !force {
		if doc, meta, ok := m.cached(source); ok {
			m.log.Debug("catalog loaded from cache", "source", source)
			return m.store(newCatalog(source, doc, meta.ETag, m.now()), observability.OriginDisk), nil
		}
	}

	var etag string
	if force {
		if meta, ok, err := m.cache.Meta(source); err == nil && ok {
			etag = meta.ETag
		}
	}
	content, newTag, err := m.fetch(ctx, source, etag)
	if errors.Is(err, errNotModified) {
		if doc, meta, ok := m.cached(source); ok {
			m.log.Info("catalog not modified", "source", source)
			if err := m.cache.Save(source, doc, meta.ETag); err != nil {
				m.log.Warn("catalog cache touch failed", "source", source, "err", err)
			}
			return m.store(newCatalog(source, doc, meta.ETag, m.now()), observability.OriginDisk), nil
		}
		content, newTag, err = m.fetch(ctx, source, "")
	}
	if err != nil {
		return nil, err
	}
	doc, err := Parse(content, source)
	if err != nil {
		return nil, err
	}
	if err := m.cache.Save(source, doc, newTag); err != nil {
		m.log.Warn("catalog cache write failed", "source", source, "err", err)
	}
	m.log.Info("catalog downloaded", "source", source, "bytes", len(content), "dictionaries", len(doc.Dictionaries))
	return m.store(newCatalog(source, doc, newTag, m.now()), observability.OriginNetwork), nil
}

func (m *Manager) cached(source string) (*Document, diskcache.Meta, bool) {
	var doc Document
	meta, ok, err := m.cache.Load(source, &doc)
	if err != nil {
		m.log.Warn("catalog cache unreadable", "source", source, "err", err)
		return nil, diskcache.Meta{}, false
	}
	if !ok {
		return nil, diskcache.Meta{}, false
	}
	return &doc, meta, true
}

var errNotModified = errors.New("not modified")

func (m *Manager) fetch(ctx context.Context, source, etag string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", dict.ErrNetwork, source, err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	m.log.Info("downloading catalog", "source", source)
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: fetch %s: %w", dict.ErrNetwork, source, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotModified && etag != "":
		return nil, "", errNotModified
	case resp.StatusCode != http.StatusOK:
		return nil, "", fmt.Errorf("%w: fetch %s: status %s", dict.ErrNetwork, source, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read %s: %w", dict.ErrNetwork, source, err)
	}
	if len(body) > maxCatalogSize {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", dict.ErrFormat, source, maxCatalogSize)
	}
	return body, resp.Header.Get("ETag"), nil
}

func (m *Manager) store(c *Catalog, origin string) *Catalog {
	m.mu.Lock()
	if _, ok := m.catalogs[c.Source]; !ok {
		m.order = append(m.order, c.Source)
	}
	m.catalogs[c.Source] = c
	m.mu.Unlock()
	m.metrics.ObserveCatalogLoad(origin)
	return c
}

// Unload drops the in-memory catalog and keeps its disk cache.
func (m *Manager) Unload(source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalogs[source]; !ok {
		return false
	}
	delete(m.catalogs, source)
	for i, s := range m.order {
		if s == source {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.log.Info("catalog unloaded", "source", source)
	return true
}

// ClearCache removes the disk cache entry for source, or the whole cache when
// source is empty. Resident catalogs are untouched.
func (m *Manager) ClearCache(source string) error {
	if source == "" {
		if err := m.cache.Clear(); err != nil {
			return fmt.Errorf("clear catalog cache: %w", err)
		}
		m.log.Info("catalog cache cleared")
		return nil
	}
	if err := m.cache.Remove(source); err != nil {
		return fmt.Errorf("clear catalog cache for %s: %w", source, err)
	}
	m.log.Info("catalog cache cleared", "source", source)
	return nil
}

// Export writes a loaded catalog to path in the native JSON shape.
func (m *Manager) Export(source, path string) error {
	c := m.Catalog(source)
	if c == nil {
		return fmt.Errorf("%w: catalog %s is not loaded", dict.ErrNotFound, source)
	}
	data, err := json.MarshalIndent(c.document(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("export catalog: %w", err)
	}
	m.log.Info("catalog exported", "source", source, "path", path)
	return nil
}

// Catalog returns the resident catalog for source, or nil.
func (m *Manager) Catalog(source string) *Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalogs[source]
}

// Catalogs returns the resident catalogs in load order.
func (m *Manager) Catalogs() []*Catalog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Catalog, 0, len(m.order))
	for _, s := range m.order {
		out = append(out, m.catalogs[s])
	}
	return out
}

func (m *Manager) collect(keep func(Descriptor) bool) []Entry {
	var out []Entry
	for _, c := range m.Catalogs() {
		for _, d := range c.Dictionaries {
			if keep(d) {
				out = append(out, Entry{Source: c.Source, Dictionary: d})
			}
		}
	}
	return out
}

func (m *Manager) Dictionaries() []Entry {
	return m.collect(func(Descriptor) bool { return true })
}

// Dictionary returns the first descriptor with id across resident catalogs.
func (m *Manager) Dictionary(id string) (Descriptor, bool) {
	e, ok := m.FindDictionary(id)
	return e.Dictionary, ok
}

// FindDictionary is Dictionary with the catalog source attached.
func (m *Manager) FindDictionary(id string) (Entry, bool) {
	for _, c := range m.Catalogs() {
		if d, ok := c.Dictionary(id); ok {
			return Entry{Source: c.Source, Dictionary: d}, true
		}
	}
	return Entry{}, false
}

func (m *Manager) ByLanguage(lang string) []Entry {
	return m.collect(func(d Descriptor) bool { return d.Lang == lang })
}

func (m *Manager) ByType(typ string) []Entry {
	return m.collect(func(d Descriptor) bool { return d.Type == typ })
}

// Languages returns the sorted languages of all resident catalogs.
func (m *Manager) Languages() []string {
	seen := make(map[string]struct{})
	for _, c := range m.Catalogs() {
		for _, d := range c.Dictionaries {
			seen[d.Lang] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func (m *Manager) Statistics() Stats {
	cats := m.Catalogs()
	st := Stats{TotalCatalogs: len(cats), Languages: m.Languages(), Sources: make([]string, 0, len(cats))}
	for _, c := range cats {
		st.TotalDictionaries += len(c.Dictionaries)
		st.Sources = append(st.Sources, c.Source)
	}
	return st
}
