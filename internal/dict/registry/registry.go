// Package registry tracks the installed dictionaries, their persisted enabled
// state and metadata, and the set of handles open for search.
package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sagerenn/lexis/internal/container"
	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/loader"
	"github.com/sagerenn/lexis/internal/observability"
)

const (
	metadataFile = "dictionaries.json"
	dictsDir     = "dictionaries"
)

// Source describes one installed dictionary. InstalledID is the file name
// under the dictionaries directory; ID is the id embedded in the file.
type Source struct {
	InstalledID string            `json:"installed_id"`
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	FilePath    string            `json:"file_path"`
	Enabled     bool              `json:"enabled"`
	Tags        map[string]string `json:"tags,omitempty"`
	EntryCount  int               `json:"entry_count"`
}

// Live is an enabled source together with its open handle.
type Live struct {
	Source
	Handle dict.Handle
}

// Opener opens an installed dictionary file.
type Opener func(path string) (dict.Handle, error)

// OpenContainer is the default Opener.
func OpenContainer(path string) (dict.Handle, error) {
	return container.Open(path)
}

type Options struct {
	// DataDir holds dictionaries.json and the dictionaries directory.
	DataDir   string
	Opener    Opener
	Converter loader.Converter
	Logger    *observability.Logger
	Metrics   *observability.Metrics
}

type Registry struct {
	mu      sync.RWMutex
	records []record
	byID    map[string]Live
	order   []Live

	importMu sync.Mutex

	obsMu     sync.Mutex
	observers map[uint64]Observer
	nextObs   uint64

	dataDir  string
	dictsDir string
	open     Opener
	conv     loader.Converter
	log      *observability.Logger
	metrics  *observability.Metrics
}

func New(opts Options) (*Registry, error) {
	if strings.TrimSpace(opts.DataDir) == "" {
		return nil, errors.New("data dir is empty")
	}
	r := &Registry{
		byID:      make(map[string]Live),
		observers: make(map[uint64]Observer),
		dataDir:   opts.DataDir,
		dictsDir:  filepath.Join(opts.DataDir, dictsDir),
		open:      opts.Opener,
		conv:      opts.Converter,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}
	if r.log == nil {
		r.log = observability.Nop()
	}
	if r.open == nil {
		r.open = OpenContainer
	}
	if r.conv == nil {
		r.conv = loader.New(r.log)
	}
	if err := os.MkdirAll(r.dictsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create dictionaries dir: %w", err)
	}
	r.records = r.loadMetadata()
	return r, nil
}

// DictionariesDir is where installed dictionary files live.
func (r *Registry) DictionariesDir() string {
	return r.dictsDir
}

// List returns the installed dictionaries whose file still exists, in import
// order. Entries for missing files are kept in the metadata but not listed.
func (r *Registry) List() []Source {
	r.mu.RLock()
	recs := append([]record(nil), r.records...)
	r.mu.RUnlock()

	out := make([]Source, 0, len(recs))
	for _, rec := range recs {
		path := r.pathOf(rec.Filename)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		out = append(out, rec.source(path))
	}
	return out
}

// Info returns the stored metadata of one installed dictionary.
func (r *Registry) Info(installedID string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := r.indexOf(installedID)
	if i < 0 {
		return Source{}, false
	}
	rec := r.records[i]
	return rec.source(r.pathOf(rec.Filename)), true
}

// SetEnabled changes only the enabled flag. It returns false for unknown ids.
// The change takes effect for search on the next Reload.
func (r *Registry) SetEnabled(installedID string, enabled bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexOf(installedID)
	if i < 0 {
		return false, nil
	}
	r.records[i].Enabled = enabled
	if err := r.saveMetadataLocked(); err != nil {
		return false, err
	}
	r.log.Info("dictionary state changed", "installed_id", installedID, "enabled", enabled)
	return true, nil
}

// Delete removes the file and its metadata entry. Deleting something that is
// already gone is not an error.
func (r *Registry) Delete(installedID string) error {
	name, err := fileName(installedID)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.order {
		if l.InstalledID == name {
			r.dropLiveLocked(l)
			break
		}
	}
	if err := os.Remove(r.pathOf(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	if i := r.indexOf(name); i >= 0 {
		r.records = append(r.records[:i], r.records[i+1:]...)
		if err := r.saveMetadataLocked(); err != nil {
			return err
		}
	}
	r.log.Info("dictionary deleted", "installed_id", name)
	return nil
}

// Get returns the open source with the embedded id, falling back to the
// installed id.
func (r *Registry) Get(id string) (Live, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.byID[id]; ok {
		return l, true
	}
	for _, l := range r.order {
		if l.InstalledID == id {
			return l, true
		}
	}
	return Live{}, false
}

// Sources is a snapshot of the open sources in import order. The slice is
// not affected by later reloads.
func (r *Registry) Sources() []Live {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Live, len(r.order))
	copy(out, r.order)
	return out
}

// Reload closes every open handle and opens a fresh one for each enabled
// dictionary whose file exists. A dictionary that fails to open is logged
// and skipped. Observers are notified afterwards.
func (r *Registry) Reload() ChangeEvent {
	r.mu.Lock()
	for _, l := range r.order {
		if err := l.Handle.Close(); err != nil {
			r.log.Warn("close dictionary", "id", l.ID, "error", err)
		}
	}
	r.order = nil
	r.byID = make(map[string]Live)

	ev := ChangeEvent{Failed: make(map[string]error)}
	for _, rec := range r.records {
		if !rec.Enabled {
			continue
		}
		path := r.pathOf(rec.Filename)
		if _, err := os.Stat(path); err != nil {
			r.log.Warn("dictionary file missing", "installed_id", rec.Filename, "path", path)
			ev.Failed[rec.Filename] = fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
			continue
		}
		h, err := r.open(path)
		if err != nil {
			r.log.Error("open dictionary", "installed_id", rec.Filename, "error", err)
			ev.Failed[rec.Filename] = err
			continue
		}
		src := rec.source(path)
		if src.ID == "" {
			src.ID = h.ID()
		}
		if _, dup := r.byID[src.ID]; dup {
			r.log.Warn("duplicate dictionary id", "id", src.ID, "installed_id", rec.Filename)
			_ = h.Close()
			ev.Failed[rec.Filename] = fmt.Errorf("duplicate dictionary id %s", src.ID)
			continue
		}
		l := Live{Source: src, Handle: h}
		r.byID[src.ID] = l
		r.order = append(r.order, l)
		ev.Loaded = append(ev.Loaded, src.ID)
		r.log.Debug("dictionary loaded", "id", src.ID, "name", src.DisplayName, "entries", src.EntryCount)
	}
	n := len(r.order)
	r.mu.Unlock()

	r.metrics.SetSources(n)
	if n == 0 {
		r.log.Warn("no dictionaries loaded")
	} else {
		r.log.Info("dictionaries loaded", "count", n, "failed", len(ev.Failed))
	}
	r.notify(ev)
	return ev
}

// Close closes every open handle.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, l := range r.order {
		if err := l.Handle.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.order = nil
	r.byID = make(map[string]Live)
	r.metrics.SetSources(0)
	return errors.Join(errs...)
}

func (r *Registry) dropLiveLocked(l Live) {
	_ = l.Handle.Close()
	delete(r.byID, l.ID)
	out := r.order[:0]
	for _, o := range r.order {
		if o.InstalledID != l.InstalledID {
			out = append(out, o)
		}
	}
	r.order = out
}

func (r *Registry) indexOf(installedID string) int {
	for i, rec := range r.records {
		if rec.Filename == installedID {
			return i
		}
	}
	return -1
}

func (r *Registry) pathOf(name string) string {
	return filepath.Join(r.dictsDir, name)
}

// fileName rejects ids that would escape the dictionaries directory.
func fileName(installedID string) (string, error) {
	name := strings.TrimSpace(installedID)
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid dictionary id %q", installedID)
	}
	return name, nil
}
