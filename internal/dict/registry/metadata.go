package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sagerenn/lexis/internal/dict"
)

const metadataVersion = 1

type record struct {
	Filename   string            `json:"filename"`
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Enabled    bool              `json:"enabled"`
	EntryCount int               `json:"entry_count"`
	Tags       map[string]string `json:"tags,omitempty"`
}

type metadataDoc struct {
	Version      int      `json:"version"`
	Dictionaries []record `json:"dictionaries"`
}

func (rec record) source(path string) Source {
	tags := make(map[string]string, len(rec.Tags))
	for k, v := range rec.Tags {
		tags[k] = v
	}
	return Source{
		InstalledID: rec.Filename,
		ID:          rec.ID,
		DisplayName: rec.Label,
		FilePath:    path,
		Enabled:     rec.Enabled,
		Tags:        tags,
		EntryCount:  rec.EntryCount,
	}
}

// loadMetadata reads dictionaries.json. A missing or corrupt file yields an
// empty list.
func (r *Registry) loadMetadata() []record {
	path := filepath.Join(r.dataDir, metadataFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("read dictionary metadata", "path", path, "error", err)
		}
		return nil
	}
	var doc metadataDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		r.log.Warn("corrupt dictionary metadata, starting empty", "path", path, "error", err)
		return nil
	}
	out := doc.Dictionaries[:0]
	seen := make(map[string]bool, len(doc.Dictionaries))
	for _, rec := range doc.Dictionaries {
		if rec.Filename == "" || seen[rec.Filename] {
			continue
		}
		seen[rec.Filename] = true
		out = append(out, rec)
	}
	return out
}

// saveMetadataLocked writes dictionaries.json through a temp file and rename.
func (r *Registry) saveMetadataLocked() error {
	data, err := json.MarshalIndent(metadataDoc{Version: metadataVersion, Dictionaries: r.records}, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(r.dataDir, metadataFile)
	tmp, err := os.CreateTemp(r.dataDir, metadataFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("save dictionary metadata: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("save dictionary metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save dictionary metadata: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("save dictionary metadata: %w", err)
	}
	return nil
}

// extractMetadata opens an installed file and reads its id, entry count and
// tags. stem is the label when the file carries none.
func (r *Registry) extractMetadata(filename, stem string) (record, error) {
	h, err := r.open(r.pathOf(filename))
	if err != nil {
		return record{}, err
	}
	defer h.Close()
	tags := h.Tags()
	label := tags[dict.TagLabel]
	if label == "" {
		label = stem
	}
	return record{
		Filename:   filename,
		ID:         h.ID(),
		Label:      label,
		Enabled:    true,
		EntryCount: h.EntryCount(),
		Tags:       tags,
	}, nil
}
