// Package catalog loads and queries catalogs of dictionaries that are
// available for download but not installed.
package catalog

import (
	"sort"
	"time"
)

// Dictionary types used by catalogs.
const (
	Monolingual = "Monolingual"
	Bilingual   = "Bilingual"
	Thesaurus   = "Thesaurus"
)

// NativeType is the format type written by Export.
const NativeType = "slobdict"

// Descriptor describes one downloadable dictionary.
type Descriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Lang        string `json:"lang"`
	Type        string `json:"type"`
	Version     int    `json:"version"`
	Size        int64  `json:"size"`
	Hash        string `json:"hash"`
	HashAlgo    string `json:"hash_algo"`
	URL         string `json:"url"`
	Copyright   string `json:"copyright,omitempty"`
	Compression string `json:"compression,omitempty"`
}

// Document is the parsed, normalised form of a catalog file. It is also the
// shape stored in the disk cache and written by Export.
type Document struct {
	Type         string       `json:"type"`
	Version      int          `json:"version"`
	Dictionaries []Descriptor `json:"dictionaries"`
}

// Catalog is a loaded catalog. Values returned by the Manager are shared and
// must not be modified.
type Catalog struct {
	Source       string       `json:"source"`
	Type         string       `json:"type"`
	Version      int          `json:"version"`
	Dictionaries []Descriptor `json:"dictionaries"`
	LastUpdated  time.Time    `json:"last_updated"`
	ETag         string       `json:"etag,omitempty"`
}

func newCatalog(source string, doc *Document, etag string, now time.Time) *Catalog {
	typ := doc.Type
	if typ == "" {
		typ = NativeType
	}
	return &Catalog{
		Source:       source,
		Type:         typ,
		Version:      doc.Version,
		Dictionaries: doc.Dictionaries,
		LastUpdated:  now,
		ETag:         etag,
	}
}

// Dictionary returns the descriptor with the given id.
func (c *Catalog) Dictionary(id string) (Descriptor, bool) {
	for _, d := range c.Dictionaries {
		if d.ID == id {
			return d, true
		}
	}
	return Descriptor{}, false
}

func (c *Catalog) ByLanguage(lang string) []Descriptor {
	var out []Descriptor
	for _, d := range c.Dictionaries {
		if d.Lang == lang {
			out = append(out, d)
		}
	}
	return out
}

// Languages returns the sorted set of languages in the catalog.
func (c *Catalog) Languages() []string {
	seen := make(map[string]struct{})
	for _, d := range c.Dictionaries {
		seen[d.Lang] = struct{}{}
	}
	return sortedKeys(seen)
}

func (c *Catalog) document() Document {
	return Document{Type: NativeType, Version: c.Version, Dictionaries: c.Dictionaries}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
