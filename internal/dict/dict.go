// Package dict holds the value types shared by the registry, the search
// coordinator, the entry resolver and the content bridge, together with the
// contract every opened binary dictionary satisfies.
package dict

// DictEntry is a search hit or a navigable reference into one source.
type DictEntry struct {
	DictID   string `json:"dict_id"`
	DictName string `json:"dict_name"`
	TermID   int    `json:"term_id"`
	Term     string `json:"term"`
}

func (e DictEntry) String() string {
	return e.Term
}

// DictEntryContent is a resolved entry. It is produced per request and never
// cached.
type DictEntryContent struct {
	DictEntry
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// Kind reports how a consumer should treat the content.
func (c DictEntryContent) Kind() MediaKind {
	return MediaKindOf(c.ContentType)
}

// Blob is one stored article as yielded by a Handle.
type Blob struct {
	ID          int
	Key         string
	ContentType string
	Content     []byte
}

// Handle is an open binary dictionary.
//
// FindPrefix calls yield for every key sharing the query prefix, in the
// index's natural key order, with a zero-based ordinal. Returning false from
// yield stops the scan. Each call starts a fresh scan.
//
// GetByID returns ErrNotFound when no blob has the id.
type Handle interface {
	ID() string
	Tags() map[string]string
	EntryCount() int
	FindPrefix(query string, yield func(ordinal int, b Blob) bool) error
	GetByID(id int) (Blob, error)
	Close() error
}

// Tag names written by the converters and read back by the registry.
const (
	TagLabel   = "label"
	TagSource  = "source"
	TagFormat  = "format"
	TagCreated = "created"
)
