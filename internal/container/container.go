// Package container implements the native dictionary file: a single bbolt
// database holding the dictionary id, its tags, a case-folded key index and
// the stored articles.
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sagerenn/lexis/internal/dict"

	bolt "go.etcd.io/bbolt"
)

// Ext is the file extension of native dictionaries.
const Ext = ".lexd"

const formatVersion = "lexd/1"

var (
	metaBucket  = []byte("meta")
	tagsBucket  = []byte("tags")
	keysBucket  = []byte("keys")
	blobsBucket = []byte("blobs")

	metaID     = []byte("id")
	metaCount  = []byte("count")
	metaFormat = []byte("format")
)

// IsContainer reports whether path names a native dictionary file.
func IsContainer(path string) bool {
	return strings.EqualFold(filepath.Ext(path), Ext)
}

var _ dict.Handle = (*Dictionary)(nil)

// Dictionary is an open native dictionary.
type Dictionary struct {
	db    *bolt.DB
	id    string
	tags  map[string]string
	count int
}

// Open opens path read-only. A missing file yields dict.ErrSourceUnavailable,
// a file that is not a native dictionary yields dict.ErrFormat.
func Open(path string) (*Dictionary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", dict.ErrFormat, path, err)
	}
	d := &Dictionary{db: db, tags: make(map[string]string)}
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(metaBucket)
		if meta == nil || string(meta.Get(metaFormat)) != formatVersion {
			return fmt.Errorf("%w: %s is not a %s dictionary", dict.ErrFormat, path, formatVersion)
		}
		if tx.Bucket(keysBucket) == nil || tx.Bucket(blobsBucket) == nil {
			return fmt.Errorf("%w: %s has no index", dict.ErrFormat, path)
		}
		d.id = string(meta.Get(metaID))
		if c := meta.Get(metaCount); len(c) == 8 {
			d.count = int(binary.BigEndian.Uint64(c))
		}
		if tags := tx.Bucket(tagsBucket); tags != nil {
			return tags.ForEach(func(k, v []byte) error {
				d.tags[string(k)] = string(v)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dictionary) ID() string {
	return d.id
}

// Tags returns a copy of the tag map.
func (d *Dictionary) Tags() map[string]string {
	out := make(map[string]string, len(d.tags))
	for k, v := range d.tags {
		out[k] = v
	}
	return out
}

func (d *Dictionary) EntryCount() int {
	return d.count
}

func (d *Dictionary) FindPrefix(query string, yield func(int, dict.Blob) bool) error {
	prefix := []byte(dict.Fold(query))
	return d.db.View(func(tx *bolt.Tx) error {
		keys := tx.Bucket(keysBucket)
		blobs := tx.Bucket(blobsBucket)
		c := keys.Cursor()
		ordinal := 0
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			if len(k) < 5 {
				continue
			}
			idKey := k[len(k)-4:]
			b, err := decodeBlob(int(binary.BigEndian.Uint32(idKey)), blobs.Get(idKey))
			if err != nil {
				return err
			}
			if !yield(ordinal, b) {
				return nil
			}
			ordinal++
		}
		return nil
	})
}

func (d *Dictionary) GetByID(id int) (dict.Blob, error) {
	if id < 0 || id > maxID {
		return dict.Blob{}, dict.ErrNotFound
	}
	var b dict.Blob
	err := d.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(blobsBucket).Get(idBytes(id))
		if raw == nil {
			return dict.ErrNotFound
		}
		var err error
		b, err = decodeBlob(id, raw)
		return err
	})
	return b, err
}

func (d *Dictionary) Close() error {
	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}
