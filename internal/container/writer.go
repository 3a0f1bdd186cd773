package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

const batchSize = 1000

// Writer builds a new native dictionary. Articles are committed in batches;
// the entry count is written by Close.
type Writer struct {
	db      *bolt.DB
	tx      *bolt.Tx
	path    string
	next    int
	pending int
}

// Create starts a new dictionary at path. The file must not exist yet.
func Create(path, id string, tags map[string]string) (*Writer, error) {
	if id == "" {
		return nil, errors.New("dictionary id is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("create %s: %w", path, os.ErrExist)
	}
	db, err := bolt.Open(path, 0o644, &bolt.Options{Timeout: time.Second, NoSync: true})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucket(metaBucket)
		if err != nil {
			return err
		}
		if err := meta.Put(metaFormat, []byte(formatVersion)); err != nil {
			return err
		}
		if err := meta.Put(metaID, []byte(id)); err != nil {
			return err
		}
		tb, err := tx.CreateBucket(tagsBucket)
		if err != nil {
			return err
		}
		for k, v := range tags {
			if err := tb.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		if _, err := tx.CreateBucket(keysBucket); err != nil {
			return err
		}
		_, err = tx.CreateBucket(blobsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &Writer{db: db, path: path}, nil
}

// Add stores one article and returns its term id.
func (w *Writer) Add(key, contentType string, content []byte) (int, error) {
	if key == "" {
		return 0, errors.New("empty key")
	}
	if w.next > maxID {
		return 0, errors.New("too many entries")
	}
	if w.tx == nil {
		tx, err := w.db.Begin(true)
		if err != nil {
			return 0, err
		}
		w.tx = tx
	}
	id := w.next
	if err := w.tx.Bucket(blobsBucket).Put(idBytes(id), encodeBlob(key, contentType, content)); err != nil {
		return 0, err
	}
	if err := w.tx.Bucket(keysBucket).Put(indexKey(key, id), nil); err != nil {
		return 0, err
	}
	w.next++
	w.pending++
	if w.pending >= batchSize {
		if err := w.flush(); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// Count is the number of articles added so far.
func (w *Writer) Count() int {
	return w.next
}

func (w *Writer) flush() error {
	if w.tx == nil {
		return nil
	}
	err := w.tx.Commit()
	w.tx = nil
	w.pending = 0
	return err
}

// Close records the entry count, syncs and closes the file.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		_ = w.db.Close()
		return err
	}
	err := w.db.Update(func(tx *bolt.Tx) error {
		c := make([]byte, 8)
		binary.BigEndian.PutUint64(c, uint64(w.next))
		return tx.Bucket(metaBucket).Put(metaCount, c)
	})
	if err == nil {
		err = w.db.Sync()
	}
	if cerr := w.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// Abort discards the partially written file.
func (w *Writer) Abort() {
	if w.tx != nil {
		_ = w.tx.Rollback()
		w.tx = nil
	}
	_ = w.db.Close()
	_ = os.Remove(w.path)
}
