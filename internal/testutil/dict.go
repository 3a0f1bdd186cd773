// Package testutil builds native dictionaries for tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/sagerenn/lexis/internal/container"
	"github.com/sagerenn/lexis/internal/dict"
)

// Entry is one article of a test dictionary. An empty ContentType means HTML
// and an empty Content means "<p>Key</p>".
type Entry struct {
	Key         string
	ContentType string
	Content     string
}

// Terms turns headwords into HTML entries.
func Terms(keys ...string) []Entry {
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k}
	}
	return out
}

// MakeDict writes a native dictionary named file into dir and returns its
// path. An empty label leaves the label tag out.
func MakeDict(t testing.TB, dir, file, id, label string, entries []Entry) string {
	t.Helper()
	path := filepath.Join(dir, file)
	tags := map[string]string{dict.TagFormat: "test"}
	if label != "" {
		tags[dict.TagLabel] = label
	}
	w, err := container.Create(path, id, tags)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	for _, e := range entries {
		ct, content := e.ContentType, e.Content
		if ct == "" {
			ct = dict.ContentTypeHTML
		}
		if content == "" {
			content = "<p>" + e.Key + "</p>"
		}
		if _, err := w.Add(e.Key, ct, []byte(content)); err != nil {
			w.Abort()
			t.Fatalf("add %q: %v", e.Key, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
	return path
}
