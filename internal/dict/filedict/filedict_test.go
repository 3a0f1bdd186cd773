package filedict

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagerenn/lexis/internal/dict"
)

func collect(t *testing.T, src *Source) []dict.Article {
	t.Helper()
	var out []dict.Article
	require.NoError(t, src.Walk(context.Background(), func(a dict.Article) error {
		out = append(out, a)
		return nil
	}))
	return out
}

func TestTSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.tsv")
	body := "# comment\ncat\ta small animal\n\nbroken line\ndog\tloyal\tfriend\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	src, err := Open(path, "", "")
	require.NoError(t, err)
	got := collect(t, src)
	require.Len(t, got, 2)
	assert.Equal(t, dict.Article{Key: "cat", ContentType: dict.ContentTypeText, Content: []byte("a small animal")}, got[0])
	assert.Equal(t, "loyal\tfriend", string(got[1].Content))
}

func TestJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.json")
	body := `[
		{"word": "cat", "definition": "<a href=\"bword://kitten\">kitten</a>", "content_type": "text/html"},
		{"word": "dog", "definition": "loyal"},
		{"word": "", "definition": "skipped"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	src, err := Open(path, "", "")
	require.NoError(t, err)
	got := collect(t, src)
	require.Len(t, got, 2)
	assert.Equal(t, `<a href="kitten">kitten</a>`, string(got[0].Content))
	assert.Equal(t, "text/html", got[0].ContentType)
	assert.Equal(t, dict.ContentTypeText, got[1].ContentType)
}

func TestJSONMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"word":`), 0o644))
	src, err := Open(path, "json", "")
	require.NoError(t, err)
	err = src.Walk(context.Background(), func(dict.Article) error { return nil })
	assert.ErrorIs(t, err, dict.ErrFormat)
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.tsv"), "", "")
	assert.ErrorIs(t, err, dict.ErrSourceUnavailable)

	path := filepath.Join(t.TempDir(), "x.tsv")
	require.NoError(t, os.WriteFile(path, []byte("a\tb\n"), 0o644))
	_, err = Open(path, "xml", "")
	assert.ErrorIs(t, err, dict.ErrFormat)
}
