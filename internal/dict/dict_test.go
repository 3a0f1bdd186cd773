package dict

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaKindOf(t *testing.T) {
	tests := map[string]MediaKind{
		"text/html":                Rich,
		"text/html; charset=utf-8": Rich,
		" TEXT/HTML ":              Rich,
		"text/plain":               Text,
		"text/css; charset=utf-8":  Text,
		"image/png":                Binary,
		"audio/ogg":                Binary,
		"":                         Binary,
	}
	for ct, want := range tests {
		assert.Equal(t, want, MediaKindOf(ct), ct)
	}
}

func TestEntryURL(t *testing.T) {
	assert.Equal(t, "/slob/dict-a/cat?blob=0", EntryURL("dict-a", "cat", 0))
	assert.Equal(t, "/slob/dict%2Fa/hello%20world?blob=12", EntryURL("dict/a", "hello world", 12))
}

func TestRewriteLinks(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`<a href="entry://hello world">x</a>`, `<a href="hello%20world">x</a>`},
		{`<a href='bword://cat#sense2'>x</a>`, `<a href='cat#sense2'>x</a>`},
		{`<a href="bword:dog">x</a>`, `<a href="dog">x</a>`},
		{`<audio src="sound://snd/cat.ogg"></audio>`, `<audio src="snd/cat.ogg"></audio>`},
		{`<audio src="sound://../../etc/passwd"></audio>`, `<audio src="etc/passwd"></audio>`},
		{`<a href="https://example.org/">x</a>`, `<a href="https://example.org/">x</a>`},
		{`<img src="pic.png">`, `<img src="pic.png">`},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RewriteLinks(tt.in), tt.in)
	}
}

func TestCleanResourceName(t *testing.T) {
	assert.Equal(t, "img/cat.png", CleanResourceName(`img\cat.png`))
	assert.Equal(t, "a b.png", CleanResourceName("a%20b.png"))
	assert.Equal(t, "x.png", CleanResourceName("/./x.png"))
	assert.Equal(t, "secret", CleanResourceName("../secret"))
	assert.Empty(t, CleanResourceName(""))
}

func TestResourceType(t *testing.T) {
	assert.Equal(t, "text/css; charset=utf-8", ResourceType("style.CSS"))
	assert.Equal(t, "image/png", ResourceType("img/cat.png"))
	assert.Equal(t, "audio/ogg", ResourceType("snd/cat.spx"))
	assert.Equal(t, "application/octet-stream", ResourceType("README"))
}

func TestFold(t *testing.T) {
	assert.Equal(t, Fold("Straße"), Fold("STRASSE"))
	assert.Equal(t, "cat", Fold("CaT"))
}

func TestStageOf(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ImportError{Stage: StageConversion, Path: "x.dsl", Err: ErrConversion})
	assert.Equal(t, StageConversion, StageOf(err))
	assert.True(t, errors.Is(err, ErrConversion))
	assert.Contains(t, err.Error(), "conversion")
	assert.Equal(t, ImportStage(""), StageOf(ErrNotFound))
}
