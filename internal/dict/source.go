package dict

import "context"

// Article is one entry read from a foreign dictionary file during import.
type Article struct {
	Key         string
	ContentType string
	Content     []byte
}

// Source walks the articles of a foreign dictionary file. Title is the name
// recorded in the file itself and may be empty.
type Source interface {
	Title() string
	Walk(ctx context.Context, fn func(Article) error) error
	Close() error
}

// Content types produced by the converters.
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
)
