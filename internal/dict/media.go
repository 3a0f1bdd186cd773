package dict

import "strings"

// MediaKind classifies content for rendering.
type MediaKind int

const (
	// Binary content is streamed as-is.
	Binary MediaKind = iota
	// Text is raw text.
	Text
	// Rich is HTML.
	Rich
)

func (k MediaKind) String() string {
	switch k {
	case Rich:
		return "rich"
	case Text:
		return "text"
	default:
		return "binary"
	}
}

// MediaKindOf dispatches on a content type: text/html* is rich, any other
// text/* is raw text, everything else (images included) is opaque.
func MediaKindOf(contentType string) MediaKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "text/html"):
		return Rich
	case strings.HasPrefix(ct, "text/"):
		return Text
	default:
		return Binary
	}
}
