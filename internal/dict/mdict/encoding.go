package mdict

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
	"golang.org/x/text/transform"
)

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
	utf32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
	utf32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
)

// decodeText converts article or stylesheet bytes to UTF-8. A byte order mark
// wins over label, the encoding declared in the MDict header.
func decodeText(data []byte, label string) string {
	if len(data) == 0 {
		return ""
	}
	var t transform.Transformer
	switch {
	case bytes.HasPrefix(data, utf32BE):
		t = utf32.UTF32(utf32.BigEndian, utf32.ExpectBOM).NewDecoder()
	case bytes.HasPrefix(data, utf32LE):
		t = utf32.UTF32(utf32.LittleEndian, utf32.ExpectBOM).NewDecoder()
	default:
		fallback := unicode.UTF8
		if l := strings.TrimSpace(label); l != "" {
			if enc, err := htmlindex.Get(l); err == nil {
				fallback = enc
			}
		}
		if fallback == unicode.UTF8 && utf8.Valid(data) && !bytes.HasPrefix(data, utf8BOM) {
			return strings.TrimRight(string(data), "\x00")
		}
		t = unicode.BOMOverride(fallback.NewDecoder())
	}
	out, _, err := transform.Bytes(t, data)
	if err != nil {
		return string(data)
	}
	return strings.TrimRight(string(out), "\x00")
}
