// Package dsl reads ABBYY Lingvo DSL source files for import.
package dsl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sagerenn/lexis/internal/dict"
)

const maxLine = 1 << 20

// Source walks the cards of a DSL file. A card is one or more headword lines
// followed by indented body lines; every headword of a card becomes an
// article with the same body.
type Source struct {
	path  string
	f     *os.File
	title string
}

func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	s := &Source{path: path, f: f}
	if err := s.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Source) Title() string {
	return s.title
}

func (s *Source) readHeader() error {
	sc := s.scanner()
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			break
		}
		if name, ok := strings.CutPrefix(line, "#NAME"); ok {
			s.title = strings.Trim(strings.TrimSpace(name), `"`)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: dsl %s: %v", dict.ErrFormat, s.path, err)
	}
	return nil
}

// scanner rewinds the file and decodes UTF-16 when a byte order mark is
// present.
func (s *Source) scanner() *bufio.Scanner {
	_, _ = s.f.Seek(0, io.SeekStart)
	r := transform.NewReader(s.f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	return sc
}

func (s *Source) Walk(ctx context.Context, fn func(dict.Article) error) error {
	sc := s.scanner()
	var (
		heads []string
		body  []string
	)
	flush := func() error {
		defer func() { heads, body = nil, nil }()
		if len(heads) == 0 || len(body) == 0 {
			return nil
		}
		content := []byte(renderCard(body))
		for _, h := range heads {
			if err := fn(dict.Article{Key: h, ContentType: dict.ContentTypeHTML, Content: content}); err != nil {
				return err
			}
		}
		return nil
	}

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimRight(sc.Text(), "\r\n")
		if strings.HasPrefix(line, "#") && len(heads) == 0 {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if len(heads) > 0 {
				body = append(body, strings.TrimSpace(line))
			}
			continue
		}
		if len(body) > 0 {
			if err := flush(); err != nil {
				return err
			}
		}
		if h := headword(line); h != "" {
			heads = append(heads, h)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: dsl %s: %v", dict.ErrFormat, s.path, err)
	}
	return flush()
}

func (s *Source) Close() error {
	return s.f.Close()
}

// headword drops the unsorted-part braces and backslash escapes of a DSL
// headword line.
func headword(line string) string {
	var b strings.Builder
	escaped := false
	for _, r := range strings.TrimSpace(line) {
		switch {
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '{' || r == '}':
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
