// Package filedict reads plain word lists for import: delimited text
// (.tsv, .tab, .txt) and JSON arrays of {"word", "definition"} objects.
package filedict

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagerenn/lexis/internal/dict"
)

// Entry is one element of a JSON word list. ContentType defaults to plain
// text.
type Entry struct {
	Word        string `json:"word"`
	Definition  string `json:"definition"`
	ContentType string `json:"content_type,omitempty"`
}

// Source yields the entries of a word list in file order.
type Source struct {
	path      string
	typ       string
	delimiter string
}

// Open prepares a word list. typ is "tsv" or "json"; empty picks by extension.
func Open(path, typ, delimiter string) (*Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", dict.ErrFormat, path)
	}
	switch strings.ToLower(typ) {
	case "tsv", "tab", "txt":
		typ = "tsv"
	case "json":
	case "":
		typ = "tsv"
		if strings.EqualFold(filepath.Ext(path), ".json") {
			typ = "json"
		}
	default:
		return nil, fmt.Errorf("%w: unsupported word list type %q", dict.ErrFormat, typ)
	}
	if delimiter == "" {
		delimiter = "\t"
	}
	return &Source{path: path, typ: typ, delimiter: delimiter}, nil
}

func (s *Source) Title() string {
	return ""
}

func (s *Source) Walk(ctx context.Context, fn func(dict.Article) error) error {
	if s.typ == "json" {
		return s.walkJSON(ctx, fn)
	}
	return s.walkTSV(ctx, fn)
}

func (s *Source) walkTSV(ctx context.Context, fn func(dict.Article) error) error {
	file, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, def, ok := strings.Cut(line, s.delimiter)
		if !ok {
			continue
		}
		word, def = strings.TrimSpace(word), strings.TrimSpace(def)
		if word == "" || def == "" {
			continue
		}
		if err := fn(dict.Article{Key: word, ContentType: dict.ContentTypeText, Content: []byte(def)}); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", dict.ErrFormat, s.path, err)
	}
	return nil
}

func (s *Source) walkJSON(ctx context.Context, fn func(dict.Article) error) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("%w: %v", dict.ErrSourceUnavailable, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("%w: %s: %v", dict.ErrFormat, s.path, err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		word := strings.TrimSpace(e.Word)
		def := strings.TrimSpace(e.Definition)
		if word == "" || def == "" {
			continue
		}
		ct := e.ContentType
		if ct == "" {
			ct = dict.ContentTypeText
		}
		if dict.MediaKindOf(ct) == dict.Rich {
			def = dict.RewriteLinks(def)
		}
		if err := fn(dict.Article{Key: word, ContentType: ct, Content: []byte(def)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) Close() error {
	return nil
}
