// Package loader converts foreign dictionary files into native dictionaries.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sagerenn/lexis/internal/container"
	"github.com/sagerenn/lexis/internal/dict"
	"github.com/sagerenn/lexis/internal/dict/dsl"
	"github.com/sagerenn/lexis/internal/dict/filedict"
	"github.com/sagerenn/lexis/internal/dict/mdict"
	"github.com/sagerenn/lexis/internal/dict/stardict"
	"github.com/sagerenn/lexis/internal/observability"
)

// Converter writes the native dictionary dst from the foreign file src. An
// empty format is detected from the file extension. On failure dst must not
// exist.
type Converter interface {
	Convert(ctx context.Context, src, dst, format string) error
}

// Format describes one importable file format.
type Format struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Extensions  []string `json:"extensions"`
}

const FormatNative = "native"

var formats = []Format{
	{Name: FormatNative, Description: "Native dictionary (copied as is)", Extensions: []string{container.Ext}},
	{Name: "stardict", Description: "StarDict", Extensions: []string{".ifo"}},
	{Name: "mdict", Description: "MDict", Extensions: []string{".mdx"}},
	{Name: "dsl", Description: "ABBYY Lingvo DSL", Extensions: []string{".dsl"}},
	{Name: "tsv", Description: "Tab separated word list", Extensions: []string{".tsv", ".tab", ".txt"}},
	{Name: "json", Description: "JSON word list", Extensions: []string{".json"}},
}

// SupportedFormats lists the importable formats, native first.
func SupportedFormats() []Format {
	out := make([]Format, len(formats))
	for i, f := range formats {
		out[i] = f
		out[i].Extensions = append([]string(nil), f.Extensions...)
	}
	return out
}

// DetectFormat returns the format name for path's extension, or "".
func DetectFormat(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range formats {
		for _, e := range f.Extensions {
			if e == ext {
				return f.Name
			}
		}
	}
	return ""
}

func normalizeFormat(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "ifo":
		return "stardict"
	case "mdx":
		return "mdict"
	case "tab", "txt":
		return "tsv"
	case "lexd":
		return FormatNative
	default:
		return n
	}
}

// OpenSource opens src as an article source of the named format.
func OpenSource(src, format string) (dict.Source, error) {
	switch normalizeFormat(format) {
	case "stardict":
		return stardict.Open(src)
	case "mdict":
		return mdict.Open(src)
	case "dsl":
		return dsl.Open(src)
	case "tsv":
		return filedict.Open(src, "tsv", "")
	case "json":
		return filedict.Open(src, "json", "")
	default:
		return nil, fmt.Errorf("%w: unsupported dictionary format %q", dict.ErrFormat, format)
	}
}

// Native converts every supported format into the native container.
type Native struct {
	log *observability.Logger
	now func() time.Time
}

func New(log *observability.Logger) *Native {
	if log == nil {
		log = observability.Nop()
	}
	return &Native{log: log, now: time.Now}
}

func (c *Native) Convert(ctx context.Context, src, dst, format string) error {
	if format == "" {
		format = DetectFormat(src)
	}
	format = normalizeFormat(format)
	if format == "" || format == FormatNative {
		return fmt.Errorf("%w: cannot convert %s", dict.ErrFormat, filepath.Base(src))
	}
	source, err := OpenSource(src, format)
	if err != nil {
		return err
	}
	defer source.Close()

	tags := map[string]string{
		dict.TagSource:  filepath.Base(src),
		dict.TagFormat:  format,
		dict.TagCreated: c.now().UTC().Format(time.RFC3339),
	}
	if title := source.Title(); title != "" {
		tags[dict.TagLabel] = title
	}
	w, err := container.Create(dst, uuid.NewString(), tags)
	if err != nil {
		return err
	}
	start := time.Now()
	err = source.Walk(ctx, func(a dict.Article) error {
		_, err := w.Add(a.Key, a.ContentType, a.Content)
		return err
	})
	if err == nil && w.Count() == 0 {
		err = fmt.Errorf("%w: %s has no entries", dict.ErrFormat, filepath.Base(src))
	}
	if err != nil {
		w.Abort()
		return err
	}
	if err := w.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	c.log.Info("dictionary converted",
		"source", src,
		"format", format,
		"entries", w.Count(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, src, dst, format string) error

func (f ConverterFunc) Convert(ctx context.Context, src, dst, format string) error {
	return f(ctx, src, dst, format)
}

var _ Converter = (*Native)(nil)

