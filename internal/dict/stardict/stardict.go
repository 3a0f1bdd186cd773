// Package stardict reads StarDict dictionaries (.ifo/.idx/.dict) for import.
package stardict

import (
	"context"
	"fmt"
	"html"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	lexdict "github.com/sagerenn/lexis/internal/dict"

	std "github.com/ianlewis/go-stardict"
	"github.com/ianlewis/go-stardict/dict"
	"github.com/ianlewis/go-stardict/idx"
)

// Source walks the articles of one StarDict dictionary followed by the files
// of its "<name>.files" resource directory.
type Source struct {
	sd          *std.Stardict
	dict        *dict.Dict
	title       string
	resourceDir string
}

func Open(ifoPath string) (*Source, error) {
	sd, err := std.Open(ifoPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: stardict %s: %v", lexdict.ErrFormat, ifoPath, err)
	}
	d, err := sd.Dict()
	if err != nil {
		return nil, fmt.Errorf("%w: stardict %s: %v", lexdict.ErrFormat, ifoPath, err)
	}
	return &Source{
		sd:          sd,
		dict:        d,
		title:       strings.TrimSpace(sd.Bookname()),
		resourceDir: strings.TrimSuffix(ifoPath, filepath.Ext(ifoPath)) + ".files",
	}, nil
}

func (s *Source) Title() string {
	return s.title
}

func (s *Source) Walk(ctx context.Context, fn func(lexdict.Article) error) error {
	sc, err := s.sd.IndexScanner()
	if err != nil {
		return fmt.Errorf("%w: %v", lexdict.ErrFormat, err)
	}
	defer sc.Close()

	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		w := sc.Word()
		word := idx.Word{Word: w.Word, Offset: w.Offset, Size: w.Size}
		entry, err := s.dict.Word(&word)
		if err != nil {
			return fmt.Errorf("%w: read %q: %v", lexdict.ErrFormat, w.Word, err)
		}
		body := dataToHTML(entry.Data)
		if body == "" {
			continue
		}
		err = fn(lexdict.Article{
			Key:         w.Word,
			ContentType: lexdict.ContentTypeHTML,
			Content:     []byte(lexdict.RewriteLinks(body)),
		})
		if err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("%w: %v", lexdict.ErrFormat, err)
	}
	return s.walkResources(ctx, fn)
}

func (s *Source) walkResources(ctx context.Context, fn func(lexdict.Article) error) error {
	if fi, err := os.Stat(s.resourceDir); err != nil || !fi.IsDir() {
		return nil
	}
	return filepath.WalkDir(s.resourceDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(s.resourceDir, p)
		if err != nil {
			return err
		}
		name := lexdict.CleanResourceName(filepath.ToSlash(rel))
		if name == "" {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return fn(lexdict.Article{Key: name, ContentType: lexdict.ResourceType(name), Content: data})
	})
}

// Close releases the underlying files when the reader supports it.
func (s *Source) Close() error {
	if c, ok := any(s.sd).(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func dataToHTML(data []*dict.Data) string {
	var b strings.Builder
	for _, d := range data {
		s := strings.TrimSpace(renderData(d))
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}
	return b.String()
}

func renderData(d *dict.Data) string {
	switch d.Type {
	case dict.HTMLType, dict.PangoTextType:
		return `<div class="sd-html">` + string(d.Data) + `</div>`
	case dict.UTFTextType, dict.LocaleTextType:
		return `<div class="sd-text">` + preformat(string(d.Data)) + `</div>`
	case dict.PhoneticType, dict.YinBiaoOrKataType:
		return `<div class="sd-phonetic">` + html.EscapeString(string(d.Data)) + `</div>`
	case dict.ResourceFileListType:
		return renderResourceList(string(d.Data))
	case dict.WavType:
		return `<div class="sd-media">(an embedded .wav file)</div>`
	case dict.PictureType:
		return `<div class="sd-media">(an embedded picture file)</div>`
	default:
		// XDXF, PowerWord, WordNet and other lower-case types are kept as text.
		if d.Type >= 'a' && d.Type <= 'z' {
			return `<div class="sd-text">` + preformat(string(d.Data)) + `</div>`
		}
		return ""
	}
}

func preformat(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = html.EscapeString(s)
	return strings.ReplaceAll(s, "\n", "<br>")
}

// renderResourceList links the "img:", "snd:", "vdo:" and "att:" entries of a
// resource list to keys of the imported .files directory.
func renderResourceList(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<div class="sd-resources">`)
	for _, p := range strings.Fields(s) {
		kind, name, ok := strings.Cut(p, ":")
		if !ok {
			b.WriteString(html.EscapeString(p))
			continue
		}
		ref := html.EscapeString(resourceRef(name))
		switch kind {
		case "img":
			b.WriteString(`<img src="` + ref + `"/>`)
		case "snd":
			b.WriteString(`<audio controls src="` + ref + `"></audio>`)
		case "vdo":
			b.WriteString(`<video controls src="` + ref + `"></video>`)
		case "att":
			b.WriteString(`<a download href="` + ref + `">` + html.EscapeString(name) + `</a>`)
		default:
			b.WriteString(html.EscapeString(p))
		}
	}
	b.WriteString(`</div>`)
	return b.String()
}

func resourceRef(name string) string {
	return lexdict.ResourcePath(lexdict.CleanResourceName(name))
}
