// Package mdict reads MDict dictionaries (.mdx with optional .mdd resource
// volumes) for import.
package mdict

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/ChaosNyaruko/ondict/decoder"
	"github.com/ChaosNyaruko/ondict/util"

	"github.com/sagerenn/lexis/internal/dict"
)

const maxRedirects = 8

// Source walks the headwords of an .mdx file in key order, then the entries
// of every .mdd volume next to it.
type Source struct {
	path      string
	title     string
	mdx       *decoder.MDict
	encoding  string
	keymap    map[string][]uint64
	resources []string
}

func Open(path string) (*Source, error) {
	md := &decoder.MDict{}
	if err := md.Decode(path, false); err != nil {
		return nil, fmt.Errorf("%w: mdict %s: %v", dict.ErrFormat, path, err)
	}
	_ = md.Keys() // populate keymap
	keymap := mdictKeyMap(md)
	if len(keymap) == 0 {
		return nil, fmt.Errorf("%w: mdict %s has no headwords", dict.ErrFormat, path)
	}
	return &Source{
		path:      path,
		title:     mdictString(md, "title"),
		mdx:       md,
		encoding:  mdictEncoding(md),
		keymap:    keymap,
		resources: resourceVolumes(path),
	}, nil
}

// Title is the header title unless the file left the MDict placeholder.
func (s *Source) Title() string {
	t := strings.TrimSpace(s.title)
	if t == "" || strings.EqualFold(t, "Title (No HTML code allowed)") {
		return ""
	}
	return t
}

func (s *Source) Walk(ctx context.Context, fn func(dict.Article) error) error {
	keys := make([]string, 0, len(s.keymap))
	for k := range s.keymap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen := make(map[string]bool)
		for _, off := range s.keymap[key] {
			body := s.article(key, off)
			if body == "" || seen[body] {
				continue
			}
			seen[body] = true
			err := fn(dict.Article{Key: key, ContentType: dict.ContentTypeHTML, Content: []byte(body)})
			if err != nil {
				return err
			}
		}
	}
	for _, vol := range s.resources {
		if err := s.walkVolume(ctx, vol, fn); err != nil {
			return err
		}
	}
	return s.walkStylesheets(ctx, fn)
}

// article follows @@@LINK= redirects to the target's content.
func (s *Source) article(key string, off uint64) string {
	raw := decodeText(s.mdx.ReadAtOffset(int(off)), s.encoding)
	visited := map[string]bool{key: true}
	for i := 0; i < maxRedirects; i++ {
		target := parseRedirect(raw)
		if target == "" || visited[target] {
			break
		}
		visited[target] = true
		offs := s.keymap[target]
		if len(offs) == 0 {
			break
		}
		raw = decodeText(s.mdx.ReadAtOffset(int(offs[0])), s.encoding)
	}
	body := strings.TrimSpace(util.ReplaceLINK(raw))
	if body == "" {
		return ""
	}
	return dict.RewriteLinks(body)
}

func (s *Source) walkVolume(ctx context.Context, path string, fn func(dict.Article) error) error {
	mdd := &decoder.MDict{}
	if err := mdd.Decode(path, false); err != nil {
		return fmt.Errorf("%w: mdd %s: %v", dict.ErrFormat, path, err)
	}
	_ = mdd.Keys()
	keymap := mdictKeyMap(mdd)
	names := make([]string, 0, len(keymap))
	for k := range keymap {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, raw := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		offs := keymap[raw]
		name := dict.CleanResourceName(raw)
		if name == "" || len(offs) == 0 {
			continue
		}
		data := mdd.ReadAtOffset(int(offs[0]))
		if isCSS(name) {
			data = []byte(decodeText(data, s.encoding))
		}
		if err := fn(dict.Article{Key: name, ContentType: dict.ResourceType(name), Content: data}); err != nil {
			return err
		}
	}
	return nil
}

// walkStylesheets stores the .css files found next to the .mdx, which many
// MDict packages ship outside the .mdd volumes.
func (s *Source) walkStylesheets(ctx context.Context, fn func(dict.Article) error) error {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.path), "*.css"))
	if err != nil {
		return nil
	}
	sort.Strings(matches)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		name := filepath.Base(m)
		content := []byte(decodeText(data, s.encoding))
		if err := fn(dict.Article{Key: name, ContentType: dict.ResourceType(name), Content: content}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) Close() error {
	return nil
}

func isCSS(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".css")
}

func mdictEncoding(m *decoder.MDict) string {
	if enc := mdictString(m, "encoding"); enc != "" {
		return enc
	}
	return "UTF-8"
}

// mdictString reads an unexported string field of the decoder.
func mdictString(m *decoder.MDict, field string) string {
	v := reflect.ValueOf(m).Elem().FieldByName(field)
	if v.IsValid() && v.Kind() == reflect.String {
		return v.String()
	}
	return ""
}

func mdictKeyMap(m *decoder.MDict) map[string][]uint64 {
	v := reflect.ValueOf(m).Elem().FieldByName("keymap")
	if !v.IsValid() || v.Kind() != reflect.Map || v.IsNil() {
		return nil
	}
	out := make(map[string][]uint64, v.Len())
	for _, k := range v.MapKeys() {
		vals := v.MapIndex(k)
		offs := make([]uint64, 0, vals.Len())
		for i := 0; i < vals.Len(); i++ {
			offs = append(offs, vals.Index(i).Uint())
		}
		out[k.String()] = offs
	}
	return out
}

func resourceVolumes(mdxPath string) []string {
	base := strings.TrimSuffix(mdxPath, filepath.Ext(mdxPath))
	var paths []string
	if _, err := os.Stat(base + ".mdd"); err == nil {
		paths = append(paths, base+".mdd")
	}
	for vol := 1; ; vol++ {
		p := base + "." + strconv.Itoa(vol) + ".mdd"
		if _, err := os.Stat(p); err != nil {
			break
		}
		paths = append(paths, p)
	}
	return paths
}

func parseRedirect(raw string) string {
	if !strings.HasPrefix(raw, "@@@LINK=") {
		return ""
	}
	target := strings.TrimPrefix(raw, "@@@LINK=")
	target = strings.TrimRight(target, "\x00")
	return strings.TrimSpace(strings.TrimRight(target, "\r\n"))
}
