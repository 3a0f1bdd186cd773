package dsl

import (
	"html"
	"regexp"
	"strings"

	"github.com/sagerenn/lexis/internal/dict"
)

var (
	tagRe     = regexp.MustCompile(`\[(/?)([a-z!'*]+[0-9]?)(?:\s+([^\]]*))?\]`)
	commentRe = regexp.MustCompile(`\{\{.*?\}\}`)
)

const (
	escOpen  = "\x01"
	escClose = "\x02"
)

func renderCard(lines []string) string {
	var b strings.Builder
	b.WriteString(`<div class="dsl">`)
	for _, l := range lines {
		r := renderLine(l)
		if r == "" {
			continue
		}
		if !strings.HasPrefix(r, "<div") {
			r = "<div>" + r + "</div>"
		}
		b.WriteString(r)
	}
	b.WriteString(`</div>`)
	return b.String()
}

// renderLine translates the DSL tags of one body line to HTML. Text inside
// [ref] and <<>> becomes a link to the referenced headword and text inside [s]
// a link to a bundled resource.
func renderLine(line string) string {
	line = commentRe.ReplaceAllString(line, "")
	line = strings.ReplaceAll(line, `\[`, escOpen)
	line = strings.ReplaceAll(line, `\]`, escClose)
	line = strings.ReplaceAll(line, "<<", "[ref]")
	line = strings.ReplaceAll(line, ">>", "[/ref]")

	var (
		out     strings.Builder
		capture string
		buf     strings.Builder
		open    []string
	)
	text := func(s string) {
		s = unescape(s)
		if capture != "" {
			buf.WriteString(s)
			return
		}
		out.WriteString(html.EscapeString(s))
	}

	last := 0
	for _, m := range tagRe.FindAllStringSubmatchIndex(line, -1) {
		text(line[last:m[0]])
		last = m[1]
		closing := line[m[2]:m[3]] == "/"
		name := line[m[4]:m[5]]
		arg := ""
		if m[6] >= 0 {
			arg = line[m[6]:m[7]]
		}
		switch {
		case name == "ref" || name == "s" || name == "url":
			if !closing {
				capture = name
				buf.Reset()
				continue
			}
			if capture == name {
				out.WriteString(link(name, strings.TrimSpace(buf.String())))
				capture = ""
			}
		case closing:
			if tag := closeTag(name); tag != "" {
				out.WriteString(tag)
				if n := len(open); n > 0 {
					open = open[:n-1]
				}
			}
		default:
			if tag := openTag(name, arg); tag != "" {
				out.WriteString(tag)
				open = append(open, name)
			}
		}
	}
	text(line[last:])
	if capture != "" {
		out.WriteString(html.EscapeString(buf.String()))
	}
	for i := len(open) - 1; i >= 0; i-- {
		out.WriteString(closeTag(open[i]))
	}
	return strings.TrimSpace(out.String())
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, escOpen, "[")
	s = strings.ReplaceAll(s, escClose, "]")
	return strings.ReplaceAll(s, `\`, "")
}

func openTag(name, arg string) string {
	switch {
	case name == "b", name == "i", name == "u", name == "sub", name == "sup":
		return "<" + name + ">"
	case name == "c":
		if arg == "" {
			return `<span class="c">`
		}
		return `<span style="color:` + html.EscapeString(arg) + `">`
	case name == "m" || (len(name) == 2 && name[0] == 'm'):
		return `<div class="` + name + `">`
	case name == "p":
		return `<abbr>`
	case name == "ex", name == "com", name == "trn", name == "!trs", name == "*", name == "lang", name == "'":
		return `<span class="` + className(name) + `">`
	}
	return ""
}

func closeTag(name string) string {
	switch {
	case name == "b", name == "i", name == "u", name == "sub", name == "sup":
		return "</" + name + ">"
	case name == "m" || (len(name) == 2 && name[0] == 'm'):
		return `</div>`
	case name == "p":
		return `</abbr>`
	case name == "c", name == "ex", name == "com", name == "trn", name == "!trs", name == "*", name == "lang", name == "'":
		return `</span>`
	}
	return ""
}

func className(name string) string {
	switch name {
	case "!trs":
		return "trs"
	case "*":
		return "opt"
	case "'":
		return "stress"
	}
	return name
}

func link(kind, target string) string {
	if target == "" {
		return ""
	}
	label := html.EscapeString(target)
	switch kind {
	case "s":
		ref := html.EscapeString(dict.ResourcePath(dict.CleanResourceName(target)))
		ct := dict.ResourceType(target)
		switch {
		case strings.HasPrefix(ct, "image/"):
			return `<img src="` + ref + `"/>`
		case strings.HasPrefix(ct, "audio/"):
			return `<audio controls src="` + ref + `"></audio>`
		}
		return `<a href="` + ref + `">` + label + `</a>`
	case "url":
		return `<a href="` + label + `">` + label + `</a>`
	}
	return `<a href="` + html.EscapeString(dict.RelativeRef(target)) + `">` + label + `</a>`
}
