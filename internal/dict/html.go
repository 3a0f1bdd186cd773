package dict

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var attrRe = regexp.MustCompile(`(?i)(\b(?:src|href)\s*=\s*)(\"|')([^\"']+)(\"|')`)

// EntryURL builds the bridge URL of a search hit.
func EntryURL(dictID, term string, termID int) string {
	return "/slob/" + url.PathEscape(dictID) + "/" + url.PathEscape(term) + "?blob=" + strconv.Itoa(termID)
}

// RewriteLinks turns the internal link schemes found in converted articles
// (entry://, bword://, sound://) into relative references. Relative references
// resolve against /slob/{dictId}/ when the article is served by the bridge.
func RewriteLinks(html string) string {
	if html == "" {
		return html
	}
	var out strings.Builder
	out.Grow(len(html))
	last := 0
	for _, loc := range attrRe.FindAllStringSubmatchIndex(html, -1) {
		if len(loc) < 10 {
			continue
		}
		out.WriteString(html[last:loc[0]])
		out.WriteString(html[loc[2]:loc[3]])
		out.WriteString(html[loc[4]:loc[5]])
		out.WriteString(rewriteURL(html[loc[6]:loc[7]]))
		out.WriteString(html[loc[8]:loc[9]])
		last = loc[1]
	}
	out.WriteString(html[last:])
	return out.String()
}

func rewriteURL(rawURL string) string {
	u := strings.TrimSpace(rawURL)
	switch {
	case strings.HasPrefix(u, "entry://"):
		return relativeWithAnchor(u[len("entry://"):])
	case strings.HasPrefix(u, "bword://"):
		return relativeWithAnchor(u[len("bword://"):])
	case strings.HasPrefix(u, "bword:"):
		return relativeWithAnchor(u[len("bword:"):])
	case strings.HasPrefix(u, "sound://"):
		if name := CleanResourceName(decodePath(u[len("sound://"):])); name != "" {
			return ResourcePath(name)
		}
	}
	return rawURL
}

// RelativeRef is the bridge-relative reference to another headword.
func RelativeRef(term string) string {
	return url.PathEscape(term)
}

func relativeWithAnchor(raw string) string {
	parts := strings.SplitN(raw, "#", 2)
	ref := RelativeRef(decodePath(parts[0]))
	if len(parts) == 2 && parts[1] != "" {
		ref += "#" + parts[1]
	}
	return ref
}

func decodePath(p string) string {
	p = strings.SplitN(p, "?", 2)[0]
	p = strings.SplitN(p, "#", 2)[0]
	if decoded, err := url.PathUnescape(p); err == nil {
		return decoded
	}
	return p
}

// CleanResourceName normalizes a resource path and prevents directory traversal.
func CleanResourceName(name string) string {
	if name == "" {
		return ""
	}
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	name = strings.ReplaceAll(name, "\\", "/")
	clean := path.Clean("/" + name)
	if strings.HasPrefix(clean, "/..") {
		return ""
	}
	return strings.TrimPrefix(clean, "/")
}

// ResourcePath escapes each segment of a resource name for use as a relative
// reference.
func ResourcePath(name string) string {
	parts := strings.Split(name, "/")
	for i := range parts {
		parts[i] = url.PathEscape(parts[i])
	}
	return strings.Join(parts, "/")
}
