package dict

import (
	"mime"
	"path"
	"strings"
)

var (
	imageExts = []string{".jpg", ".jpeg", ".jpe", ".png", ".gif", ".bmp", ".tif", ".tiff", ".ico", ".webp", ".svg"}
	soundExts = []string{".wav", ".au", ".ogg", ".oga", ".mp3", ".m4a", ".aac", ".flac", ".mid", ".wma", ".opus", ".spx"}
)

// ResourceType guesses the content type of a bundled resource from its name.
func ResourceType(name string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(name)))
	if ext == "" {
		return "application/octet-stream"
	}
	switch ext {
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "text/javascript; charset=utf-8"
	case ".spx":
		return "audio/ogg"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	switch {
	case hasExt(ext, imageExts):
		return "image/" + strings.TrimPrefix(ext, ".")
	case hasExt(ext, soundExts):
		return "audio/" + strings.TrimPrefix(ext, ".")
	}
	return "application/octet-stream"
}

func hasExt(ext string, exts []string) bool {
	for _, e := range exts {
		if e == ext {
			return true
		}
	}
	return false
}
