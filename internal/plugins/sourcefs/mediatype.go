package sourcefs

import (
	"mime"
	"strings"
)

// markdown extensions are not in every system mime table.
var known = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".mdown":    "text/markdown",
	".mkd":      "text/markdown",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".json":     "application/json",
}

// MediaType guesses the media type from a file extension.
func MediaType(ext string) string {
	ext = strings.ToLower(ext)
	if t, ok := known[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return "application/octet-stream"
}
