package markdown

import (
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify lowercases s, strips diacritics and joins the remaining words
// with dashes: "Café Über" becomes "cafe-uber".
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, s)
	if err != nil {
		plain = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// PathSlug turns a relative file path into a page path. Index files map to
// their directory: "blog/Hello World.md" is "/blog/hello-world/" and
// "blog/index.md" is "/blog/".
func PathSlug(rel string) string {
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	var parts []string
	for _, seg := range strings.Split(rel, "/") {
		if s := Slugify(seg); s != "" {
			parts = append(parts, s)
		}
	}
	if n := len(parts); n > 0 && parts[n-1] == "index" {
		parts = parts[:n-1]
	}
	if len(parts) == 0 {
		return "/"
	}
	return "/" + strings.Join(parts, "/") + "/"
}
