package service

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// Slug lowercases s and collapses every run of non-alphanumerics into one
// dash. The result is stable for a given input.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "untitled"
	}
	return out
}

// PlaceholderURL builds a deterministic stock image URL, e.g.
// https://picsum.photos/seed/<seed>/<w>/<h>. The slug is path-escaped.
func PlaceholderURL(base, seed string, w, h int) string {
	return fmt.Sprintf("%s/%s/%d/%d", strings.TrimSuffix(base, "/"), url.PathEscape(Slug(seed)), w, h)
}
