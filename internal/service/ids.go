package service

import (
	"strings"
	"unicode"

	"github.com/google/uuid"
)

const maxSlugLen = 60

func newID() string {
	return uuid.NewString()
}

// namespaceFor derives a stable, readable namespace for a project. The slug
// keeps namespaces debuggable; the uuid suffix keeps them unique even when
// two projects share a name.
func namespaceFor(name string) string {
	slug := slugify(name)
	suffix := strings.Split(uuid.NewString(), "-")[0]
	if slug == "" {
		return suffix
	}
	return slug + "-" + suffix
}

func slugify(s string) string {
	var sb strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastDash = false
		case !lastDash:
			sb.WriteByte('-')
			lastDash = true
		}
		if sb.Len() >= maxSlugLen {
			break
		}
	}
	return strings.Trim(sb.String(), "-")
}
