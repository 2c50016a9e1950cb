package facestore

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SanitizeFolderName maps a display name to an ASCII folder name:
// "Nguyễn Văn A" becomes "Nguyen_Van_A".
func SanitizeFolderName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, name)
	if err != nil {
		stripped = name
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FolderName is the photo directory name for an identity.
func FolderName(id, name string) string {
	return id + "_" + SanitizeFolderName(name)
}
