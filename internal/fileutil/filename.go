package fileutil

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename sanitizes a string for safe use in filenames. An
// input that sanitizes to nothing yields fallback.
func SanitizeForFilename(input, fallback string) string {
	// Illegal chars: / \ : * ? " < > |
	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-.")

	if r := []rune(sanitized); len(r) > 50 {
		sanitized = strings.TrimRight(string(r[:50]), "-")
	}
	if sanitized == "" {
		return fallback
	}
	return sanitized
}

// Stem returns the base name of a local path without its extension.
func Stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// URLStem derives a file stem from a media URL: the last path element
// without extension, or the host when the path is empty.
func URLStem(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	if last := path.Base(u.Path); last != "" && last != "/" && last != "." {
		return strings.TrimSuffix(last, path.Ext(last))
	}
	return u.Hostname()
}
