// Package media validates and encodes local audio/video sources and probes
// their duration.
package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize is the client-side soft limit for local sources (1 GiB).
const MaxFileSize int64 = 1 << 30

// DefaultLanguage is preselected for new file sources.
const DefaultLanguage = "de"

// Languages enumerates the selectable transcription languages in display
// order.
var Languages = []string{"de", "en", "en-GB", "es", "fr", "it", "ja", "ko", "pt-BR"}

// containerTypes maps supported container extensions to their MIME type.
// Files are validated by extension only and never decoded.
var containerTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
	".mpeg": "video/mpeg",
}

var (
	ErrUnsupportedFormat   = errors.New("unsupported media format")
	ErrFileTooLarge        = errors.New("file exceeds 1 GiB limit")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

// File describes a validated local source.
type File struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// MIMEType returns the MIME type for a supported file name, or "" if the
// extension is not supported.
func MIMEType(name string) string {
	return containerTypes[strings.ToLower(filepath.Ext(name))]
}

// IsSupported reports whether name carries a supported container extension.
func IsSupported(name string) bool {
	return MIMEType(name) != ""
}

// ValidateFile checks extension and size of the file at path.
func ValidateFile(path string) (*File, error) {
	mimeType := MIMEType(path)
	if mimeType == "" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, filepath.Base(path), info.Size())
	}
	return &File{
		Path:     path,
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Size:     info.Size(),
	}, nil
}

// NormalizeLanguage returns DefaultLanguage for "" and validates anything
// else against Languages.
func NormalizeLanguage(lang string) (string, error) {
	if lang == "" {
		return DefaultLanguage, nil
	}
	for _, l := range Languages {
		if l == lang {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
}
