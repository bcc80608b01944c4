package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
)

// EncodeDataURI reads f and returns it as a base64 data URI, the
// transport-independent form handed to transcription backends.
func EncodeDataURI(f *File) (string, error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer src.Close()

	var b strings.Builder
	b.Grow(len("data:;base64,") + len(f.MIMEType) + base64.StdEncoding.EncodedLen(int(f.Size)))
	b.WriteString("data:")
	b.WriteString(f.MIMEType)
	b.WriteString(";base64,")

	enc := base64.NewEncoder(base64.StdEncoding, &b)
	if _, err := io.Copy(enc, src); err != nil {
		return "", fmt.Errorf("encode %s: %w", f.Name, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode %s: %w", f.Name, err)
	}
	return b.String(), nil
}

// DecodeDataURI splits a base64 data URI into its MIME type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URI: missing payload")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return "", nil, fmt.Errorf("data URI is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return mimeType, data, nil
}

// DataURIReader is DecodeDataURI for callers that stream the payload.
func DataURIReader(uri string) (string, io.Reader, error) {
	mimeType, data, err := DecodeDataURI(uri)
	if err != nil {
		return "", nil, err
	}
	return mimeType, bytes.NewReader(data), nil
}

// ExtensionFor returns the preferred file extension for a supported MIME
// type, used when a backend needs a file name for the payload.
func ExtensionFor(mimeType string) string {
	for ext, mt := range containerTypes {
		if mt == mimeType {
			return ext
		}
	}
	return ".bin"
}
