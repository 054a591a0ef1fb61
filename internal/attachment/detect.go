package attachment

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrEmpty is returned by DetectExtension when the upload carries no bytes.
var ErrEmpty = errors.New("empty file")

// sniffLen matches the default read limit of the mimetype detector.
const sniffLen = 3072

const fallbackExtension = "bin"

// Container formats the sniffer reports for many unrelated file kinds.
// The client file name is a better hint for these.
var genericExtensions = map[string]bool{
	"zip": true,
	"xml": true,
}

// DetectExtension infers the stored extension of an upload.
//
// The first bytes are sniffed for magic numbers; if that yields nothing useful
// the extension of filename is used, then "bin". The returned reader replays
// the sniffed prefix followed by the rest of r.
func DetectExtension(r io.Reader, filename string) (string, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	if n == 0 {
		return "", nil, ErrEmpty
	}
	head = head[:n]
	replay := io.MultiReader(bytes.NewReader(head), r)

	ext := strings.TrimPrefix(mimetype.Detect(head).Extension(), ".")
	if ext == "" || genericExtensions[ext] {
		if fromName := nameExtension(filename); fromName != "" {
			ext = fromName
		}
	}
	if ext == "" {
		ext = fallbackExtension
	}
	return ext, replay, nil
}

// nameExtension returns the lower-cased extension of a client file name,
// or "" when it is missing or not a plain alphanumeric token.
func nameExtension(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" || len(ext) > 16 {
		return ""
	}
	for _, c := range ext {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}
