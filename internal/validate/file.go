package validate

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileBytes is the upload size limit applied when none is
// configured.
const DefaultMaxFileBytes int64 = 20 << 20

// AllowedVideoTypes lists the declared content types the upload form
// accepts.
var AllowedVideoTypes = []string{"video/mp4", "video/avi", "video/quicktime"}

// sniffedVideoTypes are the detected types that correspond to the allowed
// declared types. AVI sniffs as video/x-msvideo.
var sniffedVideoTypes = []string{"video/mp4", "video/x-msvideo", "video/quicktime"}

const (
	msgFileRequired = "Please select a file"
	msgFileType     = "File must be in MP4, AVI, or MOV format"
)

// FileInfo describes an accepted upload.
type FileInfo struct {
	Filename string
	Size     int64
	MimeType string
}

// File validates an uploaded file. declared is the client-supplied content
// type, which may be empty or application/octet-stream when the client did
// not know it; the sniffed content must be an allowed video type either
// way. r is read only as far as needed to sniff the content.
func File(filename, declared string, size int64, r io.Reader, maxBytes int64) (*FileInfo, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	if r == nil || size == 0 {
		return nil, FieldErrors{"file": msgFileRequired}
	}
	if size > maxBytes {
		return nil, FieldErrors{"file": fmt.Sprintf("File size must be less than %dMB", maxBytes>>20)}
	}

	if d := normalizeType(declared); d != "" && d != "application/octet-stream" && !contains(AllowedVideoTypes, d) {
		return nil, FieldErrors{"file": msgFileType}
	}

	detected, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, fmt.Errorf("sniff upload: %w", err)
	}
	sniffed := ""
	for _, t := range sniffedVideoTypes {
		if detected.Is(t) {
			sniffed = t
			break
		}
	}
	if sniffed == "" {
		return nil, FieldErrors{"file": msgFileType}
	}

	return &FileInfo{Filename: filename, Size: size, MimeType: sniffed}, nil
}

// FileHeader validates a multipart file part.
func FileHeader(fh *multipart.FileHeader, maxBytes int64) (*FileInfo, error) {
	if fh == nil {
		return nil, FieldErrors{"file": msgFileRequired}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()
	return File(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, f, maxBytes)
}

func normalizeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return strings.ToLower(mt)
	}
	return strings.ToLower(t)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
