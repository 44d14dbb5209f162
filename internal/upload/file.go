package upload

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/go-units"
	"github.com/gabriel-vasile/mimetype"
)

// File is the source of an upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.ReaderAt
}

// OpenFile opens a local file and detects its content type from its leading bytes,
// falling back to the file extension when the content is not recognized.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, &Error{Kind: KindInvalidFile, Message: fmt.Sprintf("%s is a directory", path)}
	}

	mt, err := mimetype.DetectReader(io.NewSectionReader(f, 0, info.Size()))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to detect content type: %v", err)
	}
	contentType := mt.String()
	if mt.Is("application/octet-stream") {
		if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
			contentType = byExt
		}
	}
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return &File{
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
		Body:        f,
	}, nil
}

// Close closes the underlying file, if any.
func (f *File) Close() error {
	if c, ok := f.Body.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (f *File) validate(maxSize int64) error {
	switch {
	case f == nil || f.Body == nil:
		return &Error{Kind: KindInvalidFile, Message: "no file selected"}
	case !strings.HasPrefix(f.ContentType, "video/"):
		return &Error{Kind: KindInvalidFile, Message: fmt.Sprintf("%q is not a video", f.ContentType)}
	case f.Size <= 0:
		return &Error{Kind: KindInvalidFile, Message: "file is empty"}
	case f.Size > maxSize:
		return &Error{Kind: KindInvalidFile, Message: fmt.Sprintf("file is %s, larger than the %s limit", units.BytesSize(float64(f.Size)), units.BytesSize(float64(maxSize)))}
	}
	return nil
}
