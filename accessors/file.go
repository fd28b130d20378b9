package accessors

import (
	"context"
	"fmt"
	"os"
)

// FileAccessor reads byte ranges from a local, already-open file. It is
// safe for concurrent use by multiple goroutines: reads go through
// ReadAt, which does not share a file cursor.
type FileAccessor struct {
	file *os.File
}

// OpenFile opens path read-only and wraps it as a FileAccessor. The caller
// is responsible for calling Close when done.
func OpenFile(path string) (*FileAccessor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("accessors: open %s: %w", path, err)
	}
	return &FileAccessor{file: f}, nil
}

// NewFileAccessor wraps an already-open file.
func NewFileAccessor(f *os.File) *FileAccessor {
	return &FileAccessor{file: f}
}

// Read implements ncd.ReadAccessor.
func (a *FileAccessor) Read(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := ctxErr(ctx); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	if _, err := a.file.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("accessors: read %d bytes at %d: %w", length, offset, err)
	}
	return buf, nil
}

// Close closes the underlying file.
func (a *FileAccessor) Close() error {
	return a.file.Close()
}
