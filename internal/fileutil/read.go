package fileutil

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrTooLarge is returned by ReadLimited when the file exceeds the limit.
var ErrTooLarge = errors.New("file exceeds size limit")

// ReadLimited reads at most limit bytes from path. A longer file is an error
// rather than a silent truncation.
func ReadLimited(path string, limit int64) ([]byte, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	f, err := os.Open(path) //nolint:gosec // G304: path is built by the calling store
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if int64(len(data)) > limit {
		return nil, ErrTooLarge
	}
	return data, nil
}
