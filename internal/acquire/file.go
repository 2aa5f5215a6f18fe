package acquire

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// FileAcquirer serves audio that already lives on the local filesystem.
type FileAcquirer struct{}

func (FileAcquirer) Acquire(_ context.Context, source string) (Media, error) {
	path := strings.TrimPrefix(source, "file://")
	info, err := os.Stat(path)
	if err != nil {
		return Media{}, fmt.Errorf("%w: %w", ErrAcquisition, err)
	}
	if info.IsDir() {
		return Media{}, fmt.Errorf("%w: %s is a directory", ErrAcquisition, path)
	}
	return Media{Path: path}, nil
}
