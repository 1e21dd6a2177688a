package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/dmorgan81/sdgen/internal/log"
)

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

// Uploader persists one object and reports where it ended up.
type Uploader interface {
	Upload(context.Context, UploadParams) (string, error)
}

type Invalidator interface {
	Invalidate(context.Context, []string) error
}

// FileUploader writes under Dir, creating it when missing. Existing files are overwritten.
// Writes are not atomic.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) (string, error) {
	path := filepath.Join(u.Dir, params.Name)
	log.FromContextOrDiscard(ctx).WithGroup("file").Info("writing", "file", path, "bytes", len(params.Data))

	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, params.Data, 0o644)
}
