package keyvault

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Backend holds the encoded counter document. Load reports a missing
// document with an error matching fs.ErrNotExist.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	String() string
}

// FileBackend stores the document in a single file.
type FileBackend struct {
	fs   afero.Fs
	path string
}

func NewFileBackend(fs afero.Fs, path string) *FileBackend {
	return &FileBackend{fs: fs, path: path}
}

func (b *FileBackend) String() string { return "file:" + b.path }

func (b *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := afero.ReadFile(b.fs, b.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	return data, nil
}

// Save writes a temp file next to the target and renames it into place, so
// a crash mid-write leaves the previous document intact.
func (b *FileBackend) Save(_ context.Context, data []byte) error {
	if dir := filepath.Dir(b.path); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	tmp := b.path + ".tmp"
	if err := afero.WriteFile(b.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := b.fs.Rename(tmp, b.path); err != nil {
		_ = b.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
