package persistence

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// File is a Snapshotter backed by a single plain file, written atomically
// via a temp-file-plus-rename so a crash mid-Save never corrupts the
// previous snapshot.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load() (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening snapshot file")
	}
	return file, nil
}

func (f *File) Save(r io.Reader) error {
	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return errors.Wrap(err, "creating temporary snapshot file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing temporary snapshot file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temporary snapshot file")
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return errors.Wrap(err, "renaming temporary snapshot file into place")
	}
	return nil
}
