package storage

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Disk gives access to files addressed relative to a base location.
type Disk interface {
	Read(path string) (io.ReadCloser, error)

	// Write replaces the content of path. Readers never observe a partially
	// written file.
	Write(path string, data io.Reader) error

	Exists(path string) (bool, error)

	Location() string
}

type LocalDisk struct {
	basepath string
}

func NewLocalDisk(basepath string) Disk {
	slog.Info("creating new local disk storage", "basepath", basepath)
	return &LocalDisk{basepath: basepath}
}

func (d *LocalDisk) fullpath(path string) string {
	return filepath.Join(d.basepath, path)
}

func (d *LocalDisk) Location() string {
	return d.basepath
}

func (d *LocalDisk) Read(path string) (io.ReadCloser, error) {
	fullpath := d.fullpath(path)
	file, err := os.Open(fullpath)
	if err != nil {
		slog.Error("error opening file for read", "path", fullpath, "error", err)
		return nil, fmt.Errorf("error reading file %v: %w", path, err)
	}

	return file, nil
}

func (d *LocalDisk) Write(path string, data io.Reader) error {
	fullpath := d.fullpath(path)

	err := os.MkdirAll(filepath.Dir(fullpath), 0777)
	if err != nil {
		slog.Error("error creating parent directory", "path", fullpath, "error", err)
		return fmt.Errorf("error creating parent directory %v: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullpath), "."+filepath.Base(fullpath)+".*")
	if err != nil {
		slog.Error("error creating temp file", "path", fullpath, "error", err)
		return fmt.Errorf("error creating temp file for %v: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		slog.Error("error writing to file", "path", tmp.Name(), "error", err)
		return fmt.Errorf("error writing to file %v: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		slog.Error("error closing temp file", "path", tmp.Name(), "error", err)
		return fmt.Errorf("error writing to file %v: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), fullpath); err != nil {
		slog.Error("error moving temp file into place", "path", fullpath, "error", err)
		return fmt.Errorf("error replacing file %v: %w", path, err)
	}

	return nil
}

func (d *LocalDisk) Exists(path string) (bool, error) {
	fullpath := d.fullpath(path)
	_, err := os.Stat(fullpath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	slog.Error("error checking if file exists", "path", fullpath, "error", err)
	return false, fmt.Errorf("error checking if file %v exists: %w", fullpath, err)
}
