package internal

import (
	"io"
	"os"
)

// OsProxy is the file-system seam used when reading artifacts from disk.
// Payload streaming opens files through it and validation stats them, so tests
// can observe that every opened file is released.
type OsProxy interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
}

// RealOS is the default implementation that delegates to the real os package.
type RealOS struct{}

func (RealOS) Stat(name string) (os.FileInfo, error)   { return os.Stat(name) } //nolint:revive
func (RealOS) Open(name string) (io.ReadCloser, error) { return os.Open(name) } //nolint:revive
