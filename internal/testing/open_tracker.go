package testing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kloudfuse/go-uploadutils/internal"
)

// ErrInjectedRead is returned by readers of paths registered with FailReadsOf.
var ErrInjectedRead = errors.New("injected read failure")

// OpenTracker wraps RealOS and records every Open and the matching Close.
type OpenTracker struct {
	internal.RealOS

	mu        sync.Mutex
	opened    int
	closed    int
	failReads map[string]bool
}

// NewOpenTracker creates a tracker backed by the real file system.
func NewOpenTracker() *OpenTracker {
	return &OpenTracker{failReads: map[string]bool{}}
}

// FailReadsOf makes reads from the file at path fail after it was opened.
func (t *OpenTracker) FailReadsOf(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failReads[path] = true
}

// Open opens name and counts it as held until the returned reader is closed.
func (t *OpenTracker) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened++

	var r io.Reader = f
	if t.failReads[name] {
		r = failingReader{}
	}
	return &trackedFile{Reader: r, file: f, tracker: t}, nil
}

// Held returns the number of files opened and not yet closed.
func (t *OpenTracker) Held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened - t.closed
}

// Opened returns the total number of Open calls that succeeded.
func (t *OpenTracker) Opened() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened
}

type trackedFile struct {
	io.Reader
	file    *os.File
	tracker *OpenTracker
	once    sync.Once
}

func (f *trackedFile) Close() error {
	var err error
	f.once.Do(func() {
		err = f.file.Close()
		f.tracker.mu.Lock()
		f.tracker.closed++
		f.tracker.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("close %s: %w", f.file.Name(), err)
	}
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, ErrInjectedRead }
