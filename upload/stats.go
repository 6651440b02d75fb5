package upload

import (
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Stats collects the transfer figures of an Uploader: every request handed to
// the transport, the retries among them and the encoded bytes it consumed.
type Stats struct {
	mu        sync.Mutex
	attempts  int
	retries   int
	bytesSent int64
	uploaded  int
	uploadSum time.Duration
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Attempts  int
	Retries   int
	BytesSent int64
	Uploaded  int
	Elapsed   time.Duration
}

func newStats() *Stats {
	return &Stats{}
}

// recordAttempt counts one transport call. attempt is 1-based; anything past
// the first is a retry.
func (s *Stats) recordAttempt(attempt int, sent int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if attempt > 1 {
		s.retries++
	}
	s.bytesSent += sent
}

func (s *Stats) recordUpload(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploaded++
	s.uploadSum += d
}

// Snapshot ...
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		Attempts:  s.attempts,
		Retries:   s.retries,
		BytesSent: s.bytesSent,
		Uploaded:  s.uploaded,
		Elapsed:   s.uploadSum,
	}
}

// Average returns the mean duration of successful uploads.
func (s StatsSnapshot) Average() time.Duration {
	if s.Uploaded == 0 {
		return 0
	}
	return s.Elapsed / time.Duration(s.Uploaded)
}

// Since returns what was recorded between prev and s.
func (s StatsSnapshot) Since(prev StatsSnapshot) StatsSnapshot {
	return StatsSnapshot{
		Attempts:  s.Attempts - prev.Attempts,
		Retries:   s.Retries - prev.Retries,
		BytesSent: s.BytesSent - prev.BytesSent,
		Uploaded:  s.Uploaded - prev.Uploaded,
		Elapsed:   s.Elapsed - prev.Elapsed,
	}
}

// countingReader counts the bytes a transport pulled from a body. The count is
// read after the transport returns, possibly while its writer goroutine winds
// down.
type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
