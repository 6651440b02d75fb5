package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kloudfuse/go-uploadutils/multipart"
	"github.com/kloudfuse/go-uploadutils/network"
	"github.com/kloudfuse/go-uploadutils/retry"
)

type fakeJob struct {
	name       string
	path       string
	payloadErr error
	panicValue interface{}
}

func newFakeJob(t *testing.T, name string) *fakeJob {
	t.Helper()
	pth := filepath.Join(t.TempDir(), name+".js.map")
	require.NoError(t, os.WriteFile(pth, []byte(`{"version":3,"sources":["`+name+`.ts"]}`), 0644))
	return &fakeJob{name: name, path: pth}
}

func (j *fakeJob) Name() string {
	return j.name
}

func (j *fakeJob) MultipartPayload() (*multipart.Payload, error) {
	if j.panicValue != nil {
		panic(j.panicValue)
	}
	if j.payloadErr != nil {
		return nil, j.payloadErr
	}
	payload := multipart.NewPayload()
	payload.Set(multipart.MetadataPart, multipart.StringValue{
		Value:       `{"name":"` + j.name + `"}`,
		ContentType: "application/json",
		Filename:    "metadata",
	})
	payload.Set("sourcemap", multipart.FileValue{Path: j.path, ContentType: "application/gzip", Filename: "sourcemap"})
	return payload, nil
}

type recordedRequest struct {
	name        string
	contentType string
	body        []byte
}

// fakeTransport consumes every body and answers with respond, or 200 when nil.
type fakeTransport struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(req *network.Request, attempt int) error
	attempts map[string]int
}

func (f *fakeTransport) Do(ctx context.Context, req *network.Request) (*network.Response, error) {
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = map[string]int{}
	}
	f.attempts[req.Name]++
	attempt := f.attempts[req.Name]
	f.requests = append(f.requests, recordedRequest{name: req.Name, contentType: req.ContentType, body: data})
	f.mu.Unlock()

	if f.respond != nil {
		if err := f.respond(req, attempt); err != nil {
			return nil, err
		}
	}
	return &network.Response{StatusCode: 200, Status: "200 OK"}, nil
}

func (f *fakeTransport) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) bytesReceived() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, req := range f.requests {
		n += int64(len(req.body))
	}
	return n
}

type mockObserver struct {
	mock.Mock
}

func (m *mockObserver) OnUpload(job Job) {
	m.Called(job)
}

func (m *mockObserver) OnDryRun(job Job) {
	m.Called(job)
}

func (m *mockObserver) OnRetry(job Job, err error, attempt int) {
	m.Called(job, err, attempt)
}

func (m *mockObserver) OnError(job Job, err error) {
	m.Called(job, err)
}

func (m *mockObserver) OnInvalid(job Job, err *InvalidPayloadError) {
	m.Called(job, err)
}

func (m *mockObserver) OnUnexpectedError(job Job, err error) {
	m.Called(job, err)
}

func fastPolicy(maxAttempts int) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.BaseDelay = time.Millisecond
	p.MaxDelay = 2 * time.Millisecond
	return p
}
