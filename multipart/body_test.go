package multipart

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	itesting "github.com/kloudfuse/go-uploadutils/internal/testing"
)

type parsedPart struct {
	name        string
	filename    string
	contentType string
	data        []byte
}

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	pth := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(pth, content, 0644))
	return pth
}

func parseBody(t *testing.T, contentType string, data []byte) []parsedPart {
	t.Helper()
	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	require.Equal(t, "multipart/form-data", mediaType)

	var parts []parsedPart
	reader := multipart.NewReader(bytes.NewReader(data), params["boundary"])
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		content, err := io.ReadAll(part)
		require.NoError(t, err)
		parts = append(parts, parsedPart{
			name:        part.FormName(),
			filename:    part.FileName(),
			contentType: part.Header.Get("Content-Type"),
			data:        content,
		})
	}
	return parts
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	return out
}

func TestBody_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	sourcemap := make([]byte, 256*1024)
	rand.New(rand.NewSource(42)).Read(sourcemap)
	sourcemapPath := writeFile(t, dir, "main.js.map", sourcemap)

	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: `{"service":"web"}`, ContentType: "application/json", Filename: "metadata"})
	payload.Set("sourcemap", FileValue{Path: sourcemapPath, ContentType: "application/gzip", Filename: "sourcemap"})

	tracker := itesting.NewOpenTracker()
	body, err := NewBody(payload, WithOpener(tracker))
	require.NoError(t, err)

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	parts := parseBody(t, body.ContentType(), data)
	require.Len(t, parts, 2)

	assert.Equal(t, "metadata", parts[0].name)
	assert.Equal(t, "metadata", parts[0].filename)
	assert.Equal(t, "application/json", parts[0].contentType)
	assert.Equal(t, `{"service":"web"}`, string(parts[0].data))

	assert.Equal(t, "sourcemap", parts[1].name)
	assert.Equal(t, "sourcemap", parts[1].filename)
	assert.Equal(t, "application/gzip", parts[1].contentType)
	assert.Equal(t, sourcemap, gunzip(t, parts[1].data))

	assert.Equal(t, 1, tracker.Opened())
	assert.Equal(t, 0, tracker.Held())
}

func TestBody_PreservesInsertionOrder(t *testing.T) {
	dir := t.TempDir()
	filePath := writeFile(t, dir, "a.js.map", []byte("{}"))

	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: "1"})
	payload.Set("sourcemap", FileValue{Path: filePath})
	payload.Set("repository", StringValue{Value: "2", ContentType: "application/json"})
	payload.Set("metadata", StringValue{Value: "3"})

	body, err := NewBody(payload)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)

	parts := parseBody(t, body.ContentType(), data)
	require.Len(t, parts, 3)
	assert.Equal(t, []string{"metadata", "sourcemap", "repository"}, []string{parts[0].name, parts[1].name, parts[2].name})
	assert.Equal(t, "3", string(parts[0].data))
	assert.Equal(t, "application/octet-stream", parts[1].contentType)
}

func TestBody_ReleasesFilesOnReadFailure(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.js.map", []byte("first"))
	second := writeFile(t, dir, "second.js.map", []byte("second"))

	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: "{}"})
	payload.Set("first", FileValue{Path: first})
	payload.Set("second", FileValue{Path: second})

	tracker := itesting.NewOpenTracker()
	tracker.FailReadsOf(second)

	body, err := NewBody(payload, WithOpener(tracker))
	require.NoError(t, err)

	_, err = io.ReadAll(body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, itesting.ErrInjectedRead))
	require.NoError(t, body.Close())

	assert.Equal(t, 2, tracker.Opened())
	assert.Equal(t, 0, tracker.Held())
}

func TestBody_MissingFile(t *testing.T) {
	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: "{}"})
	payload.Set("sourcemap", FileValue{Path: filepath.Join(t.TempDir(), "missing.js.map")})

	tracker := itesting.NewOpenTracker()
	body, err := NewBody(payload, WithOpener(tracker))
	require.NoError(t, err)

	_, err = io.ReadAll(body)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	require.NoError(t, body.Close())
	assert.Equal(t, 0, tracker.Held())
}

func TestBody_CloseBeforeRead(t *testing.T) {
	dir := t.TempDir()
	filePath := writeFile(t, dir, "a.js.map", []byte("{}"))

	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: "{}"})
	payload.Set("sourcemap", FileValue{Path: filePath})

	tracker := itesting.NewOpenTracker()
	body, err := NewBody(payload, WithOpener(tracker))
	require.NoError(t, err)
	require.NoError(t, body.Close())
	require.NoError(t, body.Close())

	assert.Equal(t, 0, tracker.Opened())

	_, err = body.Read(make([]byte, 10))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestBody_CloseMidStream(t *testing.T) {
	dir := t.TempDir()
	large := make([]byte, 4*1024*1024)
	rand.New(rand.NewSource(7)).Read(large)
	filePath := writeFile(t, dir, "large.js.map", large)

	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: "{}"})
	payload.Set("sourcemap", FileValue{Path: filePath})

	tracker := itesting.NewOpenTracker()
	body, err := NewBody(payload, WithOpener(tracker))
	require.NoError(t, err)

	_, err = io.ReadFull(body, make([]byte, 1024))
	require.NoError(t, err)
	require.NoError(t, body.Close())

	assert.Equal(t, 1, tracker.Opened())
	assert.Equal(t, 0, tracker.Held())
}

func TestNewBody_InvalidPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload func() *Payload
	}{
		{
			name:    "nil payload",
			payload: func() *Payload { return nil },
		},
		{
			name: "no metadata",
			payload: func() *Payload {
				p := NewPayload()
				p.Set("sourcemap", FileValue{Path: "a.js.map"})
				return p
			},
		},
		{
			name: "metadata is a file",
			payload: func() *Payload {
				p := NewPayload()
				p.Set("metadata", FileValue{Path: "metadata.json"})
				p.Set("sourcemap", FileValue{Path: "a.js.map"})
				return p
			},
		},
		{
			name: "no file part",
			payload: func() *Payload {
				p := NewPayload()
				p.Set("metadata", StringValue{Value: "{}"})
				return p
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBody(tt.payload())
			assert.Error(t, err)
		})
	}
}

func TestNewBody_InvalidCompressionLevel(t *testing.T) {
	payload := NewPayload()
	payload.Set("metadata", StringValue{Value: "{}"})
	payload.Set("sourcemap", FileValue{Path: "a.js.map"})

	_, err := NewBody(payload, WithCompressionLevel(42))
	assert.Error(t, err)
}
