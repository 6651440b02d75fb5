package multipart

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/kloudfuse/go-uploadutils/internal"
)

const copyBufferSize = 32 * 1024

// ErrBodyClosed is reported to the producer when the consumer closes the body
// before reading it to the end.
var ErrBodyClosed = errors.New("multipart body closed")

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Option configures a Body.
type Option func(*Body)

// WithOpener sets the file system used to open file parts.
func WithOpener(opener internal.OsProxy) Option {
	return func(b *Body) {
		b.opener = opener
	}
}

// WithCompressionLevel sets the gzip level used for file parts.
func WithCompressionLevel(level int) Option {
	return func(b *Body) {
		b.level = level
	}
}

// Body is a streaming multipart/form-data request body. Nothing is opened
// until the first Read. Every Body must be closed; Close waits until all files
// opened for it have been released.
type Body struct {
	payload *Payload
	opener  internal.OsProxy
	level   int

	pr *io.PipeReader
	pw *io.PipeWriter
	mw *multipart.Writer

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

// NewBody validates the payload and prepares a body for it.
func NewBody(payload *Payload, opts ...Option) (*Body, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}

	pr, pw := io.Pipe()
	b := &Body{
		payload: payload,
		opener:  internal.RealOS{},
		level:   gzip.DefaultCompression,
		pr:      pr,
		pw:      pw,
		mw:      multipart.NewWriter(pw),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	if _, err := gzip.NewWriterLevel(io.Discard, b.level); err != nil {
		return nil, fmt.Errorf("invalid compression level: %w", err)
	}

	return b, nil
}

// ContentType returns the multipart/form-data content type including the boundary.
func (b *Body) ContentType() string {
	return b.mw.FormDataContentType()
}

// Boundary ...
func (b *Body) Boundary() string {
	return b.mw.Boundary()
}

// Read starts the producer on first use and reads encoded bytes from it.
func (b *Body) Read(p []byte) (int, error) {
	b.startOnce.Do(b.start)
	return b.pr.Read(p)
}

// Close stops the producer and releases every file it opened.
func (b *Body) Close() error {
	b.closeOnce.Do(func() {
		// never started: nothing to wait for
		b.startOnce.Do(func() { close(b.done) })
		_ = b.pr.CloseWithError(ErrBodyClosed)
		<-b.done
	})
	return nil
}

func (b *Body) start() {
	go func() {
		defer close(b.done)
		_ = b.pw.CloseWithError(b.write())
	}()
}

func (b *Body) write() error {
	for _, part := range b.payload.parts {
		switch value := part.Value.(type) {
		case StringValue:
			if err := b.writeString(part.Name, value); err != nil {
				return fmt.Errorf("write part %q: %w", part.Name, err)
			}
		case FileValue:
			if err := b.writeFile(part.Name, value); err != nil {
				return fmt.Errorf("write part %q: %w", part.Name, err)
			}
		default:
			return fmt.Errorf("unsupported value type for part %q: %T", part.Name, value)
		}
	}

	return b.mw.Close()
}

func (b *Body) writeString(name string, value StringValue) error {
	w, err := b.mw.CreatePart(partHeader(name, value.Filename, value.ContentType))
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, value.Value)
	return err
}

func (b *Body) writeFile(name string, value FileValue) (err error) {
	file, err := b.opener.Open(value.Path)
	if err != nil {
		return fmt.Errorf("open file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close file: %w", cerr)
		}
	}()

	contentType := value.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w, err := b.mw.CreatePart(partHeader(name, value.Filename, contentType))
	if err != nil {
		return err
	}

	zw, err := gzip.NewWriterLevel(w, b.level)
	if err != nil {
		return fmt.Errorf("create gzip writer: %w", err)
	}

	// hide WriterTo so the fixed buffer bounds memory
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(zw, struct{ io.Reader }{file}, buf); err != nil {
		return fmt.Errorf("compress %s: %w", value.Path, err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close gzip writer: %w", err)
	}
	return nil
}

func partHeader(name, filename, contentType string) textproto.MIMEHeader {
	disposition := fmt.Sprintf(`form-data; name="%s"`, quoteEscaper.Replace(name))
	if filename != "" {
		disposition += fmt.Sprintf(`; filename="%s"`, quoteEscaper.Replace(filename))
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", disposition)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return h
}
