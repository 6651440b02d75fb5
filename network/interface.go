package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Unbounded is the MaxBodyLength meaning no client-side limit.
const Unbounded int64 = -1

// Transport sends one fully formed request.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Request describes a single upload request. The body is streamed as-is and
// is never buffered by the transport.
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        io.Reader
	ContentType string

	// Name identifies the uploaded object for sinks that store it under a key.
	Name string

	// MaxBodyLength limits the number of body bytes sent. Zero or negative
	// means unbounded; the server enforces its own limit with 413 responses.
	MaxBodyLength int64
}

// Response ...
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	StatusText string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d", e.StatusCode)
}

// HTTPStatusCode ...
func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

func newStatusError(statusCode int, status string, body []byte) *StatusError {
	text := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(statusCode)))
	if text == "" {
		text = http.StatusText(statusCode)
	}
	return &StatusError{
		StatusCode: statusCode,
		StatusText: text,
		Body:       string(body),
	}
}

// BuildPath joins URL or path fragments with a single slash, trimming
// surrounding slashes and dropping empty fragments. Unlike path.Join it keeps
// the "//" of a URL scheme intact.
func BuildPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i == 0 {
			part = strings.TrimRight(part, "/")
		} else {
			part = strings.Trim(part, "/")
		}
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "/")
}
