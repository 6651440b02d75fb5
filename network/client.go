package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	apiKeyHeader         = "KF-API-KEY"
	applicationKeyHeader = "KF-APPLICATION-KEY"

	maxResponseBodySize = 1024
)

// ErrBodyTooLarge is returned when a request body exceeds its MaxBodyLength.
var ErrBodyTooLarge = errors.New("request body exceeds the maximum body length")

// ClientOptions ...
type ClientOptions struct {
	BaseURL string
	APIKey  string
	AppKey  string

	// OverrideURL replaces the URL of every request when set.
	OverrideURL string

	// Headers are added to every request and take precedence over request headers.
	Headers map[string]string

	Proxy *ProxyConfig

	// Proxies is shared by every client of a batch. A private cache is created when nil.
	Proxies *ProxyCache

	// Timeout bounds a whole request, body upload included. Zero means no timeout.
	Timeout time.Duration
}

// Client sends requests to the ingestion API. Retries are driven by the
// caller, so the underlying retryablehttp client makes a single attempt.
type Client struct {
	httpClient *retryablehttp.Client
	options    ClientOptions
	logger     log.Logger
}

// NewClient ...
func NewClient(options ClientOptions, logger log.Logger) (*Client, error) {
	if options.BaseURL == "" && options.OverrideURL == "" {
		return nil, fmt.Errorf("base URL is empty")
	}
	if options.APIKey == "" {
		return nil, fmt.Errorf("API key is empty")
	}

	if options.Proxies == nil {
		options.Proxies = NewProxyCache()
	}
	transport, err := options.Proxies.Get(options.Proxy)
	if err != nil {
		return nil, fmt.Errorf("proxy transport: %w", err)
	}

	httpClient := retryhttp.NewClient(logger)
	httpClient.RetryMax = 0
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	httpClient.HTTPClient = &http.Client{
		Timeout:   options.Timeout,
		Transport: otelhttp.NewTransport(transport),
	}

	return &Client{
		httpClient: httpClient,
		options:    options,
		logger:     logger,
	}, nil
}

// Do sends req and returns a StatusError for any non-2xx response.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	requestURL, err := c.resolveURL(req.URL)
	if err != nil {
		return nil, err
	}

	var body interface{}
	if req.Body != nil {
		reader := req.Body
		if req.MaxBodyLength > 0 {
			reader = &limitedReader{r: reader, remaining: req.MaxBodyLength}
		}
		// a ReaderFunc is the only body retryablehttp does not buffer
		body = retryablehttp.ReaderFunc(func() (io.Reader, error) {
			return readerOnly{reader}, nil
		})
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := retryablehttp.NewRequest(method, requestURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq = httpReq.WithContext(ctx)

	for key, value := range c.headers(req) {
		httpReq.Header.Set(key, value)
	}

	c.logger.Debugf("%s %s", method, requestURL)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debugf("%s %s: %s", method, requestURL, resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newStatusError(resp.StatusCode, resp.Status, respBody)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// CloseIdleConnections ...
func (c *Client) CloseIdleConnections() {
	c.options.Proxies.CloseIdleConnections()
}

func (c *Client) resolveURL(requestURL string) (string, error) {
	if c.options.OverrideURL != "" {
		requestURL = c.options.OverrideURL
	}

	u, err := url.Parse(requestURL)
	if err != nil {
		return "", fmt.Errorf("parse request url: %w", err)
	}
	if u.IsAbs() {
		return requestURL, nil
	}
	if c.options.BaseURL == "" {
		return "", fmt.Errorf("relative request url %q without base URL", requestURL)
	}
	return BuildPath(c.options.BaseURL, requestURL), nil
}

func (c *Client) headers(req *Request) map[string]string {
	headers := map[string]string{
		apiKeyHeader: c.options.APIKey,
	}
	if c.options.AppKey != "" {
		headers[applicationKeyHeader] = c.options.AppKey
	}
	if req.ContentType != "" {
		headers["Content-Type"] = req.ContentType
	}
	for key, value := range req.Headers {
		headers[key] = value
	}
	for key, value := range c.options.Headers {
		headers[key] = value
	}
	return headers
}

// readerOnly hides Close so retryablehttp cannot release a body it does not own.
type readerOnly struct {
	io.Reader
}

type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrBodyTooLarge
	}
	return n, err
}
