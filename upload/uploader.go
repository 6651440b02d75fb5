package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/kloudfuse/go-uploadutils/multipart"
	"github.com/kloudfuse/go-uploadutils/network"
	"github.com/kloudfuse/go-uploadutils/retry"
)

// DefaultURL is the ingestion path payloads are posted to.
const DefaultURL = "v1/input"

// Config ...
type Config struct {
	Transport network.Transport
	Policy    retry.Policy

	// Validator runs before the payload is built. Nil accepts every job.
	Validator Validator
	// Observer receives lifecycle events. Nil means NopObserver.
	Observer Observer

	// DryRun validates and builds payloads without sending them.
	DryRun bool

	Method string
	URL    string

	BodyOptions []multipart.Option
}

// Uploader runs the lifecycle of single jobs. It is safe for concurrent use.
type Uploader struct {
	config Config
	logger log.Logger
	stats  *Stats
}

// NewUploader fills in defaults for unset config fields.
func NewUploader(config Config, logger log.Logger) (*Uploader, error) {
	if config.Transport == nil && !config.DryRun {
		return nil, errors.New("transport is required unless running dry")
	}
	if config.Policy.MaxAttempts == 0 {
		config.Policy = retry.DefaultPolicy()
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}
	if config.Validator == nil {
		config.Validator = ValidatorFunc(func(Job) error { return nil })
	}
	if config.Observer == nil {
		config.Observer = NopObserver{}
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if logger == nil {
		logger = log.NewLogger()
	}

	return &Uploader{
		config: config,
		logger: logger,
		stats:  newStats(),
	}, nil
}

// Stats returns the transfer figures of every upload run so far.
func (u *Uploader) Stats() *Stats {
	return u.stats
}

// Observer ...
func (u *Uploader) Observer() Observer {
	return u.config.Observer
}

// Upload runs job to a terminal status. Errors never escape: they are reported
// to the observer and folded into the returned status.
func (u *Uploader) Upload(ctx context.Context, job Job) Status {
	observer := u.config.Observer

	u.transition(job, StateValidating)
	if err := u.validate(job); err != nil {
		u.transition(job, StateSkipped)
		var invalid *InvalidPayloadError
		if errors.As(err, &invalid) {
			observer.OnInvalid(job, invalid)
		} else {
			observer.OnUnexpectedError(job, err)
		}
		return StatusSkipped
	}

	u.transition(job, StateBuildingPayload)
	payload, err := u.buildPayload(job)
	if err != nil {
		u.transition(job, StateSkipped)
		observer.OnUnexpectedError(job, fmt.Errorf("build payload: %w", err))
		return StatusSkipped
	}

	if u.config.DryRun {
		observer.OnDryRun(job)
		u.transition(job, StateSuccess)
		return StatusSuccess
	}

	u.transition(job, StateUploading)
	observer.OnUpload(job)

	policy := u.config.Policy
	policy.OnRetry = func(err error, attempt int) {
		observer.OnRetry(job, err, attempt)
	}

	start := time.Now()
	attempt := 0
	if err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		return u.send(ctx, job, payload, attempt)
	}); err != nil {
		u.transition(job, StateFailure)
		observer.OnError(job, withStatusText(err))
		return StatusFailure
	}

	u.stats.recordUpload(time.Since(start))
	stats := u.stats.Snapshot()
	u.logger.Debugf("Uploaded %s in %s after %d attempt(s) [finished=%d] [avg=%v]",
		job.Name(), time.Since(start).Round(time.Millisecond), attempt,
		stats.Uploaded, stats.Average().Round(time.Millisecond))
	u.transition(job, StateSuccess)
	return StatusSuccess
}

// send builds a fresh body for every attempt; a consumed stream cannot be replayed.
func (u *Uploader) send(ctx context.Context, job Job, payload *multipart.Payload, attempt int) error {
	body, err := multipart.NewBody(payload, u.config.BodyOptions...)
	if err != nil {
		return err
	}
	defer func() {
		if err := body.Close(); err != nil {
			u.logger.Warnf("Failed to close body of %s: %s", job.Name(), err)
		}
	}()

	counter := &countingReader{r: body}
	_, err = u.config.Transport.Do(ctx, &network.Request{
		Method:        u.config.Method,
		URL:           u.config.URL,
		Body:          counter,
		ContentType:   body.ContentType(),
		Name:          job.Name(),
		MaxBodyLength: network.Unbounded,
	})
	u.stats.recordAttempt(attempt, counter.n.Load())
	return err
}

// validate runs the validator; a panic in it is an unexpected error.
func (u *Uploader) validate(job Job) (err error) {
	defer recoverInto(&err, "validator")
	return u.config.Validator.Validate(job)
}

func (u *Uploader) buildPayload(job Job) (payload *multipart.Payload, err error) {
	defer recoverInto(&err, "payload builder")
	payload, err = job.MultipartPayload()
	if err != nil {
		return nil, err
	}
	return payload, payload.Validate()
}

// PanicError wraps a value recovered from a panicking validator or payload builder.
type PanicError struct {
	Source string
	Value  interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Source, e.Value)
}

func recoverInto(err *error, source string) {
	if r := recover(); r != nil {
		*err = &PanicError{Source: source, Value: r}
	}
}

func (u *Uploader) transition(job Job, state State) {
	u.logger.Debugf("%s: %s", job.Name(), state)
}

type statusTextError struct {
	err        error
	statusText string
}

func (e *statusTextError) Error() string {
	return fmt.Sprintf("%s (%s)", e.err, e.statusText)
}

func (e *statusTextError) Unwrap() error {
	return e.err
}

// withStatusText appends the response status text to errors caused by a
// non-2xx response.
func withStatusText(err error) error {
	var statusErr *network.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusText != "" {
		return &statusTextError{err: err, statusText: statusErr.StatusText}
	}
	return err
}
