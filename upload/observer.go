package upload

import (
	"github.com/bitrise-io/go-utils/v2/log"
)

// Observer receives lifecycle events of jobs. Callbacks have no effect on
// control flow and may be called concurrently for different jobs.
type Observer interface {
	// OnUpload is called once, right before the first upload attempt.
	OnUpload(job Job)
	// OnDryRun is called instead of OnUpload when nothing is sent.
	OnDryRun(job Job)
	// OnRetry is called with the error of the attempt that just failed.
	OnRetry(job Job, err error, attempt int)
	// OnError reports a failed upload.
	OnError(job Job, err error)
	// OnInvalid reports a job rejected by validation.
	OnInvalid(job Job, err *InvalidPayloadError)
	// OnUnexpectedError reports a job skipped because of an error that is not a
	// validation rejection.
	OnUnexpectedError(job Job, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnUpload(Job)                        {}
func (NopObserver) OnDryRun(Job)                        {}
func (NopObserver) OnRetry(Job, error, int)             {}
func (NopObserver) OnError(Job, error)                  {}
func (NopObserver) OnInvalid(Job, *InvalidPayloadError) {}
func (NopObserver) OnUnexpectedError(Job, error)        {}

// LogObserver writes every event to a logger.
type LogObserver struct {
	logger log.Logger
}

// NewLogObserver ...
func NewLogObserver(logger log.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// OnUpload ...
func (o *LogObserver) OnUpload(job Job) {
	o.logger.Printf("Uploading %s", job.Name())
}

// OnDryRun ...
func (o *LogObserver) OnDryRun(job Job) {
	o.logger.Printf("[DRYRUN] Uploading %s", job.Name())
}

// OnRetry ...
func (o *LogObserver) OnRetry(job Job, err error, attempt int) {
	o.logger.Warnf("Retrying upload of %s after attempt %d: %s", job.Name(), attempt, err)
}

// OnError ...
func (o *LogObserver) OnError(job Job, err error) {
	o.logger.Errorf("Failed upload of %s: %s", job.Name(), err)
}

// OnInvalid ...
func (o *LogObserver) OnInvalid(job Job, err *InvalidPayloadError) {
	o.logger.Warnf("Skipping %s: %s", job.Name(), err)
}

// OnUnexpectedError ...
func (o *LogObserver) OnUnexpectedError(job Job, err error) {
	o.logger.Errorf("Skipping %s because of error: %s", job.Name(), err)
}
