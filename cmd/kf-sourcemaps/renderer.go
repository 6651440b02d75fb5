package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/bitrise-io/go-utils/colorstring"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"

	"github.com/kloudfuse/go-uploadutils/sourcemaps"
	"github.com/kloudfuse/go-uploadutils/upload"
)

// renderer prints human-readable progress of a sourcemaps upload.
type renderer struct {
	logger log.Logger
	stat   func(name string) (os.FileInfo, error)
}

func newRenderer(logger log.Logger) *renderer {
	return &renderer{logger: logger, stat: os.Stat}
}

var _ sourcemaps.Reporter = (*renderer)(nil)

func (r *renderer) OnCommandInfo(opts sourcemaps.Options) {
	if opts.DryRun {
		r.logger.Printf("%s", colorstring.Yellow("DRY-RUN MODE ENABLED. WILL NOT UPLOAD SOURCEMAPS"))
	}
	r.logger.Printf("Starting upload with concurrency %s.", colorstring.Green(strconv.Itoa(opts.MaxConcurrency)))
	r.logger.Printf("Will look for sourcemaps in %s", colorstring.Green(opts.BasePath))
	r.logger.Printf("Will match JS files for errors on files starting with %s", colorstring.Green(opts.MinifiedPathPrefix))
	r.logger.Printf("version: %s service: %s project path: %s",
		colorstring.Green(opts.ReleaseVersion), colorstring.Green(opts.Service), colorstring.Green(opts.ProjectPath))
}

func (r *renderer) OnUpload(job upload.Job) {
	r.logger.Printf("%s", r.uploadLine(job))
}

func (r *renderer) OnDryRun(job upload.Job) {
	r.logger.Printf("[DRYRUN] %s", r.uploadLine(job))
}

func (r *renderer) OnRetry(job upload.Job, err error, attempt int) {
	r.logger.Printf("%s", colorstring.Yellow(fmt.Sprintf("[attempt %d] Retrying sourcemap upload %s: %s", attempt, sourcemapPath(job), err)))
}

func (r *renderer) OnError(job upload.Job, err error) {
	r.failed(job, err.Error())
}

func (r *renderer) OnInvalid(job upload.Job, err *upload.InvalidPayloadError) {
	r.failed(job, err.Error())
}

func (r *renderer) OnUnexpectedError(job upload.Job, err error) {
	r.failed(job, fmt.Sprintf("Skipping sourcemap %s because of error: %s", sourcemapPath(job), err))
}

func (r *renderer) OnGitWarning(err error) {
	r.logger.Printf("%s", colorstring.Yellow(fmt.Sprintf("An error occurred while invoking git: %s", err)))
	r.logger.Printf("Make sure the command is running within your git repository to fully leverage the source code integration.")
	r.logger.Printf("To ignore this warning use the --disable-git flag.")
}

func (r *renderer) OnSourcesNotFound(sourcemapPath string) {
	r.logger.Printf("%s", colorstring.Yellow(fmt.Sprintf("No tracked files found for sources contained in %s", sourcemapPath)))
}

func (r *renderer) OnGitDataNotAttached(sourcemapPath string, err error) {
	r.logger.Printf("%s", colorstring.Yellow(fmt.Sprintf("Could not attach git data for sourcemap %s: %s", sourcemapPath, err)))
}

func (r *renderer) OnSummary(summary upload.Summary, dryRun bool) {
	r.logger.Println()
	for _, line := range summaryLines(summary, dryRun) {
		r.logger.Printf("%s", line)
	}
}

func (r *renderer) uploadLine(job upload.Job) string {
	sm, ok := job.(*sourcemaps.Sourcemap)
	if !ok {
		return fmt.Sprintf("Uploading %s", job.Name())
	}

	size := ""
	if info, err := r.stat(sm.SourcemapPath); err == nil {
		size = fmt.Sprintf(" (%s)", units.HumanSizeWithPrecision(float64(info.Size()), 3))
	}
	return fmt.Sprintf("Uploading sourcemap %s%s for JS file available at %s", sm.SourcemapPath, size, sm.MinifiedURL)
}

func (r *renderer) failed(job upload.Job, message string) {
	r.logger.Printf("%s", colorstring.Red(fmt.Sprintf("Failed upload sourcemap for %s: %s", sourcemapPath(job), message)))
}

func sourcemapPath(job upload.Job) string {
	if sm, ok := job.(*sourcemaps.Sourcemap); ok {
		return sm.SourcemapPath
	}
	return job.Name()
}

func summaryLines(summary upload.Summary, dryRun bool) []string {
	var lines []string
	if summary.Skipped > 0 {
		lines = append(lines, colorstring.Yellow(fmt.Sprintf("Skipped %s.", pluralize(summary.Skipped, "sourcemap", "sourcemaps"))))
	}
	if summary.Failure > 0 {
		lines = append(lines, colorstring.Red(fmt.Sprintf("Failed to upload %s.", pluralize(summary.Failure, "sourcemap", "sourcemaps"))))
	}

	if !dryRun && summary.Attempts > 0 {
		lines = append(lines, fmt.Sprintf("Sent %s in %s, %s.",
			units.HumanSizeWithPrecision(float64(summary.BytesSent), 3),
			pluralize(summary.Attempts, "request", "requests"),
			pluralize(summary.Retries, "retry", "retries")))
	}

	seconds := fmt.Sprintf("%.3f seconds", summary.Elapsed.Seconds())
	if dryRun {
		lines = append(lines, colorstring.Green(fmt.Sprintf("[DRYRUN] Handled %s in %s.", pluralize(summary.Success, "sourcemap", "sourcemaps"), seconds)))
	} else {
		lines = append(lines, colorstring.Green(fmt.Sprintf("Uploaded %s in %s.", pluralize(summary.Success, "sourcemap", "sourcemaps"), seconds)))
	}
	return lines
}

func pluralize(n int, singular, plural string) string {
	if n >= 2 {
		return fmt.Sprintf("%d %s", n, plural)
	}
	return fmt.Sprintf("%d %s", n, singular)
}
