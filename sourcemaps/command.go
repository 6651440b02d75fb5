package sourcemaps

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/kloudfuse/go-uploadutils/config"
	"github.com/kloudfuse/go-uploadutils/git"
	"github.com/kloudfuse/go-uploadutils/internal"
	"github.com/kloudfuse/go-uploadutils/multipart"
	"github.com/kloudfuse/go-uploadutils/network"
	"github.com/kloudfuse/go-uploadutils/retry"
	"github.com/kloudfuse/go-uploadutils/upload"
)

// OverrideURL is the ingestion path sourcemaps are posted to.
const OverrideURL = "api/v2/srcmap"

// DefaultMaxConcurrency ...
const DefaultMaxConcurrency = 20

// DefaultMaxAttempts is the number of attempts per sourcemap.
const DefaultMaxAttempts = 5

// Options of one upload run.
type Options struct {
	BasePath           string
	Service            string
	ReleaseVersion     string
	MinifiedPathPrefix string
	ProjectPath        string
	RepositoryURL      string
	DisableGit         bool
	DryRun             bool
	MaxConcurrency     int
}

// Reporter receives the events of a run.
type Reporter interface {
	upload.Observer
	OnCommandInfo(opts Options)
	OnGitWarning(err error)
	OnSourcesNotFound(sourcemapPath string)
	OnGitDataNotAttached(sourcemapPath string, err error)
	OnSummary(summary upload.Summary, dryRun bool)
}

// RepositoryResolver reads repository metadata for a directory.
type RepositoryResolver interface {
	Resolve(ctx context.Context, dir, remoteOverride string) (*git.RepositoryData, error)
}

// RepositoryResolverFunc adapts a function to RepositoryResolver.
type RepositoryResolverFunc func(ctx context.Context, dir, remoteOverride string) (*git.RepositoryData, error)

// Resolve ...
func (f RepositoryResolverFunc) Resolve(ctx context.Context, dir, remoteOverride string) (*git.RepositoryData, error) {
	return f(ctx, dir, remoteOverride)
}

// Command uploads every sourcemap found below a base path.
type Command struct {
	opts      Options
	transport network.Transport
	reporter  Reporter
	resolver  RepositoryResolver
	policy    retry.Policy
	fs        internal.OsProxy
	logger    log.Logger
}

// CommandOption ...
type CommandOption func(*Command)

// WithResolver replaces the go-git based resolver.
func WithResolver(resolver RepositoryResolver) CommandOption {
	return func(c *Command) {
		c.resolver = resolver
	}
}

// WithPolicy replaces the default retry policy.
func WithPolicy(policy retry.Policy) CommandOption {
	return func(c *Command) {
		c.policy = policy
	}
}

// WithFileSystem replaces the file system used for validation and payloads.
func WithFileSystem(osProxy internal.OsProxy) CommandOption {
	return func(c *Command) {
		c.fs = osProxy
	}
}

// NewCommand ...
func NewCommand(opts Options, transport network.Transport, reporter Reporter, logger log.Logger, options ...CommandOption) *Command {
	if logger == nil {
		logger = log.NewLogger()
	}
	if reporter == nil {
		reporter = NewLogReporter(logger)
	}

	policy := retry.DefaultPolicy()
	policy.MaxAttempts = DefaultMaxAttempts

	c := &Command{
		opts:      opts,
		transport: transport,
		reporter:  reporter,
		resolver:  RepositoryResolverFunc(git.Resolve),
		policy:    policy,
		fs:        internal.RealOS{},
		logger:    logger,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Validate checks the options. Every error is a *config.ConfigurationError.
func (c *Command) Validate() error {
	if c.opts.ReleaseVersion == "" {
		return config.NewConfigurationError("Missing release version")
	}
	if c.opts.Service == "" {
		return config.NewConfigurationError("Missing service")
	}
	if c.opts.MinifiedPathPrefix == "" {
		return config.NewConfigurationError("Missing minified path")
	}
	if !IsMinifiedPathPrefixValid(c.opts.MinifiedPathPrefix) {
		return config.NewConfigurationError(`--minified-path-prefix should either be an URL (such as "http://example.com/static") or an absolute path starting with a / such as "/static"`)
	}
	if c.opts.MaxConcurrency < 1 {
		return config.NewConfigurationError("--max-concurrency should be a positive integer, got %d", c.opts.MaxConcurrency)
	}
	if c.transport == nil && !c.opts.DryRun {
		return config.NewConfigurationError("no transport configured")
	}
	return nil
}

// Run uploads the sourcemaps. Only configuration and discovery problems are
// returned as errors; per-sourcemap outcomes are in the summary.
func (c *Command) Run(ctx context.Context) (upload.Summary, error) {
	if err := c.Validate(); err != nil {
		return upload.Summary{}, err
	}

	c.opts.BasePath = filepath.Clean(c.opts.BasePath)
	c.reporter.OnCommandInfo(c.opts)

	start := time.Now()

	release := Release{Service: c.opts.Service, Version: c.opts.ReleaseVersion}
	sourcemaps, err := Discover(c.opts.BasePath, c.opts.MinifiedPathPrefix, release)
	if err != nil {
		return upload.Summary{}, err
	}
	c.logger.Debugf("Found %d sourcemaps in %s", len(sourcemaps), c.opts.BasePath)

	if !c.opts.DisableGit {
		c.addRepositoryData(ctx, sourcemaps)
	}

	uploader, err := upload.NewUploader(upload.Config{
		Transport:   c.transport,
		Policy:      c.policy,
		Validator:   NewValidator(c.fs),
		Observer:    c.reporter,
		DryRun:      c.opts.DryRun,
		BodyOptions: []multipart.Option{multipart.WithOpener(c.fs)},
	}, c.logger)
	if err != nil {
		return upload.Summary{}, err
	}

	jobs := make([]upload.Job, len(sourcemaps))
	for i, sm := range sourcemaps {
		jobs[i] = sm
	}

	summary, _, err := upload.RunBatch(ctx, upload.BatchOptions{MaxConcurrency: c.opts.MaxConcurrency}, uploader, jobs)
	if err != nil {
		return upload.Summary{}, err
	}
	summary.Elapsed = time.Since(start)

	c.reporter.OnSummary(summary, c.opts.DryRun)
	return summary, nil
}

// addRepositoryData attaches repository data to every sourcemap. A resolver
// failure is reported once and leaves every sourcemap without it.
func (c *Command) addRepositoryData(ctx context.Context, sourcemaps []*Sourcemap) {
	data, err := c.resolver.Resolve(ctx, c.opts.BasePath, c.opts.RepositoryURL)
	if err == nil {
		_, err = NewGitData(data.Hash, data.Remote, "")
	}
	if err != nil {
		c.reporter.OnGitWarning(err)
		return
	}

	matcher := data.Matcher(c.fs)
	for _, sm := range sourcemaps {
		repositoryPayload, err := c.repositoryPayload(data, matcher, sm.SourcemapPath)
		if err != nil {
			c.reporter.OnGitDataNotAttached(sm.SourcemapPath, err)
		}

		gitData, err := NewGitData(data.Hash, data.Remote, repositoryPayload)
		if err == nil {
			err = sm.AddRepositoryData(gitData)
		}
		if err != nil {
			c.reporter.OnGitDataNotAttached(sm.SourcemapPath, err)
		}
	}
}

func (c *Command) repositoryPayload(data *git.RepositoryData, matcher *git.TrackedFilesMatcher, sourcemapPath string) (string, error) {
	files, err := matcher.MatchSourcemap(sourcemapPath, func() {
		c.reporter.OnSourcesNotFound(sourcemapPath)
	})
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return NewRepositoryPayload(data.Hash, data.Remote, files)
}

// IsConfigurationError reports whether err should abort the run with a configuration message.
func IsConfigurationError(err error) bool {
	var cfgErr *config.ConfigurationError
	return errors.As(err, &cfgErr)
}

// LogReporter writes run events to a logger.
type LogReporter struct {
	*upload.LogObserver
	logger log.Logger
}

// NewLogReporter ...
func NewLogReporter(logger log.Logger) *LogReporter {
	return &LogReporter{LogObserver: upload.NewLogObserver(logger), logger: logger}
}

// OnCommandInfo ...
func (r *LogReporter) OnCommandInfo(opts Options) {
	r.logger.Infof("Uploading sourcemaps in %s for service %s, version %s", opts.BasePath, opts.Service, opts.ReleaseVersion)
}

// OnGitWarning ...
func (r *LogReporter) OnGitWarning(err error) {
	r.logger.Warnf("An error occurred while invoking git: %s", err)
	r.logger.Warnf("Make sure the command is running within your git repository to fully leverage source code integration.")
}

// OnSourcesNotFound ...
func (r *LogReporter) OnSourcesNotFound(sourcemapPath string) {
	r.logger.Warnf("No tracked files found for sources contained in %s", sourcemapPath)
}

// OnGitDataNotAttached ...
func (r *LogReporter) OnGitDataNotAttached(sourcemapPath string, err error) {
	r.logger.Warnf("Could not attach git data for sourcemap %s: %s", sourcemapPath, err)
}

// OnSummary ...
func (r *LogReporter) OnSummary(summary upload.Summary, dryRun bool) {
	prefix := ""
	if dryRun {
		prefix = "[DRYRUN] "
	}
	r.logger.Donef("%sUploaded %d sourcemaps in %s (%d failed, %d skipped, %d requests, %d retries)",
		prefix, summary.Success, summary.Elapsed.Round(time.Millisecond), summary.Failure, summary.Skipped,
		summary.Attempts, summary.Retries)
}

var _ Reporter = (*LogReporter)(nil)
