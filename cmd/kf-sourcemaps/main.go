package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/spf13/cobra"

	"github.com/kloudfuse/go-uploadutils/config"
	"github.com/kloudfuse/go-uploadutils/network"
	"github.com/kloudfuse/go-uploadutils/sourcemaps"
)

var version = "dev"

func main() {
	logger := log.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand(env.NewRepository(), logger).ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.Errorf("%s", err)
		os.Exit(1)
	}
}

func newRootCommand(envRepo env.Repository, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kf-sourcemaps",
		Short:         "Upload JavaScript sourcemaps to Kloudfuse",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newSourcemapsCommand(envRepo, logger))
	return cmd
}

func newSourcemapsCommand(envRepo env.Repository, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sourcemaps",
		Short: "Sourcemap operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newUploadCommand(envRepo, logger))
	return cmd
}

func newUploadCommand(envRepo env.Repository, logger log.Logger) *cobra.Command {
	var (
		opts    sourcemaps.Options
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "upload <basePath>",
		Short: "Upload every sourcemap found below basePath",
		Example: `  kf-sourcemaps sourcemaps upload . --service my-service --minified-path-prefix https://kloudfuse.com --release-version 1.234
  kf-sourcemaps sourcemaps upload /home/users/ci --service my-service --minified-path-prefix https://kloudfuse.com --release-version 1.234 --max-concurrency 50`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			logger.EnableDebugLog(verbose)
			opts.BasePath = args[0]

			cfg, err := config.New(envRepo)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Print(logger)
			}

			proxies := network.NewProxyCache()
			defer proxies.CloseIdleConnections()

			transport, err := newTransport(ctx, cfg, proxies, logger)
			if err != nil {
				return err
			}

			command := sourcemaps.NewCommand(opts, transport, newRenderer(logger), logger)
			_, err = command.Run(ctx)
			return err
		},
	}

	cmd.Flags().StringVar(&opts.Service, "service", "", "Service name the sourcemaps belong to")
	cmd.Flags().StringVar(&opts.ReleaseVersion, "release-version", "", "Release version of the service")
	cmd.Flags().StringVar(&opts.MinifiedPathPrefix, "minified-path-prefix", "", "URL or absolute path the minified files are served from")
	cmd.Flags().StringVar(&opts.ProjectPath, "project-path", "", "Path of the project the sources are relative to")
	cmd.Flags().StringVar(&opts.RepositoryURL, "repository-url", "", "Override the repository remote URL")
	cmd.Flags().BoolVar(&opts.DisableGit, "disable-git", false, "Do not attach git metadata")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Validate and build payloads without uploading")
	cmd.Flags().IntVar(&opts.MaxConcurrency, "max-concurrency", sourcemaps.DefaultMaxConcurrency, "Maximum number of concurrent uploads")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	return cmd
}

func newTransport(ctx context.Context, cfg config.Config, proxies *network.ProxyCache, logger log.Logger) (network.Transport, error) {
	if cfg.S3 != nil {
		transport, err := network.NewS3Transport(ctx, network.S3Params{
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: string(cfg.S3.SecretAccessKey),
			Endpoint:        cfg.S3.Endpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("s3 transport: %w", err)
		}
		return transport, nil
	}

	client, err := network.NewClient(network.ClientOptions{
		BaseURL:     cfg.Site,
		APIKey:      string(cfg.APIKey),
		AppKey:      string(cfg.AppKey),
		OverrideURL: sourcemaps.OverrideURL,
		Proxy:       cfg.Proxy,
		Proxies:     proxies,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("http transport: %w", err)
	}
	return client, nil
}
