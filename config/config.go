// Package config reads the uploader configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/kloudfuse/go-uploadutils/network"
)

// Environment variables read by New.
const (
	APIKeyEnv   = "KF_API_KEY"
	AppKeyEnv   = "KF_APP_KEY"
	SiteEnv     = "KF_SITE"
	ProxyURLEnv = "KF_PROXY_URL"

	S3BucketEnv           = "KF_S3_BUCKET"
	S3PrefixEnv           = "KF_S3_PREFIX"
	S3EndpointEnv         = "KF_S3_ENDPOINT"
	AWSRegionEnv          = "AWS_REGION"
	AWSAccessKeyIDEnv     = "AWS_ACCESS_KEY_ID"
	AWSSecretAccessKeyEnv = "AWS_SECRET_ACCESS_KEY"
)

// DefaultSite is the ingestion API used when KF_SITE is not set.
const DefaultSite = "https://pisco.kloudfuse.com"

// Secret is a string that is never printed.
type Secret string

// String ...
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "*****"
}

// ConfigurationError aborts a run before any upload starts.
type ConfigurationError struct {
	Message string
}

// NewConfigurationError ...
func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// S3 configures delivery to object storage instead of the ingestion API.
type S3 struct {
	Bucket          string
	Prefix          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey Secret
}

// Config ...
type Config struct {
	APIKey Secret
	AppKey Secret
	Site   string

	// Proxy is nil when KF_PROXY_URL is unset; the environment proxy is used then.
	Proxy *network.ProxyConfig

	// S3 is nil unless KF_S3_BUCKET is set.
	S3 *S3
}

// New reads and validates the configuration.
func New(envRepo env.Repository) (Config, error) {
	apiKey := strings.TrimSpace(envRepo.Get(APIKeyEnv))
	if apiKey == "" {
		return Config{}, NewConfigurationError("the secret '%s' is not defined", APIKeyEnv)
	}

	cfg := Config{
		APIKey: Secret(apiKey),
		AppKey: Secret(strings.TrimSpace(envRepo.Get(AppKeyEnv))),
		Site:   strings.TrimSpace(envRepo.Get(SiteEnv)),
	}
	if cfg.Site == "" {
		cfg.Site = DefaultSite
	}

	if proxyURL := strings.TrimSpace(envRepo.Get(ProxyURLEnv)); proxyURL != "" {
		proxy, err := network.ParseProxyURL(proxyURL)
		if err != nil {
			return Config{}, NewConfigurationError("invalid %s: %s", ProxyURLEnv, err)
		}
		cfg.Proxy = proxy
	}

	if bucket := strings.TrimSpace(envRepo.Get(S3BucketEnv)); bucket != "" {
		s3 := &S3{
			Bucket:          bucket,
			Prefix:          strings.Trim(envRepo.Get(S3PrefixEnv), "/"),
			Endpoint:        strings.TrimSpace(envRepo.Get(S3EndpointEnv)),
			Region:          strings.TrimSpace(envRepo.Get(AWSRegionEnv)),
			AccessKeyID:     envRepo.Get(AWSAccessKeyIDEnv),
			SecretAccessKey: Secret(envRepo.Get(AWSSecretAccessKeyEnv)),
		}
		if s3.Region == "" {
			return Config{}, NewConfigurationError("%s is required when %s is set", AWSRegionEnv, S3BucketEnv)
		}
		cfg.S3 = s3
	}

	return cfg, nil
}

// Print logs the configuration with secrets redacted.
func (c Config) Print(logger log.Logger) {
	logger.Printf("Configuration:")
	logger.Printf("- site: %s", c.Site)
	logger.Printf("- api key: %s", c.APIKey)
	logger.Printf("- application key: %s", c.AppKey)
	if c.Proxy != nil {
		logger.Printf("- proxy: %s://%s:%d", c.Proxy.Protocol, c.Proxy.Host, c.Proxy.Port)
	}
	if c.S3 != nil {
		logger.Printf("- s3: s3://%s/%s (%s)", c.S3.Bucket, c.S3.Prefix, c.S3.Region)
	}
}
