package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/bitrise-io/go-utils/v2/log"
)

const s3PartSize = 5 * 1024 * 1024

// S3Params ...
type S3Params struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string

	// Endpoint points the client at an S3 compatible store. Path-style
	// addressing is used when it is set.
	Endpoint string
}

// S3Transport stores every request body as an object named after the request.
// It archives payloads instead of posting them to the ingestion API.
type S3Transport struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
	logger   log.Logger
}

// NewS3Transport ...
func NewS3Transport(ctx context.Context, params S3Params, logger log.Logger) (*S3Transport, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey, logger)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	client := s3.NewFromConfig(*cfg, func(o *s3.Options) {
		// attempts are counted by the caller's retry policy
		o.Retryer = aws.NopRetryer{}
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
			o.UsePathStyle = true
		}
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = s3PartSize
		u.Concurrency = 1
	})

	return &S3Transport{
		uploader: uploader,
		bucket:   params.Bucket,
		prefix:   params.Prefix,
		logger:   logger,
	}, nil
}

// Do uploads the request body under prefix/name. The body is read
// sequentially; at most one part is held in memory.
func (t *S3Transport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("request name is required for object storage")
	}

	key := path.Join(t.prefix, req.Name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   req.Body,
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}
	if len(req.Headers) > 0 {
		input.Metadata = req.Headers
	}

	t.logger.Debugf("Uploading s3://%s/%s", t.bucket, key)

	if _, err := t.uploader.Upload(ctx, input); err != nil {
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) {
			code := respErr.HTTPStatusCode()
			return nil, newStatusError(code, http.StatusText(code), []byte(respErr.Error()))
		}
		return nil, fmt.Errorf("upload object: %w", err)
	}

	return &Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Header:     http.Header{},
	}, nil
}

func loadAWSCredentials(
	ctx context.Context,
	region string,
	accessKeyID string,
	secretKey string,
	logger log.Logger,
) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}

	if accessKeyID != "" && secretKey != "" {
		logger.Debugf("aws credentials provided, using them...")
		opts = append(opts,
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config, %v", err)
	}

	return &cfg, nil
}
