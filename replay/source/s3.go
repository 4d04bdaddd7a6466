// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

// S3Prefix is the prefix of S3 object names, which take the form
// "s3:<bucket>/<key>" or "s3://<bucket>/<key>".
const S3Prefix = "s3:"

// S3API is the subset of the S3 client used by S3Opener.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3Config configures an S3 client.
type S3Config struct {
	// Region is the AWS region. If empty, the default chain is used.
	Region string
	// Endpoint is a custom endpoint URL for S3-compatible services.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "loading AWS config")
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = &endpoint })
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}
	return s3.NewFromConfig(awsConfig, s3Opts...), nil
}

// S3Opener opens S3 objects, reading them with ranged GetObject calls.
type S3Opener struct {
	// Client is the S3 client to use.
	Client S3API

	// ReadAhead is the number of bytes to fetch per request. If <= 0,
	// DefaultReadAhead is used.
	ReadAhead int64
}

var _ Opener = (*S3Opener)(nil)

// parseS3Name splits an S3 name into its bucket and key.
func parseS3Name(name string) (bucket, key string, err error) {
	path := strings.TrimPrefix(strings.TrimPrefix(name, S3Prefix), "//")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("invalid S3 name %q", name)
	}
	return parts[0], parts[1], nil
}

func isS3NotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func (o *S3Opener) head(ctx context.Context, name string) (*s3.HeadObjectOutput, error) {
	bucket, key, err := parseS3Name(name)
	if err != nil {
		return nil, err
	}
	out, err := o.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, errors.Wrapf(ErrNotFound, "%q", name)
		}
		return nil, errors.Wrapf(err, "HeadObject %q", name)
	}
	return out, nil
}

// Open implements Opener.
func (o *S3Opener) Open(ctx context.Context, name string) (Source, error) {
	out, err := o.head(ctx, name)
	if err != nil {
		return nil, err
	}
	bucket, key, _ := parseS3Name(name)

	fetch := func(ctx context.Context, off, n int64) (io.ReadCloser, error) {
		obj, err := o.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+n-1)),
		})
		if err != nil {
			return nil, err
		}
		return obj.Body, nil
	}
	return newRangedSource(ctx, name, aws.ToInt64(out.ContentLength), o.ReadAhead, fetch), nil
}

// Exists implements Opener.
func (o *S3Opener) Exists(ctx context.Context, name string) (bool, error) {
	switch _, err := o.head(ctx, name); {
	case err == nil:
		return true, nil
	case errors.Cause(err) == ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}
