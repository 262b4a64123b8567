package backend

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 stores one object per key in an S3-compatible bucket (AWS S3, R2,
// MinIO). Object names are the hex encoding of the key under cfg.Prefix,
// which keeps listing order equal to key order.
type S3 struct {
	client   *s3.Client
	bucket   string
	prefix   string
	endpoint string
}

// NewS3 builds the client. An AccountID selects the Cloudflare R2 endpoint;
// an explicit Endpoint selects any other S3-compatible service.
func NewS3(ctx context.Context, cfg Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}

	endpoint := cfg.Endpoint
	region := cfg.Region
	if cfg.AccountID != "" {
		// R2 endpoint format: https://<ACCOUNT_ID>.r2.cloudflarestorage.com
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
		region = "auto"
	}
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: endpoint}, nil
		})
		opts = append(opts, config.WithEndpointResolverWithOptions(resolver))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = endpoint != ""
	})
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
	}

	return &S3{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, endpoint: endpoint}, nil
}

// Endpoint returns the service URL requests go to
func (c *S3) Endpoint() string {
	return c.endpoint
}

func (c *S3) objectKey(key []byte) string {
	return c.prefix + hex.EncodeToString(key)
}

func (c *S3) Put(ctx context.Context, key, value []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

func (c *S3) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return c.getObject(ctx, c.objectKey(key))
}

func (c *S3) getObject(ctx context.Context, name string) ([]byte, bool, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get object: %w", err)
	}
	defer result.Body.Close()

	body, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object body: %w", err)
	}
	return body, true, nil
}

func (c *S3) Delete(ctx context.Context, key []byte) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(c.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Scan lists object names page by page and fetches each value on Next.
// StartAfter is exclusive, so listing begins after the start name minus its
// last character and names below start are skipped.
func (c *S3) Scan(ctx context.Context, start []byte, limit int) Iterator {
	first := c.objectKey(start)
	it := &s3Iterator{ctx: ctx, c: c, first: first, limit: limit}
	if len(first) > 0 {
		it.startAfter = first[:len(first)-1]
	}
	return it
}

func (c *S3) Close() error {
	return nil
}

type s3Iterator struct {
	ctx        context.Context
	c          *S3
	first      string
	startAfter string
	limit      int
	n          int

	page  []string
	token *string
	done  bool

	key   []byte
	value []byte
	err   error
}

func (it *s3Iterator) fill() bool {
	for len(it.page) == 0 {
		if it.done {
			return false
		}
		in := &s3.ListObjectsV2Input{
			Bucket:  aws.String(it.c.bucket),
			Prefix:  aws.String(it.c.prefix),
			MaxKeys: aws.Int32(int32(it.limit - it.n + 16)),
		}
		if it.token != nil {
			in.ContinuationToken = it.token
		} else {
			in.StartAfter = aws.String(it.startAfter)
		}
		out, err := it.c.client.ListObjectsV2(it.ctx, in)
		if err != nil {
			it.err = fmt.Errorf("failed to list objects: %w", err)
			return false
		}
		for _, obj := range out.Contents {
			name := aws.ToString(obj.Key)
			if name >= it.first {
				it.page = append(it.page, name)
			}
		}
		it.token = out.NextContinuationToken
		it.done = !aws.ToBool(out.IsTruncated)
	}
	return true
}

func (it *s3Iterator) Next() bool {
	for it.err == nil && it.n < it.limit && it.fill() {
		name := it.page[0]
		it.page = it.page[1:]

		key, err := hex.DecodeString(strings.TrimPrefix(name, it.c.prefix))
		if err != nil {
			continue
		}
		value, found, err := it.c.getObject(it.ctx, name)
		if err != nil {
			it.err = err
			return false
		}
		if !found {
			continue
		}
		it.key, it.value = key, value
		it.n++
		return true
	}
	return false
}

func (it *s3Iterator) Key() []byte   { return it.key }
func (it *s3Iterator) Value() []byte { return it.value }
func (it *s3Iterator) Err() error    { return it.err }
func (it *s3Iterator) Close() error  { return nil }
