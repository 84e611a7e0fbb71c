package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 implements Store against an S3-compatible backend (AWS S3 or MinIO).
// Single bucket; keys map to object keys directly.
type S3 struct {
	client *s3.Client
	bucket string
}

// S3Config holds explicit construction parameters (mostly for tests). For
// production we rely primarily on environment variables.
type S3Config struct {
	Region    string
	Bucket    string
	Endpoint  string // optional; enables a custom endpoint (e.g. MinIO)
	PathStyle bool
}

// Environment variables:
//
//	FRESHCHAIN_BLOB_S3_BUCKET=<bucket> (required)
//	FRESHCHAIN_BLOB_S3_REGION=<region> (default us-east-1)
//	FRESHCHAIN_BLOB_S3_ENDPOINT=<url> (optional, for MinIO)
//	FRESHCHAIN_BLOB_S3_PATH_STYLE=true|false (default false)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional)

// NewS3 creates an S3 blob store from S3Config.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return &S3{client: client, bucket: cfg.Bucket}, nil
}

// OpenS3FromEnv builds an S3 store from the documented environment variables.
func OpenS3FromEnv(ctx context.Context) (*S3, error) {
	return NewS3(ctx, S3Config{
		Region:    os.Getenv("FRESHCHAIN_BLOB_S3_REGION"),
		Bucket:    os.Getenv("FRESHCHAIN_BLOB_S3_BUCKET"),
		Endpoint:  os.Getenv("FRESHCHAIN_BLOB_S3_ENDPOINT"),
		PathStyle: os.Getenv("FRESHCHAIN_BLOB_S3_PATH_STYLE") == "true",
	})
}

// Driver reports the backend kind.
func (s *S3) Driver() Driver { return DriverS3 }

// Put uploads payload under key.
func (s *S3) Put(ctx context.Context, key string, payload []byte, contentType string) (Info, error) {
	if key == "" {
		return Info{}, fmt.Errorf("empty key")
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return Info{}, fmt.Errorf("put object %s: %w", key, err)
	}
	return Info{
		Key:          key,
		Size:         int64(len(payload)),
		ContentType:  contentType,
		LastModified: time.Now().UTC(),
	}, nil
}

// Get downloads the object under key.
func (s *S3) Get(ctx context.Context, key string) (Info, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return Info{}, nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	payload, err := io.ReadAll(out.Body)
	if err != nil {
		return Info{}, nil, fmt.Errorf("read object %s: %w", key, err)
	}
	info := Info{Key: key, Size: int64(len(payload))}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		info.LastModified = out.LastModified.UTC()
	}
	return info, payload, nil
}

// List returns objects whose keys start with prefix, ordered by key.
func (s *S3) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			info := Info{}
			if obj.Key != nil {
				info.Key = *obj.Key
			}
			if obj.Size != nil {
				info.Size = *obj.Size
			}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.UTC()
			}
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the object under key. S3 deletes are idempotent, so the
// existence report is best-effort true.
func (s *S3) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return false, fmt.Errorf("delete object %s: %w", key, err)
	}
	return true, nil
}
