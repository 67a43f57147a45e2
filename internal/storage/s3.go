package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/silvergrain/gallery/internal/config"
	"github.com/silvergrain/gallery/internal/domain"
)

// maxParallelDeletes caps concurrent DeleteObject calls during a directory delete.
const maxParallelDeletes = 8

// S3Adapter stores artifacts in an S3-compatible bucket.
type S3Adapter struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Adapter creates an S3 adapter from static credentials.
func NewS3Adapter(cfg cfgpkg.S3Config) (*S3Adapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Adapter{
		client:        s3.NewFromConfig(awsCfg),
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// key maps a logical path to an object key: leading slashes stripped,
// separators normalized.
func (a *S3Adapter) key(p string) string {
	return strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}

// WriteFile uploads data under the path's object key. Content type is
// inferred from the file extension, falling back to a generic binary type.
func (a *S3Adapter) WriteFile(ctx context.Context, p string, data []byte) error {
	key := a.key(p)
	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &a.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// ReadFile downloads the object at path, concatenating the streamed body.
func (a *S3Adapter) ReadFile(ctx context.Context, p string) ([]byte, error) {
	key := a.key(p)
	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &a.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object body %s: %w", key, err)
	}
	return data, nil
}

// DeleteDirectory lists all objects under the path's prefix and deletes them
// in parallel. An empty prefix listing is not an error.
func (a *S3Adapter) DeleteDirectory(ctx context.Context, p string) error {
	prefix := a.key(p) + "/"

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: &a.bucket,
		Prefix: &prefix,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelDeletes)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := *obj.Key
			g.Go(func() error {
				_, err := a.client.DeleteObject(gctx, &s3.DeleteObjectInput{
					Bucket: &a.bucket,
					Key:    &key,
				})
				if err != nil {
					return fmt.Errorf("delete object %s: %w", key, err)
				}
				return nil
			})
		}
	}

	return g.Wait()
}

// EnsureDirectories is a no-op: object keys need no directory structure.
func (a *S3Adapter) EnsureDirectories(_ context.Context) error { return nil }

// IsLocal reports false.
func (a *S3Adapter) IsLocal() bool { return false }

// Backend returns the s3 backend tag.
func (a *S3Adapter) Backend() domain.StorageBackend { return domain.BackendS3 }

// PublicURL resolves through the configured public base URL, or "" when unset.
func (a *S3Adapter) PublicURL(p string) string {
	if a.publicBaseURL == "" {
		return ""
	}
	return a.publicBaseURL + "/" + a.key(p)
}
