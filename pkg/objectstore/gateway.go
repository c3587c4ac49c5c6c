package objectstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/docmill/docmill/pkg/log"
	"github.com/docmill/docmill/pkg/naming"
)

// ErrObjectNotFound marks a missing bucket/key pair. Callers treat it
// as a permanent task failure rather than a transient store error.
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo is the subset of object attributes the pipeline uses.
type ObjectInfo struct {
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Upload records one stored artifact.
type Upload struct {
	Bucket  string
	Key     string
	URL     string
	HTTPURL string
	Size    int64
}

// UploadedFile records one artifact of a directory upload.
type UploadedFile struct {
	RelativePath string
	Key          string
	URL          string
	Size         int64
}

// FailedFile records one artifact that could not be stored. The rest of
// the directory is still uploaded.
type FailedFile struct {
	RelativePath string
	Error        string
}

// DirUpload is the outcome of storing a whole output directory.
type DirUpload struct {
	Uploaded  []UploadedFile
	Failed    []FailedFile
	TotalSize int64
}

// PrimaryURL picks the artifact callers should be pointed at: the first
// markdown file in path order, else the largest file. Empty when
// nothing was uploaded.
func (d *DirUpload) PrimaryURL() string {
	var largest *UploadedFile
	for i := range d.Uploaded {
		f := &d.Uploaded[i]
		if strings.EqualFold(filepath.Ext(f.RelativePath), ".md") {
			return f.URL
		}
		if largest == nil || f.Size > largest.Size {
			largest = f
		}
	}
	if largest == nil {
		return ""
	}
	return largest.URL
}

// URLs lists every stored artifact URL ordered by relative path.
func (d *DirUpload) URLs() []string {
	urls := make([]string, 0, len(d.Uploaded))
	for _, f := range d.Uploaded {
		urls = append(urls, f.URL)
	}
	return urls
}

// Gateway is the object-store surface the pipeline depends on. The
// production implementation is S3Gateway; tests substitute fakes.
type Gateway interface {
	// Download fetches bucket/key into localPath, creating parent
	// directories, and verifies the byte count against the object head.
	Download(ctx context.Context, bucket, key, localPath string) (*ObjectInfo, error)
	// Exists reports whether bucket/key resolves to an object.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// BucketExists reports whether the bucket is reachable and present.
	BucketExists(ctx context.Context, bucket string) (bool, error)
	// Fetch opens bucket/key for streaming. The caller closes the reader.
	Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error)
	// UploadFile stores one local file and verifies the stored size.
	UploadFile(ctx context.Context, localPath, bucket, key string, meta ConversionMetadata) (*Upload, error)
	// UploadDirectory stores every regular file under localDir, keyed by
	// prefix plus the file's relative path. Per-file failures are
	// collected, not fatal.
	UploadDirectory(ctx context.Context, localDir, bucket, prefix string, meta ConversionMetadata) (*DirUpload, error)
	// Presign returns a time-limited GET URL for bucket/key.
	Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// S3Gateway talks to any S3-compatible store through minio-go.
type S3Gateway struct {
	client *minio.Client
	creds  Credentials
}

// NewS3Gateway connects a gateway using the given resolved credentials.
func NewS3Gateway(creds Credentials) (*S3Gateway, error) {
	host, secure := creds.EndpointHost()
	client, err := minio.New(host, &minio.Options{
		Creds:  miniocreds.NewStaticV4(creds.AccessKey, creds.SecretKey, ""),
		Secure: secure,
		Region: creds.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client for %s: %w", host, err)
	}
	return &S3Gateway{client: client, creds: creds}, nil
}

// Bucket returns the configured default bucket for this gateway.
func (g *S3Gateway) Bucket() string {
	return g.creds.Bucket
}

func (g *S3Gateway) Download(ctx context.Context, bucket, key, localPath string) (*ObjectInfo, error) {
	key = naming.EnsureUTF8(key)

	stat, err := g.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}
	if err := g.client.FGetObject(ctx, bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return nil, fmt.Errorf("failed to download s3://%s/%s: %w", bucket, key, err)
	}

	local, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("downloaded file missing at %s: %w", localPath, err)
	}
	if local.Size() != stat.Size {
		return nil, fmt.Errorf("download size mismatch for s3://%s/%s: got %d bytes, object has %d",
			bucket, key, local.Size(), stat.Size)
	}

	logger := log.WithComponent("objectstore")
	logger.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int64("size", stat.Size).
		Msg("Object downloaded")

	return &ObjectInfo{
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

func (g *S3Gateway) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := g.client.StatObject(ctx, bucket, naming.EnsureUTF8(key), minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func (g *S3Gateway) BucketExists(ctx context.Context, bucket string) (bool, error) {
	exists, err := g.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("failed to probe bucket %s: %w", bucket, err)
	}
	return exists, nil
}

func (g *S3Gateway) Fetch(ctx context.Context, bucket, key string) (io.ReadCloser, *ObjectInfo, error) {
	key = naming.EnsureUTF8(key)
	obj, err := g.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open s3://%s/%s: %w", bucket, key, err)
	}
	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, nil, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, nil, fmt.Errorf("failed to stat s3://%s/%s: %w", bucket, key, err)
	}
	return obj, &ObjectInfo{
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		LastModified: stat.LastModified,
	}, nil
}

func (g *S3Gateway) UploadFile(ctx context.Context, localPath, bucket, key string, meta ConversionMetadata) (*Upload, error) {
	local, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("upload source missing at %s: %w", localPath, err)
	}

	return g.putFile(ctx, localPath, bucket, key, local.Size(), meta.headerValues(time.Now()))
}

func (g *S3Gateway) UploadDirectory(ctx context.Context, localDir, bucket, prefix string, meta ConversionMetadata) (*DirUpload, error) {
	root, err := os.Stat(localDir)
	if err != nil {
		return nil, fmt.Errorf("upload directory missing at %s: %w", localDir, err)
	}
	if !root.IsDir() {
		return nil, fmt.Errorf("upload source %s is not a directory", localDir)
	}

	batch := uuid.NewString()
	result := &DirUpload{}
	err = filepath.WalkDir(localDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		key := strings.TrimSuffix(prefix, "/") + "/" + rel

		values := meta.headerValues(time.Now())
		values["relative-path-base64"] = base64.StdEncoding.EncodeToString([]byte(rel))
		values["file-type"] = strings.ToLower(filepath.Ext(rel))
		values["upload-batch"] = batch

		info, statErr := d.Info()
		if statErr != nil {
			result.Failed = append(result.Failed, FailedFile{RelativePath: rel, Error: statErr.Error()})
			return nil
		}
		up, upErr := g.putFile(ctx, p, bucket, key, info.Size(), values)
		if upErr != nil {
			logger := log.WithComponent("objectstore")
			logger.Warn().
				Err(upErr).
				Str("bucket", bucket).
				Str("key", key).
				Msg("Failed to upload directory entry")
			result.Failed = append(result.Failed, FailedFile{RelativePath: rel, Error: upErr.Error()})
			return nil
		}
		result.Uploaded = append(result.Uploaded, UploadedFile{
			RelativePath: rel,
			Key:          up.Key,
			URL:          up.URL,
			Size:         up.Size,
		})
		result.TotalSize += up.Size
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk upload directory %s: %w", localDir, err)
	}

	sort.Slice(result.Uploaded, func(i, j int) bool {
		return result.Uploaded[i].RelativePath < result.Uploaded[j].RelativePath
	})

	logger := log.WithComponent("objectstore")
	logger.Info().
		Str("bucket", bucket).
		Str("prefix", prefix).
		Int("uploaded", len(result.Uploaded)).
		Int("failed", len(result.Failed)).
		Int64("total_size", result.TotalSize).
		Msg("Directory uploaded")

	return result, nil
}

func (g *S3Gateway) Presign(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	u, err := g.client.PresignedGetObject(ctx, bucket, naming.EnsureUTF8(key), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign s3://%s/%s: %w", bucket, key, err)
	}
	return u.String(), nil
}

// putFile stores one file and verifies the stored byte count matches
// the local size.
func (g *S3Gateway) putFile(ctx context.Context, localPath, bucket, key string, localSize int64, values map[string]string) (*Upload, error) {
	_, err := g.client.FPutObject(ctx, bucket, key, localPath, minio.PutObjectOptions{
		ContentType:  ContentTypeFor(key),
		UserMetadata: values,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}

	stat, err := g.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to verify upload s3://%s/%s: %w", bucket, key, err)
	}
	if stat.Size != localSize {
		return nil, fmt.Errorf("upload size mismatch for s3://%s/%s: stored %d bytes, local has %d",
			bucket, key, stat.Size, localSize)
	}

	return &Upload{
		Bucket:  bucket,
		Key:     key,
		URL:     ObjectURL(bucket, key),
		HTTPURL: g.creds.HTTPBase(bucket) + "/" + key,
		Size:    stat.Size,
	}, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.Code == "NotFound"
}
