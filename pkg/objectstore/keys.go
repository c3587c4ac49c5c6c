package objectstore

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/docmill/docmill/pkg/naming"
	"github.com/docmill/docmill/pkg/types"
)

// Source describes where a task's input document came from, after
// filename repair. Output keys are derived from it so converted
// artifacts land next to their source document.
type Source struct {
	// Bucket is the bucket the input was read from.
	Bucket string
	// Folder is the directory portion of the input key, cleaned of
	// mojibake. Empty when the object sat at the bucket root.
	Folder string
	// Stem is the repaired filename without its extension.
	Stem string
	// Filename is the full repaired filename including extension.
	Filename string
}

// DeriveSource computes the output placement for a task. The input key
// is split into folder and filename, both run through mojibake repair.
//
// Inputs that are themselves conversion outputs (key shaped like
// {bucket}/{stem}/{pdf|markdown}/... inside the upload bucket) are
// unwrapped so a pdf_to_markdown pass over an office_to_pdf result
// writes its markdown next to the original office document instead of
// nesting another level deep.
func DeriveSource(task *types.Task, uploadBucket string) Source {
	key := strings.Trim(task.FilePath, "/")
	if key == "" {
		return Source{Bucket: task.BucketName}
	}
	folder := ""
	filename := key
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		folder = key[:idx]
		filename = key[idx+1:]
	}

	if task.BucketName == uploadBucket && uploadBucket != "" {
		parts := strings.Split(key, "/")
		if len(parts) >= 4 && (parts[2] == "pdf" || parts[2] == "markdown") {
			return Source{
				Bucket:   parts[0],
				Folder:   "",
				Stem:     naming.DecodeFilename(parts[1]),
				Filename: naming.DecodeFilename(filename),
			}
		}
	}

	decoded := naming.DecodeFilename(filename)
	return Source{
		Bucket:   task.BucketName,
		Folder:   naming.FixPath(folder),
		Stem:     stemOf(decoded),
		Filename: decoded,
	}
}

// OutputPrefix is the key prefix all artifacts of one conversion share:
// {bucket}/{folder}/{stem}/{type dir}, with empty segments omitted.
// Tasks with no usable source (pure local input) fall back to
// converted/{task id}.
func (s Source) OutputPrefix(taskType types.TaskType, taskID int64) string {
	if s.Bucket == "" || s.Stem == "" {
		return fmt.Sprintf("converted/%d", taskID)
	}
	segments := []string{s.Bucket}
	if s.Folder != "" {
		segments = append(segments, s.Folder)
	}
	segments = append(segments, s.Stem, typeDir(taskType))
	return strings.Join(segments, "/")
}

// OutputKey is the full destination key for one artifact file.
func (s Source) OutputKey(taskType types.TaskType, taskID int64, filename string) string {
	return s.OutputPrefix(taskType, taskID) + "/" + filename
}

func stemOf(filename string) string {
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext)
}

// typeDir names the per-conversion-type subdirectory in output keys.
func typeDir(taskType types.TaskType) string {
	switch taskType {
	case types.TaskTypeOfficeToPDF:
		return "pdf"
	case types.TaskTypePDFToMarkdown:
		return "markdown"
	default:
		return "converted"
	}
}

// ObjectURL renders the canonical s3:// form for a stored object.
func ObjectURL(bucket, key string) string {
	return "s3://" + bucket + "/" + strings.TrimPrefix(key, "/")
}

// ParseURL splits an object URL into bucket and key. Accepted forms:
//
//	s3://bucket/key
//	https://s3.region.amazonaws.com/bucket/key   (path style)
//	https://bucket.s3.region.amazonaws.com/key   (virtual hosted)
//	http://minio-host:9000/bucket/key            (custom endpoint)
func ParseURL(raw string) (bucket, key string, err error) {
	if strings.HasPrefix(raw, "s3://") {
		rest := strings.TrimPrefix(raw, "s3://")
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return "", "", fmt.Errorf("malformed s3 url: %s", raw)
		}
		return bucket, key, nil
	}

	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "", "", fmt.Errorf("unsupported object url: %s", raw)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse object url %s: %w", raw, err)
	}

	host := u.Hostname()
	objPath := strings.TrimPrefix(u.Path, "/")
	if dot := strings.Index(host, ".s3."); dot > 0 && strings.HasSuffix(host, ".amazonaws.com") {
		// Virtual hosted: bucket is the leading host label.
		if objPath == "" {
			return "", "", fmt.Errorf("object url missing key: %s", raw)
		}
		return host[:dot], objPath, nil
	}

	// Path style, both AWS and custom endpoints.
	bucket, key, ok := strings.Cut(objPath, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("object url missing bucket or key: %s", raw)
	}
	return bucket, key, nil
}
