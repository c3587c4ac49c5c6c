package objectstore

import (
	"os"
	"strings"
)

// DefaultUploadBucket receives converted artifacts when no bucket is
// configured.
const DefaultUploadBucket = "ai-file"

// Credentials is one resolved set of object-store connection settings.
// Download and upload sides resolve independently so converted output
// can land on a different MinIO/S3 installation than the sources.
type Credentials struct {
	AccessKey string
	SecretKey string
	Endpoint  string
	Region    string
	Bucket    string
}

// DownloadCredentials resolves the source-side settings from the
// environment. Each value walks a fixed chain left to right, accepting
// the common S3, AWS and MinIO variable names.
func DownloadCredentials() Credentials {
	return Credentials{
		AccessKey: envChain("S3_ACCESS_KEY_ID", "S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID", "MINIO_ACCESS_KEY", "MINIO_ROOT_USER"),
		SecretKey: envChain("S3_SECRET_ACCESS_KEY", "S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD"),
		Endpoint:  envChain("S3_ENDPOINT_URL", "S3_ENDPOINT", "MINIO_ENDPOINT"),
		Region:    envChainDefault("us-east-1", "S3_REGION", "AWS_REGION"),
		Bucket:    envChainDefault(DefaultUploadBucket, "S3_BUCKET", "UPLOAD_S3_BUCKET"),
	}
}

// UploadCredentials resolves the destination-side settings. UPLOAD_S3_*
// variables win so the upload target can be overridden without touching
// the shared S3_* settings.
func UploadCredentials() Credentials {
	return Credentials{
		AccessKey: envChain("UPLOAD_S3_ACCESS_KEY_ID", "S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"),
		SecretKey: envChain("UPLOAD_S3_SECRET_ACCESS_KEY", "S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"),
		Endpoint:  envChain("UPLOAD_S3_ENDPOINT_URL", "S3_ENDPOINT_URL"),
		Region:    envChainDefault("us-east-1", "UPLOAD_S3_REGION", "S3_REGION", "AWS_REGION"),
		Bucket:    envChainDefault(DefaultUploadBucket, "UPLOAD_S3_BUCKET"),
	}
}

// EndpointHost splits the endpoint into the host form minio-go expects
// plus a TLS flag. Without an explicit endpoint the AWS public endpoint
// for the region is assumed.
func (c Credentials) EndpointHost() (string, bool) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		if c.Region == "" || c.Region == "us-east-1" {
			return "s3.amazonaws.com", true
		}
		return "s3." + c.Region + ".amazonaws.com", true
	}

	secure := true
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		secure = false
		endpoint = strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}
	return strings.TrimSuffix(endpoint, "/"), secure
}

// HTTPBase returns the base URL for plain HTTP object access: the
// custom endpoint when one is set, else the virtual-hosted AWS form.
func (c Credentials) HTTPBase(bucket string) string {
	if endpoint := strings.TrimSpace(c.Endpoint); endpoint != "" {
		return strings.TrimSuffix(endpoint, "/") + "/" + bucket
	}
	if c.Region == "" || c.Region == "us-east-1" {
		return "https://" + bucket + ".s3.amazonaws.com"
	}
	return "https://" + bucket + ".s3." + c.Region + ".amazonaws.com"
}

func envChain(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func envChainDefault(fallback string, keys ...string) string {
	if v := envChain(keys...); v != "" {
		return v
	}
	return fallback
}
