package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// clearObjectStoreEnv blanks every variable the resolution chains read
// so tests see only what they set themselves.
func clearObjectStoreEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"S3_ACCESS_KEY_ID", "S3_ACCESS_KEY", "AWS_ACCESS_KEY_ID", "MINIO_ACCESS_KEY", "MINIO_ROOT_USER",
		"S3_SECRET_ACCESS_KEY", "S3_SECRET_KEY", "AWS_SECRET_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD",
		"S3_ENDPOINT_URL", "S3_ENDPOINT", "MINIO_ENDPOINT",
		"S3_REGION", "AWS_REGION",
		"S3_BUCKET", "UPLOAD_S3_BUCKET",
		"UPLOAD_S3_ACCESS_KEY_ID", "UPLOAD_S3_SECRET_ACCESS_KEY",
		"UPLOAD_S3_ENDPOINT_URL", "UPLOAD_S3_REGION",
	} {
		t.Setenv(key, "")
	}
}

func TestDownloadCredentialsDefaults(t *testing.T) {
	clearObjectStoreEnv(t)

	creds := DownloadCredentials()
	assert.Empty(t, creds.AccessKey)
	assert.Empty(t, creds.SecretKey)
	assert.Empty(t, creds.Endpoint)
	assert.Equal(t, "us-east-1", creds.Region)
	assert.Equal(t, DefaultUploadBucket, creds.Bucket)
}

func TestDownloadCredentialsMinioFallback(t *testing.T) {
	clearObjectStoreEnv(t)
	t.Setenv("MINIO_ROOT_USER", "minio-admin")
	t.Setenv("MINIO_ROOT_PASSWORD", "minio-secret")
	t.Setenv("MINIO_ENDPOINT", "http://minio:9000")

	creds := DownloadCredentials()
	assert.Equal(t, "minio-admin", creds.AccessKey)
	assert.Equal(t, "minio-secret", creds.SecretKey)
	assert.Equal(t, "http://minio:9000", creds.Endpoint)
}

func TestDownloadCredentialsChainOrder(t *testing.T) {
	clearObjectStoreEnv(t)
	t.Setenv("MINIO_ROOT_USER", "minio-admin")
	t.Setenv("AWS_ACCESS_KEY_ID", "aws-key")
	t.Setenv("S3_ACCESS_KEY_ID", "s3-key")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("S3_BUCKET", "source-docs")

	creds := DownloadCredentials()
	assert.Equal(t, "s3-key", creds.AccessKey)
	assert.Equal(t, "eu-west-1", creds.Region)
	assert.Equal(t, "source-docs", creds.Bucket)
}

func TestUploadCredentialsOverride(t *testing.T) {
	clearObjectStoreEnv(t)
	t.Setenv("S3_ACCESS_KEY_ID", "shared-key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "shared-secret")
	t.Setenv("S3_ENDPOINT_URL", "http://minio:9000")
	t.Setenv("UPLOAD_S3_ACCESS_KEY_ID", "upload-key")
	t.Setenv("UPLOAD_S3_ENDPOINT_URL", "https://upload.example.com")
	t.Setenv("UPLOAD_S3_BUCKET", "converted-docs")

	creds := UploadCredentials()
	assert.Equal(t, "upload-key", creds.AccessKey)
	assert.Equal(t, "shared-secret", creds.SecretKey)
	assert.Equal(t, "https://upload.example.com", creds.Endpoint)
	assert.Equal(t, "converted-docs", creds.Bucket)
}

func TestUploadCredentialsSharedFallback(t *testing.T) {
	clearObjectStoreEnv(t)
	t.Setenv("S3_ACCESS_KEY_ID", "shared-key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "shared-secret")
	t.Setenv("S3_ENDPOINT_URL", "http://minio:9000")

	creds := UploadCredentials()
	assert.Equal(t, "shared-key", creds.AccessKey)
	assert.Equal(t, "shared-secret", creds.SecretKey)
	assert.Equal(t, "http://minio:9000", creds.Endpoint)
	assert.Equal(t, DefaultUploadBucket, creds.Bucket)
}

func TestEndpointHost(t *testing.T) {
	tests := []struct {
		name       string
		creds      Credentials
		wantHost   string
		wantSecure bool
	}{
		{
			name:       "http endpoint",
			creds:      Credentials{Endpoint: "http://minio:9000"},
			wantHost:   "minio:9000",
			wantSecure: false,
		},
		{
			name:       "https endpoint with trailing slash",
			creds:      Credentials{Endpoint: "https://s3.example.com/"},
			wantHost:   "s3.example.com",
			wantSecure: true,
		},
		{
			name:       "bare host",
			creds:      Credentials{Endpoint: "minio:9000"},
			wantHost:   "minio:9000",
			wantSecure: true,
		},
		{
			name:       "no endpoint default region",
			creds:      Credentials{Region: "us-east-1"},
			wantHost:   "s3.amazonaws.com",
			wantSecure: true,
		},
		{
			name:       "no endpoint other region",
			creds:      Credentials{Region: "eu-west-1"},
			wantHost:   "s3.eu-west-1.amazonaws.com",
			wantSecure: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure := tt.creds.EndpointHost()
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantSecure, secure)
		})
	}
}

func TestHTTPBase(t *testing.T) {
	custom := Credentials{Endpoint: "http://minio:9000"}
	assert.Equal(t, "http://minio:9000/docs", custom.HTTPBase("docs"))

	aws := Credentials{Region: "us-east-1"}
	assert.Equal(t, "https://docs.s3.amazonaws.com", aws.HTTPBase("docs"))

	regional := Credentials{Region: "eu-west-1"}
	assert.Equal(t, "https://docs.s3.eu-west-1.amazonaws.com", regional.HTTPBase("docs"))
}
