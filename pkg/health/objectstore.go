package health

import (
	"context"
	"fmt"
	"time"

	"github.com/docmill/docmill/pkg/objectstore"
)

// ObjectStoreChecker probes the S3 endpoint by asking for the task
// bucket
type ObjectStoreChecker struct {
	gateway objectstore.Gateway
	bucket  string

	// Timeout is the probe timeout (default: 10 seconds)
	Timeout time.Duration
}

// NewObjectStoreChecker creates a new object store health checker
func NewObjectStoreChecker(gateway objectstore.Gateway, bucket string) *ObjectStoreChecker {
	return &ObjectStoreChecker{
		gateway: gateway,
		bucket:  bucket,
		Timeout: 10 * time.Second,
	}
}

// Check verifies the endpoint responds and the bucket exists
func (o *ObjectStoreChecker) Check(ctx context.Context) Result {
	start := time.Now()

	probeCtx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	exists, err := o.gateway.BucketExists(probeCtx, o.bucket)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("object store unreachable: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if !exists {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("bucket %q not found", o.bucket),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("bucket %q reachable", o.bucket),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (o *ObjectStoreChecker) Type() CheckType {
	return CheckTypeObjectStore
}

// WithTimeout sets the probe timeout
func (o *ObjectStoreChecker) WithTimeout(timeout time.Duration) *ObjectStoreChecker {
	o.Timeout = timeout
	return o
}
