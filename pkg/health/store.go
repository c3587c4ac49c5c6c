package health

import (
	"context"
	"fmt"
	"time"

	"github.com/docmill/docmill/pkg/storage"
)

// StoreChecker probes the task database connection
type StoreChecker struct {
	store storage.Store
}

// NewStoreChecker creates a new database health checker
func NewStoreChecker(store storage.Store) *StoreChecker {
	return &StoreChecker{store: store}
}

// Check pings the database
func (s *StoreChecker) Check(ctx context.Context) Result {
	start := time.Now()

	if err := s.store.Ping(); err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("database unreachable: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   "database reachable",
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (s *StoreChecker) Type() CheckType {
	return CheckTypeDatabase
}
