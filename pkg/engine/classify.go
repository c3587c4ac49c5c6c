package engine

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"strings"
)

// ErrorKind buckets engine failures for retry decisions and reporting.
type ErrorKind string

const (
	KindPasswordProtected ErrorKind = "password_protected"
	KindAcceleratorOOM    ErrorKind = "accelerator_oom"
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindPermission        ErrorKind = "permission"
	KindMissingDependency ErrorKind = "missing_dependency"
	KindTimeout           ErrorKind = "timeout"
	KindUnknown           ErrorKind = "unknown"
)

// kindPrefixes lead the rendered error message so operators and
// callback consumers can match on a stable tag. The password prefix
// keeps the bilingual form the upstream consumers already match on.
var kindPrefixes = map[ErrorKind]string{
	KindPasswordProtected: "PDF密码保护/password-protected",
	KindAcceleratorOOM:    "accelerator out of memory",
	KindUnsupportedFormat: "unsupported format",
	KindPermission:        "permission denied",
	KindMissingDependency: "missing dependency",
	KindTimeout:           "conversion timeout",
}

// EngineError is a classified conversion failure.
type EngineError struct {
	Kind    ErrorKind
	Message string
}

func (e *EngineError) Error() string {
	if prefix, ok := kindPrefixes[e.Kind]; ok {
		return prefix + ": " + e.Message
	}
	return e.Message
}

// Classify wraps an arbitrary conversion failure into an EngineError.
// Typed causes win over message heuristics; already-classified errors
// pass through unchanged.
func Classify(err error) *EngineError {
	if err == nil {
		return nil
	}
	var engErr *EngineError
	if errors.As(err, &engErr) {
		return engErr
	}
	return &EngineError{Kind: classifyKind(err), Message: err.Error()}
}

func classifyKind(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, exec.ErrNotFound):
		return KindMissingDependency
	case errors.Is(err, fs.ErrPermission):
		return KindPermission
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return KindMissingDependency
	}
	// Absolute-path binaries that do not exist fail at process start with
	// a fork/exec PathError rather than an exec.Error.
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) && pathErr.Op == "fork/exec" && errors.Is(pathErr, fs.ErrNotExist) {
		return KindMissingDependency
	}
	return classifyMessage(err.Error())
}

func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, "password", "encrypted", "密码"):
		return KindPasswordProtected
	case containsAny(lower, "out of memory", "cannot allocate memory", "cuda error"):
		return KindAcceleratorOOM
	case containsAny(lower, "unsupported", "no export filter", "could not be loaded", "unknown format"):
		return KindUnsupportedFormat
	case containsAny(lower, "permission denied", "operation not permitted", "access denied"):
		return KindPermission
	case containsAny(lower, "executable file not found", "command not found", "not installed"):
		return KindMissingDependency
	case containsAny(lower, "deadline exceeded", "timed out", "timeout"):
		return KindTimeout
	}
	return KindUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
