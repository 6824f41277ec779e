package lode

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for storage failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrPermissionDenied indicates a permission/access failure (EACCES).
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound indicates the target object does not exist (ENOENT, 404).
	ErrNotFound = errors.New("not found")
	// ErrDiskFull indicates storage is out of space (ENOSPC).
	ErrDiskFull = errors.New("no space left on device")
	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")
	// ErrThrottled indicates rate limiting (429, SlowDown).
	ErrThrottled = errors.New("rate limited")
	// ErrAuth indicates authentication failure (no credentials, expired token).
	ErrAuth = errors.New("authentication failed")
	// ErrAccessDenied indicates authorization failure (valid creds, no permission).
	ErrAccessDenied = errors.New("access denied")
	// ErrNetwork indicates a network-level failure (connection refused, DNS).
	ErrNetwork = errors.New("network error")
	// ErrUnclassified is the kind of any storage failure matching no rule.
	ErrUnclassified = errors.New("storage error")
)

// ErrOutsideManifestDir is returned when a manifest output does not live
// under the manifest's own directory and so cannot be published.
var ErrOutsideManifestDir = errors.New("output outside manifest directory")

// StorageError wraps an underlying error with storage classification.
type StorageError struct {
	// Kind is the sentinel error for classification (e.g., ErrNotFound).
	Kind error
	// Op is the operation that failed: "put", "get", "list" or "init".
	Op string
	// Path is the storage key involved, if any.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *StorageError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// wrap classifies err for op on path. Returns nil if err is nil.
func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Kind: classifyError(err), Op: op, Path: path, Err: err}
}

// classifyRule maps message fragments to a sentinel. Rules are checked in
// order; the first match wins.
type classifyRule struct {
	kind      error
	fragments []string
}

var classifyRules = []classifyRule{
	{ErrAccessDenied, []string{"AccessDenied", "Forbidden", "403"}},
	{ErrPermissionDenied, []string{"permission denied", "EACCES"}},
	{ErrNotFound, []string{"no such file", "does not exist", "not found", "ENOENT", "404", "NoSuchKey"}},
	{ErrDiskFull, []string{"no space left", "disk full", "ENOSPC", "quota exceeded"}},
	{ErrNetwork, []string{"connection refused", "no route to host", "network unreachable", "DNS", "dial tcp"}},
	{ErrTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{ErrThrottled, []string{"SlowDown", "rate exceeded", "throttl", "429", "TooManyRequests"}},
	{ErrAuth, []string{"NoCredentialProviders", "credentials", "InvalidAccessKeyId",
		"SignatureDoesNotMatch", "ExpiredToken", "401", "Unauthorized"}},
}

// classifyError determines the sentinel for err from its type and message.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	for _, sentinel := range []error{ErrNotFound, ErrTimeout} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return ErrTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range classifyRules {
		for _, f := range rule.fragments {
			if strings.Contains(msg, strings.ToLower(f)) {
				return rule.kind
			}
		}
	}
	return ErrUnclassified
}
