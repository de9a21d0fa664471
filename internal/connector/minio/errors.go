package minio

import (
	"errors"
	"fmt"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodePreconditionFailed  = "E_PRECONDITION_FAILED"
	CodeReadFailed          = "E_READ_FAILED"
	CodeWriteFailed         = "E_WRITE_FAILED"
)

// Error wraps object store failures with retryability hints.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(code string, retryable bool, err error) *Error {
	if err == nil {
		return &Error{Code: code, Retryable: retryable}
	}
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// ErrorCode returns the store error code carried by err, or "" when err did
// not originate from an ObjectStore.
func ErrorCode(err error) string {
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return ""
}

// IsNotFound reports whether err means the object (or its bucket) is absent.
func IsNotFound(err error) bool {
	switch ErrorCode(err) {
	case CodeObjectNotFound, CodeBucketNotFound:
		return true
	}
	return false
}

// IsPreconditionFailed reports whether a conditional write was rejected
// because the object moved past the expected version.
func IsPreconditionFailed(err error) bool {
	return ErrorCode(err) == CodePreconditionFailed
}
