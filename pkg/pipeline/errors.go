package pipeline

import (
	"fmt"

	"github.com/nucleus/master-sync/pkg/versioning"
)

const (
	CodeTransport     = "E_TRANSPORT"
	CodeNotFound      = "E_NOT_FOUND"
	CodeFormat        = "E_FORMAT"
	CodeEmptyDataset  = "E_EMPTY_DATASET"
	CodeDuplicateKeys = "E_DUPLICATE_KEYS"
	CodeConflict      = "E_CONFLICT"
	CodePartialSave   = "E_PARTIAL_SAVE"
	CodeInvalidInput  = "E_INVALID_INPUT"
)

// Sentinels for errors.Is; they match any *Error with the same Code.
var (
	ErrTransport     = &Error{Code: CodeTransport}
	ErrNotFound      = &Error{Code: CodeNotFound}
	ErrFormat        = &Error{Code: CodeFormat}
	ErrEmptyDataset  = &Error{Code: CodeEmptyDataset}
	ErrDuplicateKeys = &Error{Code: CodeDuplicateKeys}
	ErrConflict      = &Error{Code: CodeConflict}
	ErrPartialSave   = &Error{Code: CodePartialSave}
	ErrInvalidInput  = &Error{Code: CodeInvalidInput}
)

// Error is the classified outcome of a failed load or save. Stage is the state
// the pipeline was in when it failed.
//
// For CodePartialSave the master object was already overwritten: NewVersion
// is the version it now holds and SnapshotKey is set when the snapshot made
// it. Retrying such a save creates a second master revision.
type Error struct {
	Code        string
	Stage       State
	NewVersion  versioning.Token
	SnapshotKey string
	Err         error
}

func (e *Error) Error() string {
	if e.Code == CodePartialSave {
		return fmt.Sprintf("%s: master saved as version %s but %s failed; saved but unaudited, investigate before retrying: %v",
			e.Code, e.NewVersion, e.Stage, e.Err)
	}
	if e.Err == nil {
		return e.Code
	}
	return fmt.Sprintf("%s during %s: %v", e.Code, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so callers can test against the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}
