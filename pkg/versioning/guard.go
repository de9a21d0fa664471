// Package versioning implements the optimistic-concurrency check between the
// version a session loaded and the version the store holds at save time.
package versioning

import "fmt"

const CodeConflict = "E_CONFLICT"

// Token is an opaque revision id issued by the object store. The empty token
// means absent: the bucket is unversioned or the object never existed.
type Token string

// Present reports whether the store issued a token.
func (t Token) Present() bool { return t != "" }

// Ptr returns nil for an absent token, for nullable serialization.
func (t Token) Ptr() *string {
	if !t.Present() {
		return nil
	}
	s := string(t)
	return &s
}

func (t Token) String() string {
	if !t.Present() {
		return "<none>"
	}
	return string(t)
}

// ConflictError means the master object moved since it was loaded.
type ConflictError struct {
	Expected Token
	Current  Token
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: master file changed since you loaded it (loaded %s, now %s); reload before saving",
		CodeConflict, e.Expected, e.Current)
}

// Check returns a ConflictError only when both tokens are present and differ.
// An absent token on either side cannot prove a conflict, so it passes; on a
// store that never issues tokens, conflicts are therefore undetectable.
func Check(expected, current Token) error {
	if expected.Present() && current.Present() && expected != current {
		return &ConflictError{Expected: expected, Current: current}
	}
	return nil
}
