package pipeline

import (
	"fmt"
	"sync"

	"github.com/nucleus/master-sync/pkg/dataset"
	"github.com/nucleus/master-sync/pkg/versioning"
)

// State is a step of the load/save state machine.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateValidating
	StateGuardChecking
	StateWritingMaster
	StateWritingSnapshot
	StateWritingAudit
	StateSaved
	StateFailed
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateLoading:         "loading",
	StateLoaded:          "loaded",
	StateValidating:      "validating",
	StateGuardChecking:   "guard-checking",
	StateWritingMaster:   "writing master",
	StateWritingSnapshot: "writing snapshot",
	StateWritingAudit:    "writing audit",
	StateSaved:           "saved",
	StateFailed:          "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session is one editor's private view of the master object: the dataset it
// last loaded or saved and the version token that came with it. Callers own
// sessions; the pipeline keeps no session state of its own.
type Session struct {
	// op serializes Load and Save: one operation in flight per session.
	op sync.Mutex

	mu      sync.Mutex
	state   State
	dataset *dataset.Dataset
	version versioning.Token
	err     error
}

// NewSession returns an idle session with nothing loaded.
func NewSession() *Session { return &Session{} }

// ResumeSession rebuilds a loaded session from a dataset and the version it
// was loaded at, e.g. from a local working copy.
func ResumeSession(d *dataset.Dataset, version versioning.Token) *Session {
	return &Session{state: StateLoaded, dataset: d, version: version}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dataset returns the last loaded or saved dataset.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset
}

// Version returns the token the next save will be checked against.
func (s *Session) Version() versioning.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Err returns the failure that moved the session to StateFailed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// snapshot returns the fields a save needs, under the lock.
func (s *Session) snapshot() (*dataset.Dataset, versioning.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dataset, s.version
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
}

// settle records the outcome of an operation. On failure the dataset and
// version are left exactly as they were.
func (s *Session) settle(d *dataset.Dataset, version versioning.Token, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateFailed
		s.err = err
		return
	}
	s.state = StateLoaded
	s.err = nil
	s.dataset = d
	s.version = version
}
