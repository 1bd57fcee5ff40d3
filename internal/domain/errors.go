package domain

import "errors"

var (
	// ErrIdentityMissing is returned when no identity blob exists in the
	// volatile store; the caller must send the player back to the join flow.
	ErrIdentityMissing = errors.New("session identity not found")
	// ErrIdentityInvalid is returned when the stored identity cannot be
	// normalized into server-assigned integer ids.
	ErrIdentityInvalid = errors.New("session identity invalid")
	// ErrQuizLoadFailed indicates the quiz content could not be loaded.
	ErrQuizLoadFailed = errors.New("quiz load failed")
	// ErrQuizNotFound indicates the requested quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionFinished is returned when an event reaches a sequencer
	// that has already entered its terminal state.
	ErrSessionFinished = errors.New("session already finished")
	// ErrNoRecord is returned when no finalized session record exists yet.
	ErrNoRecord = errors.New("no persisted session record")
)
