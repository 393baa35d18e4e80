package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence is matched by every PersistenceError.
	ErrPersistence = errors.New("persistence failure")

	// ErrTickInProgress is returned by Tick when another tick has not reached Idle.
	ErrTickInProgress = errors.New("poll tick already in progress")

	// ErrUnseenUpsert rejects a stored alert whose id is not in the seen set.
	ErrUnseenUpsert = errors.New("upsert of unseen alert id")
)

// PersistenceError wraps a storage-layer failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err as a PersistenceError unless it already is one.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// SideEffectError reports a sink failing to perform an effect.
type SideEffectError struct {
	Kind    EffectKind
	AlertID string
	Err     error
}

func (e *SideEffectError) Error() string {
	if e.AlertID == "" {
		return fmt.Sprintf("side effect %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("side effect %s for alert %s: %v", e.Kind, e.AlertID, e.Err)
}

func (e *SideEffectError) Unwrap() error { return e.Err }
