// presence/errors.go
package presence

import (
	"errors"
	"fmt"

	"friendsnav/db"
)

var (
	// ErrStoreUnavailable matches every failed store read or write. Such failures are retryable.
	ErrStoreUnavailable = errors.New("team store unavailable")
	ErrTeamNotFound     = errors.New("team not found")
	ErrNotJoined        = errors.New("member has not joined the team")
	ErrInvalidInput     = errors.New("invalid input")
	ErrWaypointNotFound = errors.New("waypoint not found")
)

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreUnavailable }

func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrNotFound):
		return ErrTeamNotFound
	case errors.Is(err, db.ErrMemberNotFound):
		return ErrNotJoined
	case errors.Is(err, db.ErrInvalidKey):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return &StoreError{Op: op, Err: err}
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}
