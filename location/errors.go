// location/errors.go
package location

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches every failure to produce a fix. It is distinct from "no fix yet",
// which is simply the absence of samples.
var ErrUnavailable = errors.New("location unavailable")

type Code string

const (
	PermissionDenied    Code = "permission_denied"
	Timeout             Code = "timeout"
	PositionUnavailable Code = "position_unavailable"
)

// ParseCode maps a client-reported geolocation error to a Code. Unknown values are treated
// as the position being unavailable.
func ParseCode(s string) Code {
	switch Code(s) {
	case PermissionDenied, Timeout, PositionUnavailable:
		return Code(s)
	}
	// browsers report numeric GeolocationPositionError codes
	switch s {
	case "1":
		return PermissionDenied
	case "3":
		return Timeout
	}
	return PositionUnavailable
}

type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("location %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("location %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUnavailable }

// CodeOf returns the failure code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return "", false
}
