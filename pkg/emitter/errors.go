package emitter

import (
	"errors"
	"fmt"

	"github.com/autosd-vss-mw/vss-lib/pkg/vss"
)

// ErrEmitFailed matches every emission failure regardless of stage.
var ErrEmitFailed = errors.New("emit hardware signal failed")

// Stage is the step of an emission that failed.
type Stage string

const (
	// StageConnect covers opening the bus connection.
	StageConnect Stage = "connect"
	// StageCall covers the remote method call, timeouts included.
	StageCall Stage = "call"
)

// Error describes a failed emission.
type Error struct {
	Stage   Stage
	Bus     string
	Reading vss.Reading
	Err     error
}

func (e *Error) Error() string {
	if e.Stage == StageConnect {
		return fmt.Sprintf("failed to connect to the %s: %v", e.Bus, e.Err)
	}
	return fmt.Sprintf("failed to send D-Bus message: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrEmitFailed as a match so callers need not inspect the stage.
func (e *Error) Is(target error) bool {
	return target == ErrEmitFailed
}

// StageOf returns the failed stage of err, or "" when err is not an emission error.
func StageOf(err error) Stage {
	var emitErr *Error
	if errors.As(err, &emitErr) {
		return emitErr.Stage
	}
	return ""
}
