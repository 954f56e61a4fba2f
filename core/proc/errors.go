package proc

import (
	"golang.org/x/sys/unix"
)

const (
	// StatusSuccess is the exit status of a successful process.
	StatusSuccess = 0

	// StatusFailure is reported when a stage cannot redirect or exec, and is the
	// session status after an unrecoverable resource failure.
	StatusFailure = 2

	// StatusUnknown is used for a child whose wait failed.
	StatusUnknown = -1
)

// FatalError is an unrecoverable failure to create a process or pipe in the
// orchestrating process. The session ends with Status when one is returned.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// Status is the exit status the session terminates with.
func (e *FatalError) Status() int {
	return StatusFailure
}

// exitStatus flattens a wait status the way shells report it: the exit code
// for a normal exit, 128 plus the signal number for a signalled child.
func exitStatus(ws unix.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return StatusUnknown
	}
}
