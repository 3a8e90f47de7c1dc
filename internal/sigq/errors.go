package sigq

import "errors"

var (
	// ErrNilElement is returned when an operation is handed a nil element.
	ErrNilElement = errors.New("sigq: nil element")
	// ErrUnknownSignal is returned for signals outside the handled set.
	ErrUnknownSignal = errors.New("sigq: signal not handled")
	// ErrNotTracked is returned when waiting on a tracked element that was
	// never inserted.
	ErrNotTracked = errors.New("sigq: element not inserted")
	// ErrNoCommand is returned when an element or run has an empty argv.
	ErrNoCommand = errors.New("sigq: empty command")

	// ErrHandlerInstall reports a failure installing or restoring a disposition.
	ErrHandlerInstall = errors.New("sigq: signal disposition")
	// ErrFork reports a failure creating the child process.
	ErrFork = errors.New("sigq: fork")
	// ErrPipe reports a failure creating the handshake pipe.
	ErrPipe = errors.New("sigq: handshake pipe")
	// ErrWaitMismatch reports a wait that collected a pid other than the expected child.
	ErrWaitMismatch = errors.New("sigq: wait collected unexpected pid")
)
