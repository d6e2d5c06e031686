// Package errors provides domain-specific error types for telfs.
//
// These types carry structured context (operation, path, kind) that lets
// the command layer decide what to tell the client and what to log.
package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrEscapesRoot  = errors.New("path escapes server root")
	ErrInvalidPath  = errors.New("invalid path")
	ErrPermission   = errors.New("permission denied")
	ErrLineTooLong  = errors.New("line too long")
	ErrServerClosed = errors.New("server closed")
	ErrUnsupported  = errors.New("not supported on this platform")
	ErrTooLarge     = errors.New("file too large")
	ErrIsDir        = errors.New("is a directory")
	ErrNotDir       = errors.New("not a directory")
)

// ── Filesystem error kinds ───────────────────────────────────────────

// Kind classifies a filesystem failure.
type Kind int

const (
	KindIOFailure Kind = iota
	KindNotFound
	KindAlreadyExists
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindPermissionDenied:
		return "permission denied"
	default:
		return "i/o failure"
	}
}

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a socket operation.
type NetworkError struct {
	Op        string // "listen", "accept", "read", "write", "poll"
	Addr      string
	Err       error
	Retryable bool
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FSError is returned by the filesystem gateway.
type FSError struct {
	Op   string // "list", "create", "mkdir", "remove", "copy", "read"
	Path string // virtual path
	Kind Kind
	Err  error
}

func (e *FSError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
}

func (e *FSError) Unwrap() error { return e.Err }

// Reason is the client-facing description: the sentinel's text when the
// failure is one of ours, otherwise the kind.
func (e *FSError) Reason() string {
	for _, s := range []error{ErrIsDir, ErrNotDir, ErrTooLarge, ErrInvalidPath, ErrEscapesRoot} {
		if errors.Is(e.Err, s) {
			return s.Error()
		}
	}
	return e.Kind.String()
}

// CommandError is a failure that gets reported back to the client.
type CommandError struct {
	Verb string
	Arg  string // the argument as the client typed it (optional)
	Err  error
}

func (e *CommandError) Error() string {
	var detail string
	var fe *FSError
	if errors.As(e.Err, &fe) {
		detail = fe.Reason()
	} else {
		detail = e.Err.Error()
	}
	if e.Arg == "" {
		return fmt.Sprintf("%s: %s", e.Verb, detail)
	}
	return fmt.Sprintf("%s: %s: %s", e.Verb, e.Arg, detail)
}

func (e *CommandError) Unwrap() error { return e.Err }

// UsageError reports a wrong argument count.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string { return "usage: " + e.Usage }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, detecting retryability from the
// underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapFS creates an FSError, classifying err.  Errors that already are
// an FSError keep their kind.
func WrapFS(op, path string, err error) *FSError {
	return &FSError{Op: op, Path: path, Kind: KindOf(err), Err: err}
}

// Command wraps err for the client.
func Command(verb, arg string, err error) *CommandError {
	return &CommandError{Verb: verb, Arg: arg, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// KindOf maps err onto a filesystem error kind.
func KindOf(err error) Kind {
	var fe *FSError
	switch {
	case errors.As(err, &fe):
		return fe.Kind
	case errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	case errors.Is(err, fs.ErrExist):
		return KindAlreadyExists
	case errors.Is(err, fs.ErrPermission), errors.Is(err, ErrPermission):
		return KindPermissionDenied
	default:
		return KindIOFailure
	}
}

// IsNotFound reports whether err is a NotFound failure.
func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

// IsExist reports whether err is an AlreadyExists failure.
func IsExist(err error) bool { return err != nil && KindOf(err) == KindAlreadyExists }

// IsRetryable reports whether err is worth retrying: the address is
// still in use, or the error reports itself as temporary (EMFILE, ENFILE,
// EAGAIN and friends).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// A previous listener on the port may still be in TIME_WAIT.
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var te interface{ Temporary() bool }
	if errors.As(err, &te) {
		return te.Temporary()
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
