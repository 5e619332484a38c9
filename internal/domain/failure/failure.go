// Package failure defines the typed error taxonomy shared by every
// operation. Callers match kinds with errors.Is:
//
//	if errors.Is(err, failure.NotFound) { ... }
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure. A Kind is itself an error so it can be the
// target of errors.Is.
type Kind string

const (
	NotFound                 Kind = "NOT_FOUND"
	PermissionDenied         Kind = "PERMISSION_DENIED"
	Unauthorized             Kind = "UNAUTHORIZED"
	InvalidConfiguration     Kind = "INVALID_CONFIGURATION"
	InvalidOperation         Kind = "INVALID_OPERATION"
	InvalidIdentifier        Kind = "INVALID_IDENTIFIER"
	CriticalServiceProtected Kind = "CRITICAL_SERVICE_PROTECTED"
	CriticalPackageProtected Kind = "CRITICAL_PACKAGE_PROTECTED"
	ServiceNotFound          Kind = "SERVICE_NOT_FOUND"
	SpawnFailed              Kind = "SPAWN_FAILED"
	SubprocessFailed         Kind = "SUBPROCESS_FAILED"
	ParseFailed              Kind = "PARSE_FAILED"
	BackupFailed             Kind = "BACKUP_FAILED"
	WriteFailed              Kind = "WRITE_FAILED"
)

func (k Kind) Error() string { return string(k) }

// Error carries the kind plus enough context for an operator: the
// operation, a short message, itemised details (validation errors) and the
// raw stderr of a failed subprocess.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details []string
	Stderr  string
	Err     error
}

func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return New(kind, op, fmt.Sprintf(format, args...))
}

func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

func (e *Error) WithDetails(details ...string) *Error {
	e.Details = append(e.Details, details...)
	return e
}

func (e *Error) WithStderr(stderr string) *Error {
	e.Stderr = stderr
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Details) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Details, "; "))
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		b.WriteString("\n\n")
		b.WriteString(s)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var fe *Error
	ok := errors.As(err, &fe)
	return fe, ok
}
