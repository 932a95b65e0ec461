package situation_errors

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Error kinds. Every Fault unwraps to exactly one of these.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrForbidden          = errors.New("forbidden")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrStorage            = errors.New("storage failure")
	ErrAlreadyExists      = errors.New("already exists")

	// ErrStaleWrite means the row changed since it was read.
	ErrStaleWrite = errors.New("stale write")
)

// Fault is a client-facing error with a stable code, a message template and
// positional arguments ({0}, {1}, ...) kept apart for localization.
type Fault struct {
	Kind     error
	Code     string
	Template string
	Args     []any
	Cause    error
}

func (f *Fault) Error() string {
	msg := f.Message()
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", f.Code, msg, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, msg)
}

// Message renders the template with its positional arguments.
func (f *Fault) Message() string {
	msg := f.Template
	for i, arg := range f.Args {
		msg = strings.ReplaceAll(msg, "{"+strconv.Itoa(i)+"}", fmt.Sprint(arg))
	}
	return msg
}

func (f *Fault) Unwrap() []error {
	if f.Cause != nil {
		return []error{f.Kind, f.Cause}
	}
	return []error{f.Kind}
}

// StringArgs returns the positional arguments as strings for transport.
func (f *Fault) StringArgs() []string {
	out := make([]string, 0, len(f.Args))
	for _, arg := range f.Args {
		out = append(out, fmt.Sprint(arg))
	}
	return out
}

func newFault(kind error, code, template string, args ...any) *Fault {
	return &Fault{Kind: kind, Code: code, Template: template, Args: args}
}

func Validation(code, template string, args ...any) *Fault {
	return newFault(ErrInvalidInput, code, template, args...)
}

func Authorization(code, template string, args ...any) *Fault {
	return newFault(ErrForbidden, code, template, args...)
}

func NotFound(code, template string, args ...any) *Fault {
	return newFault(ErrNotFound, code, template, args...)
}

func Conflict(code, template string, args ...any) *Fault {
	return newFault(ErrConflict, code, template, args...)
}

func RemoteSystem(cause error, code, template string, args ...any) *Fault {
	f := newFault(ErrServiceUnavailable, code, template, args...)
	f.Cause = cause
	return f
}

func Storage(cause error, code, template string, args ...any) *Fault {
	f := newFault(ErrStorage, code, template, args...)
	f.Cause = cause
	return f
}

// AsFault extracts the Fault from an error chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConflict), errors.Is(err, ErrStaleWrite):
		return http.StatusConflict
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
