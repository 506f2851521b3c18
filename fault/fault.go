// Package fault defines the error taxonomy shared by all controllers, together
// with the HTTP-status-to-kind mapping and the process exit-code convention.
package fault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gophercloud/gophercloud"
)

// Kind identifies a failure category. The string value is what ends up in the
// "error.type" field of the CLI envelope.
type Kind string

const (
	Validation        Kind = "ValidationError"
	NotFound          Kind = "NotFound"
	Backend           Kind = "BackendError"
	Boot              Kind = "BootError"
	Server            Kind = "ServerError"
	Lease             Kind = "LeaseError"
	Timeout           Kind = "Timeout"
	NoValidHost       Kind = "NoValidHost"
	NoExternalNetwork Kind = "NoExternalNetwork"
	Clone             Kind = "CloneError"

	BadRequest         Kind = "BadRequest"
	Unauthorized       Kind = "Unauthorized"
	Forbidden          Kind = "Forbidden"
	Conflict           Kind = "Conflict"
	ServiceUnavailable Kind = "ServiceUnavailable"
)

// Error carries a Kind alongside a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind of err, classifying backend errors on the fly.
// A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return classify(err)
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// FromBackend classifies an error returned by the backend SDK into the
// taxonomy. Errors already carrying a Kind pass through unchanged.
func FromBackend(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return &Error{Kind: classify(err), Message: err.Error(), Cause: err}
}

var statusKinds = map[int]Kind{
	400: BadRequest,
	401: Unauthorized,
	403: Forbidden,
	404: NotFound,
	409: Conflict,
	500: Server,
	503: ServiceUnavailable,
}

func classify(err error) Kind {
	if msg := strings.ToLower(err.Error()); strings.Contains(msg, "no valid host") {
		return NoValidHost
	}
	if status, ok := HTTPStatus(err); ok {
		if kind, ok := statusKinds[status]; ok {
			return kind
		}
	}
	return Backend
}

// HTTPStatus extracts an HTTP status code from a backend error. Typed
// gophercloud errors are preferred; text matching is a heuristic last resort
// and may misclassify when a bare number appears in an unrelated message.
func HTTPStatus(err error) (int, bool) {
	var unexpected gophercloud.ErrUnexpectedResponseCode
	if errors.As(err, &unexpected) {
		return unexpected.Actual, true
	}

	switch {
	case isGopherDefault404(err):
		return 404, true
	case isGopherDefault400(err):
		return 400, true
	case isGopherDefault401(err):
		return 401, true
	case isGopherDefault403(err):
		return 403, true
	case isGopherDefault409(err):
		return 409, true
	case isGopherDefault500(err):
		return 500, true
	case isGopherDefault503(err):
		return 503, true
	}

	msg := err.Error()
	for status := range statusKinds {
		code := fmt.Sprintf("%d", status)
		if strings.Contains(" "+msg+" ", " "+code+" ") ||
			strings.Contains(msg, "("+code+")") ||
			strings.Contains(msg, code+":") {
			return status, true
		}
	}
	return 0, false
}

// IsNotFound reports whether err signals a missing backend resource, either
// via a 404 status or a "not found" message.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, NotFound) {
		return true
	}
	if status, ok := HTTPStatus(err); ok && status == 404 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "notfound")
}

func isGopherDefault400(err error) bool {
	var e gophercloud.ErrDefault400
	return errors.As(err, &e)
}

func isGopherDefault401(err error) bool {
	var e gophercloud.ErrDefault401
	return errors.As(err, &e)
}

func isGopherDefault403(err error) bool {
	var e gophercloud.ErrDefault403
	return errors.As(err, &e)
}

func isGopherDefault404(err error) bool {
	var e gophercloud.ErrDefault404
	return errors.As(err, &e)
}

func isGopherDefault409(err error) bool {
	var e gophercloud.ErrDefault409
	return errors.As(err, &e)
}

func isGopherDefault500(err error) bool {
	var e gophercloud.ErrDefault500
	return errors.As(err, &e)
}

func isGopherDefault503(err error) bool {
	var e gophercloud.ErrDefault503
	return errors.As(err, &e)
}

// ExitCode maps an error to the process exit code convention:
// 0 = ok, 1 = invalid arguments or local/validation error,
// 2 = backend error or timeout.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case Validation:
		return 1
	default:
		return 2
	}
}
