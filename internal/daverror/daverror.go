// Package daverror implements the error taxonomy: component code returns
// one of these tagged errors, and the protocol layer (internal/dav) is the
// only place that translates them into HTTP status codes and DAV:error
// elements. Components never write to an http.ResponseWriter directly.
package daverror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindProtocol Kind = iota
	KindPrecondition
	KindNotFound
	KindForbidden
	KindMethodNotAllowed
	KindInvalid
	KindConflict
	KindUnsupported
	KindStorage
	KindTransient
	KindUnsupportedMediaType
)

// Error is the tagged result type every component returns instead of a bare
// error. Elem, when set, names the RFC-defined {namespace}local child element
// that must appear inside the response's <DAV:error> body (e.g. the CalDAV
// "no-uid-conflict" or the sync "valid-sync-token" precondition).
type Error struct {
	Kind Kind
	Msg string
	Elem string // e.g. "{urn:ietf:params:xml:ns:caldav}no-uid-conflict"
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.wrapped)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.wrapped }

func newErr(k Kind, elem, msg string, cause error) *Error {
	return &Error{Kind: k, Msg: msg, Elem: elem, wrapped: cause}
}

func Protocol(msg string) *Error { return newErr(KindProtocol, "", msg, nil) }
func Precondition(elem, msg string) *Error {
	return newErr(KindPrecondition, elem, msg, nil)
}
func NotFound(msg string) *Error { return newErr(KindNotFound, "", msg, nil) }
func Forbidden(msg string) *Error { return newErr(KindForbidden, "", msg, nil) }
func MethodNotAllowed(msg string) *Error { return newErr(KindMethodNotAllowed, "", msg, nil) }
func Invalid(msg string) *Error { return newErr(KindInvalid, "", msg, nil) }
func Conflict(elem, msg string) *Error { return newErr(KindConflict, elem, msg, nil) }
func Unsupported(msg string) *Error { return newErr(KindUnsupported, "", msg, nil) }
func Storage(msg string, cause error) *Error {
	return newErr(KindStorage, "", msg, cause)
}
func Transient(msg string) *Error { return newErr(KindTransient, "", msg, nil) }

// UnsupportedMediaType reports a body that parses as the wrong resource kind
// for its collection (e.g. vCard bytes PUT into a calendar collection),
// distinct from Invalid's "malformed for its own kind".
func UnsupportedMediaType(msg string) *Error { return newErr(KindUnsupportedMediaType, "", msg, nil) }

// As is a small convenience over errors.As for callers that just need the Kind.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Well-known precondition/conflict element names referenced across components.
const (
	ElemNoUIDConflict = "{urn:ietf:params:xml:ns:caldav}no-uid-conflict"
	ElemValidSyncToken = "{DAV:}valid-sync-token"
	ElemSupportedCalComp = "{urn:ietf:params:xml:ns:caldav}supported-calendar-component"
	ElemSupportedCalData = "{urn:ietf:params:xml:ns:caldav}supported-calendar-data"
	ElemValidCalendarData = "{urn:ietf:params:xml:ns:caldav}valid-calendar-data"
	ElemValidAddressData = "{urn:ietf:params:xml:ns:carddav}valid-address-data"
	ElemNoUIDConflictCard = "{urn:ietf:params:xml:ns:carddav}no-uid-conflict"
	ElemCannotModifyVersion = "{DAV:}cannot-modify-protected-property"
)
