package dav

import (
	"encoding/xml"
	"net/http"

	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/daverror"
)

// statusFor maps a daverror.Kind to the HTTP status assigns it.
func statusFor(k daverror.Kind) int {
	switch k {
	case daverror.KindProtocol:
		return http.StatusBadRequest
	case daverror.KindPrecondition:
		return http.StatusPreconditionFailed
	case daverror.KindNotFound:
		return http.StatusNotFound
	case daverror.KindForbidden:
		return http.StatusForbidden
	case daverror.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case daverror.KindInvalid:
		return http.StatusBadRequest
	case daverror.KindConflict:
		return http.StatusConflict
	case daverror.KindUnsupported:
		return http.StatusForbidden
	case daverror.KindStorage:
		return http.StatusInternalServerError
	case daverror.KindTransient:
		return http.StatusServiceUnavailable
	case daverror.KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders err as the small XML error document describes,
// never leaking filesystem paths or internal detail for Storage failures.
// Server-side faults (storage, transient) are logged; client-induced ones
// (protocol, precondition, not-found) are not, since the response itself
// already tells the client what it needs to know.
func (h *Handlers) writeErr(w http.ResponseWriter, err error) {
	de, ok := daverror.As(err)
	if !ok {
		h.logger.Error().Err(err).Msg("unclassified error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if de.Kind == daverror.KindStorage || de.Kind == daverror.KindTransient {
		h.logger.Error().Err(err).Int("kind", int(de.Kind)).Msg("request failed")
	}
	status := statusFor(de.Kind)
	if de.Kind == daverror.KindPrecondition && de.Elem == daverror.ElemValidSyncToken {
		status = http.StatusForbidden
	}
	if de.Kind == daverror.KindTransient {
		w.Header().Set("Retry-After", "1")
	}
	if de.Elem == "" {
		http.Error(w, de.Msg, status)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	_ = enc.Encode(common.ErrorProp{Elem: elemName(de.Elem)})
}

// elemName parses the "{namespace}local" encoding daverror.Error.Elem uses
// into an xml.Name.
func elemName(s string) xml.Name {
	if len(s) == 0 || s[0] != '{' {
		return xml.Name{Local: s}
	}
	end := 1
	for end < len(s) && s[end] != '}' {
		end++
	}
	if end >= len(s) {
		return xml.Name{Local: s}
	}
	return xml.Name{Space: s[1:end], Local: s[end+1:]}
}
