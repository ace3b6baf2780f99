// Package calendar wraps github.com/emersion/go-ical for lossless iCalendar
// parsing/serialization and per-resource validation, detecting the full
// component set (VEVENT/VTODO/VJOURNAL/VFREEBUSY/VAVAILABILITY/VTIMEZONE)
// that availability processing and free-busy synthesis need.
package calendar

import (
	"bytes"
	"fmt"

	goical "github.com/emersion/go-ical"

	"github.com/hazeldav/hazeldav/internal/daverror"
)

// Supported top-level component names.
const (
	CompEvent = goical.CompEvent
	CompToDo = goical.CompToDo
	CompJournal = goical.CompJournal
	CompFreeBusy = goical.CompFreeBusy
	CompTimezone = goical.CompTimezone
	CompAvailability = "VAVAILABILITY"
	CompAvailable = "AVAILABLE"
)

// Calendar is the parsed, order-preserving representation of one .ics file.
type Calendar = goical.Calendar

// Component is one VEVENT/VTODO/.../VTIMEZONE block.
type Component = goical.Component

// Parse decodes raw bytes into a Calendar, tolerating CRLF/LF normalization.
func Parse(data []byte) (*Calendar, error) {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	normalized = bytes.ReplaceAll(normalized, []byte("\n"), []byte("\r\n"))
	cal, err := goical.NewDecoder(bytes.NewReader(normalized)).Decode()
	if err != nil {
		return nil, fmt.Errorf("calendar: parse failed: %w", err)
	}
	return cal, nil
}

// Serialize re-encodes a Calendar to bytes.
func Serialize(cal *Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Normalize parses then re-serializes, canonicalizing line folding and
// property ordering the way a conforming client would after a round trip.
func Normalize(data []byte) ([]byte, error) {
	cal, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Serialize(cal)
}

// TopLevelComponents returns every immediate child component of VCALENDAR.
func TopLevelComponents(cal *Calendar) []*Component {
	return cal.Children
}

// DetectComponents returns the set of supported component names present at
// the top level (VTIMEZONE excluded, since it never defines a resource's
// identity or kind).
func DetectComponents(cal *Calendar) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range cal.Children {
		switch c.Name {
		case CompEvent, CompToDo, CompJournal, CompFreeBusy, CompAvailability:
			if !seen[c.Name] {
				seen[c.Name] = true
				out = append(out, c.Name)
			}
		}
	}
	return out
}

// looksLikeVCard reports whether data carries a vCard signature, used to
// distinguish "this is the wrong resource kind" (415) from "this is malformed
// iCalendar" (400) when parsing fails.
func looksLikeVCard(data []byte) bool {
	return bytes.Contains(data, []byte("BEGIN:VCARD"))
}

// Validator implements collection.Validator for calendar resources.
type Validator struct{}

// Validate enforces import invariants: the bytes must parse, and
// every component in the file (other than VTIMEZONE) must share one UID. The
// returned uid is what collection.Store uses for the injective-UID invariant
// .
func (Validator) Validate(data []byte) (string, error) {
	cal, err := Parse(data)
	if err != nil {
		if looksLikeVCard(data) {
			return "", daverror.UnsupportedMediaType("calendar collection received vCard data, not iCalendar")
		}
		return "", err
	}
	var uid string
	found := false
	for _, c := range cal.Children {
		if c.Name == CompTimezone {
			continue
		}
		prop := c.Props.Get(goical.PropUID)
		if prop == nil {
			return "", fmt.Errorf("component %s missing UID", c.Name)
		}
		if !found {
			uid = prop.Value
			found = true
			continue
		}
		if prop.Value != uid {
			return "", fmt.Errorf("inconsistent UID across components: %q vs %q", uid, prop.Value)
		}
	}
	if !found {
		return "", fmt.Errorf("no UID-bearing component found")
	}
	return uid, nil
}

// ValidateAndClassify is like Validate but also returns the dominant
// component kind, used by the collection metadata layer to answer calendar
// index queries by component type without re-parsing every resource.
func ValidateAndClassify(data []byte) (uid string, component string, err error) {
	cal, perr := Parse(data)
	if perr != nil {
		if looksLikeVCard(data) {
			return "", "", daverror.UnsupportedMediaType("calendar collection received vCard data, not iCalendar")
		}
		return "", "", daverror.Invalid(fmt.Sprintf("malformed calendar data: %v", perr))
	}
	v := Validator{}
	uid, verr := v.Validate(data)
	if verr != nil {
		return "", "", daverror.Invalid(verr.Error())
	}
	comps := DetectComponents(cal)
	if len(comps) == 0 {
		return "", "", daverror.Invalid("no recognized component (VEVENT/VTODO/VJOURNAL/VFREEBUSY/VAVAILABILITY)")
	}
	return uid, comps[0], nil
}
