// Package filter implements the structured filter grammar and
// index-assisted evaluation of calendar-query/addressbook-query filters
// over components, properties and parameters, with time-range and
// text-match support, plus a three-valued (true/false/unknown) index fast
// path.
package filter

import "time"

// Collation names recognized by TextMatch.
const (
	CollationASCIICasemap = "i;ascii-casemap"
	CollationOctet = "i;octet"
)

// MatchType enumerates the substring relationships TextMatch supports.
type MatchType string

const (
	MatchContains MatchType = "contains"
	MatchEquals MatchType = "equals"
	MatchStartsWith MatchType = "starts-with"
	MatchEndsWith MatchType = "ends-with"
)

// TextMatch is a leaf predicate against one property or parameter value.
type TextMatch struct {
	Value string
	Collation string
	Negate bool
	Match MatchType
}

// TimeRange bounds a query window; a zero Start or End means open-ended.
type TimeRange struct {
	Start time.Time
	End time.Time
}

// ParamFilter matches (or asserts absence of) one property parameter.
type ParamFilter struct {
	Name string
	IsNotDefined bool
	TextMatch *TextMatch
}

// PropFilter matches (or asserts absence of) one property within a component.
type PropFilter struct {
	Name string
	IsNotDefined bool
	TimeRange *TimeRange
	TextMatch *TextMatch
	ParamFilters []ParamFilter
}

// CompFilter matches one component, recursively. The root filter passed to
// EvaluateCalendar is named "VCALENDAR"; Name is compared exactly, so an
// empty Name matches no component.
type CompFilter struct {
	Name string
	IsNotDefined bool
	TimeRange *TimeRange
	PropFilters []PropFilter
	CompFilters []CompFilter
}
