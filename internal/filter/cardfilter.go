package filter

import (
	govcard "github.com/emersion/go-vcard"

	"github.com/hazeldav/hazeldav/internal/contact"
)

// AddressFilter is CARDDAV:filter: a set of prop-filters combined by Test
// (RFC 6352 §10.5.1 — "anyof" is a logical OR, "allof" is a logical AND; the
// default per the schema is "anyof").
type AddressFilter struct {
	Test string
	PropFilters []PropFilter
}

const (
	TestAnyOf = "anyof"
	TestAllOf = "allof"
)

// EvaluateCard reports whether card satisfies af.
func EvaluateCard(af AddressFilter, card contact.Card) bool {
	if len(af.PropFilters) == 0 {
		return true
	}
	if af.Test == TestAllOf {
		for _, pf := range af.PropFilters {
			if !matchCardPropFilter(pf, card) {
				return false
			}
		}
		return true
	}
	for _, pf := range af.PropFilters {
		if matchCardPropFilter(pf, card) {
			return true
		}
	}
	return false
}

func matchCardPropFilter(pf PropFilter, card contact.Card) bool {
	fields := card[pf.Name]
	if len(fields) == 0 {
		return pf.IsNotDefined
	}
	if pf.IsNotDefined {
		return false
	}
	for _, f := range fields {
		if !fieldMatches(pf, f) {
			continue
		}
		return true
	}
	return false
}

func fieldMatches(pf PropFilter, f *govcard.Field) bool {
	if pf.TextMatch != nil && !matchText(*pf.TextMatch, f.Value) {
		return false
	}
	for _, paramFilter := range pf.ParamFilters {
		val := ""
		if vals := f.Params[paramFilter.Name]; len(vals) > 0 {
			val = vals[0]
		}
		if val == "" {
			if !paramFilter.IsNotDefined {
				return false
			}
			continue
		}
		if paramFilter.IsNotDefined {
			return false
		}
		if paramFilter.TextMatch != nil && !matchText(*paramFilter.TextMatch, val) {
			return false
		}
	}
	return true
}
