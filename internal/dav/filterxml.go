package dav

import (
	"encoding/xml"
	"strings"

	"github.com/beevik/etree"

	"github.com/hazeldav/hazeldav/internal/calendar"
	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/filter"
)

// propNames extracts the list of requested property names from a {DAV:}prop
// element: every child's own tag name is
// the requested property, per RFC 4918 §14.18.
func propNames(propNode *etree.Element) []xml.Name {
	if propNode == nil {
		return nil
	}
	children := propNode.ChildElements()
	out := make([]xml.Name, 0, len(children))
	for _, c := range children {
		out = append(out, common.ResolvedName(c))
	}
	return out
}

// parseCalendarFilter converts a CALDAV:filter body element into the root
// CompFilter the filter engine evaluates. With no filter element or no
// comp-filter child it returns a bare VCALENDAR filter; otherwise the first
// top-level comp-filter is used as given, with no VCALENDAR wrapper added.
func parseCalendarFilter(filterNode *etree.Element) filter.CompFilter {
	if filterNode == nil {
		return filter.CompFilter{Name: "VCALENDAR"}
	}
	if cf := common.FindChild(filterNode, common.NSCalDAV, "comp-filter"); cf != nil {
		return parseCompFilter(cf)
	}
	return filter.CompFilter{Name: "VCALENDAR"}
}

func parseCompFilter(n *etree.Element) filter.CompFilter {
	cf := filter.CompFilter{Name: n.SelectAttrValue("name", "")}
	if common.FindChild(n, common.NSDAV, "is-not-defined") != nil {
		cf.IsNotDefined = true
		return cf
	}
	if tr := common.FindChild(n, common.NSCalDAV, "time-range"); tr != nil {
		cf.TimeRange = parseTimeRange(tr)
	}
	for _, pf := range common.FindAllChildren(n, common.NSCalDAV, "prop-filter") {
		cf.PropFilters = append(cf.PropFilters, parsePropFilter(pf))
	}
	for _, sub := range common.FindAllChildren(n, common.NSCalDAV, "comp-filter") {
		cf.CompFilters = append(cf.CompFilters, parseCompFilter(sub))
	}
	return cf
}

func parsePropFilter(n *etree.Element) filter.PropFilter {
	pf := filter.PropFilter{Name: n.SelectAttrValue("name", "")}
	if common.FindChild(n, common.NSDAV, "is-not-defined") != nil {
		pf.IsNotDefined = true
		return pf
	}
	if tr := common.FindChild(n, common.NSCalDAV, "time-range"); tr != nil {
		pf.TimeRange = parseTimeRange(tr)
	}
	if tm := common.FindChild(n, common.NSCalDAV, "text-match"); tm != nil {
		pf.TextMatch = parseTextMatch(tm)
	}
	for _, pm := range common.FindAllChildren(n, common.NSCalDAV, "param-filter") {
		pf.ParamFilters = append(pf.ParamFilters, parseParamFilter(pm))
	}
	return pf
}

func parseParamFilter(n *etree.Element) filter.ParamFilter {
	pm := filter.ParamFilter{Name: n.SelectAttrValue("name", "")}
	if common.FindChild(n, common.NSDAV, "is-not-defined") != nil {
		pm.IsNotDefined = true
		return pm
	}
	if tm := common.FindChild(n, common.NSCalDAV, "text-match"); tm != nil {
		pm.TextMatch = parseTextMatch(tm)
	}
	return pm
}

func parseTextMatch(n *etree.Element) *filter.TextMatch {
	tm := &filter.TextMatch{
		Value: n.Text(),
		Collation: n.SelectAttrValue("collation", ""),
		Match: filter.MatchContains,
	}
	if tm.Collation == "" {
		tm.Collation = filter.CollationASCIICasemap
	}
	if neg := n.SelectAttrValue("negate-condition", ""); neg == "yes" {
		tm.Negate = true
	}
	if mt := n.SelectAttrValue("match-type", ""); mt != "" {
		tm.Match = filter.MatchType(mt)
	}
	return tm
}

func parseTimeRange(n *etree.Element) *filter.TimeRange {
	tr := &filter.TimeRange{}
	if s := n.SelectAttrValue("start", ""); s != "" {
		if t, err := calendar.ParseICalTime(s); err == nil {
			tr.Start = t
		}
	}
	if e := n.SelectAttrValue("end", ""); e != "" {
		if t, err := calendar.ParseICalTime(e); err == nil {
			tr.End = t
		}
	}
	return tr
}

// parseAddressFilter converts a CARDDAV:filter body element into an
// AddressFilter (RFC 6352 §10.5), reusing PropFilter/ParamFilter/TextMatch
// since the two query grammars share the same leaf shapes.
func parseAddressFilter(filterNode *etree.Element) filter.AddressFilter {
	af := filter.AddressFilter{Test: filter.TestAnyOf}
	if filterNode == nil {
		return af
	}
	if t := strings.ToLower(filterNode.SelectAttrValue("test", "")); t == filter.TestAllOf {
		af.Test = filter.TestAllOf
	}
	for _, pf := range common.FindAllChildren(filterNode, common.NSCardDAV, "prop-filter") {
		af.PropFilters = append(af.PropFilters, parseCardPropFilter(pf))
	}
	return af
}

func parseCardPropFilter(n *etree.Element) filter.PropFilter {
	pf := filter.PropFilter{Name: n.SelectAttrValue("name", "")}
	if common.FindChild(n, common.NSDAV, "is-not-defined") != nil {
		pf.IsNotDefined = true
		return pf
	}
	if tm := common.FindChild(n, common.NSCardDAV, "text-match"); tm != nil {
		pf.TextMatch = parseTextMatch(tm)
	}
	for _, pm := range common.FindAllChildren(n, common.NSCardDAV, "param-filter") {
		card := filter.ParamFilter{Name: pm.SelectAttrValue("name", "")}
		if common.FindChild(pm, common.NSDAV, "is-not-defined") != nil {
			card.IsNotDefined = true
		} else if tm := common.FindChild(pm, common.NSCardDAV, "text-match"); tm != nil {
			card.TextMatch = parseTextMatch(tm)
		}
		pf.ParamFilters = append(pf.ParamFilters, card)
	}
	return pf
}
