package calendar

import (
	"fmt"
	"sort"
	"time"

	goical "github.com/emersion/go-ical"
	rrule "github.com/teambition/rrule-go"
)

// FarFuture caps open-ended time-range expansion.
var FarFuture = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// Instance is one concrete occurrence of a (possibly recurring) component
// within a query window, after RRULE/RDATE/EXDATE expansion and RECURRENCE-ID
// override resolution.
type Instance struct {
	Start time.Time
	End time.Time
	RecurrenceID *time.Time
	Comp *Component // the effective component: an override if one matched, else the master
}

// ExpandComponents expands every component sharing one UID (a master plus any
// RECURRENCE-ID overrides) into concrete instances overlapping
// [rangeStart, rangeEnd). componentName selects which top-level component
// kind to treat these as (VEVENT/VTODO/VJOURNAL), since DTEND derivation
// differs per kind.
func ExpandComponents(comps []*Component, componentName string, rangeStart, rangeEnd time.Time) ([]Instance, error) {
	var master *Component
	overrides := map[string]*Component{}
	for _, c := range comps {
		if c.Name != componentName {
			continue
		}
		if rid := c.Props.Get(goical.PropRecurrenceID); rid != nil {
			overrides[rid.Value] = c
			continue
		}
		master = c
	}
	if master == nil {
		// Only detached overrides exist; treat each as its own instance.
		var out []Instance
		for _, c := range overrides {
			s, e, err := componentSpan(c, componentName)
			if err != nil {
				continue
			}
			if overlaps(s, e, rangeStart, rangeEnd) {
				out = append(out, Instance{Start: s, End: e, Comp: c})
			}
		}
		return out, nil
	}

	start, end, err := componentSpan(master, componentName)
	if err != nil {
		return nil, err
	}
	duration := end.Sub(start)

	rruleValue := ""
	if p := master.Props.Get(goical.PropRecurrenceRule); p != nil {
		rruleValue = p.Value
	}
	var rdates, exdates []time.Time
	for _, p := range master.Props.Values(goical.PropRecurrenceDates) {
		if ts, err := parseDateOrDateTimeList(p.Value); err == nil {
			rdates = append(rdates, ts...)
		}
	}
	for _, p := range master.Props.Values(goical.PropExceptionDates) {
		if ts, err := parseDateOrDateTimeList(p.Value); err == nil {
			exdates = append(exdates, ts...)
		}
	}

	if rruleValue == "" && len(rdates) == 0 {
		var out []Instance
		if overlaps(start, end, rangeStart, rangeEnd) {
			out = append(out, Instance{Start: start, End: end, Comp: master})
		}
		for key, ov := range overrides {
			rid, _ := time.Parse("20060102T150405Z", key)
			s, e, err := componentSpan(ov, componentName)
			if err != nil {
				continue
			}
			if overlaps(s, e, rangeStart, rangeEnd) {
				rr := rid
				out = append(out, Instance{Start: s, End: e, RecurrenceID: &rr, Comp: ov})
			}
		}
		return out, nil
	}

	var occurrences []time.Time
	if rruleValue != "" {
		rruleText := "DTSTART:" + start.UTC().Format("20060102T150405Z") + "\nRRULE:" + rruleValue
		rule, err := rrule.StrToRRule(rruleText)
		if err != nil {
			return nil, fmt.Errorf("calendar: invalid RRULE: %w", err)
		}
		windowStart := rangeStart.Add(-duration)
		occurrences = rule.Between(windowStart, capFarFuture(rangeEnd), true)
	}
	occurrences = append(occurrences, rdates...)
	occurrences = excludeDates(occurrences, exdates)
	sort.Slice(occurrences, func(i, j int) bool { return occurrences[i].Before(occurrences[j]) })

	seen := map[string]bool{}
	var out []Instance
	for _, occ := range occurrences {
		key := occ.UTC().Format("20060102T150405Z")
		if seen[key] {
			continue
		}
		seen[key] = true
		occEnd := occ.Add(duration)
		if ov, ok := overrides[key]; ok {
			s, e, err := componentSpan(ov, componentName)
			if err != nil {
				continue
			}
			if overlaps(s, e, rangeStart, rangeEnd) {
				rid := occ
				out = append(out, Instance{Start: s, End: e, RecurrenceID: &rid, Comp: ov})
			}
			continue
		}
		if overlaps(occ, occEnd, rangeStart, rangeEnd) {
			rid := occ
			out = append(out, Instance{Start: occ, End: occEnd, RecurrenceID: &rid, Comp: master})
		}
	}

	// Detached overrides whose RECURRENCE-ID never came out of the rule
	// (moved outside the base cadence) still count if their own span overlaps.
	for key, ov := range overrides {
		if seen[key] {
			continue
		}
		s, e, err := componentSpan(ov, componentName)
		if err != nil {
			continue
		}
		if overlaps(s, e, rangeStart, rangeEnd) {
			rid, _ := time.Parse("20060102T150405Z", key)
			out = append(out, Instance{Start: s, End: e, RecurrenceID: &rid, Comp: ov})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func capFarFuture(t time.Time) time.Time {
	if t.After(FarFuture) {
		return FarFuture
	}
	return t
}

func excludeDates(instances, exdates []time.Time) []time.Time {
	if len(exdates) == 0 {
		return instances
	}
	excluded := map[string]bool{}
	for _, d := range exdates {
		excluded[d.UTC().Format("20060102T150405Z")] = true
	}
	var out []time.Time
	for _, inst := range instances {
		if !excluded[inst.UTC().Format("20060102T150405Z")] {
			out = append(out, inst)
		}
	}
	return out
}

func overlaps(s, e, rangeStart, rangeEnd time.Time) bool {
	if !e.After(s) {
		e = s // zero-duration components still occupy their instant
	}
	return s.Before(rangeEnd) && e.After(rangeStart)
}

// componentSpan derives [start, end) per-kind overlap rule:
// VEVENT uses DTSTART/DTEND-or-DURATION; VTODO uses DUE/DTSTART/DURATION;
// VJOURNAL uses DTSTART only (day granularity: DTSTART plus 24 hours).
func componentSpan(c *Component, componentName string) (time.Time, time.Time, error) {
	switch componentName {
	case CompToDo:
		return todoSpan(c)
	case CompJournal:
		start, _, err := parseDateOrDateTime(propValue(c, goical.PropDateTimeStart))
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, start.Add(24 * time.Hour), nil
	default: // VEVENT and anything else DTSTART/DTEND-shaped
		return eventSpan(c)
	}
}

func eventSpan(c *Component) (time.Time, time.Time, error) {
	dtstart := c.Props.Get(goical.PropDateTimeStart)
	if dtstart == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("missing DTSTART")
	}
	start, allDay, err := parseDateOrDateTime(dtstart.Value)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if dtend := c.Props.Get(goical.PropDateTimeEnd); dtend != nil {
		end, _, err := parseDateOrDateTime(dtend.Value)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, end, nil
	}
	if dur := c.Props.Get(goical.PropDuration); dur != nil {
		d, err := parseISODuration(dur.Value)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		return start, start.Add(d), nil
	}
	if allDay {
		return start, start.Add(24 * time.Hour), nil
	}
	return start, start, nil
}

// todoSpan follows RFC 4791 §9.9: a VTODO without DTSTART/DUE overlaps
// nothing unless it has one of the two; DUE/DTSTART/DURATION combine like
// VEVENT's DTSTART/DTEND.
func todoSpan(c *Component) (time.Time, time.Time, error) {
	var start, end time.Time
	var haveStart, haveEnd bool
	if dtstart := c.Props.Get(goical.PropDateTimeStart); dtstart != nil {
		s, _, err := parseDateOrDateTime(dtstart.Value)
		if err == nil {
			start, haveStart = s, true
		}
	}
	if due := c.Props.Get(goical.PropDue); due != nil {
		e, _, err := parseDateOrDateTime(due.Value)
		if err == nil {
			end, haveEnd = e, true
		}
	}
	switch {
	case haveStart && haveEnd:
		return start, end, nil
	case haveStart:
		if dur := c.Props.Get(goical.PropDuration); dur != nil {
			if d, err := parseISODuration(dur.Value); err == nil {
				return start, start.Add(d), nil
			}
		}
		return start, start, nil
	case haveEnd:
		return end, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("VTODO has neither DTSTART nor DUE")
	}
}

func propValue(c *Component, name string) string {
	if p := c.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}
