// Package availability implements RFC 7953 priority-resolved availability
// processing and VFREEBUSY synthesis: gathering VEVENT/VFREEBUSY instances,
// VAVAILABILITY priority resolution, BUSY > BUSY-UNAVAILABLE >
// BUSY-TENTATIVE > FREE tie-breaking, AVAILABLE sub-component holes, and
// interval merge.
package availability

import (
	"fmt"
	"sort"
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/hazeldav/hazeldav/internal/calendar"
)

// BusyType enumerates the FREEBUSY period classifications RFC 7953 defines,
// ordered from most to least constraining for tie-breaking.
type BusyType int

const (
	BusyTypeBusy BusyType = iota
	BusyTypeBusyUnavailable
	BusyTypeBusyTentative
	BusyTypeFree
)

func (b BusyType) String() string {
	switch b {
	case BusyTypeBusy:
		return "BUSY"
	case BusyTypeBusyUnavailable:
		return "BUSY-UNAVAILABLE"
	case BusyTypeBusyTentative:
		return "BUSY-TENTATIVE"
	default:
		return "FREE"
	}
}

func busyTypeFromString(s string) BusyType {
	switch s {
	case "BUSY-UNAVAILABLE":
		return BusyTypeBusyUnavailable
	case "BUSY-TENTATIVE":
		return BusyTypeBusyTentative
	case "FREE":
		return BusyTypeFree
	default:
		return BusyTypeBusy
	}
}

// Period is one resolved busy/free interval.
type Period struct {
	Start time.Time
	End time.Time
	Type BusyType
}

// priorityPeriod additionally carries the VAVAILABILITY priority that
// produced it, 1 (highest) through 9 (lowest); 0 means "no priority given",
// which sorts as lowest.
type priorityPeriod struct {
	Period
	priority int
}

func effectivePriority(raw string) int {
	if raw == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(raw, "%d", &n); err != nil {
		return 0
	}
	if n < 0 || n > 9 {
		return 0
	}
	return n
}

// ComputeFreeBusy synthesizes a VFREEBUSY reply for [start, end) from the
// top-level components of one calendar collection's members:
//
// 1. VEVENT instances with TRANSP != TRANSPARENT and STATUS != CANCELLED
// become BUSY periods.
// 2. VFREEBUSY components overlapping the window contribute their own
// FREEBUSY periods verbatim.
// 3. VAVAILABILITY components are applied in priority order, each
// AVAILABLE sub-component carving a FREE hole out of its parent's span.
// 4. Overlapping periods of the same type are merged.
func ComputeFreeBusy(allComponents [][]*calendar.Component, start, end time.Time) ([]Period, error) {
	var busy []Period
	var avail []priorityPeriod

	for _, comps := range allComponents {
		for _, c := range comps {
			switch c.Name {
			case calendar.CompEvent:
				ps, err := eventBusyPeriods(comps, c, start, end)
				if err != nil {
					return nil, err
				}
				busy = append(busy, ps...)
			case calendar.CompFreeBusy:
				busy = append(busy, freeBusyPeriods(c, start, end)...)
			case calendar.CompAvailability:
				avail = append(avail, availabilityPeriods(c, start, end)...)
			}
		}
	}

	resolved := resolveAvailability(avail, start, end)
	all := append(busy, resolved...)
	return mergeByType(all), nil
}

func eventBusyPeriods(siblings []*calendar.Component, c *calendar.Component, start, end time.Time) ([]Period, error) {
	if transp := c.Props.Get(goical.PropTransparency); transp != nil && transp.Value == "TRANSPARENT" {
		return nil, nil
	}
	if status := c.Props.Get(goical.PropStatus); status != nil && status.Value == "CANCELLED" {
		return nil, nil
	}
	instances, err := calendar.ExpandComponents(siblings, calendar.CompEvent, start, end)
	if err != nil {
		return nil, err
	}
	var out []Period
	for _, inst := range instances {
		out = append(out, Period{Start: inst.Start, End: inst.End, Type: BusyTypeBusy})
	}
	return out, nil
}

func freeBusyPeriods(c *calendar.Component, start, end time.Time) []Period {
	var out []Period
	for _, prop := range c.Props.Values(goical.PropFreeBusy) {
		p := prop
		kind := busyTypeFromString(p.Params.Get(goical.ParamFreeBusyType))
		for _, period := range parsePeriods(p.Value) {
			if overlaps(period.Start, period.End, start, end) {
				out = append(out, Period{Start: period.Start, End: period.End, Type: kind})
			}
		}
	}
	return out
}

func availabilityPeriods(c *calendar.Component, start, end time.Time) []priorityPeriod {
	priority := effectivePriority(valueOf(c, "PRIORITY"))
	busyType := BusyTypeBusyUnavailable
	if bt := c.Props.Get("BUSYTYPE"); bt != nil {
		busyType = busyTypeFromString(bt.Value)
	}
	span, ok := availabilitySpan(c)
	if !ok || !overlaps(span.Start, span.End, start, end) {
		return nil
	}

	// A component's own AVAILABLE children always carve their holes out of
	// its busy fallback span before anything reaches cross-component
	// priority/type resolution: otherwise the parent's
	// own busy fallback, emitted at the same priority, could win the
	// cross-component tie-break against its own child and claim the whole
	// span first, leaving the child nothing to subtract from.
	remaining := []Period{{Start: span.Start, End: span.End, Type: busyType}}
	var out []priorityPeriod
	for _, child := range c.Children {
		if child.Name != calendar.CompAvailable {
			continue
		}
		childSpan, ok := availabilitySpan(child)
		if !ok {
			continue
		}
		s, e := clampSpan(childSpan, span)
		if !e.After(s) {
			continue
		}
		remaining = subtractAll(remaining, s, e)
		out = append(out, priorityPeriod{Period: Period{Start: s, End: e, Type: BusyTypeFree}, priority: priority})
	}
	for _, r := range remaining {
		if r.End.After(r.Start) {
			out = append(out, priorityPeriod{Period: r, priority: priority})
		}
	}
	return out
}

func availabilitySpan(c *calendar.Component) (Period, bool) {
	start := c.Props.Get(goical.PropDateTimeStart)
	if start == nil {
		return Period{}, false
	}
	st, _, err := calendar.ParseICalTimeSafe(start.Value)
	if err != nil {
		return Period{}, false
	}
	if endProp := c.Props.Get(goical.PropDateTimeEnd); endProp != nil {
		et, _, err := calendar.ParseICalTimeSafe(endProp.Value)
		if err == nil {
			return Period{Start: st, End: et}, true
		}
	}
	if dur := c.Props.Get(goical.PropDuration); dur != nil {
		if d, err := calendar.ParseDuration(dur.Value); err == nil {
			return Period{Start: st, End: st.Add(d)}, true
		}
	}
	return Period{Start: st, End: st}, true
}

func clampSpan(inner, outer Period) (time.Time, time.Time) {
	s, e := inner.Start, inner.End
	if s.Before(outer.Start) {
		s = outer.Start
	}
	if e.After(outer.End) {
		e = outer.End
	}
	return s, e
}

// resolveAvailability applies RFC 7953 §4.4 priority resolution: for
// overlapping candidate periods, lower PRIORITY numbers win (1 highest, 9
// lowest, 0/absent lowest of all); equal priority breaks ties by
// BUSY > BUSY-UNAVAILABLE > BUSY-TENTATIVE > FREE.
func resolveAvailability(candidates []priorityPeriod, start, end time.Time) []Period {
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := priorityRank(candidates[i].priority), priorityRank(candidates[j].priority)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].Type < candidates[j].Type
	})
	// Winner-take-all over the timeline: later (lower-ranked) entries only
	// contribute where no earlier (higher-ranked) entry already claimed time.
	type claim struct {
		start, end time.Time
		Period
	}
	var claims []claim
	for _, cand := range candidates {
		remaining := []Period{{Start: cand.Start, End: cand.End}}
		for _, c := range claims {
			remaining = subtractAll(remaining, c.start, c.end)
		}
		for _, r := range remaining {
			if r.End.After(r.Start) {
				claims = append(claims, claim{start: r.Start, end: r.End, Period: Period{Start: r.Start, End: r.End, Type: cand.Type}})
			}
		}
	}
	out := make([]Period, 0, len(claims))
	for _, c := range claims {
		// FREE claims only keep lower-ranked busy time out of their span;
		// they are holes, not emitted periods.
		if c.Type == BusyTypeFree {
			continue
		}
		out = append(out, c.Period)
	}
	return out
}

// priorityRank maps RFC 7953 priority numbers to a sort rank where lower is
// more important; 0 (absent) ranks as lowest importance (rank 10).
func priorityRank(p int) int {
	if p == 0 {
		return 10
	}
	return p
}

func subtractAll(periods []Period, cs, ce time.Time) []Period {
	var out []Period
	for _, p := range periods {
		out = append(out, subtract(p, cs, ce)...)
	}
	return out
}

func subtract(p Period, cs, ce time.Time) []Period {
	if !overlaps(p.Start, p.End, cs, ce) {
		return []Period{p}
	}
	var out []Period
	if p.Start.Before(cs) {
		out = append(out, Period{Start: p.Start, End: cs, Type: p.Type})
	}
	if p.End.After(ce) {
		out = append(out, Period{Start: ce, End: p.End, Type: p.Type})
	}
	return out
}

func overlaps(s, e, rangeStart, rangeEnd time.Time) bool {
	if !e.After(s) {
		e = s
	}
	if !rangeStart.IsZero() && e.Before(rangeStart) {
		return false
	}
	if !rangeEnd.IsZero() && !s.Before(rangeEnd) {
		return false
	}
	return true
}

// mergeByType merges overlapping periods that share a BusyType; the result is
// sorted by BusyType, then by start time.
func mergeByType(periods []Period) []Period {
	if len(periods) <= 1 {
		return periods
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].Type != periods[j].Type {
			return periods[i].Type < periods[j].Type
		}
		return periods[i].Start.Before(periods[j].Start)
	})
	out := []Period{periods[0]}
	for _, p := range periods[1:] {
		last := &out[len(out)-1]
		if p.Type == last.Type && !p.Start.After(last.End) {
			if p.End.After(last.End) {
				last.End = p.End
			}
			continue
		}
		out = append(out, p)
	}
	return out
}

func valueOf(c *calendar.Component, name string) string {
	if p := c.Props.Get(name); p != nil {
		return p.Value
	}
	return ""
}

type icalPeriod struct{ Start, End time.Time }

// parsePeriods parses an RFC 5545 §3.3.9 FREEBUSY value: a comma-separated
// list of period values, each either start/end or start/duration.
func parsePeriods(value string) []icalPeriod {
	var out []icalPeriod
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			out = append(out, parseOnePeriod(value[start:i])...)
			start = i + 1
		}
	}
	return out
}

func parseOnePeriod(tok string) []icalPeriod {
	slash := -1
	for i, r := range tok {
		if r == '/' {
			slash = i
			break
		}
	}
	if slash < 0 {
		return nil
	}
	startStr, endStr := tok[:slash], tok[slash+1:]
	st, _, err := calendar.ParseICalTimeSafe(startStr)
	if err != nil {
		return nil
	}
	if len(endStr) > 0 && (endStr[0] == 'P' || endStr[0] == '-') {
		d, err := calendar.ParseDuration(endStr)
		if err != nil {
			return nil
		}
		return []icalPeriod{{Start: st, End: st.Add(d)}}
	}
	et, _, err := calendar.ParseICalTimeSafe(endStr)
	if err != nil {
		return nil
	}
	return []icalPeriod{{Start: st, End: et}}
}

// BuildVFreeBusy serializes periods into a synthetic VFREEBUSY component
// covering [start, end), replying to a free-busy-query.
func BuildVFreeBusy(uid, organizer string, start, end time.Time, periods []Period) *calendar.Calendar {
	fb := goical.NewComponent(calendar.CompFreeBusy)
	fb.Props.SetText(goical.PropUID, uid)
	fb.Props.SetText(goical.PropDateTimeStamp, formatUTC(start))
	fb.Props.SetText(goical.PropDateTimeStart, formatUTC(start))
	fb.Props.SetText(goical.PropDateTimeEnd, formatUTC(end))
	if organizer != "" {
		fb.Props.SetText(goical.PropOrganizer, organizer)
	}
	for _, p := range periods {
		if p.Type == BusyTypeFree {
			continue
		}
		prop := goical.Prop{Name: goical.PropFreeBusy, Params: goical.Params{}, Value: formatUTC(p.Start) + "/" + formatUTC(p.End)}
		prop.Params.Set(goical.ParamFreeBusyType, p.Type.String())
		fb.Props.Add(&prop)
	}
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, "-//hazeldav//calendar//EN")
	cal.Children = append(cal.Children, fb)
	return cal
}

func formatUTC(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
