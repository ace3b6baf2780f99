package filter

import (
	"time"

	goical "github.com/emersion/go-ical"

	"github.com/hazeldav/hazeldav/internal/calendar"
)

// EvaluateCalendar reports whether cal satisfies root, the CALDAV:filter
// structured grammar. root's Name is conventionally "VCALENDAR".
func EvaluateCalendar(root CompFilter, cal *calendar.Calendar) (bool, error) {
	synthetic := &calendar.Component{Name: "VCALENDAR", Props: goical.Props{}, Children: cal.Children}
	return matchComp(root, synthetic)
}

func matchComp(cf CompFilter, comp *calendar.Component) (bool, error) {
	if comp == nil || comp.Name != cf.Name {
		return cf.IsNotDefined, nil
	}
	if cf.IsNotDefined {
		return false, nil
	}
	if cf.TimeRange != nil {
		ok, err := compInTimeRange(cf, comp)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, pf := range cf.PropFilters {
		ok, err := matchPropFilter(pf, comp)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, child := range cf.CompFilters {
		if !anyChildMatches(child, comp.Children) {
			return false, nil
		}
	}
	return true, nil
}

func anyChildMatches(cf CompFilter, children []*calendar.Component) bool {
	matched := false
	for _, c := range children {
		if c.Name != cf.Name {
			continue
		}
		ok, err := matchComp(cf, c)
		if err == nil && ok {
			matched = true
			break
		}
	}
	if cf.IsNotDefined {
		return !matched
	}
	return matched
}

// compInTimeRange expands the component's recurrence set (if any) and checks
// for any instance overlapping the requested window, following 
// per-kind DTSTART/DTEND/DUE overlap rule via calendar.ExpandComponents.
func compInTimeRange(cf CompFilter, comp *calendar.Component) (bool, error) {
	instances, err := calendar.ExpandComponents([]*calendar.Component{comp}, cf.Name, cf.TimeRange.Start, cf.TimeRange.End)
	if err != nil {
		return false, nil // unparseable time bounds on this component: treat as non-match, not hard error
	}
	return len(instances) > 0, nil
}

func matchPropFilter(pf PropFilter, comp *calendar.Component) (bool, error) {
	prop := comp.Props.Get(pf.Name)
	if prop == nil {
		return pf.IsNotDefined, nil
	}
	if pf.IsNotDefined {
		return false, nil
	}
	if pf.TimeRange != nil {
		t, err := calendar.ParseICalTime(prop.Value)
		if err != nil {
			return false, nil
		}
		if !inRange(t, pf.TimeRange.Start, pf.TimeRange.End) {
			return false, nil
		}
	}
	if pf.TextMatch != nil && !matchText(*pf.TextMatch, prop.Value) {
		return false, nil
	}
	for _, paramFilter := range pf.ParamFilters {
		if !matchParamFilter(paramFilter, prop) {
			return false, nil
		}
	}
	return true, nil
}

func matchParamFilter(pf ParamFilter, prop *goical.Prop) bool {
	val := prop.Params.Get(pf.Name)
	if val == "" {
		return pf.IsNotDefined
	}
	if pf.IsNotDefined {
		return false
	}
	if pf.TextMatch != nil {
		return matchText(*pf.TextMatch, val)
	}
	return true
}

func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}
