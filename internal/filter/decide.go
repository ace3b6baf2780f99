package filter

import "github.com/hazeldav/hazeldav/internal/calendar"

// Decide resolves root against a resource, consulting the index first and
// only parsing cal when the index's answer is unknown. root may be the
// VCALENDAR filter or a component-level filter beneath it.
func Decide(root CompFilter, idx ResourceIndex, cal *calendar.Calendar) (bool, error) {
	if decision := CheckIndex(root, idx); decision.IsPresent() {
		return decision.MustGet(), nil
	}
	if root.Name != "VCALENDAR" {
		root = CompFilter{Name: "VCALENDAR", CompFilters: []CompFilter{root}}
	}
	return EvaluateCalendar(root, cal)
}
