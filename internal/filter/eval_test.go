package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/calendar"
)

const sampleEvent = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:evt-1@example.com
DTSTART:20260801T100000Z
DTEND:20260801T110000Z
SUMMARY:Quarterly review
END:VEVENT
END:VCALENDAR
`

func mustParse(t *testing.T, data string) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.Parse([]byte(data))
	require.NoError(t, err)
	return cal
}

func TestEvaluateCalendarTimeRange(t *testing.T) {
	cal := mustParse(t, sampleEvent)
	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{
				Name: calendar.CompEvent,
				TimeRange: &TimeRange{
					Start: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
					End: time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
				},
			},
		},
	}
	ok, err := EvaluateCalendar(root, cal)
	require.NoError(t, err)
	require.True(t, ok)

	root.CompFilters[0].TimeRange.Start = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	root.CompFilters[0].TimeRange.End = time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)
	ok, err = EvaluateCalendar(root, cal)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateCalendarTextMatch(t *testing.T) {
	cal := mustParse(t, sampleEvent)
	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{
				Name: calendar.CompEvent,
				PropFilters: []PropFilter{
					{Name: "SUMMARY", TextMatch: &TextMatch{Value: "review", Match: MatchContains}},
				},
			},
		},
	}
	ok, err := EvaluateCalendar(root, cal)
	require.NoError(t, err)
	require.True(t, ok)

	root.CompFilters[0].PropFilters[0].TextMatch.Value = "standup"
	ok, err = EvaluateCalendar(root, cal)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateCalendarPropNotDefined(t *testing.T) {
	cal := mustParse(t, sampleEvent)
	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{
				Name: calendar.CompEvent,
				PropFilters: []PropFilter{{Name: "LOCATION", IsNotDefined: true}},
			},
		},
	}
	ok, err := EvaluateCalendar(root, cal)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestCheckIndexDecidesFalseOutsideSpan(t *testing.T) {
	cal := mustParse(t, sampleEvent)
	idx := BuildResourceIndex(cal, calendar.CompEvent)
	root := CompFilter{
		Name: calendar.CompEvent,
		TimeRange: &TimeRange{
			Start: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			End: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		},
	}
	decision := CheckIndex(root, idx)
	require.True(t, decision.IsPresent())
	require.False(t, decision.MustGet())
}

func TestCheckIndexUnknownOnTextMatch(t *testing.T) {
	cal := mustParse(t, sampleEvent)
	idx := BuildResourceIndex(cal, calendar.CompEvent)
	root := CompFilter{
		Name: calendar.CompEvent,
		PropFilters: []PropFilter{{Name: "SUMMARY", TextMatch: &TextMatch{Value: "review"}}},
	}
	decision := CheckIndex(root, idx)
	require.False(t, decision.IsPresent())
}

func TestDecideFallsBackToParseForTextMatch(t *testing.T) {
	cal := mustParse(t, sampleEvent)
	idx := BuildResourceIndex(cal, calendar.CompEvent)
	root := CompFilter{
		Name: "VCALENDAR",
		CompFilters: []CompFilter{
			{
				Name: calendar.CompEvent,
				PropFilters: []PropFilter{{Name: "SUMMARY", TextMatch: &TextMatch{Value: "review"}}},
			},
		},
	}
	ok, err := Decide(root.CompFilters[0], idx, cal)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIndexCacheEviction(t *testing.T) {
	c := NewIndexCache(2)
	c.Put("a", map[string]ResourceIndex{})
	c.Put("b", map[string]ResourceIndex{})
	c.Put("c", map[string]ResourceIndex{})
	_, ok := c.Get("a")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("c")
	require.True(t, ok)
}
