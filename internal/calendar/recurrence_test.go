package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mustParseComp(t *testing.T, ics string) *Component {
	t.Helper()
	cal, err := Parse([]byte(ics))
	require.NoError(t, err)
	require.Len(t, cal.Children, 1)
	return cal.Children[0]
}

func TestExpandComponentsDailyRRuleWithinWindow(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:daily@example.com\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260101T090000Z\r\n" +
		"DTEND:20260101T093000Z\r\n" +
		"RRULE:FREQ=DAILY;COUNT=5\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	comp := mustParseComp(t, ics)

	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 4, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompEvent, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, instances, 3, "only the first 3 of 5 daily occurrences fall inside [Jan1,Jan4)")
	for i, inst := range instances {
		require.Equal(t, time.Date(2026, 1, 1+i, 9, 0, 0, 0, time.UTC), inst.Start)
		require.Equal(t, 30*time.Minute, inst.End.Sub(inst.Start))
	}
}

func TestExpandComponentsAppliesExdate(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:exdate@example.com\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260101T090000Z\r\n" +
		"DTEND:20260101T093000Z\r\n" +
		"RRULE:FREQ=DAILY;COUNT=3\r\n" +
		"EXDATE:20260102T090000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	comp := mustParseComp(t, ics)

	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompEvent, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	require.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), instances[0].Start)
	require.Equal(t, time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC), instances[1].Start)
}

func TestExpandComponentsResolvesRecurrenceIDOverride(t *testing.T) {
	master := mustParseComp(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:override@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T093000Z\r\n"+
		"RRULE:FREQ=DAILY;COUNT=3\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	override := mustParseComp(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:override@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"RECURRENCE-ID:20260102T090000Z\r\n"+
		"DTSTART:20260102T150000Z\r\n"+
		"DTEND:20260102T153000Z\r\n"+
		"SUMMARY:Moved\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")

	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{master, override}, CompEvent, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, instances, 3)

	var moved *Instance
	for i := range instances {
		if instances[i].Start.Hour() == 15 {
			moved = &instances[i]
		}
	}
	require.NotNil(t, moved, "the overridden occurrence must use the override's DTSTART")
	require.Same(t, override, moved.Comp)
}

func TestExpandComponentsNonRecurringSingleInstance(t *testing.T) {
	comp := mustParseComp(t, simpleEvent)
	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompEvent, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Nil(t, instances[0].RecurrenceID)
}

func TestExpandComponentsOutsideWindowYieldsNothing(t *testing.T) {
	comp := mustParseComp(t, simpleEvent)
	rangeStart := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2027, 1, 3, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompEvent, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Empty(t, instances)
}

func TestExpandComponentsTodoWithOnlyDueOccupiesInstant(t *testing.T) {
	comp := mustParseComp(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VTODO\r\n"+
		"UID:todo-1@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DUE:20260105T170000Z\r\n"+
		"END:VTODO\r\n"+
		"END:VCALENDAR\r\n")
	rangeStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompToDo, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), instances[0].Start)
	require.Equal(t, instances[0].Start, instances[0].End)
}

func TestExpandComponentsJournalIsDayGranularity(t *testing.T) {
	comp := mustParseComp(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VJOURNAL\r\n"+
		"UID:journal-1@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260105\r\n"+
		"END:VJOURNAL\r\n"+
		"END:VCALENDAR\r\n")
	rangeStart := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2026, 1, 5, 13, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompJournal, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, 24*time.Hour, instances[0].End.Sub(instances[0].Start))
}

func TestExpandComponentsCapsFarFutureRRule(t *testing.T) {
	comp := mustParseComp(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:forever@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T093000Z\r\n"+
		"RRULE:FREQ=DAILY\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	rangeStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd := time.Date(2300, 1, 1, 0, 0, 0, 0, time.UTC)
	instances, err := ExpandComponents([]*Component{comp}, CompEvent, rangeStart, rangeEnd)
	require.NoError(t, err)
	require.NotEmpty(t, instances)
	last := instances[len(instances)-1]
	require.False(t, last.Start.After(FarFuture), "open-ended RRULE expansion must not run past the far-future cap")
}
