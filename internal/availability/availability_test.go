package availability

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/calendar"
)

func parseComps(t *testing.T, ics string) []*calendar.Component {
	t.Helper()
	cal, err := calendar.Parse([]byte(ics))
	require.NoError(t, err)
	return cal.Children
}

func window(t *testing.T) (time.Time, time.Time) {
	t.Helper()
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
}

func TestComputeFreeBusyOpaqueEventIsBusy(t *testing.T) {
	comps := parseComps(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:busy-1@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T100000Z\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	start, end := window(t)
	periods, err := ComputeFreeBusy([][]*calendar.Component{comps}, start, end)
	require.NoError(t, err)
	require.Len(t, periods, 1)
	require.Equal(t, BusyTypeBusy, periods[0].Type)
}

func TestComputeFreeBusyTransparentEventIgnored(t *testing.T) {
	comps := parseComps(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:transp-1@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T100000Z\r\n"+
		"TRANSP:TRANSPARENT\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	start, end := window(t)
	periods, err := ComputeFreeBusy([][]*calendar.Component{comps}, start, end)
	require.NoError(t, err)
	require.Empty(t, periods)
}

func TestComputeFreeBusyCancelledEventIgnored(t *testing.T) {
	comps := parseComps(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:cancelled-1@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T100000Z\r\n"+
		"STATUS:CANCELLED\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	start, end := window(t)
	periods, err := ComputeFreeBusy([][]*calendar.Component{comps}, start, end)
	require.NoError(t, err)
	require.Empty(t, periods)
}

func TestComputeFreeBusyMergesOverlappingSameTypePeriods(t *testing.T) {
	comps := parseComps(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:a@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T110000Z\r\n"+
		"END:VEVENT\r\n"+
		"BEGIN:VEVENT\r\n"+
		"UID:b@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T100000Z\r\n"+
		"DTEND:20260101T120000Z\r\n"+
		"END:VEVENT\r\n"+
		"END:VCALENDAR\r\n")
	// Each VEVENT's UID is its own recurring set, so ExpandComponents needs to
	// be called per UID group; group siblings accordingly.
	var groups [][]*calendar.Component
	for _, c := range comps {
		groups = append(groups, []*calendar.Component{c})
	}
	start, end := window(t)
	periods, err := ComputeFreeBusy(groups, start, end)
	require.NoError(t, err)
	require.Len(t, periods, 1, "overlapping BUSY periods must merge into one")
	require.Equal(t, time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), periods[0].Start)
	require.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), periods[0].End)
}

func TestComputeFreeBusyVAvailabilityCarvesFreeHole(t *testing.T) {
	comps := parseComps(t, "BEGIN:VCALENDAR\r\n"+
		"VERSION:2.0\r\n"+
		"PRODID:-//test//test//EN\r\n"+
		"BEGIN:VAVAILABILITY\r\n"+
		"UID:avail-1@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T000000Z\r\n"+
		"DTEND:20260102T000000Z\r\n"+
		"BUSYTYPE:BUSY-UNAVAILABLE\r\n"+
		"BEGIN:AVAILABLE\r\n"+
		"UID:avail-1-slot@example.com\r\n"+
		"DTSTAMP:20260101T000000Z\r\n"+
		"DTSTART:20260101T090000Z\r\n"+
		"DTEND:20260101T170000Z\r\n"+
		"END:AVAILABLE\r\n"+
		"END:VAVAILABILITY\r\n"+
		"END:VCALENDAR\r\n")
	start, end := window(t)
	periods, err := ComputeFreeBusy([][]*calendar.Component{comps}, start, end)
	require.NoError(t, err)

	workStart := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	workEnd := time.Date(2026, 1, 1, 17, 0, 0, 0, time.UTC)
	var sawUnavailableBefore, sawUnavailableAfter bool
	for _, p := range periods {
		require.NotEqual(t, BusyTypeFree, p.Type, "FREE periods are holes, not emitted busy periods")
		if p.Type == BusyTypeBusyUnavailable {
			require.False(t, p.Start.Before(workEnd) && p.End.After(workStart),
				"working hours 09:00-17:00 carved out by AVAILABLE must not appear as BUSY-UNAVAILABLE: got %v-%v", p.Start, p.End)
		}
		if p.Type == BusyTypeBusyUnavailable && p.Start.Hour() == 0 {
			sawUnavailableBefore = true
		}
		if p.Type == BusyTypeBusyUnavailable && p.End.Hour() == 0 && p.End.Day() == 2 {
			sawUnavailableAfter = true
		}
	}
	require.True(t, sawUnavailableBefore, "the span before the AVAILABLE slot must remain BUSY-UNAVAILABLE")
	require.True(t, sawUnavailableAfter, "the span after the AVAILABLE slot must remain BUSY-UNAVAILABLE")
}

func TestBuildVFreeBusyOmitsFreePeriodsAndSetsWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	periods := []Period{
		{Start: start.Add(9 * time.Hour), End: start.Add(10 * time.Hour), Type: BusyTypeBusy},
		{Start: start.Add(11 * time.Hour), End: start.Add(12 * time.Hour), Type: BusyTypeFree},
	}
	cal := BuildVFreeBusy("fb-1@example.com", "mailto:alice@example.com", start, end, periods)
	out, err := calendar.Serialize(cal)
	require.NoError(t, err)
	text := string(out)
	require.Contains(t, text, "BEGIN:VFREEBUSY")
	require.Contains(t, text, "DTSTART:20260101T000000Z")
	require.Contains(t, text, "DTEND:20260102T000000Z")
	require.Contains(t, text, "FREEBUSY")
	require.Equal(t, 1, strings.Count(text, "\nFREEBUSY"), "FREE periods must not produce a FREEBUSY line")
}
