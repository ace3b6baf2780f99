package calendar

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/daverror"
)

const simpleEvent = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:event-1@example.com\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART:20260102T100000Z\r\n" +
	"DTEND:20260102T110000Z\r\n" +
	"SUMMARY:Standup\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseAndSerializeRoundTrip(t *testing.T) {
	cal, err := Parse([]byte(simpleEvent))
	require.NoError(t, err)
	require.Len(t, TopLevelComponents(cal), 1)

	out, err := Serialize(cal)
	require.NoError(t, err)

	cal2, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, DetectComponents(cal), DetectComponents(cal2))
}

func TestParseToleratesBareLFLineEndings(t *testing.T) {
	lfOnly := []byte(
		"BEGIN:VCALENDAR\n" +
			"VERSION:2.0\n" +
			"PRODID:-//test//test//EN\n" +
			"BEGIN:VEVENT\n" +
			"UID:lf-event@example.com\n" +
			"DTSTAMP:20260101T000000Z\n" +
			"DTSTART:20260102T100000Z\n" +
			"SUMMARY:LF event\n" +
			"END:VEVENT\n" +
			"END:VCALENDAR\n")
	cal, err := Parse(lfOnly)
	require.NoError(t, err)
	require.Equal(t, []string{CompEvent}, DetectComponents(cal))
}

func TestDetectComponentsExcludesTimezone(t *testing.T) {
	withTZ := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VTIMEZONE\r\n" +
		"TZID:UTC\r\n" +
		"END:VTIMEZONE\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:tz-event@example.com\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260102T100000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	cal, err := Parse([]byte(withTZ))
	require.NoError(t, err)
	require.Equal(t, []string{CompEvent}, DetectComponents(cal))
}

func TestValidatorAcceptsConsistentUID(t *testing.T) {
	uid, err := Validator{}.Validate([]byte(simpleEvent))
	require.NoError(t, err)
	require.Equal(t, "event-1@example.com", uid)
}

func TestValidatorRejectsMissingUID(t *testing.T) {
	noUID := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260102T100000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	_, err := Validator{}.Validate([]byte(noUID))
	require.Error(t, err)
}

func TestValidatorRejectsInconsistentUIDAcrossComponents(t *testing.T) {
	mismatched := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:a@example.com\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260102T100000Z\r\n" +
		"END:VEVENT\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:b@example.com\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260103T100000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	_, err := Validator{}.Validate([]byte(mismatched))
	require.Error(t, err)
}

func TestValidatorRejectsVCardBodyAsUnsupportedMediaType(t *testing.T) {
	vcard := "BEGIN:VCARD\r\n" +
		"VERSION:4.0\r\n" +
		"FN:Alice\r\n" +
		"UID:alice@example.com\r\n" +
		"END:VCARD\r\n"
	_, err := Validator{}.Validate([]byte(vcard))
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindUnsupportedMediaType, de.Kind,
		"vCard data PUT into a calendar collection must be distinguishable (415) from malformed iCalendar (400)")
}

func TestValidateAndClassifyReportsDominantComponent(t *testing.T) {
	uid, comp, err := ValidateAndClassify([]byte(simpleEvent))
	require.NoError(t, err)
	require.Equal(t, "event-1@example.com", uid)
	require.Equal(t, CompEvent, comp)
}
