package contact

import (
	"testing"

	govcard "github.com/emersion/go-vcard"
	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/daverror"
)

const completeCard = "BEGIN:VCARD\r\n" +
	"VERSION:4.0\r\n" +
	"UID:card-1@example.com\r\n" +
	"FN:Ada Lovelace\r\n" +
	"N:Lovelace;Ada;;;\r\n" +
	"END:VCARD\r\n"

func TestParseAllAndSerializeRoundTrip(t *testing.T) {
	cards, err := ParseAll([]byte(completeCard))
	require.NoError(t, err)
	require.Len(t, cards, 1)
	require.Equal(t, "Ada Lovelace", cards[0].Value(govcard.FieldFormattedName))

	out, err := Serialize(cards)
	require.NoError(t, err)

	cards2, err := ParseAll(out)
	require.NoError(t, err)
	require.Equal(t, cards[0].Value(govcard.FieldUID), cards2[0].Value(govcard.FieldUID))
}

func TestParseAllToleratesBareLF(t *testing.T) {
	lf := "BEGIN:VCARD\n" +
		"VERSION:4.0\n" +
		"UID:lf-card@example.com\n" +
		"FN:LF Card\n" +
		"END:VCARD\n"
	cards, err := ParseAll([]byte(lf))
	require.NoError(t, err)
	require.Len(t, cards, 1)
}

func TestValidatorAcceptsCompleteCard(t *testing.T) {
	uid, err := Validator{}.Validate([]byte(completeCard))
	require.NoError(t, err)
	require.Equal(t, "card-1@example.com", uid)
}

func TestValidatorRejectsMissingUID(t *testing.T) {
	noUID := "BEGIN:VCARD\r\n" +
		"VERSION:4.0\r\n" +
		"FN:No UID\r\n" +
		"END:VCARD\r\n"
	_, err := Validator{}.Validate([]byte(noUID))
	require.Error(t, err)
}

func TestValidatorRejectsMissingFN(t *testing.T) {
	noFN := "BEGIN:VCARD\r\n" +
		"VERSION:4.0\r\n" +
		"UID:no-fn@example.com\r\n" +
		"END:VCARD\r\n"
	_, err := Validator{}.Validate([]byte(noFN))
	require.Error(t, err)
}

func TestValidatorRejectsMultipleCards(t *testing.T) {
	two := completeCard + "BEGIN:VCARD\r\nVERSION:4.0\r\nUID:card-2@example.com\r\nFN:Second\r\nEND:VCARD\r\n"
	_, err := Validator{}.Validate([]byte(two))
	require.Error(t, err)
}

func TestValidatorRejectsMalformedEnvelope(t *testing.T) {
	_, err := Validator{}.Validate([]byte("not a vcard at all"))
	require.Error(t, err)
}

func TestValidatorRejectsCalendarBodyAsUnsupportedMediaType(t *testing.T) {
	ics := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//test//test//EN\r\n" +
		"BEGIN:VEVENT\r\n" +
		"UID:evt-1@example.com\r\n" +
		"DTSTAMP:20260101T000000Z\r\n" +
		"DTSTART:20260102T100000Z\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	_, err := Validator{}.Validate([]byte(ics))
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindUnsupportedMediaType, de.Kind,
		"calendar data PUT into an addressbook collection must be distinguishable (415) from malformed vCard (400)")
}

func TestEnsureUIDFillsMissingUIDAndFN(t *testing.T) {
	incomplete := "BEGIN:VCARD\r\n" +
		"VERSION:4.0\r\n" +
		"N:Doe;Jane;;;\r\n" +
		"END:VCARD\r\n"

	out, err := EnsureUID([]byte(incomplete))
	require.NoError(t, err)

	uid, err := Validator{}.Validate(out)
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	cards, err := ParseAll(out)
	require.NoError(t, err)
	require.Contains(t, cards[0].Value(govcard.FieldFormattedName), "Jane")
	require.Contains(t, cards[0].Value(govcard.FieldFormattedName), "Doe")
}

func TestEnsureUIDLeavesExistingUIDAlone(t *testing.T) {
	out, err := EnsureUID([]byte(completeCard))
	require.NoError(t, err)
	cards, err := ParseAll(out)
	require.NoError(t, err)
	require.Equal(t, "card-1@example.com", cards[0].Value(govcard.FieldUID))
}
