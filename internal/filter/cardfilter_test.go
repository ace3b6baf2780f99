package filter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/contact"
)

const sampleCard = `BEGIN:VCARD
VERSION:4.0
FN:Ada Lovelace
N:Lovelace;Ada;;;
UID:card-1@example.com
EMAIL;TYPE=work:ada@example.com
END:VCARD
`

func TestEvaluateCardAnyOf(t *testing.T) {
	cards, err := contact.ParseAll([]byte(sampleCard))
	require.NoError(t, err)
	require.Len(t, cards, 1)

	af := AddressFilter{
		Test: TestAnyOf,
		PropFilters: []PropFilter{
			{Name: "FN", TextMatch: &TextMatch{Value: "lovelace", Match: MatchContains}},
			{Name: "FN", TextMatch: &TextMatch{Value: "nonexistent", Match: MatchEquals}},
		},
	}
	require.True(t, EvaluateCard(af, cards[0]))

	af.Test = TestAllOf
	require.False(t, EvaluateCard(af, cards[0]))
}

func TestEvaluateCardParamFilter(t *testing.T) {
	cards, err := contact.ParseAll([]byte(sampleCard))
	require.NoError(t, err)

	af := AddressFilter{
		PropFilters: []PropFilter{
			{Name: "EMAIL", ParamFilters: []ParamFilter{
				{Name: "TYPE", TextMatch: &TextMatch{Value: "work", Match: MatchEquals}},
			}},
		},
	}
	require.True(t, EvaluateCard(af, cards[0]))

	af.PropFilters[0].ParamFilters[0].TextMatch.Value = "home"
	require.False(t, EvaluateCard(af, cards[0]))
}

func TestEvaluateCardNotDefined(t *testing.T) {
	cards, err := contact.ParseAll([]byte(sampleCard))
	require.NoError(t, err)

	af := AddressFilter{PropFilters: []PropFilter{{Name: "NICKNAME", IsNotDefined: true}}}
	require.True(t, EvaluateCard(af, cards[0]))
}
