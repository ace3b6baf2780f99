package filter

import "strings"

// matchText applies one TextMatch against a candidate value per its
// collation and match type, then XORs in Negate.
func matchText(tm TextMatch, value string) bool {
	v, want := value, tm.Value
	if tm.Collation != CollationOctet {
		v = strings.ToLower(v)
		want = strings.ToLower(want)
	}
	var hit bool
	switch tm.Match {
	case MatchEquals:
		hit = v == want
	case MatchStartsWith:
		hit = strings.HasPrefix(v, want)
	case MatchEndsWith:
		hit = strings.HasSuffix(v, want)
	default: // MatchContains, and the zero value
		hit = strings.Contains(v, want)
	}
	if tm.Negate {
		return !hit
	}
	return hit
}
