package syncengine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/collection"
	"github.com/hazeldav/hazeldav/internal/daverror"
	"github.com/hazeldav/hazeldav/internal/objectdb"
)

type uidValidator struct{}

func (uidValidator) Validate(data []byte) (string, error) {
	s := string(data)
	const marker = "UID:"
	i := strings.Index(s, marker)
	if i < 0 {
		return "", daverror.Invalid("missing UID")
	}
	rest := s[i+len(marker):]
	if j := strings.Index(rest, "\n"); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", daverror.Invalid("empty UID")
	}
	return rest, nil
}

func newTestStore(t *testing.T) *collection.Store {
	t.Helper()
	db, err := objectdb.Open(t.TempDir())
	require.NoError(t, err)
	return collection.New(db, uidValidator{})
}

func TestComputeInitialSyncReportsEveryMemberAdded(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("a.ics", []byte("UID:a\n"), "", "", "alice")
	require.NoError(t, err)
	_, _, err = s.Put("b.ics", []byte("UID:b\n"), "", "", "alice")
	require.NoError(t, err)

	res, err := Compute(s, "", 0)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.False(t, res.Truncated)
	for _, e := range res.Entries {
		require.Equal(t, collection.ChangeAdded, e.Kind)
	}
	require.NotEmpty(t, res.NewToken)
}

func TestComputeIncrementalSyncReportsDelta(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("a.ics", []byte("UID:a\n"), "", "", "alice")
	require.NoError(t, err)

	first, err := Compute(s, "", 0)
	require.NoError(t, err)

	_, _, err = s.Put("b.ics", []byte("UID:b\n"), "", "", "alice")
	require.NoError(t, err)
	require.NoError(t, s.Delete("a.ics", "", "alice"))

	second, err := Compute(s, first.NewToken, 0)
	require.NoError(t, err)
	require.Len(t, second.Entries, 2)

	var added, deleted int
	for _, e := range second.Entries {
		switch e.Kind {
		case collection.ChangeAdded:
			added++
			require.Equal(t, "b.ics", e.Name)
		case collection.ChangeDeleted:
			deleted++
			require.Equal(t, "a.ics", e.Name)
		}
	}
	require.Equal(t, 1, added)
	require.Equal(t, 1, deleted)
}

func TestComputeTruncatesAtLimit(t *testing.T) {
	s := newTestStore(t)
	for _, name := range []string{"a.ics", "b.ics", "c.ics"} {
		uid := strings.TrimSuffix(name, ".ics")
		_, _, err := s.Put(name, []byte("UID:"+uid+"\n"), "", "", "alice")
		require.NoError(t, err)
	}

	res, err := Compute(s, "", 2)
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	require.True(t, res.Truncated)
}

func TestComputeStaleTokenIsReportedViaIsStale(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("a.ics", []byte("UID:a\n"), "", "", "alice")
	require.NoError(t, err)

	_, err = Compute(s, "sq1:0000000000000000000000000000000000000000000000000000000000000000", 0)
	require.Error(t, err)
	require.True(t, IsStale(err))
}

func TestIsStaleFalseForOtherErrors(t *testing.T) {
	require.False(t, IsStale(daverror.NotFound("nope")))
	require.False(t, IsStale(nil))
}
