package collection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hazeldav/hazeldav/internal/daverror"
	"github.com/hazeldav/hazeldav/internal/objectdb"
)

// fakeValidator extracts a UID from a tiny "UID:<value>" line without
// depending on internal/calendar, keeping this package's tests free of an
// import cycle risk while still exercising the real invariant logic.
type fakeValidator struct{}

func (fakeValidator) Validate(data []byte) (string, error) {
	s := string(data)
	const marker = "UID:"
	i := indexOf(s, marker)
	if i < 0 {
		return "", daverror.Invalid("missing UID")
	}
	rest := s[i+len(marker):]
	if j := indexOf(rest, "\n"); j >= 0 {
		rest = rest[:j]
	}
	if rest == "" {
		return "", daverror.Invalid("empty UID")
	}
	return rest, nil
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := objectdb.Open(t.TempDir())
	require.NoError(t, err)
	return New(db, fakeValidator{})
}

func TestPutGetETagIsContentHash(t *testing.T) {
	s := newTestStore(t)
	etag, _, err := s.Put("evt-1.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.NoError(t, err)

	got, err := s.Get("evt-1.ics")
	require.NoError(t, err)
	require.Equal(t, etag, got.ETag)
	require.Equal(t, []byte("UID:evt-1\n"), got.Data)
}

func TestPutRejectsUIDConflictAndLeavesStateUnchanged(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("evt-1.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.NoError(t, err)

	_, _, err = s.Put("copy.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindConflict, de.Kind)
	require.Equal(t, daverror.ElemNoUIDConflict, de.Elem)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	require.Equal(t, "evt-1.ics", infos[0].Name)
}

// wrongKindValidator simulates a calendar/contact Validator rejecting a body
// that parses as the other resource kind, to verify Store.Put preserves the
// validator's own daverror.Kind rather than flattening every validation
// failure into daverror.KindInvalid.
type wrongKindValidator struct{}

func (wrongKindValidator) Validate(data []byte) (string, error) {
	if indexOf(string(data), "WRONGKIND") >= 0 {
		return "", daverror.UnsupportedMediaType("body parses as the other resource kind")
	}
	return "", daverror.Invalid("missing UID")
}

func TestPutPreservesValidatorErrorKind(t *testing.T) {
	db, err := objectdb.Open(t.TempDir())
	require.NoError(t, err)
	s := New(db, wrongKindValidator{})

	_, _, err = s.Put("evt-1.ics", []byte("WRONGKIND"), "", "", "alice")
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindUnsupportedMediaType, de.Kind,
		"a validator's own daverror.Kind must survive Put, not collapse to KindInvalid")
}

func TestConditionalPutIfMatchMismatch(t *testing.T) {
	s := newTestStore(t)
	etag, _, err := s.Put("evt-1.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.NoError(t, err)

	_, _, err = s.Put("evt-1.ics", []byte("UID:evt-1\nX:2\n"), "wrong-etag", "", "alice")
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindPrecondition, de.Kind)

	got, err := s.Get("evt-1.ics")
	require.NoError(t, err)
	require.Equal(t, etag, got.ETag, "failed conditional PUT must not mutate state")
}

func TestIfNoneMatchStarRejectsExisting(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("evt-1.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.NoError(t, err)

	_, _, err = s.Put("evt-1.ics", []byte("UID:evt-1\nX:2\n"), "", "*", "alice")
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindPrecondition, de.Kind)
}

func TestCTagChangesIffMembershipOrContentChanges(t *testing.T) {
	s := newTestStore(t)
	ctag0, err := s.CTag()
	require.NoError(t, err)

	_, ctag1, err := s.Put("evt-1.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.NoError(t, err)
	require.NotEqual(t, ctag0, ctag1)

	ctagRead, err := s.CTag()
	require.NoError(t, err)
	require.Equal(t, ctag1, ctagRead)

	// Re-put identical bytes: the resulting tree has the same entries, so the
	// ctag is stable across the no-op write.
	_, ctag2, err := s.Put("evt-1.ics", []byte("UID:evt-1\n"), "", "", "alice")
	require.NoError(t, err)
	require.Equal(t, ctag1, ctag2)

	require.NoError(t, s.Delete("evt-1.ics", "", "alice"))
	ctag3, err := s.CTag()
	require.NoError(t, err)
	require.NotEqual(t, ctag2, ctag3)
}

func TestSyncTokenMonotonicAndIterChanges(t *testing.T) {
	s := newTestStore(t)

	tokEmpty, err := s.SyncToken()
	require.NoError(t, err)

	_, _, err = s.Put("a.ics", []byte("UID:a\n"), "", "", "alice")
	require.NoError(t, err)
	_, _, err = s.Put("b.ics", []byte("UID:b\n"), "", "", "alice")
	require.NoError(t, err)
	_, _, err = s.Put("c.ics", []byte("UID:c\n"), "", "", "alice")
	require.NoError(t, err)

	tokS1, err := s.SyncToken()
	require.NoError(t, err)
	require.NotEqual(t, tokEmpty, tokS1)

	changes, err := s.IterChanges(tokEmpty)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	for _, c := range changes {
		require.Equal(t, ChangeAdded, c.Kind)
	}

	_, _, err = s.Put("d.ics", []byte("UID:d\n"), "", "", "alice")
	require.NoError(t, err)
	require.NoError(t, s.Delete("a.ics", "", "alice"))

	tokS2, err := s.SyncToken()
	require.NoError(t, err)
	require.NotEqual(t, tokS1, tokS2)

	delta, err := s.IterChanges(tokS1)
	require.NoError(t, err)
	var added, deleted int
	for _, c := range delta {
		switch c.Kind {
		case ChangeAdded:
			added++
			require.Equal(t, "d.ics", c.Name)
		case ChangeDeleted:
			deleted++
			require.Equal(t, "a.ics", c.Name)
		}
	}
	require.Equal(t, 1, added)
	require.Equal(t, 1, deleted)
}

func TestIterChangesStaleTokenFails(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("a.ics", []byte("UID:a\n"), "", "", "alice")
	require.NoError(t, err)

	_, err = s.IterChanges("sq1:not-a-real-commit-hash")
	require.ErrorIs(t, err, ErrTokenStale)
}

func TestDeleteHonorsIfMatch(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.Put("a.ics", []byte("UID:a\n"), "", "", "alice")
	require.NoError(t, err)

	err = s.Delete("a.ics", "wrong-etag", "alice")
	require.Error(t, err)
	de, ok := daverror.As(err)
	require.True(t, ok)
	require.Equal(t, daverror.KindPrecondition, de.Kind)

	infos, err := s.List()
	require.NoError(t, err)
	require.Len(t, infos, 1)
}
