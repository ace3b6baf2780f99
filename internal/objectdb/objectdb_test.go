package objectdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutBlobIsContentAddressed(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)

	h1, err := db.PutBlob([]byte("hello world"))
	require.NoError(t, err)
	h2, err := db.PutBlob([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, h1, h2, "identical bytes must hash identically")

	h3, err := db.PutBlob([]byte("hello there"))
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	data, err := db.ReadBlob(h1)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestPutTreeOrderIndependent(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)

	a, err := db.PutBlob([]byte("a"))
	require.NoError(t, err)
	b, err := db.PutBlob([]byte("b"))
	require.NoError(t, err)

	t1, err := db.PutTree([]TreeEntry{
		{Name: "a.ics", Hash: a, Kind: KindBlob},
		{Name: "b.ics", Hash: b, Kind: KindBlob},
	})
	require.NoError(t, err)
	t2, err := db.PutTree([]TreeEntry{
		{Name: "b.ics", Hash: b, Kind: KindBlob},
		{Name: "a.ics", Hash: a, Kind: KindBlob},
	})
	require.NoError(t, err)
	require.Equal(t, t1, t2, "tree hash must not depend on entry insertion order")

	entries, err := db.ReadTree(t1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "a.ics", entries[0].Name)
	require.Equal(t, "b.ics", entries[1].Name)
}

func TestCommitLogAndReachable(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)

	emptyTree, err := db.PutTree(nil)
	require.NoError(t, err)

	c1, err := db.Commit("", emptyTree, "alice", "initial")
	require.NoError(t, err)
	require.NoError(t, db.SetHead(c1))

	blobHash, err := db.PutBlob([]byte("BEGIN:VCALENDAR\nEND:VCALENDAR\n"))
	require.NoError(t, err)
	tree2, err := db.PutTree([]TreeEntry{{Name: "evt.ics", Hash: blobHash, Kind: KindBlob}})
	require.NoError(t, err)
	c2, err := db.Commit(c1, tree2, "alice", "add evt")
	require.NoError(t, err)
	require.NoError(t, db.SetHead(c2))

	head, err := db.Head()
	require.NoError(t, err)
	require.Equal(t, c2, head)

	log, err := db.Log(head)
	require.NoError(t, err)
	require.Len(t, log, 2)
	require.Equal(t, c2, log[0].Hash)
	require.Equal(t, c1, log[1].Hash)

	ok, err := db.Reachable(head, c1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = db.Reachable(head, "deadbeef")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = db.Reachable(head, "")
	require.NoError(t, err)
	require.True(t, ok, "empty candidate always counts as reachable (start of history)")
}

func TestWalkTreeVisitsEveryEntry(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)

	a, err := db.PutBlob([]byte("a"))
	require.NoError(t, err)
	tree, err := db.PutTree([]TreeEntry{{Name: "a.ics", Hash: a, Kind: KindBlob}})
	require.NoError(t, err)

	var visited []string
	err = db.WalkTree(tree, func(path string, e TreeEntry) error {
		visited = append(visited, path)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a.ics"}, visited)
}

func TestReadMissingObjectFails(t *testing.T) {
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	_, err = db.ReadBlob("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd")
	require.ErrorIs(t, err, ErrNotFound)
}
