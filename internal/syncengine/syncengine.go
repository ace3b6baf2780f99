// Package syncengine provides thin orchestration over
// collection.Store.IterChanges that adds token-staleness signalling,
// limit/truncation behavior, and tombstone-only-404 semantics for the
// {DAV:}sync-collection report, driven by real commit-identity tokens.
package syncengine

import (
	"github.com/hazeldav/hazeldav/internal/collection"
	"github.com/hazeldav/hazeldav/internal/daverror"
)

// EntryKind mirrors collection.ChangeKind for callers that only depend on
// this package.
type EntryKind = collection.ChangeKind

// Entry is one row of a sync-collection delta.
type Entry struct {
	Name string
	Kind EntryKind
	ETag string
}

// Result is the outcome of one Compute call.
type Result struct {
	Entries []Entry
	NewToken string
	Truncated bool // true when Limit caused omission; caller should drop the sync-token element or answer 507
}

// Compute enumerates the delta between oldToken and store's current state
//. An empty oldToken means "initial sync": every member is
// reported added. limit <= 0 means unbounded.
func Compute(store *collection.Store, oldToken string, limit int) (*Result, error) {
	var entries []Entry
	if oldToken == "" {
		infos, err := store.List()
		if err != nil {
			return nil, daverror.Storage("list collection", err)
		}
		for _, info := range infos {
			entries = append(entries, Entry{Name: info.Name, Kind: collection.ChangeAdded, ETag: info.ETag})
		}
	} else {
		changes, err := store.IterChanges(oldToken)
		if err != nil {
			return nil, err // IsStale(err) lets the caller map this to {DAV:}valid-sync-token 403
		}
		for _, c := range changes {
			entries = append(entries, Entry{Name: c.Name, Kind: c.Kind, ETag: c.ETag})
		}
	}

	newToken, err := store.SyncToken()
	if err != nil {
		return nil, daverror.Storage("read sync token", err)
	}

	res := &Result{Entries: entries, NewToken: newToken}
	if limit > 0 && len(entries) > limit {
		res.Entries = entries[:limit]
		res.Truncated = true
	}
	return res, nil
}

// IsStale reports whether err is the sync-token-no-longer-valid precondition
// failure.
func IsStale(err error) bool {
	de, ok := daverror.As(err)
	return ok && de.Elem == daverror.ElemValidSyncToken
}
