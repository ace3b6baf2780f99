// Package collection implements the per-collection object store: named
// resources with strong ETags, a ctag derived from the current content
// tree, and sync tokens derived from commit identity, all layered on top of
// internal/objectdb.
package collection

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hazeldav/hazeldav/internal/daverror"
	"github.com/hazeldav/hazeldav/internal/objectdb"
)

const (
	metaPrefix = ".meta/"
	uidIndexKey = ".meta/uid-index.json"
	tokenScheme = "sq1:"
)

// Store is a mapping name -> resource backed by one object database. Writes
// to a single Store are serialized by mu, as if there were a single writer
//; reads proceed without blocking by only ever touching
// the immutable tree named by the HEAD read at the start of the call.
type Store struct {
	db *objectdb.DB
	validator Validator
	mu sync.Mutex
}

// New wraps an already-open object database as a collection store. validator
// enforces the resource-kind invariants on every Put.
func New(db *objectdb.DB, validator Validator) *Store {
	return &Store{db: db, validator: validator}
}

func isMember(name string) bool { return !strings.HasPrefix(name, metaPrefix) }

func (s *Store) headTree() (head, tree string, entries []objectdb.TreeEntry, err error) {
	head, err = s.db.Head()
	if err != nil {
		return "", "", nil, err
	}
	if head == "" {
		return "", "", nil, nil
	}
	c, err := s.db.ReadCommit(head)
	if err != nil {
		return "", "", nil, err
	}
	entries, err = s.db.ReadTree(c.Tree)
	if err != nil {
		return "", "", nil, err
	}
	return head, c.Tree, entries, nil
}

// List returns the current members' names and ETags.
func (s *Store) List() ([]ResourceInfo, error) {
	_, _, entries, err := s.headTree()
	if err != nil {
		return nil, err
	}
	var out []ResourceInfo
	for _, e := range entries {
		if !isMember(e.Name) {
			continue
		}
		out = append(out, ResourceInfo{Name: e.Name, ETag: e.Hash})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IterWithETags calls fn for every current member's (name, etag) pair without
// fetching bodies, stopping early if fn returns stop=true. This is the lazy
// enumeration requires for query evaluation over large collections.
func (s *Store) IterWithETags(fn func(name, etag string) (stop bool, err error)) error {
	infos, err := s.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		stop, err := fn(info.Name, info.ETag)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}

// Get fetches one member's bytes and metadata.
func (s *Store) Get(name string) (*Resource, error) {
	if !isMember(name) {
		return nil, daverror.NotFound(fmt.Sprintf("collection: no member named %q", name))
	}
	head, _, entries, err := s.headTree()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name != name {
			continue
		}
		data, err := s.db.ReadBlob(e.Hash)
		if err != nil {
			return nil, err
		}
		updated := commitTimeOrZero(s.db, head)
		return &Resource{Name: name, Data: data, ETag: e.Hash, UpdatedAt: updated}, nil
	}
	return nil, daverror.NotFound(fmt.Sprintf("collection: no member named %q", name))
}

func commitTimeOrZero(db *objectdb.DB, head string) (t time.Time) {
	if head == "" {
		return
	}
	c, err := db.ReadCommit(head)
	if err != nil {
		return
	}
	return c.Time
}

func loadUIDIndex(db *objectdb.DB, entries []objectdb.TreeEntry) (map[string]string, error) {
	for _, e := range entries {
		if e.Name == uidIndexKey {
			data, err := db.ReadBlob(e.Hash)
			if err != nil {
				return nil, err
			}
			var idx map[string]string
			if err := json.Unmarshal(data, &idx); err != nil {
				return nil, fmt.Errorf("%w: corrupt uid index", daverror.Storage("uid index", err))
			}
			return idx, nil
		}
	}
	return map[string]string{}, nil
}

// Put validates and stores bytes under name, honoring conditional headers and
// the UID-uniqueness invariant. Returns the new resource
// ETag and the collection's new ctag.
func (s *Store) Put(name string, data []byte, ifMatch, ifNoneMatch, author string) (etag, ctag string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, _, entries, err := s.headTree()
	if err != nil {
		return "", "", daverror.Storage("read head", err)
	}

	var existingHash string
	var filtered []objectdb.TreeEntry
	for _, e := range entries {
		if e.Name == name {
			existingHash = e.Hash
			continue
		}
		filtered = append(filtered, e)
	}

	if ifNoneMatch == "*" && existingHash != "" {
		return "", "", daverror.Precondition("", "If-None-Match: * but resource exists")
	}
	if ifMatch != "" {
		if existingHash == "" || ifMatch != existingHash {
			return "", "", daverror.Precondition("", "If-Match does not match current ETag")
		}
	}

	uid, verr := s.validator.Validate(data)
	if verr != nil {
		if de, ok := daverror.As(verr); ok {
			return "", "", de
		}
		return "", "", daverror.Invalid(fmt.Sprintf("invalid resource body: %v", verr))
	}

	idx, err := loadUIDIndex(s.db, entries)
	if err != nil {
		return "", "", err
	}
	if owner, ok := idx[uid]; ok && owner != name {
		return "", "", daverror.Conflict(daverror.ElemNoUIDConflict,
			fmt.Sprintf("uid %q already used by %q", uid, owner))
	}
	// Drop any stale mapping that pointed at this name under a different uid.
	for u, n := range idx {
		if n == name && u != uid {
			delete(idx, u)
		}
	}
	idx[uid] = name

	blobHash, err := s.db.PutBlob(data)
	if err != nil {
		return "", "", daverror.Storage("write blob", err)
	}

	idxBytes, err := json.Marshal(idx)
	if err != nil {
		return "", "", daverror.Storage("marshal uid index", err)
	}
	idxHash, err := s.db.PutBlob(idxBytes)
	if err != nil {
		return "", "", daverror.Storage("write uid index", err)
	}

	var newEntries []objectdb.TreeEntry
	for _, e := range filtered {
		if e.Name == uidIndexKey {
			continue
		}
		newEntries = append(newEntries, e)
	}
	newEntries = append(newEntries, objectdb.TreeEntry{Name: name, Hash: blobHash, Kind: objectdb.KindBlob})
	newEntries = append(newEntries, objectdb.TreeEntry{Name: uidIndexKey, Hash: idxHash, Kind: objectdb.KindBlob})

	newTree, err := s.db.PutTree(newEntries)
	if err != nil {
		return "", "", daverror.Storage("write tree", err)
	}
	commitHash, err := s.db.Commit(head, newTree, author, "put "+name)
	if err != nil {
		return "", "", daverror.Storage("commit", err)
	}
	if err := s.db.SetHead(commitHash); err != nil {
		return "", "", daverror.Storage("advance head", err)
	}
	return blobHash, newTree, nil
}

// Delete removes a member, honoring If-Match.
func (s *Store) Delete(name, ifMatch, author string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	head, _, entries, err := s.headTree()
	if err != nil {
		return daverror.Storage("read head", err)
	}

	var existingHash string
	var filtered []objectdb.TreeEntry
	for _, e := range entries {
		if e.Name == name {
			existingHash = e.Hash
			continue
		}
		filtered = append(filtered, e)
	}
	if existingHash == "" {
		return daverror.NotFound(fmt.Sprintf("collection: no member named %q", name))
	}
	if ifMatch != "" && ifMatch != existingHash {
		return daverror.Precondition("", "If-Match does not match current ETag")
	}

	idx, err := loadUIDIndex(s.db, entries)
	if err != nil {
		return err
	}
	for u, n := range idx {
		if n == name {
			delete(idx, u)
		}
	}
	idxBytes, err := json.Marshal(idx)
	if err != nil {
		return daverror.Storage("marshal uid index", err)
	}
	idxHash, err := s.db.PutBlob(idxBytes)
	if err != nil {
		return daverror.Storage("write uid index", err)
	}

	var newEntries []objectdb.TreeEntry
	for _, e := range filtered {
		if e.Name == uidIndexKey {
			continue
		}
		newEntries = append(newEntries, e)
	}
	newEntries = append(newEntries, objectdb.TreeEntry{Name: uidIndexKey, Hash: idxHash, Kind: objectdb.KindBlob})

	newTree, err := s.db.PutTree(newEntries)
	if err != nil {
		return daverror.Storage("write tree", err)
	}
	commitHash, err := s.db.Commit(head, newTree, author, "delete "+name)
	if err != nil {
		return daverror.Storage("commit", err)
	}
	return s.db.SetHead(commitHash)
}

// CTag returns the hash of the current content tree; it changes iff the
// member set or any member's content changes.
func (s *Store) CTag() (string, error) {
	_, tree, _, err := s.headTree()
	if err != nil {
		return "", err
	}
	if tree == "" {
		empty, err := s.db.PutTree(nil)
		if err != nil {
			return "", err
		}
		return empty, nil
	}
	return tree, nil
}

// SyncToken returns the opaque, scheme-prefixed identity of the most recent
// commit.
func (s *Store) SyncToken() (string, error) {
	head, _, _, err := s.headTree()
	if err != nil {
		return "", err
	}
	return tokenScheme + head, nil
}

func decodeToken(tok string) (string, bool) {
	if tok == "" {
		return "", true
	}
	if !strings.HasPrefix(tok, tokenScheme) {
		return "", false
	}
	return strings.TrimPrefix(tok, tokenScheme), true
}

// ErrTokenStale is returned by IterChanges when oldToken names a commit that
// is no longer reachable from the collection's current history.
var ErrTokenStale = daverror.Precondition(daverror.ElemValidSyncToken, "sync token no longer valid")

// IterChanges enumerates the members added, modified or deleted between
// oldToken and the collection's current state. An
// empty oldToken means "from the beginning": every current member is
// reported added.
func (s *Store) IterChanges(oldToken string) ([]Change, error) {
	head, _, curEntries, err := s.headTree()
	if err != nil {
		return nil, err
	}
	oldHash, ok := decodeToken(oldToken)
	if !ok {
		return nil, ErrTokenStale
	}
	if oldHash != "" {
		reachable, err := s.db.Reachable(head, oldHash)
		if err != nil {
			return nil, err
		}
		if !reachable {
			return nil, ErrTokenStale
		}
	}

	oldSet := map[string]string{}
	if oldHash != "" {
		oldCommit, err := s.db.ReadCommit(oldHash)
		if err != nil {
			return nil, err
		}
		oldEntries, err := s.db.ReadTree(oldCommit.Tree)
		if err != nil {
			return nil, err
		}
		for _, e := range oldEntries {
			if isMember(e.Name) {
				oldSet[e.Name] = e.Hash
			}
		}
	}

	newSet := map[string]string{}
	for _, e := range curEntries {
		if isMember(e.Name) {
			newSet[e.Name] = e.Hash
		}
	}

	var changes []Change
	for name, newHash := range newSet {
		if oldHash2, ok := oldSet[name]; !ok {
			changes = append(changes, Change{Name: name, Kind: ChangeAdded, ETag: newHash})
		} else if oldHash2 != newHash {
			changes = append(changes, Change{Name: name, Kind: ChangeModified, ETag: newHash})
		}
	}
	for name := range oldSet {
		if _, ok := newSet[name]; !ok {
			changes = append(changes, Change{Name: name, Kind: ChangeDeleted})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes, nil
}
