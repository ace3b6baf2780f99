// Package metastore provides the small pluggable SQL side-index the
// file-backed object database deliberately omits: collection
// presentation/type metadata and the filter index cache, each keyed by
// the collection path and (for the index cache) the collection's current
// tree hash. A sqlite and a postgres backend sit behind one interface.
package metastore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no row.
var ErrNotFound = errors.New("metastore: not found")

// CollectionMeta is the presentation/type metadata one collection carries
// outside the object database: its kind, display properties, and the
// CalDAV/CardDAV capability set a PROPFIND needs to answer without walking
// the object store.
type CollectionMeta struct {
	Path string
	Kind string // "calendar", "addressbook", "schedule-inbox", "schedule-outbox", "subscription", "collection"
	DisplayName string
	Description string
	Color string
	TimeZone string
	SupportedComponents []string
	OwnerPrincipal string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is the metastore backend contract. Implementations must be safe for
// concurrent use.
type Store interface {
	GetCollectionMeta(ctx context.Context, path string) (CollectionMeta, error)
	PutCollectionMeta(ctx context.Context, meta CollectionMeta) error
	DeleteCollectionMeta(ctx context.Context, path string) error
	ListCollections(ctx context.Context, ownerPrincipal string) ([]CollectionMeta, error)

	// GetIndexCache/PutIndexCache store an opaque, caller-serialized index
	// generation keyed by the collection path and
	// the object database's tree hash at the time the index was built; a
	// PutIndexCache under a new treeHash implicitly supersedes older
	// generations for the same path on next prune, never mutates them.
	GetIndexCache(ctx context.Context, path, treeHash string) ([]byte, error)
	PutIndexCache(ctx context.Context, path, treeHash string, data []byte) error
	PruneIndexCache(ctx context.Context, path string, keepTreeHash string) error

	Close() error
}
