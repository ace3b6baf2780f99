// Package resource implements the resource graph: mapping URI paths to
// tagged resource variants (principal, calendar, addressbook,
// schedule-inbox/outbox, subscription, plain collection, item) through one
// resolver, rather than a type hierarchy per resource kind.
package resource

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/hazeldav/hazeldav/internal/calendar"
	"github.com/hazeldav/hazeldav/internal/collection"
	"github.com/hazeldav/hazeldav/internal/config"
	"github.com/hazeldav/hazeldav/internal/contact"
	"github.com/hazeldav/hazeldav/internal/daverror"
	"github.com/hazeldav/hazeldav/internal/metastore"
	"github.com/hazeldav/hazeldav/internal/objectdb"
)

// Kind tags which resource-graph variant a Resource is.
type Kind int

const (
	KindPrincipal Kind = iota
	KindPrincipalCollection
	KindCalendarHome
	KindAddressbookHome
	KindCalendar
	KindAddressbook
	KindScheduleInbox
	KindScheduleOutbox
	KindSubscription
	KindCollection
	KindItem
)

// Default collection names created under autocreate=defaults.
const (
	DefaultCalendarName = "calendar"
	DefaultAddressbookName = "addressbook"
)

// Resource is one node of the graph: a principal, a collection of some kind,
// or an item inside a collection. CollectionPath is set for both collections
// (== Path) and items (the parent collection's path), so callers can always
// open the owning object database without re-splitting the path.
type Resource struct {
	Path string
	Kind Kind
	Principal string // owning principal's bare name, e.g. "alice"
	CollectionPath string
	MemberName string // set only for KindItem
	Meta metastore.CollectionMeta
}

// IsCollection reports whether r exposes list-members/accept-member
// capabilities.
func (r Resource) IsCollection() bool { return r.Kind != KindItem }

// Graph resolves URL paths to Resources and opens their backing stores.
type Graph struct {
	cfg *config.Config
	meta metastore.Store
}

// New builds a Graph over the given config and metastore.
func New(cfg *config.Config, meta metastore.Store) *Graph {
	return &Graph{cfg: cfg, meta: meta}
}

// NormalizePath strips the configured route prefix, decodes %XX escapes, and
// discards any URI fragment (RFC 3986 §3.5), returning a clean absolute path
// with no trailing slash (except for "/" itself).
func (g *Graph) NormalizePath(raw string) (string, error) {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", daverror.Protocol("malformed percent-encoding in request path")
	}
	p := decoded
	if g.cfg.RoutePrefix != "" {
		p = strings.TrimPrefix(p, g.cfg.RoutePrefix)
	}
	p = path.Clean("/" + p)
	return p, nil
}

func segments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// Resolve maps a normalized path to a Resource, autocreating the principal
// and its default collections if configured. It does not require
// the target to already exist on disk for PUT/MKCOL targets under an
// existing principal — callers distinguish "resource not found" from
// "collection not found" by inspecting the returned Kind and a subsequent
// store Get/List call.
func (g *Graph) Resolve(ctx context.Context, rawPath string) (*Resource, error) {
	p, err := g.NormalizePath(rawPath)
	if err != nil {
		return nil, err
	}
	segs := segments(p)
	if len(segs) == 0 {
		return &Resource{Path: "/", Kind: KindPrincipalCollection}, nil
	}

	principal := segs[0]
	if err := g.maybeAutocreate(ctx, principal); err != nil {
		return nil, err
	}

	if len(segs) == 1 {
		return &Resource{Path: "/" + principal + "/", Kind: KindPrincipal, Principal: principal}, nil
	}

	switch segs[1] {
	case "calendars":
		return g.resolveUnderHome(ctx, principal, segs[2:], "calendars", KindCalendarHome, KindCalendar, metastore.CollectionMeta{Kind: "calendar"})
	case "contacts":
		return g.resolveUnderHome(ctx, principal, segs[2:], "contacts", KindAddressbookHome, KindAddressbook, metastore.CollectionMeta{Kind: "addressbook"})
	case "schedule-inbox":
		return &Resource{Path: "/" + principal + "/schedule-inbox/", Kind: KindScheduleInbox, Principal: principal,
			CollectionPath: "/" + principal + "/schedule-inbox/"}, nil
	case "schedule-outbox":
		return &Resource{Path: "/" + principal + "/schedule-outbox/", Kind: KindScheduleOutbox, Principal: principal,
			CollectionPath: "/" + principal + "/schedule-outbox/"}, nil
	default:
		return nil, daverror.NotFound(fmt.Sprintf("resource: unknown principal subpath %q", segs[1]))
	}
}

func (g *Graph) resolveUnderHome(ctx context.Context, principal string, rest []string, homeSeg string, homeKind, collKind Kind, defaultMeta metastore.CollectionMeta) (*Resource, error) {
	base := "/" + principal + "/" + homeSeg + "/"
	if len(rest) == 0 {
		return &Resource{Path: base, Kind: homeKind, Principal: principal}, nil
	}
	collName := rest[0]
	collPath := base + collName + "/"
	meta, err := g.meta.GetCollectionMeta(ctx, collPath)
	if err == metastore.ErrNotFound {
		meta = defaultMeta
		meta.Path = collPath
		meta.OwnerPrincipal = principal
		meta.DisplayName = collName
	} else if err != nil {
		return nil, daverror.Storage("read collection metadata", err)
	}
	if len(rest) == 1 {
		return &Resource{Path: collPath, Kind: collKind, Principal: principal, CollectionPath: collPath, Meta: meta}, nil
	}
	memberName := rest[len(rest)-1]
	return &Resource{
		Path: collPath + memberName, Kind: KindItem, Principal: principal,
		CollectionPath: collPath, MemberName: memberName, Meta: meta,
	}, nil
}

func (g *Graph) maybeAutocreate(ctx context.Context, principal string) error {
	switch g.cfg.Autocreate {
	case config.AutocreateNone:
		return nil
	case config.AutocreatePrincipal, config.AutocreateDefaults:
	default:
		return nil
	}
	principalPath := "/" + principal + "/"
	if _, err := g.meta.GetCollectionMeta(ctx, principalPath); err == metastore.ErrNotFound {
		if err := g.meta.PutCollectionMeta(ctx, metastore.CollectionMeta{
			Path: principalPath, Kind: "principal", DisplayName: principal, OwnerPrincipal: principal,
		}); err != nil {
			return daverror.Storage("autocreate principal", err)
		}
	} else if err != nil {
		return daverror.Storage("read principal metadata", err)
	}
	if g.cfg.Autocreate != config.AutocreateDefaults {
		return nil
	}
	calPath := "/" + principal + "/calendars/" + DefaultCalendarName + "/"
	if err := g.ensureCollection(ctx, calPath, metastore.CollectionMeta{
		Path: calPath, Kind: "calendar", DisplayName: DefaultCalendarName, OwnerPrincipal: principal,
		SupportedComponents: []string{calendar.CompEvent, calendar.CompToDo},
	}); err != nil {
		return err
	}
	abPath := "/" + principal + "/contacts/" + DefaultAddressbookName + "/"
	return g.ensureCollection(ctx, abPath, metastore.CollectionMeta{
		Path: abPath, Kind: "addressbook", DisplayName: DefaultAddressbookName, OwnerPrincipal: principal,
	})
}

func (g *Graph) ensureCollection(ctx context.Context, p string, meta metastore.CollectionMeta) error {
	if _, err := g.meta.GetCollectionMeta(ctx, p); err == nil {
		return nil
	} else if err != metastore.ErrNotFound {
		return daverror.Storage("read collection metadata", err)
	}
	return g.meta.PutCollectionMeta(ctx, meta)
}

// ObjectDBPath returns the on-disk object-database root for a collection
// path, rooted under cfg.Storage.DataRoot.
func (g *Graph) ObjectDBPath(collectionPath string) string {
	return path.Join(g.cfg.Storage.DataRoot, strings.Trim(collectionPath, "/"))
}

// OpenStore opens (creating on first use) the object database and
// collection.Store backing r, choosing the validator from r.Meta.Kind.
func (g *Graph) OpenStore(r *Resource) (*collection.Store, error) {
	if !r.IsCollection() && r.Kind != KindItem {
		return nil, daverror.Forbidden("resource: not a collection")
	}
	collPath := r.CollectionPath
	if collPath == "" {
		collPath = r.Path
	}
	db, err := objectdb.Open(g.ObjectDBPath(collPath))
	if err != nil {
		return nil, daverror.Storage("open object database", err)
	}
	var validator collection.Validator
	switch r.Meta.Kind {
	case "addressbook":
		validator = contact.Validator{}
	default:
		validator = calendar.Validator{}
	}
	return collection.New(db, validator), nil
}
