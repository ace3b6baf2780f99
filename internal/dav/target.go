package dav

import (
	"strings"

	"github.com/hazeldav/hazeldav/internal/collection"
	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/dav/resource"
)

// propTarget is the concrete value every registry.PropertyDef.Get/Set
// receives as its target: the resolved resource-graph node, its backing
// collection store (nil for a bare principal), and — for an item — the
// fetched member.
type propTarget struct {
	res *resource.Resource
	store *collection.Store
	item *collection.Resource // non-nil only when res.Kind == resource.KindItem
	href string
	basePath string
}

func (t *propTarget) kind() resource.Kind { return t.res.Kind }

// openTarget resolves res to a propTarget, opening its backing store (for
// collections and items) and — for an item — fetching its bytes, so that
// every registry property or report handler can work from one uniform
// value. basePath is threaded
// through for href construction by property getters.
func openTarget(g *resource.Graph, res *resource.Resource, basePath string) (*propTarget, *collection.Store, error) {
	pt := &propTarget{res: res, basePath: basePath, href: hrefFor(basePath, res)}
	if res.Kind == resource.KindPrincipal || res.Kind == resource.KindPrincipalCollection {
		return pt, nil, nil
	}
	store, err := g.OpenStore(res)
	if err != nil {
		return nil, nil, err
	}
	pt.store = store
	if res.Kind == resource.KindItem {
		item, err := store.Get(res.MemberName)
		if err != nil {
			return nil, nil, err
		}
		pt.item = item
	}
	return pt, store, nil
}

// hrefFor renders res's absolute href under basePath. Collections always
// carry a trailing slash; items never do.
func hrefFor(basePath string, res *resource.Resource) string {
	p := res.Path
	if basePath != "" {
		p = common.JoinURL(basePath, p)
	}
	if res.IsCollection() && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func resourceKindName(k resource.Kind) string {
	switch k {
	case resource.KindPrincipal:
		return "principal"
	case resource.KindCalendar:
		return "calendar"
	case resource.KindAddressbook:
		return "addressbook"
	case resource.KindScheduleInbox:
		return "schedule-inbox"
	case resource.KindScheduleOutbox:
		return "schedule-outbox"
	case resource.KindCalendarHome, resource.KindAddressbookHome, resource.KindCollection, resource.KindPrincipalCollection:
		return "collection"
	case resource.KindItem:
		return "item"
	default:
		return "unknown"
	}
}
