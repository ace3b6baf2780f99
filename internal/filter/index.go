package filter

import (
	"container/list"
	"sync"
	"time"

	"github.com/samber/mo"

	"github.com/hazeldav/hazeldav/internal/calendar"
)

// ResourceIndex is the summary index-assisted evaluation keeps per
// resource: enough to decide component-type and time-range filters without
// re-parsing the resource, but deliberately nothing about property or
// parameter text content, which always falls back to a full parse.
type ResourceIndex struct {
	ComponentKind string
	SpanStart time.Time
	SpanEnd time.Time
	HasRecurrence bool
}

// BuildResourceIndex summarizes one resource's top-level components for the
// index cache. componentKind is the dominant component name as returned by
// calendar.DetectComponents.
func BuildResourceIndex(cal *calendar.Calendar, componentKind string) ResourceIndex {
	idx := ResourceIndex{ComponentKind: componentKind}
	comps := calendar.TopLevelComponents(cal)
	instances, err := calendar.ExpandComponents(comps, componentKind, time.Time{}, calendar.FarFuture)
	if err != nil || len(instances) == 0 {
		return idx
	}
	idx.SpanStart = instances[0].Start
	idx.SpanEnd = instances[0].End
	idx.HasRecurrence = len(instances) > 1
	for _, inst := range instances[1:] {
		if inst.Start.Before(idx.SpanStart) {
			idx.SpanStart = inst.Start
		}
		if inst.End.After(idx.SpanEnd) {
			idx.SpanEnd = inst.End
		}
	}
	return idx
}

// CheckIndex decides root against idx where it can, returning mo.None when the
// index alone is insufficient (property text, parameters, or nested
// component structure require the parsed object). This is the three-valued
// logic describes: true, false, or unknown.
func CheckIndex(root CompFilter, idx ResourceIndex) mo.Option[bool] {
	if root.Name == "VCALENDAR" {
		// The index records the component inside the VCALENDAR wrapper, so
		// only a bare wrapper around one comp-filter can be decided here.
		if !root.IsNotDefined && root.TimeRange == nil && len(root.PropFilters) == 0 && len(root.CompFilters) == 1 {
			return CheckIndex(root.CompFilters[0], idx)
		}
		return mo.None[bool]()
	}
	if idx.ComponentKind != root.Name {
		return mo.Some(root.IsNotDefined)
	}
	if root.IsNotDefined {
		return mo.Some(false)
	}
	decided := true
	if root.TimeRange != nil {
		if !idx.SpanStart.IsZero() || !idx.SpanEnd.IsZero() {
			if !overlapsRange(idx.SpanStart, idx.SpanEnd, root.TimeRange.Start, root.TimeRange.End) {
				return mo.Some(false)
			}
		} else {
			decided = false
		}
	}
	if len(root.PropFilters) > 0 || len(root.CompFilters) > 0 {
		decided = false
	}
	if decided {
		return mo.Some(true)
	}
	return mo.None[bool]()
}

func overlapsRange(s, e, rangeStart, rangeEnd time.Time) bool {
	if !e.After(s) {
		e = s
	}
	if !rangeStart.IsZero() && e.Before(rangeStart) {
		return false
	}
	if !rangeEnd.IsZero() && !s.Before(rangeEnd) {
		return false
	}
	return true
}

// IndexCache caches ResourceIndex sets keyed by the collection's tree hash
//, bounded to capacity entries with LRU eviction.
type IndexCache struct {
	mu sync.Mutex
	capacity int
	entries map[string]*list.Element
	order *list.List
}

type cacheEntry struct {
	treeHash string
	byName map[string]ResourceIndex
}

// NewIndexCache builds a cache holding at most capacity tree-hash generations.
func NewIndexCache(capacity int) *IndexCache {
	if capacity <= 0 {
		capacity = 16
	}
	return &IndexCache{capacity: capacity, entries: map[string]*list.Element{}, order: list.New()}
}

// Get returns the cached index set for treeHash, if present.
func (c *IndexCache) Get(treeHash string) (map[string]ResourceIndex, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[treeHash]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).byName, true
}

// Put installs (or refreshes) the index set for treeHash.
func (c *IndexCache) Put(treeHash string, byName map[string]ResourceIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[treeHash]; ok {
		el.Value.(*cacheEntry).byName = byName
		c.order.MoveToFront(el)
		return
	}
	el := c.order.PushFront(&cacheEntry{treeHash: treeHash, byName: byName})
	c.entries[treeHash] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).treeHash)
		}
	}
}
