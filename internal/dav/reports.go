// REPORT handling: one handler per registered report name, dispatched
// through the same registry.Table the property getters live in, parsed via
// etree tree-walking and backed by the filter/availability/syncengine
// packages.
package dav

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"io"
	"net/http"
	"reflect"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/hazeldav/hazeldav/internal/availability"
	"github.com/hazeldav/hazeldav/internal/calendar"
	"github.com/hazeldav/hazeldav/internal/collection"
	"github.com/hazeldav/hazeldav/internal/contact"
	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/dav/registry"
	"github.com/hazeldav/hazeldav/internal/dav/resource"
	"github.com/hazeldav/hazeldav/internal/daverror"
	"github.com/hazeldav/hazeldav/internal/filter"
	"github.com/hazeldav/hazeldav/internal/syncengine"
)

// registerReports wires every report name this server answers into t.
// free-busy-query is deliberately absent here: RFC 4791 §7.10 answers it with
// a raw text/calendar body rather than a multistatus, so handleReport
// special-cases it before ever consulting this table.
func (h *Handlers) registerReports(t *registry.Table) {
	t.RegisterReport(registry.ReportExpandProperty, h.reportExpandProperty)
	t.RegisterReport(registry.ReportSyncCollection, h.reportSyncCollection)
	t.RegisterReport(registry.ReportPrincipalMatch, h.reportPrincipalMatch)
	t.RegisterReport(registry.ReportCalendarQuery, h.reportCalendarQuery)
	t.RegisterReport(registry.ReportCalendarMultiget, h.reportCalendarMultiget)
	t.RegisterReport(registry.ReportAddressbookQuery, h.reportAddressbookQuery)
	t.RegisterReport(registry.ReportAddressbookMulti, h.reportAddressbookMultiget)
}

// handleReport implements the REPORT verb: it resolves the
// request URI to its root resource, then dispatches on the request body's
// root element name to the matching registered handler.
func (h *Handlers) handleReport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBytes()))
	_ = r.Body.Close()
	if err != nil {
		h.writeErr(w, daverror.Protocol("failed to read request body"))
		return
	}
	root, err := common.ParseXML(body)
	if err != nil {
		h.writeErr(w, daverror.Protocol("malformed REPORT request body"))
		return
	}
	rootName := common.ResolvedName(root)

	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	pt, _, err := openTarget(h.graph, res, h.basePath())
	if err != nil {
		h.writeErr(w, err)
		return
	}

	if rootName == registry.ReportFreeBusyQuery {
		h.reportFreeBusyQuery(w, r, pt, root)
		return
	}

	handler, ok := h.reg.Report(rootName)
	if !ok {
		h.writeErr(w, daverror.Unsupported("unsupported report: "+rootName.Local))
		return
	}
	rc := h.requestContext(r, depthOrDefault(r.Header.Get("Depth"), "0"))
	ms, err := handler(rc, pt, body)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	_ = common.ServeMultiStatus(w, ms)
}

func (h *Handlers) maxBytes() int64 {
	if h.cfg.HTTP.MaxBytes > 0 {
		return h.cfg.HTTP.MaxBytes
	}
	return 16 << 20
}

func childItemResource(parent *resource.Resource, name string) *resource.Resource {
	return &resource.Resource{
		Path: parent.Path + name,
		Kind: resource.KindItem,
		Principal: parent.Principal,
		CollectionPath: parent.CollectionPath,
		MemberName: name,
		Meta: parent.Meta,
	}
}

// --- {DAV:}expand-property (RFC 3253 §3.8) ---

type expandSpec struct {
	Name xml.Name
	Nested []expandSpec
}

func parseExpandSpecs(node *etree.Element) []expandSpec {
	var out []expandSpec
	for _, c := range common.FindAllChildren(node, common.NSDAV, "property") {
		space := c.SelectAttrValue("namespace", "")
		if space == "" {
			space = common.NSDAV
		}
		out = append(out, expandSpec{
			Name: xml.Name{Space: space, Local: c.SelectAttrValue("name", "")},
			Nested: parseExpandSpecs(c),
		})
	}
	return out
}

func (h *Handlers) reportExpandProperty(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	pt := root.(*propTarget)
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed expand-property body")
	}
	resp := h.expandPropertiesFor(rc, pt, parseExpandSpecs(node))
	return common.NewMultiStatus(resp), nil
}

func (h *Handlers) expandPropertiesFor(rc registry.RequestContext, pt *propTarget, specs []expandSpec) common.Response {
	resp := common.Response{Href: pt.href}
	kind := resourceKindName(pt.kind())
	for _, spec := range specs {
		def, ok := h.reg.Property(spec.Name)
		if !ok || !def.SupportedOn(kind) {
			resp.EncodeProp(http.StatusNotFound, emptyElem{Name: spec.Name})
			continue
		}
		val, err := def.Get(rc, pt)
		if err != nil {
			resp.EncodeProp(statusForPropError(err), emptyElem{Name: spec.Name})
			continue
		}
		if len(spec.Nested) == 0 {
			resp.EncodeProp(http.StatusOK, val)
			continue
		}
		hrefs := hrefsOf(val)
		if len(hrefs) == 0 {
			resp.EncodeProp(http.StatusOK, val)
			continue
		}
		var nested []common.Response
		for _, href := range hrefs {
			target, err := h.graph.Resolve(rc.Ctx, href)
			if err != nil {
				continue
			}
			npt, _, err := openTarget(h.graph, target, rc.BasePath)
			if err != nil {
				continue
			}
			nested = append(nested, h.expandPropertiesFor(rc, npt, spec.Nested))
		}
		resp.EncodeProp(http.StatusOK, expandedResponses{Name: spec.Name, Responses: nested})
	}
	return resp
}

// expandedResponses renders a DAV:property element wrapping the nested
// responses expand-property's recursive form requires (RFC 3253 §3.8).
type expandedResponses struct {
	Name xml.Name
	Responses []common.Response
}

func (e expandedResponses) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = e.Name
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, r := range e.Responses {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// hrefsOf extracts the href values a property value carries, either as a
// single Href field or a slice of them — the shape every home-set/
// principal-style property in internal/dav/common/props.go uses. Reflection
// is the pragmatic choice here since expand-property must work uniformly
// across every registered property's concrete type, not just the handful
// that carry hrefs.
func hrefsOf(val any) []string {
	v := reflect.ValueOf(val)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	if f := v.FieldByName("Hrefs"); f.IsValid() && f.Kind() == reflect.Slice {
		out := make([]string, 0, f.Len())
		for i := 0; i < f.Len(); i++ {
			if vf := f.Index(i).FieldByName("Value"); vf.IsValid() {
				out = append(out, vf.String())
			}
		}
		return out
	}
	if f := v.FieldByName("Href"); f.IsValid() && f.Kind() == reflect.Struct {
		if vf := f.FieldByName("Value"); vf.IsValid() {
			return []string{vf.String()}
		}
	}
	return nil
}

// --- {DAV:}sync-collection ---

func (h *Handlers) reportSyncCollection(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	pt := root.(*propTarget)
	if pt.store == nil {
		return nil, daverror.Forbidden("sync-collection requires a collection")
	}
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed sync-collection body")
	}
	oldToken := ""
	if tok := common.FindChild(node, common.NSDAV, "sync-token"); tok != nil {
		oldToken = tok.Text()
	}
	limit := 0
	if lim := common.FindChild(node, common.NSDAV, "limit"); lim != nil {
		if n := common.FindChild(lim, common.NSDAV, "nresults"); n != nil {
			limit = atoiSafe(n.Text())
		}
	}
	want := propNames(common.FindChild(node, common.NSDAV, "prop"))

	result, err := syncengine.Compute(pt.store, oldToken, limit)
	if err != nil {
		return nil, err
	}

	var responses []common.Response
	for _, entry := range result.Entries {
		itemRes := childItemResource(pt.res, entry.Name)
		href := hrefFor(rc.BasePath, itemRes)
		if entry.Kind == collection.ChangeDeleted {
			responses = append(responses, common.Response{Href: href, Status: common.StatusLine(http.StatusNotFound)})
			continue
		}
		item, err := pt.store.Get(entry.Name)
		if err != nil {
			responses = append(responses, errorResponse(href, err))
			continue
		}
		ipt := &propTarget{res: itemRes, store: pt.store, item: item, href: href, basePath: rc.BasePath}
		responses = append(responses, h.encodeRequestedProps(rc, ipt, want))
	}

	ms := common.NewMultiStatus(responses...)
	if !result.Truncated {
		ms.SyncToken = result.NewToken
	}
	return ms, nil
}

// --- {DAV:}principal-match (RFC 3744 §9.3) ---

// reportPrincipalMatch supports only the <D:self/> form: this deployment has
// no group membership or principal-property-search index to match against
//, so a non-self request simply matches nothing.
func (h *Handlers) reportPrincipalMatch(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed principal-match body")
	}
	if common.FindChild(node, common.NSDAV, "self") == nil || rc.CurrentUserPath == "" {
		return common.NewMultiStatus(), nil
	}
	return common.NewMultiStatus(common.Response{Href: rc.CurrentUserPath, Status: common.StatusLine(http.StatusOK)}), nil
}

// --- {CALDAV:}calendar-query / calendar-multiget (RFC 4791 §7.8/§7.9) ---

func (h *Handlers) reportCalendarQuery(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	pt := root.(*propTarget)
	if pt.store == nil {
		return nil, daverror.Forbidden("calendar-query requires a calendar collection")
	}
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed calendar-query body")
	}
	want := propNames(common.FindChild(node, common.NSDAV, "prop"))
	cf := parseCalendarFilter(common.FindChild(node, common.NSCalDAV, "filter"))

	infos, err := pt.store.List()
	if err != nil {
		return nil, daverror.Storage("list calendar collection", err)
	}
	treeHash, err := pt.store.CTag()
	if err != nil {
		return nil, daverror.Storage("ctag", err)
	}
	cached := h.loadIndex(rc.Ctx, pt.res.Path, treeHash)
	newIndex := map[string]filter.ResourceIndex{}

	var responses []common.Response
	for _, info := range infos {
		matched, item, built, err := evaluateCalendarMember(pt.store, info.Name, cf, cached)
		if err != nil {
			continue
		}
		if built != nil {
			newIndex[info.Name] = *built
		} else if idx, ok := cached[info.Name]; ok {
			newIndex[info.Name] = idx
		}
		if !matched {
			continue
		}
		if item == nil {
			if item, err = pt.store.Get(info.Name); err != nil {
				continue
			}
		}
		itemRes := childItemResource(pt.res, info.Name)
		ipt := &propTarget{res: itemRes, store: pt.store, item: item, href: hrefFor(rc.BasePath, itemRes), basePath: rc.BasePath}
		responses = append(responses, h.encodeRequestedProps(rc, ipt, want))
	}
	h.saveIndex(rc.Ctx, pt.res.Path, treeHash, newIndex)
	return common.NewMultiStatus(responses...), nil
}

// evaluateCalendarMember decides whether one stored member matches cf,
// consulting the cached index first and only fetching and parsing the
// resource when the index can't decide. built is non-nil exactly when a
// fresh index entry was computed and should be cached.
func evaluateCalendarMember(store *collection.Store, name string, cf filter.CompFilter, cached map[string]filter.ResourceIndex) (matched bool, item *collection.Resource, built *filter.ResourceIndex, err error) {
	if idx, ok := cached[name]; ok {
		if d := filter.CheckIndex(cf, idx); d.IsPresent() {
			return d.MustGet(), nil, nil, nil
		}
	}
	item, err = store.Get(name)
	if err != nil {
		return false, nil, nil, err
	}
	cal, perr := calendar.Parse(item.Data)
	if perr != nil {
		return false, item, nil, nil
	}
	matched, eerr := filter.EvaluateCalendar(cf, cal)
	if eerr != nil {
		return false, item, nil, nil
	}
	comps := calendar.DetectComponents(cal)
	kind := ""
	if len(comps) > 0 {
		kind = comps[0]
	}
	idx := filter.BuildResourceIndex(cal, kind)
	return matched, item, &idx, nil
}

func (h *Handlers) loadIndex(ctx context.Context, path, treeHash string) map[string]filter.ResourceIndex {
	if cached, ok := h.idx.Get(treeHash); ok {
		return cached
	}
	raw, err := h.meta.GetIndexCache(ctx, path, treeHash)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var out map[string]filter.ResourceIndex
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	h.idx.Put(treeHash, out)
	return out
}

func (h *Handlers) saveIndex(ctx context.Context, path, treeHash string, idx map[string]filter.ResourceIndex) {
	if len(idx) == 0 {
		return
	}
	h.idx.Put(treeHash, idx)
	raw, err := json.Marshal(idx)
	if err != nil {
		return
	}
	if err := h.meta.PutIndexCache(ctx, path, treeHash, raw); err != nil {
		return
	}
	_ = h.meta.PruneIndexCache(ctx, path, treeHash)
}

func (h *Handlers) reportCalendarMultiget(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	pt := root.(*propTarget)
	if pt.store == nil {
		return nil, daverror.Forbidden("calendar-multiget requires a calendar collection")
	}
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed calendar-multiget body")
	}
	want := propNames(common.FindChild(node, common.NSDAV, "prop"))
	var responses []common.Response
	for _, href := range common.FindAllChildren(node, common.NSDAV, "href") {
		responses = append(responses, h.multigetOne(rc, pt, href.Text(), want))
	}
	return common.NewMultiStatus(responses...), nil
}

func (h *Handlers) multigetOne(rc registry.RequestContext, pt *propTarget, href string, want []xml.Name) common.Response {
	target, err := h.graph.Resolve(rc.Ctx, href)
	if err != nil {
		return errorResponse(href, err)
	}
	if target.Kind != resource.KindItem {
		return errorResponse(href, daverror.Forbidden("multiget href does not name an item"))
	}
	item, err := pt.store.Get(target.MemberName)
	if err != nil {
		return errorResponse(hrefFor(rc.BasePath, target), err)
	}
	ipt := &propTarget{res: target, store: pt.store, item: item, href: hrefFor(rc.BasePath, target), basePath: rc.BasePath}
	return h.encodeRequestedProps(rc, ipt, want)
}

// --- {CALDAV:}free-busy-query (RFC 4791 §7.10) ---

// reportFreeBusyQuery answers directly on w with a raw text/calendar
// VFREEBUSY body rather than a multistatus, since RFC 4791 §7.10 defines this
// report's success response that way.
func (h *Handlers) reportFreeBusyQuery(w http.ResponseWriter, r *http.Request, pt *propTarget, root *etree.Element) {
	if pt.store == nil {
		h.writeErr(w, daverror.Forbidden("free-busy-query requires a calendar collection"))
		return
	}
	trNode := common.FindChild(root, common.NSCalDAV, "time-range")
	if trNode == nil {
		h.writeErr(w, daverror.Protocol("free-busy-query requires a time-range"))
		return
	}
	tr := parseTimeRange(trNode)
	if tr.Start.IsZero() || tr.End.IsZero() {
		h.writeErr(w, daverror.Protocol("free-busy-query time-range requires both start and end"))
		return
	}

	infos, err := pt.store.List()
	if err != nil {
		h.writeErr(w, daverror.Storage("list calendar collection", err))
		return
	}
	var allComponents [][]*calendar.Component
	for _, info := range infos {
		item, err := pt.store.Get(info.Name)
		if err != nil {
			continue
		}
		cal, perr := calendar.Parse(item.Data)
		if perr != nil {
			continue
		}
		allComponents = append(allComponents, calendar.TopLevelComponents(cal))
	}

	periods, err := availability.ComputeFreeBusy(allComponents, tr.Start, tr.End)
	if err != nil {
		h.writeErr(w, daverror.Storage("compute free-busy", err))
		return
	}

	organizer := ""
	if principal, ok := common.PrincipalFrom(r.Context()); ok {
		organizer = "mailto:" + principal
	}
	vfb := availability.BuildVFreeBusy(uuid.NewString(), organizer, tr.Start, tr.End, periods)
	data, err := calendar.Serialize(vfb)
	if err != nil {
		h.writeErr(w, daverror.Storage("serialize free-busy reply", err))
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// --- {CARDDAV:}addressbook-query / addressbook-multiget (RFC 6352 §8.6/§8.7) ---

func (h *Handlers) reportAddressbookQuery(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	pt := root.(*propTarget)
	if pt.store == nil {
		return nil, daverror.Forbidden("addressbook-query requires an addressbook collection")
	}
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed addressbook-query body")
	}
	want := propNames(common.FindChild(node, common.NSDAV, "prop"))
	af := parseAddressFilter(common.FindChild(node, common.NSCardDAV, "filter"))

	infos, err := pt.store.List()
	if err != nil {
		return nil, daverror.Storage("list addressbook collection", err)
	}
	var responses []common.Response
	for _, info := range infos {
		item, err := pt.store.Get(info.Name)
		if err != nil {
			continue
		}
		cards, perr := contact.ParseAll(item.Data)
		if perr != nil || len(cards) == 0 {
			continue
		}
		if !filter.EvaluateCard(af, cards[0]) {
			continue
		}
		itemRes := childItemResource(pt.res, info.Name)
		ipt := &propTarget{res: itemRes, store: pt.store, item: item, href: hrefFor(rc.BasePath, itemRes), basePath: rc.BasePath}
		responses = append(responses, h.encodeRequestedProps(rc, ipt, want))
	}
	return common.NewMultiStatus(responses...), nil
}

func (h *Handlers) reportAddressbookMultiget(rc registry.RequestContext, root any, body []byte) (*common.MultiStatus, error) {
	pt := root.(*propTarget)
	if pt.store == nil {
		return nil, daverror.Forbidden("addressbook-multiget requires an addressbook collection")
	}
	node, err := common.ParseXML(body)
	if err != nil {
		return nil, daverror.Protocol("malformed addressbook-multiget body")
	}
	want := propNames(common.FindChild(node, common.NSDAV, "prop"))
	var responses []common.Response
	for _, href := range common.FindAllChildren(node, common.NSDAV, "href") {
		responses = append(responses, h.multigetOne(rc, pt, href.Text(), want))
	}
	return common.NewMultiStatus(responses...), nil
}
