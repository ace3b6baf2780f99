package dav

import (
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"

	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/dav/resource"
	"github.com/hazeldav/hazeldav/internal/daverror"
	"github.com/hazeldav/hazeldav/internal/metastore"
)

// contentTypeFor returns the Content-Type a collection's members carry,
// keyed by the metastore's collection kind.
func contentTypeFor(kind string) string {
	if kind == "addressbook" {
		return "text/vcard; charset=utf-8"
	}
	return "text/calendar; charset=utf-8"
}

// handleGet serves GET (withBody true) and HEAD (withBody false) for items;
// collections have no representation of their own.
func (h *Handlers) handleGet(w http.ResponseWriter, r *http.Request, withBody bool) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if res.Kind != resource.KindItem {
		h.writeErr(w, daverror.Forbidden("GET is only defined on items"))
		return
	}
	store, err := h.graph.OpenStore(res)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	item, err := store.Get(res.MemberName)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	inm := trimQuotes(r.Header.Get("If-None-Match"))
	if inm != "" && inm == item.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(res.Meta.Kind))
	w.Header().Set("ETag", `"`+item.ETag+`"`)
	if !item.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", item.UpdatedAt.UTC().Format(time.RFC1123))
	}
	if !withBody {
		w.WriteHeader(http.StatusOK)
		return
	}
	_, _ = w.Write(item.Data)
}

// handlePut creates or replaces an item, honoring If-Match /
// If-None-Match: * exactly as collection.Store.Put requires them.
func (h *Handlers) handlePut(w http.ResponseWriter, r *http.Request) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if res.Kind != resource.KindItem {
		h.writeErr(w, daverror.Forbidden("PUT target must be an item inside a collection"))
		return
	}
	if res.Meta.Kind == "subscription" {
		h.writeErr(w, daverror.Forbidden("subscription collections are read-only sources"))
		return
	}
	store, err := h.graph.OpenStore(res)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	maxBytes := h.cfg.HTTP.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	_ = r.Body.Close()
	if err != nil {
		h.writeErr(w, daverror.Protocol("failed to read request body"))
		return
	}
	if int64(len(data)) > maxBytes {
		h.writeErr(w, daverror.Invalid("request body exceeds the configured size limit"))
		return
	}

	ifMatch := trimQuotes(r.Header.Get("If-Match"))
	ifNoneMatch := r.Header.Get("If-None-Match")
	principal, _ := common.PrincipalFrom(r.Context())

	_, existErr := store.Get(res.MemberName)
	existed := existErr == nil

	etag, _, err := store.Put(res.MemberName, data, ifMatch, ifNoneMatch, principal)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	w.Header().Set("ETag", `"`+etag+`"`)
	if existed {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

// handleDelete removes an item or, for a collection, its whole member set
//.
func (h *Handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	principal, _ := common.PrincipalFrom(r.Context())
	ifMatch := trimQuotes(r.Header.Get("If-Match"))

	if res.Kind == resource.KindItem {
		store, err := h.graph.OpenStore(res)
		if err != nil {
			h.writeErr(w, err)
			return
		}
		if err := store.Delete(res.MemberName, ifMatch, principal); err != nil {
			h.writeErr(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !res.IsCollection() {
		h.writeErr(w, daverror.Forbidden("DELETE target is neither an item nor a collection"))
		return
	}
	store, err := h.graph.OpenStore(res)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	infos, err := store.List()
	if err != nil {
		h.writeErr(w, daverror.Storage("list collection for cascade delete", err))
		return
	}
	for _, info := range infos {
		if err := store.Delete(info.Name, "", principal); err != nil && !isNotFound(err) {
			h.writeErr(w, err)
			return
		}
	}
	if err := h.meta.DeleteCollectionMeta(r.Context(), res.Path); err != nil {
		h.writeErr(w, daverror.Storage("delete collection metadata", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func isNotFound(err error) bool {
	de, ok := daverror.As(err)
	return ok && de.Kind == daverror.KindNotFound
}

// handleMkcol implements MKCOL/MKCALENDAR, including the
// RFC 5689 extended-MKCOL initial-property-set body when present.
func (h *Handlers) handleMkcol(w http.ResponseWriter, r *http.Request, calendar bool) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if res.Kind != resource.KindCalendar && res.Kind != resource.KindAddressbook && res.Kind != resource.KindCollection {
		h.writeErr(w, daverror.Forbidden("MKCOL target's parent does not accept new collections"))
		return
	}
	if _, err := h.meta.GetCollectionMeta(r.Context(), res.Path); err == nil {
		h.writeErr(w, daverror.MethodNotAllowed("a resource already exists at this location"))
		return
	}

	meta := res.Meta
	meta.Path = res.Path
	if calendar {
		meta.Kind = "calendar"
	}

	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	if len(body) > 0 {
		root, err := common.ParseXML(body)
		if err != nil {
			h.writeErr(w, daverror.Protocol("malformed extended-MKCOL request body"))
			return
		}
		applyMkcolInitialProps(&meta, root)
	}

	if err := h.meta.PutCollectionMeta(r.Context(), meta); err != nil {
		h.writeErr(w, daverror.Storage("create collection metadata", err))
		return
	}
	if _, err := h.graph.OpenStore(&resource.Resource{Path: res.Path, Kind: res.Kind, CollectionPath: res.Path, Meta: meta}); err != nil {
		h.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// applyMkcolInitialProps applies the {DAV:}set/prop properties an extended
// MKCOL request carries atomically alongside creation (RFC 5689 §5). Only
// the handful of live properties this server ever makes writable are
// honored; anything else in the set is silently ignored rather than
// rejecting the whole MKCOL, since RFC 5689 leaves per-property failure
// handling to the server and nothing in this deployment offers dead
// property storage.
func applyMkcolInitialProps(meta *metastore.CollectionMeta, root *etree.Element) {
	set := common.FindChild(root, common.NSDAV, "set")
	if set == nil {
		return
	}
	prop := common.FindChild(set, common.NSDAV, "prop")
	if prop == nil {
		return
	}
	for _, c := range prop.ChildElements() {
		name := common.ResolvedName(c)
		switch {
		case name.Space == common.NSDAV && name.Local == "displayname":
			meta.DisplayName = c.Text()
		case name.Space == common.NSCalDAV && name.Local == "calendar-description":
			meta.Description = c.Text()
		case name.Space == common.NSCalDAV && name.Local == "calendar-timezone":
			meta.TimeZone = c.Text()
		case name.Space == "http://apple.com/ns/ical/" && name.Local == "calendar-color":
			meta.Color = c.Text()
		case name.Space == common.NSCalDAV && name.Local == "supported-calendar-component-set":
			var comps []string
			for _, comp := range common.FindAllChildren(c, common.NSCalDAV, "comp") {
				if name := comp.SelectAttrValue("name", ""); name != "" {
					comps = append(comps, name)
				}
			}
			if len(comps) > 0 {
				meta.SupportedComponents = comps
			}
		}
	}
}

// handleCopyMove implements COPY (move=false) and MOVE (move=true) for items
//; both require the Destination header and honor Overwrite.
func (h *Handlers) handleCopyMove(w http.ResponseWriter, r *http.Request, move bool) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if res.Kind != resource.KindItem {
		h.writeErr(w, daverror.Forbidden("COPY/MOVE is only implemented for items"))
		return
	}
	dest := r.Header.Get("Destination")
	if dest == "" {
		h.writeErr(w, daverror.Protocol("Destination header is required"))
		return
	}
	destRes, err := h.graph.Resolve(r.Context(), dest)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if destRes.Kind != resource.KindItem {
		h.writeErr(w, daverror.Forbidden("Destination must name an item inside a collection"))
		return
	}

	srcStore, err := h.graph.OpenStore(res)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	item, err := srcStore.Get(res.MemberName)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	destStore := srcStore
	if destRes.CollectionPath != res.CollectionPath {
		destStore, err = h.graph.OpenStore(destRes)
		if err != nil {
			h.writeErr(w, err)
			return
		}
	}

	overwrite := r.Header.Get("Overwrite") != "F"
	_, destExistErr := destStore.Get(destRes.MemberName)
	destExists := destExistErr == nil
	if destExists && !overwrite {
		h.writeErr(w, daverror.Precondition("", "Destination exists and Overwrite is F"))
		return
	}

	principal, _ := common.PrincipalFrom(r.Context())
	ifNoneMatch := ""
	if !overwrite {
		ifNoneMatch = "*"
	}
	if _, _, err := destStore.Put(destRes.MemberName, item.Data, "", ifNoneMatch, principal); err != nil {
		h.writeErr(w, err)
		return
	}
	if move {
		if err := srcStore.Delete(res.MemberName, "", principal); err != nil {
			h.writeErr(w, err)
			return
		}
	}
	if destExists {
		w.WriteHeader(http.StatusNoContent)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

// handlePost implements "POST with add-member": the body is
// treated as a PUT to a freshly allocated unique member name.
func (h *Handlers) handlePost(w http.ResponseWriter, r *http.Request) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if !res.IsCollection() {
		h.writeErr(w, daverror.Forbidden("POST add-member target must be a collection"))
		return
	}
	if res.Meta.Kind == "subscription" {
		h.writeErr(w, daverror.Forbidden("subscription collections are read-only sources"))
		return
	}
	store, err := h.graph.OpenStore(res)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	maxBytes := h.cfg.HTTP.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBytes+1))
	_ = r.Body.Close()
	if err != nil {
		h.writeErr(w, daverror.Protocol("failed to read request body"))
		return
	}

	ext := ".ics"
	if res.Meta.Kind == "addressbook" {
		ext = ".vcf"
	}
	name := uuid.NewString() + ext

	principal, _ := common.PrincipalFrom(r.Context())
	etag, _, err := store.Put(name, data, "", "*", principal)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	w.Header().Set("ETag", `"`+etag+`"`)
	w.Header().Set("Location", common.JoinURL(h.basePath(), res.Path, name))
	w.WriteHeader(http.StatusCreated)
}
