// Package dav implements the protocol state machine: verb dispatch,
// conditional-request arbitration, and multistatus aggregation, wired to
// the resource graph, the property/report registry, the filter engine,
// availability, and the sync engine.
//
// Dispatch is driven by the resource graph's tagged resource variants
// rather than a fixed CalDAV/CardDAV handler split, so adding a new
// resource kind or report does not require a new handler type.
package dav

import (
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hazeldav/hazeldav/internal/config"
	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/dav/registry"
	"github.com/hazeldav/hazeldav/internal/dav/resource"
	"github.com/hazeldav/hazeldav/internal/filter"
	"github.com/hazeldav/hazeldav/internal/metastore"
)

// Handlers is the server's single entry point, implementing http.Handler by
// dispatching on request method.
type Handlers struct {
	cfg *config.Config
	meta metastore.Store
	graph *resource.Graph
	idx *filter.IndexCache
	reg *registry.Table
	logger zerolog.Logger
}

// NewHandlers builds the full protocol layer over a metastore backend and
// configuration, assembling the registry once at startup.
func NewHandlers(cfg *config.Config, meta metastore.Store, logger zerolog.Logger) *Handlers {
	h := &Handlers{
		cfg: cfg,
		meta: meta,
		graph: resource.New(cfg, meta),
		idx: filter.NewIndexCache(256),
		logger: logger,
	}
	h.reg = h.buildRegistry()
	return h
}

// davCapabilities is the DAV response header value advertised on every
// response (OPTIONS in particular advertises it; LOCK/UNLOCK are absent
// since multi-writer locking is not implemented).
const davCapabilities = "1, 3, access-control, calendar-access, addressbook, extended-mkcol, calendar-schedule"

// ServeHTTP dispatches by HTTP method. OPTIONS never requires a
// principal (capability discovery is public); every other verb that resolves
// past the root needs the outer layer's authentication boundary —
// this core accepts an absent principal and lets individual resources decide
// whether that matters (autocreate/anonymous collections may allow it).
func (h *Handlers) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", davCapabilities)

	if strings.EqualFold(r.Method, "LOCK") || strings.EqualFold(r.Method, "UNLOCK") {
		http.Error(w, "locking is not implemented", http.StatusNotImplemented)
		return
	}

	switch r.Method {
	case http.MethodOptions:
		h.handleOptions(w, r)
	case "PROPFIND":
		h.handlePropfind(w, r)
	case "PROPPATCH":
		h.handleProppatch(w, r)
	case "MKCOL":
		h.handleMkcol(w, r, false)
	case "MKCALENDAR":
		h.handleMkcol(w, r, true)
	case http.MethodGet:
		h.handleGet(w, r, true)
	case http.MethodHead:
		h.handleGet(w, r, false)
	case http.MethodPut:
		h.handlePut(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case "COPY":
		h.handleCopyMove(w, r, false)
	case "MOVE":
		h.handleCopyMove(w, r, true)
	case http.MethodPost:
		h.handlePost(w, r)
	case "REPORT":
		h.handleReport(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// basePath returns the route-prefix-adjusted root every href is built under.
func (h *Handlers) basePath() string {
	return h.cfg.RoutePrefix
}

// currentUserPath resolves {DAV:}current-user-principal for the request: the
// principal the outer layer injected, or cfg.CurrentUser as the
// single-tenant fallback when no authentication boundary is configured
//.
func (h *Handlers) currentUserPath(r *http.Request) string {
	if p, ok := common.PrincipalFrom(r.Context()); ok {
		return principalURL(h.basePath(), p)
	}
	if h.cfg.CurrentUser != "" {
		return h.cfg.CurrentUser
	}
	return ""
}

func (h *Handlers) requestContext(r *http.Request, depth string) registry.RequestContext {
	principal, _ := common.PrincipalFrom(r.Context())
	return registry.RequestContext{
		Ctx: r.Context(),
		Principal: principal,
		CurrentUserPath: h.currentUserPath(r),
		BasePath: h.basePath(),
		Depth: depth,
		Request: r,
	}
}

func (h *Handlers) handleOptions(w http.ResponseWriter, r *http.Request) {
	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	allow := "OPTIONS, GET, HEAD, PROPFIND, PROPPATCH, PUT, DELETE, COPY, MOVE, REPORT"
	if err == nil && res.IsCollection() {
		allow += ", MKCOL, MKCALENDAR, POST"
	}
	w.Header().Set("Allow", allow)
	w.WriteHeader(http.StatusOK)
}
