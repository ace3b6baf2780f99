package dav

import (
	"encoding/xml"
	"io"
	"net/http"

	"github.com/beevik/etree"

	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/dav/registry"
	"github.com/hazeldav/hazeldav/internal/dav/resource"
	"github.com/hazeldav/hazeldav/internal/daverror"
)

// propfindMode tags which of the three {DAV:}propfind request shapes
// (allprop, propname, prop) the client asked for.
type propfindMode int

const (
	modeProp propfindMode = iota
	modeAllProp
	modePropName
)

// handlePropfind implements PROPFIND: parses the request body,
// walks the resource graph to the requested Depth, and emits one
// {DAV:}multistatus response per resource.
func (h *Handlers) handlePropfind(w http.ResponseWriter, r *http.Request) {
	depth := depthOrDefault(r.Header.Get("Depth"), "0")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	if err != nil {
		h.writeErr(w, daverror.Protocol("failed to read request body"))
		return
	}

	mode, want := parsePropfindBody(body)

	res, err := h.graph.Resolve(r.Context(), r.URL.Path)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	targets, err := h.propfindTargets(res, depth)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	rc := h.requestContext(r, depth)
	var responses []common.Response
	for _, tgt := range targets {
		pt, _, err := openTarget(h.graph, tgt, h.basePath())
		if err != nil {
			responses = append(responses, errorResponse(hrefFor(h.basePath(), tgt), err))
			continue
		}
		responses = append(responses, h.buildPropResponse(rc, pt, mode, want))
	}

	ms := common.NewMultiStatus(responses...)
	_ = common.ServeMultiStatus(w, ms)
}

func errorResponse(href string, err error) common.Response {
	de, ok := daverror.As(err)
	status := http.StatusInternalServerError
	if ok {
		status = statusFor(de.Kind)
	}
	return common.Response{Href: href, Status: common.StatusLine(status)}
}

// propfindTargets resolves the Depth-qualified resource set for a PROPFIND
// (or REPORT) root: Depth 0 is just the root; Depth 1 adds every direct
// member for a collection; "infinity" is treated the same as 1 here, since
// every collection in this resource graph is exactly one level deep — items
// never themselves contain members.
func (h *Handlers) propfindTargets(root *resource.Resource, depth string) ([]*resource.Resource, error) {
	targets := []*resource.Resource{root}
	if depth == "0" || root.Kind == resource.KindItem {
		return targets, nil
	}
	if !root.IsCollection() {
		return targets, nil
	}
	store, err := h.graph.OpenStore(root)
	if err != nil {
		return nil, err
	}
	infos, err := store.List()
	if err != nil {
		return nil, daverror.Storage("list collection", err)
	}
	for _, info := range infos {
		targets = append(targets, &resource.Resource{
			Path: root.Path + info.Name,
			Kind: resource.KindItem,
			Principal: root.Principal,
			CollectionPath: root.Path,
			MemberName: info.Name,
			Meta: root.Meta,
		})
	}
	return targets, nil
}

// parsePropfindBody decodes a PROPFIND request body into its mode and
// (for modeProp) the requested property names. An empty body is treated as
// allprop, matching common client behavior and RFC 4918 §9.1's "a client
// may choose not to submit a request body".
func parsePropfindBody(body []byte) (propfindMode, []xml.Name) {
	if len(body) == 0 {
		return modeAllProp, nil
	}
	root, err := common.ParseXML(body)
	if err != nil {
		return modeAllProp, nil
	}
	if common.FindChild(root, common.NSDAV, "allprop") != nil {
		return modeAllProp, nil
	}
	if common.FindChild(root, common.NSDAV, "propname") != nil {
		return modePropName, nil
	}
	if propNode := common.FindChild(root, common.NSDAV, "prop"); propNode != nil {
		return modeProp, propNames(propNode)
	}
	return modeAllProp, nil
}

// buildPropResponse renders one resource's propstats for the requested
// mode: unknown properties appear with 404 Not Found; forbidden ones with
// 403.
func (h *Handlers) buildPropResponse(rc registry.RequestContext, pt *propTarget, mode propfindMode, want []xml.Name) common.Response {
	resp := common.Response{Href: pt.href}
	kind := resourceKindName(pt.kind())

	switch mode {
	case modeAllProp:
		for _, name := range h.reg.AllProperties() {
			def, _ := h.reg.Property(name)
			if !def.SupportedOn(kind) {
				continue
			}
			val, err := def.Get(rc, pt)
			if err != nil {
				continue // allprop silently omits properties this resource doesn't carry
			}
			resp.EncodeProp(http.StatusOK, val)
		}
	case modePropName:
		for _, name := range h.reg.AllProperties() {
			def, _ := h.reg.Property(name)
			if !def.SupportedOn(kind) {
				continue
			}
			resp.EncodeProp(http.StatusOK, emptyElem{Name: name})
		}
	default:
		return h.encodeRequestedProps(rc, pt, want)
	}
	return resp
}

// encodeRequestedProps renders exactly the named properties against pt, the
// shape every REPORT response and PROPFIND's modeProp case shares: unknown
// or inapplicable names get 404, getter errors are classified via
// statusForPropError.
func (h *Handlers) encodeRequestedProps(rc registry.RequestContext, pt *propTarget, want []xml.Name) common.Response {
	resp := common.Response{Href: pt.href}
	kind := resourceKindName(pt.kind())
	for _, name := range want {
		def, ok := h.reg.Property(name)
		if !ok || !def.SupportedOn(kind) {
			resp.EncodeProp(http.StatusNotFound, emptyElem{Name: name})
			continue
		}
		val, err := def.Get(rc, pt)
		if err != nil {
			resp.EncodeProp(statusForPropError(err), emptyElem{Name: name})
			continue
		}
		resp.EncodeProp(http.StatusOK, val)
	}
	return resp
}

func statusForPropError(err error) int {
	de, ok := daverror.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	if de.Kind == daverror.KindNotFound {
		return http.StatusNotFound
	}
	return statusFor(de.Kind)
}

// emptyElem renders a bare "<local/>" element (propname responses, and
// failed prop lookups which carry no value per RFC 4918 §9.1).
type emptyElem struct{ Name xml.Name }

func (e emptyElem) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = e.Name
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// handleProppatch implements PROPPATCH: set/remove parsed and
// applied in document order, aggregated into one multistatus response.
// Unknown property names always fail 403, since this server offers no dead
// property storage.
func (h *Handlers) handleProppatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	if err != nil {
		h.writeErr(w, daverror.Protocol("failed to read request body"))
		return
	}
	root, err := common.ParseXML(body)
	if err != nil {
		h.writeErr(w, daverror.Protocol("malformed PROPPATCH request body"))
		return
	}

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
	rc := h.requestContext(r, "0")
	kind := resourceKindName(pt.kind())

	resp := common.Response{Href: pt.href}
	for _, op := range root.ChildElements() {
		opName := common.ResolvedName(op)
		isRemove := opName.Space == common.NSDAV && opName.Local == "remove"
		isSet := opName.Space == common.NSDAV && opName.Local == "set"
		if !isRemove && !isSet {
			continue
		}
		propNode := common.FindChild(op, common.NSDAV, "prop")
		if propNode == nil {
			continue
		}
		for _, c := range propNode.ChildElements() {
			applyProppatchOne(h, rc, pt, kind, c, isRemove, &resp)
		}
	}

	ms := common.NewMultiStatus(resp)
	_ = common.ServeMultiStatus(w, ms)
}

func applyProppatchOne(h *Handlers, rc registry.RequestContext, pt *propTarget, kind string, c *etree.Element, remove bool, resp *common.Response) {
	name := common.ResolvedName(c)
	def, ok := h.reg.Property(name)
	if !ok || !def.SupportedOn(kind) || def.Set == nil {
		resp.EncodeProp(http.StatusForbidden, emptyElem{Name: name})
		return
	}
	raw := common.RawElement(c, name)
	if remove {
		raw = emptyElemBytes(name)
	}
	if err := def.Set(rc, pt, &name, raw); err != nil {
		resp.EncodeProp(statusForPropError(err), emptyElem{Name: name})
		return
	}
	resp.EncodeProp(http.StatusOK, emptyElem{Name: name})
}

func emptyElemBytes(name xml.Name) []byte {
	b, _ := xml.Marshal(emptyElem{Name: name})
	return b
}
