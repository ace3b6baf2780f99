// Package registry implements the property and report tables: an open map
// from XML-qualified name to a live property's get/set/applicability
// contract, and from report name to its handler. Properties are values with
// behaviour, not classes, so the table stays open to extension without a
// type hierarchy.
package registry

import (
	"context"
	"encoding/xml"
	"net/http"

	"github.com/hazeldav/hazeldav/internal/dav/common"
)

// RequestContext carries the per-request information a property getter or a
// report handler needs beyond the target resource itself.
type RequestContext struct {
	Ctx context.Context
	Principal string // opaque pre-authenticated identity, or "" if anonymous
	CurrentUserPath string // current-user-principal href, 
	BasePath string // route-prefix-adjusted root
	Depth string
	Request *http.Request
}

// PropertyDef is one live property's contract: SupportedOn
// decides applicability, Get renders the value or an error, Set is nil for
// read-only properties and returns daverror.Forbidden/Conflict classified
// errors otherwise.
type PropertyDef struct {
	Name xml.Name
	SupportedOn func(resourceKind string) bool
	Get func(rc RequestContext, target any) (any, error)
	Set func(rc RequestContext, target any, elem *xml.Name, raw []byte) error
}

// Live reports whether this property is read-only: true when it has no Set,
// so it never accepts a PROPPATCH write.
func (p PropertyDef) Live() bool { return p.Set == nil }

// ReportHandler executes one REPORT body against a root resource.
type ReportHandler func(rc RequestContext, root any, body []byte) (*common.MultiStatus, error)

// Table is the open property/report registry. Zero value is unusable; use
// New.
type Table struct {
	props map[xml.Name]PropertyDef
	reports map[xml.Name]ReportHandler
}

// New returns an empty table ready for Register calls.
func New() *Table {
	return &Table{props: map[xml.Name]PropertyDef{}, reports: map[xml.Name]ReportHandler{}}
}

// RegisterProperty adds or replaces a live property definition.
func (t *Table) RegisterProperty(def PropertyDef) {
	t.props[def.Name] = def
}

// RegisterReport adds or replaces a report handler under name.
func (t *Table) RegisterReport(name xml.Name, h ReportHandler) {
	t.reports[name] = h
}

// Property looks up a property definition by qualified name.
func (t *Table) Property(name xml.Name) (PropertyDef, bool) {
	def, ok := t.props[name]
	return def, ok
}

// AllProperties returns every registered property name, for allprop/propname
// PROPFIND requests.
func (t *Table) AllProperties() []xml.Name {
	out := make([]xml.Name, 0, len(t.props))
	for n := range t.props {
		out = append(out, n)
	}
	return out
}

// Report looks up a report handler by its request body's root element name.
func (t *Table) Report(name xml.Name) (ReportHandler, bool) {
	h, ok := t.reports[name]
	return h, ok
}

// Well-known report element names.
var (
	ReportExpandProperty = xml.Name{Space: common.NSDAV, Local: "expand-property"}
	ReportSyncCollection = xml.Name{Space: common.NSDAV, Local: "sync-collection"}
	ReportPrincipalMatch = xml.Name{Space: common.NSDAV, Local: "principal-match"}
	ReportCalendarQuery = xml.Name{Space: common.NSCalDAV, Local: "calendar-query"}
	ReportCalendarMultiget = xml.Name{Space: common.NSCalDAV, Local: "calendar-multiget"}
	ReportFreeBusyQuery = xml.Name{Space: common.NSCalDAV, Local: "free-busy-query"}
	ReportAddressbookQuery = xml.Name{Space: common.NSCardDAV, Local: "addressbook-query"}
	ReportAddressbookMulti = xml.Name{Space: common.NSCardDAV, Local: "addressbook-multiget"}
)
