package dav

import (
	"encoding/xml"
	"time"

	"github.com/hazeldav/hazeldav/internal/calendar"
	"github.com/hazeldav/hazeldav/internal/dav/common"
	"github.com/hazeldav/hazeldav/internal/dav/registry"
	"github.com/hazeldav/hazeldav/internal/dav/resource"
	"github.com/hazeldav/hazeldav/internal/daverror"
)

// buildRegistry assembles the live property and report table: an open map
// from XML-qualified name to a get/set/applicability contract.
func (h *Handlers) buildRegistry() *registry.Table {
	t := registry.New()

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "resourcetype"},
		SupportedOn: func(string) bool { return true },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			rt := &common.ResourceType{}
			switch pt.kind() {
			case resource.KindPrincipal:
				rt.Principal = &struct{}{}
			case resource.KindCalendar:
				rt.Collection, rt.Calendar = &struct{}{}, &struct{}{}
			case resource.KindAddressbook:
				rt.Collection, rt.Addressbook = &struct{}{}, &struct{}{}
			case resource.KindScheduleInbox:
				rt.Collection, rt.ScheduleInbox = &struct{}{}, &struct{}{}
			case resource.KindScheduleOutbox:
				rt.Collection, rt.ScheduleOutbox = &struct{}{}, &struct{}{}
			case resource.KindItem:
				return rt, nil // empty resourcetype: a plain non-collection resource
			default:
				rt.Collection = &struct{}{}
			}
			return rt, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "displayname"},
		SupportedOn: func(string) bool { return true },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			name := pt.res.Meta.DisplayName
			if name == "" {
				name = pt.res.Principal
			}
			if pt.kind() == resource.KindItem {
				return nil, daverror.NotFound("displayname not set on items")
			}
			return &common.DisplayName{Value: name}, nil
		},
		Set: func(rc registry.RequestContext, target any, elem *xml.Name, raw []byte) error {
			pt := target.(*propTarget)
			if pt.kind() == resource.KindItem {
				return daverror.Forbidden("displayname is not writable on items")
			}
			var v common.DisplayName
			if err := xml.Unmarshal(raw, &v); err != nil {
				return daverror.Protocol("malformed displayname value")
			}
			pt.res.Meta.DisplayName = v.Value
			return h.meta.PutCollectionMeta(rc.Ctx, pt.res.Meta)
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "getetag"},
		SupportedOn: func(k string) bool { return k == "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.item == nil {
				return nil, daverror.NotFound("getetag: not an item")
			}
			return &common.GetETag{Value: `"` + pt.item.ETag + `"`}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "getcontentlength"},
		SupportedOn: func(k string) bool { return k == "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.item == nil {
				return nil, daverror.NotFound("getcontentlength: not an item")
			}
			return &common.GetContentLength{Value: len(pt.item.Data)}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "getcontenttype"},
		SupportedOn: func(k string) bool { return k == "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.item == nil {
				return nil, daverror.NotFound("getcontenttype: not an item")
			}
			return &common.GetContentType{Value: pt.item.ContentType}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "getlastmodified"},
		SupportedOn: func(k string) bool { return k == "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.item == nil || pt.item.UpdatedAt.IsZero() {
				return nil, daverror.NotFound("getlastmodified unavailable")
			}
			return &common.GetLastModified{Value: pt.item.UpdatedAt.UTC().Format(time.RFC1123)}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCS, Local: "getctag"},
		SupportedOn: func(k string) bool { return k != "item" && k != "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.store == nil {
				return nil, daverror.NotFound("getctag: not a collection")
			}
			ctag, err := pt.store.CTag()
			if err != nil {
				return nil, daverror.Storage("ctag", err)
			}
			return &common.CTag{Value: ctag}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "sync-token"},
		SupportedOn: func(k string) bool { return k != "item" && k != "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.store == nil {
				return nil, daverror.NotFound("sync-token: not a collection")
			}
			tok, err := pt.store.SyncToken()
			if err != nil {
				return nil, daverror.Storage("sync-token", err)
			}
			return &common.SyncToken{Value: tok}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "current-user-principal"},
		SupportedOn: func(string) bool { return true },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			return &common.CurrentUserPrincipal{Href: common.Href{Value: rc.CurrentUserPath}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "principal-URL"},
		SupportedOn: func(k string) bool { return k == "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			return &common.PrincipalURL{Href: common.Href{Value: principalURL(rc.BasePath, pt.res.Principal)}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "principal-collection-set"},
		SupportedOn: func(string) bool { return true },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			return &common.PrincipalCollectionSet{Hrefs: []common.Href{{Value: common.JoinURL(rc.BasePath, "/") + "/"}}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "calendar-home-set"},
		SupportedOn: func(k string) bool { return k == "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			return &common.CalendarHomeSet{Hrefs: []common.Href{{Value: calendarHome(rc.BasePath, pt.res.Principal)}}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCardDAV, Local: "addressbook-home-set"},
		SupportedOn: func(k string) bool { return k == "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			return &common.AddressbookHomeSet{Hrefs: []common.Href{{Value: addressbookHome(rc.BasePath, pt.res.Principal)}}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "calendar-user-address-set"},
		SupportedOn: func(k string) bool { return k == "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			self := principalURL(rc.BasePath, pt.res.Principal)
			return &common.CalendarUserAddressSet{Hrefs: []common.Href{{Value: self}, {Value: "mailto:" + pt.res.Principal}}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "schedule-inbox-URL"},
		SupportedOn: func(k string) bool { return k == "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			return &common.ScheduleInboxURL{Href: common.Href{Value: common.JoinURL(rc.BasePath, pt.res.Principal, "schedule-inbox") + "/"}}, nil
		},
	})
	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "schedule-outbox-URL"},
		SupportedOn: func(k string) bool { return k == "principal" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			return &common.ScheduleOutboxURL{Href: common.Href{Value: common.JoinURL(rc.BasePath, pt.res.Principal, "schedule-outbox") + "/"}}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "calendar-description"},
		SupportedOn: func(k string) bool { return k == "calendar" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			return &common.CalendarDescription{Value: pt.res.Meta.Description}, nil
		},
		Set: func(rc registry.RequestContext, target any, elem *xml.Name, raw []byte) error {
			pt := target.(*propTarget)
			var v common.CalendarDescription
			if err := xml.Unmarshal(raw, &v); err != nil {
				return daverror.Protocol("malformed calendar-description")
			}
			pt.res.Meta.Description = v.Value
			return h.meta.PutCollectionMeta(rc.Ctx, pt.res.Meta)
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "calendar-timezone"},
		SupportedOn: func(k string) bool { return k == "calendar" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.res.Meta.TimeZone == "" {
				return nil, daverror.NotFound("calendar-timezone not set")
			}
			return &common.CalendarTimezone{Value: pt.res.Meta.TimeZone}, nil
		},
		Set: func(rc registry.RequestContext, target any, elem *xml.Name, raw []byte) error {
			pt := target.(*propTarget)
			var v common.CalendarTimezone
			if err := xml.Unmarshal(raw, &v); err != nil {
				return daverror.Protocol("malformed calendar-timezone")
			}
			if _, err := calendar.Parse([]byte(v.Value)); err != nil {
				return daverror.Invalid("calendar-timezone is not a valid VTIMEZONE")
			}
			pt.res.Meta.TimeZone = v.Value
			return h.meta.PutCollectionMeta(rc.Ctx, pt.res.Meta)
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: "http://apple.com/ns/ical/", Local: "calendar-color"},
		SupportedOn: func(k string) bool { return k == "calendar" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.res.Meta.Color == "" {
				return nil, daverror.NotFound("calendar-color not set")
			}
			return &common.CalendarColor{Value: pt.res.Meta.Color}, nil
		},
		Set: func(rc registry.RequestContext, target any, elem *xml.Name, raw []byte) error {
			pt := target.(*propTarget)
			var v common.CalendarColor
			if err := xml.Unmarshal(raw, &v); err != nil {
				return daverror.Protocol("malformed calendar-color")
			}
			pt.res.Meta.Color = v.Value
			return h.meta.PutCollectionMeta(rc.Ctx, pt.res.Meta)
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "supported-calendar-component-set"},
		SupportedOn: func(k string) bool { return k == "calendar" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			comps := pt.res.Meta.SupportedComponents
			if len(comps) == 0 {
				comps = []string{calendar.CompEvent, calendar.CompToDo}
			}
			out := &common.SupportedCalendarComponentSet{}
			for _, c := range comps {
				out.Comp = append(out.Comp, common.Comp{Name: c})
			}
			return out, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "supported-calendar-data"},
		SupportedOn: func(k string) bool { return k == "calendar" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			return &common.SupportedCalendarData{ContentType: "text/calendar", Version: "2.0"}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCardDAV, Local: "supported-address-data"},
		SupportedOn: func(k string) bool { return k == "addressbook" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			return &common.SupportedAddressData{ContentType: "text/vcard", Version: "4.0"}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "supported-report-set"},
		SupportedOn: func(k string) bool { return k != "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			var names []xml.Name
			switch pt.kind() {
			case resource.KindCalendar:
				names = []xml.Name{registry.ReportCalendarQuery, registry.ReportCalendarMultiget,
					registry.ReportFreeBusyQuery, registry.ReportSyncCollection, registry.ReportExpandProperty}
			case resource.KindAddressbook:
				names = []xml.Name{registry.ReportAddressbookQuery, registry.ReportAddressbookMulti,
					registry.ReportSyncCollection, registry.ReportExpandProperty}
			default:
				names = []xml.Name{registry.ReportSyncCollection, registry.ReportExpandProperty, registry.ReportPrincipalMatch}
			}
			out := &common.SupportedReportSet{}
			for _, n := range names {
				out.Reports = append(out.Reports, common.SupportedReport{Name: n})
			}
			return out, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "quota-available-bytes"},
		SupportedOn: func(k string) bool { return k == "calendar" || k == "addressbook" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			return &common.QuotaAvailableBytes{Value: quotaAvailableBytes}, nil
		},
	})
	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSDAV, Local: "quota-used-bytes"},
		SupportedOn: func(k string) bool { return k == "calendar" || k == "addressbook" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.store == nil {
				return &common.QuotaUsedBytes{Value: 0}, nil
			}
			infos, err := pt.store.List()
			if err != nil {
				return nil, daverror.Storage("quota-used-bytes", err)
			}
			var total int64
			for _, info := range infos {
				res, err := pt.store.Get(info.Name)
				if err != nil {
					return nil, daverror.Storage("quota-used-bytes", err)
				}
				total += int64(len(res.Data))
			}
			return &common.QuotaUsedBytes{Value: total}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCalDAV, Local: "calendar-data"},
		SupportedOn: func(k string) bool { return k == "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.item == nil {
				return nil, daverror.NotFound("calendar-data: not an item")
			}
			return &common.CalendarData{Value: string(pt.item.Data)}, nil
		},
	})

	t.RegisterProperty(registry.PropertyDef{
		Name: xml.Name{Space: common.NSCardDAV, Local: "address-data"},
		SupportedOn: func(k string) bool { return k == "item" },
		Get: func(rc registry.RequestContext, target any) (any, error) {
			pt := target.(*propTarget)
			if pt.item == nil {
				return nil, daverror.NotFound("address-data: not an item")
			}
			return &common.AddressData{Value: string(pt.item.Data)}, nil
		},
	})

	h.registerReports(t)
	return t
}

// quotaAvailableBytes is a fixed, generous advisory value: the object
// database is file-backed with no enforced per-collection cap.
const quotaAvailableBytes int64 = 10 << 30

func principalURL(basePath, uid string) string {
	return common.JoinURL(basePath, uid) + "/"
}

func calendarHome(basePath, uid string) string {
	return common.JoinURL(basePath, uid, "calendars") + "/"
}

func addressbookHome(basePath, uid string) string {
	return common.JoinURL(basePath, uid, "contacts") + "/"
}
