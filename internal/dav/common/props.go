package common

import "encoding/xml"

// Hrefs is a bag of DAV:href children, used by home-set and
// principal-collection-set style properties.
type Hrefs struct {
	Values []string `xml:"DAV: href"`
}

// ResourceType reports which resourcetype markers apply; OPTIONS/PROPFIND
// distinguish calendar vs. addressbook vs. plain collections vs. principal
// by exactly this combination.
type ResourceType struct {
	XMLName xml.Name `xml:"DAV: resourcetype"`
	Collection *struct{} `xml:"DAV: collection,omitempty"`
	Principal *struct{} `xml:"DAV: principal,omitempty"`
	Calendar *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar,omitempty"`
	Addressbook *struct{} `xml:"urn:ietf:params:xml:ns:carddav addressbook,omitempty"`
	ScheduleInbox *struct{} `xml:"urn:ietf:params:xml:ns:caldav schedule-inbox,omitempty"`
	ScheduleOutbox *struct{} `xml:"urn:ietf:params:xml:ns:caldav schedule-outbox,omitempty"`
	Subscribed *struct{} `xml:"http://calendarserver.org/ns/ subscribed,omitempty"`
}

// DisplayName is DAV:displayname.
type DisplayName struct {
	XMLName xml.Name `xml:"DAV: displayname"`
	Value string `xml:",chardata"`
}

// GetETag is DAV:getetag, rendered quoted as RFC 4918 requires.
type GetETag struct {
	XMLName xml.Name `xml:"DAV: getetag"`
	Value string `xml:",chardata"`
}

// GetContentLength is DAV:getcontentlength.
type GetContentLength struct {
	XMLName xml.Name `xml:"DAV: getcontentlength"`
	Value int `xml:",chardata"`
}

// GetContentType is DAV:getcontenttype.
type GetContentType struct {
	XMLName xml.Name `xml:"DAV: getcontenttype"`
	Value string `xml:",chardata"`
}

// GetLastModified is DAV:getlastmodified, RFC 1123 formatted.
type GetLastModified struct {
	XMLName xml.Name `xml:"DAV: getlastmodified"`
	Value string `xml:",chardata"`
}

// CTag is the non-standard http://calendarserver.org/ns/ getctag property.
type CTag struct {
	XMLName xml.Name `xml:"http://calendarserver.org/ns/ getctag"`
	Value string `xml:",chardata"`
}

// SyncToken is DAV:sync-token.
type SyncToken struct {
	XMLName xml.Name `xml:"DAV: sync-token"`
	Value string `xml:",chardata"`
}

// CurrentUserPrincipal is DAV:current-user-principal.
type CurrentUserPrincipal struct {
	XMLName xml.Name `xml:"DAV: current-user-principal"`
	Href Href `xml:"href"`
}

// PrincipalURL is DAV:principal-URL.
type PrincipalURL struct {
	XMLName xml.Name `xml:"DAV: principal-URL"`
	Href Href `xml:"href"`
}

// PrincipalCollectionSet is DAV:principal-collection-set.
type PrincipalCollectionSet struct {
	XMLName xml.Name `xml:"DAV: principal-collection-set"`
	Hrefs []Href `xml:"href"`
}

// CalendarHomeSet is CALDAV:calendar-home-set.
type CalendarHomeSet struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-home-set"`
	Hrefs []Href `xml:"href"`
}

// AddressbookHomeSet is CARDDAV:addressbook-home-set.
type AddressbookHomeSet struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav addressbook-home-set"`
	Hrefs []Href `xml:"href"`
}

// CalendarUserAddressSet is CALDAV:calendar-user-address-set.
type CalendarUserAddressSet struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-user-address-set"`
	Hrefs []Href `xml:"href"`
}

// ScheduleInboxURL / ScheduleOutboxURL.
type ScheduleInboxURL struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav schedule-inbox-URL"`
	Href Href `xml:"href"`
}
type ScheduleOutboxURL struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav schedule-outbox-URL"`
	Href Href `xml:"href"`
}

// CalendarDescription is CALDAV:calendar-description.
type CalendarDescription struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-description"`
	Value string `xml:",chardata"`
}

// CalendarTimezone is CALDAV:calendar-timezone (a VTIMEZONE component, carried
// as raw text).
type CalendarTimezone struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-timezone"`
	Value string `xml:",chardata"`
}

// CalendarColor is the widely-deployed (Apple/Google) non-standard
// calendar-color property, kept since lists "color" as a collection
// presentation attribute.
type CalendarColor struct {
	XMLName xml.Name `xml:"http://apple.com/ns/ical/ calendar-color"`
	Value string `xml:",chardata"`
}

// SupportedCalendarComponentSet is CALDAV:supported-calendar-component-set.
type SupportedCalendarComponentSet struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-component-set"`
	Comp []Comp `xml:"comp"`
}
type Comp struct {
	Name string `xml:"name,attr"`
}

// SupportedCalendarData is CALDAV:supported-calendar-data.
type SupportedCalendarData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav supported-calendar-data"`
	ContentType string `xml:"content-type,attr"`
	Version string `xml:"version,attr"`
}

// SupportedAddressData is CARDDAV:supported-address-data.
type SupportedAddressData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav supported-address-data"`
	ContentType string `xml:"content-type,attr"`
	Version string `xml:"version,attr"`
}

// SupportedReportSet is DAV:supported-report-set: one supported-report/report
// pair per registered report name.
type SupportedReportSet struct {
	XMLName xml.Name `xml:"DAV: supported-report-set"`
	Reports []SupportedReport `xml:"supported-report"`
}

// SupportedReport wraps one report name as <report><{name}/></report>.
type SupportedReport struct {
	Name xml.Name
}

func (s SupportedReport) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: "report"}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	inner := xml.StartElement{Name: s.Name}
	if err := e.EncodeToken(inner); err != nil {
		return err
	}
	if err := e.EncodeToken(inner.End()); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

// QuotaAvailableBytes / QuotaUsedBytes (RFC 4331).
type QuotaAvailableBytes struct {
	XMLName xml.Name `xml:"DAV: quota-available-bytes"`
	Value int64 `xml:",chardata"`
}
type QuotaUsedBytes struct {
	XMLName xml.Name `xml:"DAV: quota-used-bytes"`
	Value int64 `xml:",chardata"`
}

// CalendarData carries an inline calendar-data payload in a REPORT response
// (CALDAV:calendar-data), and AddressData the CardDAV equivalent.
type CalendarData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
	Value string `xml:",chardata"`
}
type AddressData struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:carddav address-data"`
	Value string `xml:",chardata"`
}
