// Package integration exercises the full HTTP stack end to end: real
// multistatus/ICS parsing helpers driving the router/handler stack through
// httptest.NewServer, so the package compiles and runs under plain
// `go test` with no separate build step.
package integration

import (
	"bytes"
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hazeldav/hazeldav/internal/config"
	"github.com/hazeldav/hazeldav/internal/dav"
	"github.com/hazeldav/hazeldav/internal/metastore"
	"github.com/hazeldav/hazeldav/internal/metastore/sqlite"
	"github.com/hazeldav/hazeldav/internal/router"
)

// multiStatus is a minimal RFC 4918 §13 / RFC 6578 parser, sufficient for the
// assertions these tests need.
type multiStatus struct {
	XMLName xml.Name `xml:"multistatus"`
	Responses []msResponse `xml:"response"`
	SyncToken string `xml:"sync-token"`
}
type msResponse struct {
	Href string `xml:"href"`
	PropStat []propStat `xml:"propstat"`
	Status string `xml:"status"`
}
type propStat struct {
	Status string `xml:"status"`
	PropRaw anyXML `xml:"prop"`
	PropXML string `xml:"-"`
}
type anyXML struct {
	Inner string `xml:",innerxml"`
}

func parseMultiStatus(t *testing.T, b []byte) *multiStatus {
	t.Helper()
	var ms multiStatus
	if err := xml.Unmarshal(b, &ms); err != nil {
		t.Fatalf("parse multistatus: %v\n%s", err, string(b))
	}
	for i := range ms.Responses {
		for j := range ms.Responses[i].PropStat {
			ms.Responses[i].PropStat[j].PropXML = ms.Responses[i].PropStat[j].PropRaw.Inner
		}
	}
	return &ms
}

func statusOK(s string) bool { return strings.Contains(s, " 200 ") }

var etagRe = regexp.MustCompile(`^(W/)?"[^"]+"$`)

func validETag(s string) bool {
	return etagRe.MatchString(strings.TrimSpace(s))
}

// testServer wires a fresh sqlite metastore and temp-dir object store into
// the real router/handler stack, started in-process rather than as a
// subprocess.
type testServer struct {
	*httptest.Server
	dataRoot string
	meta metastore.Store
}

func newTestServer(t *testing.T, autocreate string) *testServer {
	t.Helper()
	dataRoot := t.TempDir()
	metaDSN := dataRoot + "/meta.sqlite3"

	meta, err := sqlite.New(metaDSN, zerolog.Nop())
	if err != nil {
		t.Fatalf("open metastore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	cfg := &config.Config{
		HTTP: config.HTTPConfig{MaxBytes: 16 << 20},
		Storage: config.StorageConfig{DataRoot: dataRoot, IndexThreshold: 64},
		ICS: config.ICSConfig{ProdID: "-//hazeldav//test//EN"},
		Autocreate: autocreate,
		CurrentUser: "",
		LogLevel: "error",
	}

	h := dav.NewHandlers(cfg, meta, zerolog.Nop())
	mux := router.New(cfg, h, zerolog.Nop())
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, dataRoot: dataRoot, meta: meta}
}

// seedSubscriptionCollection registers path as a read-only subscription
// source, the way an admin-configured calendar subscription would be stored
// out of band (no HTTP verb in this protocol creates subscriptions).
func (s *testServer) seedSubscriptionCollection(t *testing.T, path string) {
	t.Helper()
	if err := s.meta.PutCollectionMeta(context.Background(), metastore.CollectionMeta{
		Path: path, Kind: "subscription", DisplayName: "feed",
	}); err != nil {
		t.Fatalf("seed subscription collection %s: %v", path, err)
	}
}

func (s *testServer) do(t *testing.T, method, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("build request %s %s: %v", method, path, err)
	}
	req.Header.Set("X-Remote-User", "alice")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	defer resp.Body.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return buf.Bytes()
}

const basicEventICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//hazeldav//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:%s\r\n" +
	"DTSTAMP:20260101T000000Z\r\n" +
	"DTSTART:%s\r\n" +
	"DTEND:%s\r\n" +
	"SUMMARY:%s\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"
