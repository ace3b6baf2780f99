// Package router wires the protocol handler (internal/dav) into an
// http.ServeMux, adding the concerns that sit outside the protocol core:
// header-forwarded principal injection, the two well-known CalDAV/CardDAV
// redirects, a health endpoint, and access logging. Basic/Digest
// authentication is handled upstream of this package, not here.
package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hazeldav/hazeldav/internal/config"
	"github.com/hazeldav/hazeldav/internal/dav"
	"github.com/hazeldav/hazeldav/internal/dav/common"
)

// New builds the full HTTP handler: well-known redirects, /healthz, and the
// DAV protocol handler wrapped with principal injection and access logging.
func New(cfg *config.Config, h *dav.Handlers, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/.well-known/caldav", wellKnownRedirect(cfg))
	mux.HandleFunc("/.well-known/carddav", wellKnownRedirect(cfg))
	mux.HandleFunc("/healthz", handleHealth)
	mux.Handle("/", withLogging(logger, withPrincipal(cfg, h)))

	return mux
}

// wellKnownRedirect implements the service-discovery endpoints: a 301 to
// the principal's home. Kept here (rather than truly external) because the
// core already knows the current-user-principal path.
func wellKnownRedirect(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := cfg.CurrentUser
		if principal, ok := common.PrincipalFrom(r.Context()); ok && principal != "" {
			target = common.JoinURL(cfg.RoutePrefix, "/"+principal+"/")
		}
		if target == "" {
			http.Error(w, "no current-user-principal configured", http.StatusNotFound)
			return
		}
		http.Redirect(w, r, target, http.StatusMovedPermanently)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// principalHeader is the header name the outer layer is expected to set once
// it has authenticated the request.
const principalHeader = "X-Remote-User"

// withPrincipal injects the outer layer's pre-authenticated principal into
// the request context, falling back to cfg.CurrentUser for single-tenant
// deployments with no authentication boundary configured at all.
func withPrincipal(cfg *config.Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := r.Header.Get(principalHeader)
		if principal == "" && cfg.CurrentUser != "" {
			principal = strings.Trim(strings.TrimPrefix(cfg.CurrentUser, cfg.RoutePrefix), "/")
		}
		if principal != "" {
			r = r.WithContext(common.WithPrincipal(r.Context(), principal))
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging wraps next with request/response access logging (status,
// bytes, duration, method, path).
func withLogging(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		dur := time.Since(start)

		principal, _ := common.PrincipalFrom(r.Context())
		logEvent := logger.Debug()
		switch r.Method {
		case "PUT", "DELETE", "MKCOL", "MKCALENDAR", "PROPPATCH", "COPY", "MOVE", http.MethodPost:
			logEvent = logger.Info()
		}
		logEvent.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("principal", principal).
			Int("status", statusOrDefault(rec.status)).
			Int("bytes", rec.bytes).
			Float64("duration_ms", float64(dur.Microseconds())/1000.0).
			Str("user_agent", r.Header.Get("User-Agent")).
			Msg("http request")
	})
}
