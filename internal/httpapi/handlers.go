// Package httpapi is the portal's HTTP surface: a backend-for-frontend that
// keeps each browser's session server-side and renders role-gated screens.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/guard"
	"noorstitching.org/internal/obs"
	"noorstitching.org/internal/portal"
)

const (
	serviceName  = "noor-portal"
	maxBodyBytes = 1 << 20
)

type pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the REST backend and the client-state store.
type ReadyProbe struct {
	Backend pinger
	State   pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Backend != nil {
		if err := rp.Backend.Ping(ctx); err != nil {
			return fmt.Errorf("backend: %w", err)
		}
	}
	if rp.State != nil {
		if err := rp.State.Ping(ctx); err != nil {
			return fmt.Errorf("client state: %w", err)
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe readinessChecker
	version    string
	backend    *backend.Client
	clients    *portal.Registry

	secureCookies bool
	rateBurst     int
	ratePerSec    int
	login         *keyedLimiter
	bootWait      time.Duration
}

// Option configures API.
type Option func(*API)

// WithRateLimit sets the per-IP request budget.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithLoginRate sets how many login attempts one IP may make per minute.
func WithLoginRate(perMinute int) Option {
	return func(a *API) {
		if perMinute > 0 {
			a.login = newKeyedLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		}
	}
}

// WithSecureCookies marks the client cookie Secure.
func WithSecureCookies(secure bool) Option {
	return func(a *API) { a.secureCookies = secure }
}

// WithBootWait bounds how long a guarded request waits for a new client's
// session to finish restoring before it renders the loading view.
func WithBootWait(d time.Duration) Option {
	return func(a *API) {
		if d >= 0 {
			a.bootWait = d
		}
	}
}

func New(rp readinessChecker, version string, api *backend.Client, clients *portal.Registry, opts ...Option) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		backend:    api,
		clients:    clients,
		rateBurst:  50,
		ratePerSec: 20,
		login:      newKeyedLimiter(rate.Every(6*time.Second), 10),
		bootWait:   3 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.handle("GET /{$}", a.Home)
	a.handle("GET /login", a.LoginPage)
	a.handle("POST /login", a.Login)
	a.handle("POST /logout", a.Logout)
	a.handle("POST /password-reset", a.PasswordReset)
	a.handle("POST /password-reset/confirm", a.PasswordResetConfirm)
	a.handle("GET /api/session", a.Session)
	a.handle("GET /api/session/events", a.SessionEvents)
	a.handle("GET /api/preferences/theme", a.Theme)
	a.handle("PUT /api/preferences/theme", a.SetTheme)
	a.handle("GET /verify", a.Verify)
	a.handle("GET /verify/{code}", a.Verify)

	a.guarded("GET /admin/dashboard", guard.AdminOnly, a.AdminDashboard)
	a.guarded("GET /admin/export", guard.AdminOnly, a.download(exportPath))
	a.guarded("GET /teacher/dashboard", guard.TeacherOnly, a.TeacherDashboard)
	a.guarded("GET /student/home", guard.StudentOnly, a.StudentHome)
	a.guarded("GET /student/receipts/{id}/pdf", guard.StudentOnly, a.download(idPath(backend.ReceiptPDF)))
	a.guarded("GET /student/certificates/{id}/pdf", guard.StudentOnly, a.download(idPath(backend.CertificatePDF)))
	a.guarded("GET /student/materials/{id}", guard.StudentOnly, a.download(idPath(backend.MaterialFile)))
	a.guarded("GET /staff/attendance", guard.StaffOnly, a.AttendancePage)
	a.guarded("POST /staff/attendance/status", guard.StaffOnly, a.AttendanceStatus)
	a.guarded("POST /staff/attendance/submit", guard.StaffOnly, a.AttendanceSubmit)

	return a
}

func (a *API) handle(pattern string, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.withClient(h))
}

func (a *API) guarded(pattern string, req guard.Requirement, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.withClient(a.requireRole(req, h)))
}

// Handler returns the full middleware chain around the routes.
func (a *API) Handler() http.Handler {
	var h http.Handler = MaxBodyBytes(a.mux, maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	}
	if a.clients != nil {
		info["active_clients"] = a.clients.Len()
	}
	writeJSON(w, http.StatusOK, info)
}
