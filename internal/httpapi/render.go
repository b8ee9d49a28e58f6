package httpapi

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/clientstate"
	"noorstitching.org/internal/forms"
	"noorstitching.org/internal/notify"
	"noorstitching.org/internal/obs"
	"noorstitching.org/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"fieldError": func(fields map[string]string, name string) string { return fields[name] },
}).ParseFS(templateFS, "templates/*.html"))

// view is what every screen renders: the session chrome plus the screen's
// own data.
type view struct {
	Title         string                `json:"title"`
	User          *session.User         `json:"user,omitempty"`
	Role          session.Role          `json:"role,omitempty"`
	Home          string                `json:"home,omitempty"`
	Theme         clientstate.Theme     `json:"theme"`
	Notifications []notify.Notification `json:"notifications"`
	Data          any                   `json:"data,omitempty"`
}

// render writes name with the client's chrome, as JSON when the caller asked
// for it. Pending notifications are drained into the view.
func (a *API) render(w http.ResponseWriter, r *http.Request, code int, name, title string, data any) {
	v := view{Title: title, Theme: clientstate.ThemeSystem, Notifications: []notify.Notification{}, Data: data}
	if c := clientFrom(r.Context()); c != nil {
		snap := c.Session.Current()
		if snap.Authenticated() {
			v.User = snap.User
			v.Role = snap.Role()
			v.Home = session.HomePath(v.Role)
		}
		if st, err := a.clients.State().Load(r.Context(), c.ID); err == nil && st.Theme != "" {
			v.Theme = st.Theme
		}
		v.Notifications = append(v.Notifications, c.Notifications.Drain()...)
	}
	if wantsJSON(r) {
		writeJSON(w, code, v)
		return
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, v); err != nil {
		obs.Logger().Error("template_render_failed", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// errorPage is the page-level error screen.
type errorPage struct {
	Status  int               `json:"status"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// fail maps err onto a status and renders it. fallback is shown when err
// carries no message meant for the user.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code := statusFor(err)
	msg := fallback
	var fields map[string]string
	var verr *forms.ValidationError
	switch {
	case errors.As(err, &verr):
		msg, fields = "Please correct the highlighted fields.", verr.Fields
	case errors.Is(err, backend.ErrTransport), errors.Is(err, backend.ErrServer):
	default:
		msg = backend.Message(err, fallback)
		fields = backend.FieldErrors(err)
	}
	if code >= http.StatusInternalServerError {
		obs.Logger().Warn("request_failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	if wantsJSON(r) {
		writeFieldErrors(w, r, code, msg, fields)
		return
	}
	a.render(w, r, code, "error.html", "Error", errorPage{Status: code, Message: msg, Fields: fields})
}

func statusFor(err error) int {
	var verr *forms.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, backend.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, backend.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, backend.ErrTransport), errors.Is(err, backend.ErrServer):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// wantsJSON is true for /api/ routes and for callers that accept JSON.
func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == "application/json" {
			return true
		}
	}
	return false
}

// redirect answers with 303. JSON callers also get the location in the body.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	w.Header().Set("Location", location)
	if wantsJSON(r) {
		writeJSON(w, http.StatusSeeOther, map[string]string{"location": location})
		return
	}
	w.WriteHeader(http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeFieldErrors(w, r, code, msg, nil)
}

func writeFieldErrors(w http.ResponseWriter, r *http.Request, code int, msg string, fields map[string]string) {
	payload := map[string]any{
		"error": msg,
	}
	if len(fields) > 0 {
		payload["fields"] = fields
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func hasJSONBody(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/json"
}

// bind reads a JSON body into dst, or a submitted HTML form through
// fromForm, and validates the result.
func bind(w http.ResponseWriter, r *http.Request, dst any, fromForm func(url.Values) error) error {
	if hasJSONBody(r) {
		if err := decodeJSON(w, r, dst); err != nil {
			return &badRequest{err: err}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return &badRequest{err: err}
		}
		if err := fromForm(r.PostForm); err != nil {
			return &badRequest{err: err}
		}
	}
	return forms.Check(dst)
}

// badRequest is a body that could not be read at all.
type badRequest struct{ err error }

func (e *badRequest) Error() string { return "invalid request body: " + e.err.Error() }
func (e *badRequest) Unwrap() error { return e.err }

// rejectInput answers a bind failure.
func (a *API) rejectInput(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequest
	if errors.As(err, &bad) {
		writeError(w, r, http.StatusBadRequest, bad.Error())
		return
	}
	a.fail(w, r, err, "Invalid input")
}
