package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/clientstate"
	"noorstitching.org/internal/forms"
	"noorstitching.org/internal/session"
)

// loginPage is the login form, echoed back after a failed attempt.
type loginPage struct {
	Username string            `json:"username"`
	Next     string            `json:"next,omitempty"`
	Error    string            `json:"error,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// sessionView is the public shape of a session snapshot.
type sessionView struct {
	Authenticated bool          `json:"authenticated"`
	Loading       bool          `json:"loading"`
	User          *session.User `json:"user,omitempty"`
	Role          session.Role  `json:"role,omitempty"`
	Home          string        `json:"home,omitempty"`
}

func newSessionView(snap session.Snapshot) sessionView {
	v := sessionView{Authenticated: snap.Authenticated(), Loading: snap.Loading, User: snap.User}
	if v.Authenticated {
		v.Role = snap.Role()
		v.Home = session.HomePath(v.Role)
	}
	return v
}

// Home sends the visitor to their landing page.
func (a *API) Home(w http.ResponseWriter, r *http.Request) {
	snap := a.settle(r, clientFrom(r.Context()))
	if snap.Authenticated() {
		redirect(w, r, session.HomePath(snap.Role()))
		return
	}
	redirect(w, r, session.LoginPath)
}

func (a *API) LoginPage(w http.ResponseWriter, r *http.Request) {
	snap := a.settle(r, clientFrom(r.Context()))
	if snap.Authenticated() {
		redirect(w, r, session.HomePath(snap.Role()))
		return
	}
	next := r.URL.Query().Get("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = ""
	}
	a.render(w, r, http.StatusOK, "login.html", "Log in", loginPage{Next: next})
}

// Login runs the session login on a context detached from the request, so
// a client that disconnects mid-login still ends up logged in.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	if ok, wait := a.login.allow(clientIP(r)); !ok {
		tooManyRequests(w, r, wait, "too many login attempts")
		return
	}

	var form forms.Login
	err := bind(w, r, &form, func(v url.Values) error {
		form.Username = v.Get("username")
		form.Password = v.Get("password")
		form.Next = v.Get("next")
		return nil
	})
	page := loginPage{Username: form.Username, Next: form.Next}
	var verr *forms.ValidationError
	switch {
	case errors.As(err, &verr):
		page.Error, page.Fields = "Please enter your username and password.", verr.Fields
		if wantsJSON(r) {
			writeFieldErrors(w, r, http.StatusBadRequest, page.Error, page.Fields)
			return
		}
		a.render(w, r, http.StatusBadRequest, "login.html", "Log in", page)
		return
	case err != nil:
		a.rejectInput(w, r, err)
		return
	}

	c := clientFrom(r.Context())
	ctx, cancel := a.clients.Detach(r.Context())
	defer cancel()
	nav := &navigation{}
	user, err := c.Session.Login(session.WithNavigator(ctx, nav), strings.TrimSpace(form.Username), form.Password)
	if err != nil {
		var lerr *session.LoginError
		code := http.StatusUnauthorized
		page.Error = session.DefaultLoginError
		switch {
		case errors.As(err, &lerr):
			page.Error = lerr.Message
			if errors.Is(err, backend.ErrTransport) || errors.Is(err, backend.ErrServer) {
				code = http.StatusBadGateway
			}
		case errors.Is(err, session.ErrSuperseded):
			code, page.Error = http.StatusConflict, "The session changed while logging in. Please try again."
		default:
			a.fail(w, r, err, session.DefaultLoginError)
			return
		}
		// The inline error replaces the queued toast.
		c.Notifications.Drain()
		if wantsJSON(r) {
			writeError(w, r, code, page.Error)
			return
		}
		a.render(w, r, code, "login.html", "Log in", page)
		return
	}

	location := nav.location(session.LoginDestination(user))
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]any{
			"session":       newSessionView(c.Session.Current()),
			"location":      location,
			"notifications": c.Notifications.Drain(),
		})
		return
	}
	redirect(w, r, location)
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())
	ctx, cancel := a.clients.Detach(r.Context())
	defer cancel()
	nav := &navigation{}
	c.Session.Logout(session.WithNavigator(ctx, nav))
	redirect(w, r, nav.location(session.LoginPath))
}

func (a *API) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var form forms.PasswordReset
	if err := bind(w, r, &form, func(v url.Values) error {
		form.Email = strings.TrimSpace(v.Get("email"))
		return nil
	}); err != nil {
		a.rejectInput(w, r, err)
		return
	}
	if err := a.backend.RequestPasswordReset(r.Context(), form.Email); err != nil {
		a.fail(w, r, err, "Could not send the reset link. Please try again.")
		return
	}
	a.done(w, r, "If an account exists for that email, a reset link is on its way.", session.LoginPath)
}

func (a *API) PasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var form forms.PasswordResetConfirm
	if err := bind(w, r, &form, func(v url.Values) error {
		form.UID = v.Get("uid")
		form.Token = v.Get("token")
		form.NewPassword = v.Get("new_password")
		form.ConfirmPassword = v.Get("confirm_password")
		return nil
	}); err != nil {
		a.rejectInput(w, r, err)
		return
	}
	if err := a.backend.ConfirmPasswordReset(r.Context(), form.UID, form.Token, form.NewPassword); err != nil {
		a.fail(w, r, err, "The reset link is invalid or has expired.")
		return
	}
	a.done(w, r, "Your password has been changed. Please log in.", session.LoginPath)
}

// done reports a completed form submission: as a JSON message, or as a
// success toast followed by a redirect.
func (a *API) done(w http.ResponseWriter, r *http.Request, msg, location string) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"message": msg, "location": location})
		return
	}
	clientFrom(r.Context()).Notifications.Success(msg)
	redirect(w, r, location)
}

// Session reports the client's current snapshot without waiting for a
// restore in flight.
func (a *API) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newSessionView(clientFrom(r.Context()).Session.Current()))
}

func (a *API) Theme(w http.ResponseWriter, r *http.Request) {
	st, err := a.clients.State().Load(r.Context(), clientFrom(r.Context()).ID)
	if err != nil {
		a.fail(w, r, err, "Could not load preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]clientstate.Theme{"theme": st.Theme})
}

func (a *API) SetTheme(w http.ResponseWriter, r *http.Request) {
	var form forms.ThemePreference
	if err := bind(w, r, &form, func(v url.Values) error {
		form.Theme = v.Get("theme")
		return nil
	}); err != nil {
		a.rejectInput(w, r, err)
		return
	}
	theme, err := clientstate.ParseTheme(form.Theme)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.clients.State().SaveTheme(r.Context(), clientFrom(r.Context()).ID, theme); err != nil {
		a.fail(w, r, err, "Could not save preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]clientstate.Theme{"theme": theme})
}
