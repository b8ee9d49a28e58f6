package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"noorstitching.org/internal/audit"
	"noorstitching.org/internal/guard"
	"noorstitching.org/internal/ids"
	"noorstitching.org/internal/portal"
	"noorstitching.org/internal/session"
)

const (
	clientCookie       = "noor_client"
	clientCookieMaxAge = 30 * 24 * time.Hour
)

type clientKey struct{}

// withClient resolves the noor_client cookie to a live client, issuing a new
// id when the cookie is missing or malformed.
func (a *API) withClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(clientCookie); err == nil && ids.Valid(c.Value) {
			id = c.Value
		}
		if id == "" {
			id = ids.New()
		}
		// Re-sent on every request to slide the expiry.
		http.SetCookie(w, &http.Cookie{
			Name:     clientCookie,
			Value:    id,
			Path:     "/",
			MaxAge:   int(clientCookieMaxAge.Seconds()),
			HttpOnly: true,
			Secure:   a.secureCookies,
			SameSite: http.SameSiteLaxMode,
		})
		metaFrom(r.Context()).setClient(id)

		ctx := audit.WithClientID(r.Context(), id)
		client := a.clients.Get(ctx, id)
		ctx = context.WithValue(ctx, clientKey{}, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientFrom(ctx context.Context) *portal.Client {
	c, _ := ctx.Value(clientKey{}).(*portal.Client)
	return c
}

// settle waits, bounded by bootWait, for the client's session restore to
// finish and returns the resulting snapshot.
func (a *API) settle(r *http.Request, c *portal.Client) session.Snapshot {
	select {
	case <-c.Session.Ready():
		return c.Session.Current()
	default:
	}
	if a.bootWait > 0 {
		timer := time.NewTimer(a.bootWait)
		defer timer.Stop()
		select {
		case <-c.Session.Ready():
		case <-timer.C:
		case <-r.Context().Done():
		}
	}
	return c.Session.Current()
}

// requireRole applies guard.Decide to the client's session before next runs.
// Allowed requests carry the user's access token in their context.
func (a *API) requireRole(req guard.Requirement, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := clientFrom(r.Context())
		d := guard.Decide(a.settle(r, c), req, r.URL.RequestURI())
		switch d.Outcome {
		case guard.Loading:
			w.Header().Set("Refresh", "1")
			a.render(w, r, http.StatusOK, "loading.html", "Loading", nil)
			return
		case guard.Redirect:
			redirect(w, r, loginLocation(d.Location, d.ReturnTo))
			return
		}

		ctx, err := c.Session.Authorize(r.Context())
		switch {
		case err == nil:
		case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrSessionExpired):
			c.Notifications.Error("Your session has expired. Please log in again.")
			redirect(w, r, loginLocation(session.LoginPath, r.URL.RequestURI()))
			return
		default:
			a.fail(w, r, err, "Could not reach the server. Please try again.")
			return
		}
		next(w, r.WithContext(ctx))
	}
}

func loginLocation(location, returnTo string) string {
	if returnTo == "" || location != session.LoginPath {
		return location
	}
	return location + "?" + url.Values{"next": {returnTo}}.Encode()
}

// navigation records the last location a session operation navigated to
// while serving one request.
type navigation struct {
	mu   sync.Mutex
	path string
}

func (n *navigation) Navigate(path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
}

func (n *navigation) location(fallback string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.path == "" {
		return fallback
	}
	return n.path
}
