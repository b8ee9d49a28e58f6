package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/obs"
)

// adminDashboard is the counters block of the admin landing page.
type adminDashboard struct {
	Students  int `json:"students"`
	Enquiries int `json:"enquiries"`
	Courses   int `json:"courses"`
	Batches   int `json:"batches"`
}

// AdminDashboard fetches its counters concurrently. One failed counter fails
// the page.
func (a *API) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	var d adminDashboard
	g, ctx := errgroup.WithContext(r.Context())
	count := func(dst *int, col backend.Collection[backend.Resource]) {
		g.Go(func() error {
			n, err := col.Count(ctx, nil)
			*dst = n
			return err
		})
	}
	count(&d.Students, a.backend.Students())
	count(&d.Enquiries, a.backend.Enquiries())
	count(&d.Courses, a.backend.Courses())
	g.Go(func() error {
		n, err := a.backend.Batches().Count(ctx, nil)
		d.Batches = n
		return err
	})
	if err := g.Wait(); err != nil {
		a.fail(w, r, err, "Failed to load dashboard")
		return
	}
	a.render(w, r, http.StatusOK, "admin.html", "Admin dashboard", d)
}

type teacherDashboard struct {
	Batches []backend.Batch `json:"batches"`
}

func (a *API) TeacherDashboard(w http.ResponseWriter, r *http.Request) {
	page, err := a.backend.Batches().List(r.Context(), backend.ListOptions{
		Filters: url.Values{"is_active": {"true"}},
	})
	if err != nil {
		a.fail(w, r, err, "Failed to load batches")
		return
	}
	batches := page.Results
	if batches == nil {
		batches = []backend.Batch{}
	}
	a.render(w, r, http.StatusOK, "teacher.html", "Teacher dashboard", teacherDashboard{Batches: batches})
}

type studentHome struct {
	Details *backend.StudentDetails `json:"details,omitempty"`
}

// StudentHome shows the profile with the student record. The record is
// looked up again when the session could not load it at login; a failed
// lookup leaves it out.
func (a *API) StudentHome(w http.ResponseWriter, r *http.Request) {
	var home studentHome
	if snap := clientFrom(r.Context()).Session.Current(); snap.User != nil {
		home.Details = snap.User.StudentDetails
	}
	if home.Details == nil {
		details, err := a.backend.StudentDetails(r.Context())
		if err != nil {
			obs.Logger().Debug("student_details_unavailable", zap.Error(err))
		} else {
			home.Details = &details
		}
	}
	a.render(w, r, http.StatusOK, "student.html", "My home", home)
}

type verifyPage struct {
	Code        string               `json:"code,omitempty"`
	Certificate *backend.Certificate `json:"certificate,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// Verify is the public certificate check, by path or by ?code=.
func (a *API) Verify(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(r.PathValue("code"))
	if code == "" {
		code = strings.TrimSpace(r.URL.Query().Get("code"))
	}
	page := verifyPage{Code: code}
	if code == "" {
		a.render(w, r, http.StatusOK, "verify.html", "Verify certificate", page)
		return
	}
	cert, err := a.backend.VerifyCertificate(backend.WithoutToken(r.Context()), code)
	switch {
	case err == nil:
		page.Certificate = &cert
		a.render(w, r, http.StatusOK, "verify.html", "Verify certificate", page)
	case errors.Is(err, backend.ErrNotFound):
		page.Error = backend.Message(err, "No certificate matches this code.")
		a.render(w, r, http.StatusNotFound, "verify.html", "Verify certificate", page)
	default:
		a.fail(w, r, err, "Could not verify the certificate. Please try again.")
	}
}
