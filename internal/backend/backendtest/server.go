// Package backendtest runs an in-memory stand-in for the institute REST API
// on an httptest.Server. It implements just enough of the contract for the
// portal's session, attendance, certificate and download flows.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"noorstitching.org/internal/backend"
)

const issuer = "noor-backend-test"

type account struct {
	user     backend.User
	password string
	details  *backend.StudentDetails
}

type file struct {
	contentType string
	filename    string
	data        []byte
}

// Server is the fake backend. All setters are safe for concurrent use.
type Server struct {
	*httptest.Server

	// AccessTTL is the lifetime of issued access tokens.
	AccessTTL time.Duration

	mu           sync.Mutex
	secret       []byte
	accounts     map[string]*account
	records      map[int64]backend.AttendanceRecord
	nextRecordID int64
	enrollments  []backend.Enrollment
	batches      []backend.Batch
	counts       map[string]int
	certificates map[string]backend.Certificate
	files        map[string]file
	calls        map[string]int
	resets       []string
}

// New starts a fake backend that is closed with t's cleanup.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		AccessTTL:    time.Hour,
		secret:       []byte("backendtest-secret"),
		accounts:     make(map[string]*account),
		records:      make(map[int64]backend.AttendanceRecord),
		nextRecordID: 100,
		counts:       make(map[string]int),
		certificates: make(map[string]backend.Certificate),
		files:        make(map[string]file),
		calls:        make(map[string]int),
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the API root to hand to backend.New.
func (s *Server) BaseURL() string { return s.URL + "/api/" }

// Client returns a backend client wired to this server.
func (s *Server) Client(t testing.TB) *backend.Client {
	t.Helper()
	c, err := backend.New(s.BaseURL(), backend.WithHTTPClient(s.Server.Client()))
	if err != nil {
		t.Fatalf("backend.New: %v", err)
	}
	return c
}

// AddUser registers a login.
func (s *Server) AddUser(u backend.User, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[u.Username] = &account{user: u, password: password}
}

// SetStudentDetails attaches details served by students/me/ for username.
func (s *Server) SetStudentDetails(username string, d backend.StudentDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acc, ok := s.accounts[username]; ok {
		acc.details = &d
	}
}

// AddBatch registers a batch with its enrollments.
func (s *Server) AddBatch(b backend.Batch, enrollments ...backend.Enrollment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	for _, e := range enrollments {
		e.Batch = b.ID
		if e.Status == "" {
			e.Status = backend.EnrollmentActive
		}
		s.enrollments = append(s.enrollments, e)
	}
}

// AddRecord stores an attendance record and returns its id.
func (s *Server) AddRecord(rec backend.AttendanceRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRecordID++
	rec.ID = s.nextRecordID
	s.records[rec.ID] = rec
	return rec.ID
}

// Record returns a stored record.
func (s *Server) Record(id int64) (backend.AttendanceRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok
}

// Records returns the number of stored attendance records.
func (s *Server) Records() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// SetCount fixes the count reported by a collection list, e.g. "students".
func (s *Server) SetCount(collection string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[collection] = n
}

// AddCertificate registers a verifiable certificate.
func (s *Server) AddCertificate(c backend.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.certificates[c.Code] = c
}

// AddFile serves data at rel (relative to the API root, e.g. "receipts/1/pdf/").
func (s *Server) AddFile(rel, contentType, filename string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files["/api/"+strings.TrimPrefix(rel, "/")] = file{contentType: contentType, filename: filename, data: data}
}

// Calls reports how many times "METHOD /api/path" was requested.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+path]
}

// PasswordResets returns the emails that requested a reset.
func (s *Server) PasswordResets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.resets...)
}

// IssueToken signs an access token for username valid for ttl (negative for expired).
func (s *Server) IssueToken(username string, ttl time.Duration) string {
	return s.sign(username, "access", ttl)
}

func (s *Server) sign(username, kind string, ttl time.Duration) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":        issuer,
		"sub":        username,
		"token_type": kind,
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		panic(fmt.Sprintf("backendtest: sign token: %v", err))
	}
	return signed
}

func (s *Server) parse(raw, kind string) (string, bool) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil || !tok.Valid {
		return "", false
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || claims["token_type"] != kind {
		return "", false
	}
	sub, _ := claims.GetSubject()
	return sub, sub != ""
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/token/{$}", s.handleToken)
	mux.HandleFunc("POST /api/token/refresh/{$}", s.handleRefresh)
	mux.HandleFunc("GET /api/users/me/{$}", s.authed(s.handleMe))
	mux.HandleFunc("GET /api/students/me/{$}", s.authed(s.handleStudentMe))
	mux.HandleFunc("POST /api/password-reset/{$}", s.handleResetRequest)
	mux.HandleFunc("POST /api/password-reset/confirm/{$}", s.handleResetConfirm)
	mux.HandleFunc("GET /api/attendance/{$}", s.authed(s.handleListAttendance))
	mux.HandleFunc("POST /api/attendance/{$}", s.authed(s.handleCreateAttendance))
	mux.HandleFunc("PUT /api/attendance/{id}/{$}", s.authed(s.handleUpdateAttendance))
	mux.HandleFunc("GET /api/enrollments/{$}", s.authed(s.handleEnrollments))
	mux.HandleFunc("GET /api/batches/{$}", s.authed(s.handleBatches))
	mux.HandleFunc("GET /api/certificates/verify/{code}/{$}", s.handleVerify)
	mux.HandleFunc("GET /api/{collection}/{$}", s.authed(s.handleCount))
	mux.HandleFunc("GET /api/", s.handleFiles)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method+" "+r.URL.Path]++
		s.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

type authedHandler func(w http.ResponseWriter, r *http.Request, acc *account)

func (s *Server) authed(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		username, ok := s.parse(raw, "access")
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
			return
		}
		s.mu.Lock()
		acc, ok := s.accounts[username]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "User not found"})
			return
		}
		next(w, r, acc)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	acc, ok := s.accounts[req.Username]
	s.mu.Unlock()
	if !ok || acc.password != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	writeJSON(w, http.StatusOK, backend.TokenPair{
		Access:  s.sign(req.Username, "access", s.AccessTTL),
		Refresh: s.sign(req.Username, "refresh", 24*time.Hour),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	username, ok := s.parse(req.Refresh, "refresh")
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": s.sign(username, "access", s.AccessTTL)})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, acc *account) {
	writeJSON(w, http.StatusOK, acc.user)
}

func (s *Server) handleStudentMe(w http.ResponseWriter, r *http.Request, acc *account) {
	s.mu.Lock()
	details := acc.details
	s.mu.Unlock()
	if details == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	s.resets = append(s.resets, req.Email)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password reset e-mail has been sent."})
}

func (s *Server) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID         string `json:"uid"`
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Token != "valid-reset-token" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"token": {"Invalid value"}})
		return
	}
	s.mu.Lock()
	for _, acc := range s.accounts {
		if strconv.FormatInt(acc.user.ID, 10) == req.UID {
			acc.password = req.NewPassword
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"detail": "Password has been reset with the new password."})
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request, _ *account) {
	batch, _ := strconv.ParseInt(r.URL.Query().Get("batch"), 10, 64)
	date := r.URL.Query().Get("date")
	s.mu.Lock()
	var out []backend.AttendanceRecord
	for _, rec := range s.records {
		if rec.Batch == batch && rec.Date == date {
			out = append(out, rec)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, backend.Page[backend.AttendanceRecord]{Count: len(out), Results: out})
}

func (s *Server) handleCreateAttendance(w http.ResponseWriter, r *http.Request, _ *account) {
	var rec backend.AttendanceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.Batch == rec.Batch && existing.Date == rec.Date {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"non_field_errors": {"Attendance for this batch and date already exists."}})
			return
		}
	}
	s.nextRecordID++
	rec.ID = s.nextRecordID
	s.records[rec.ID] = rec
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleUpdateAttendance(w http.ResponseWriter, r *http.Request, _ *account) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	var rec backend.AttendanceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	rec.ID = id
	s.records[id] = rec
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleEnrollments(w http.ResponseWriter, r *http.Request, _ *account) {
	batch, _ := strconv.ParseInt(r.URL.Query().Get("batch"), 10, 64)
	status := r.URL.Query().Get("status")
	s.mu.Lock()
	var out []backend.Enrollment
	for _, e := range s.enrollments {
		if e.Batch == batch && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StudentName < out[j].StudentName })
	writeJSON(w, http.StatusOK, backend.Page[backend.Enrollment]{Count: len(out), Results: out})
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	out := append([]backend.Batch(nil), s.batches...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, backend.Page[backend.Batch]{Count: len(out), Results: out})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request, _ *account) {
	s.mu.Lock()
	n, ok := s.counts[r.PathValue("collection")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	writeJSON(w, http.StatusOK, backend.Page[backend.Resource]{Count: n, Results: []backend.Resource{}})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cert, ok := s.certificates[r.PathValue("code")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Certificate not found."})
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if _, ok := s.parse(raw, "access"); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
		return
	}
	s.mu.Lock()
	f, ok := s.files[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	w.Header().Set("Content-Type", f.contentType)
	if f.filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.filename))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	_, _ = w.Write(f.data)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
