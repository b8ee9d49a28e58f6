// Package attendance implements the fetch-or-create attendance screen: pick a
// batch and a date, edit the saved record when there is one or start a new
// one from the batch's active enrollments, then submit.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"noorstitching.org/internal/audit"
	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/obs"
)

var (
	ErrNotSelected     = errors.New("attendance: no batch and date selected")
	ErrInvalidBatch    = errors.New("attendance: invalid batch")
	ErrLoading         = errors.New("attendance: selection is still loading")
	ErrSubmitting      = errors.New("attendance: a submission is already in flight")
	ErrNothingToSubmit = errors.New("attendance: no students to submit")
	ErrUnknownStudent  = errors.New("attendance: student is not on this record")
	ErrInvalidStatus   = errors.New("attendance: invalid status")
	ErrSuperseded      = errors.New("attendance: selection changed")
)

const (
	loadFailed = "Failed to load attendance"
	saveFailed = "Failed to save attendance"
)

// Backend is what the screen needs from the REST client.
type Backend interface {
	FindAttendance(ctx context.Context, batch int64, date time.Time) (backend.AttendanceRecord, error)
	ActiveEnrollments(ctx context.Context, batch int64) ([]backend.Enrollment, error)
	CreateAttendance(ctx context.Context, rec backend.AttendanceRecord) (backend.AttendanceRecord, error)
	UpdateAttendance(ctx context.Context, id int64, rec backend.AttendanceRecord) (backend.AttendanceRecord, error)
}

// Mode tells whether a submit creates a record or updates the bound one.
type Mode string

const (
	ModeNone   Mode = ""
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Student is one visible row.
type Student struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Screen holds the state of one attendance form. All methods are safe for
// concurrent use; results of a superseded selection are dropped.
type Screen struct {
	api Backend

	mu         sync.Mutex
	seq        uint64
	selected   bool
	batch      int64
	date       time.Time
	mode       Mode
	recordID   int64
	students   []Student
	status     map[int64]Status
	loading    bool
	submitting bool
	errMsg     string
}

// NewScreen returns an empty screen.
func NewScreen(api Backend) *Screen {
	return &Screen{api: api, status: make(map[int64]Status)}
}

// Select loads (batch, date). State from the previous selection is cleared
// before any request is made.
func (s *Screen) Select(ctx context.Context, batch int64, date time.Time) error {
	if batch <= 0 {
		return ErrInvalidBatch
	}
	date = day(date)

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.selected = true
	s.batch = batch
	s.date = date
	s.mode = ModeNone
	s.recordID = 0
	s.students = nil
	s.status = make(map[int64]Status)
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	rec, err := s.api.FindAttendance(ctx, batch, date)
	switch {
	case err == nil:
		return s.applyRecord(seq, rec)
	case errors.Is(err, backend.ErrNotFound):
	default:
		return s.fail(seq, err, loadFailed)
	}

	enrolled, err := s.api.ActiveEnrollments(ctx, batch)
	if err != nil {
		return s.fail(seq, err, loadFailed)
	}
	return s.applyEnrollments(seq, enrolled)
}

func (s *Screen) applyRecord(seq uint64, rec backend.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		obs.ObserveStale("attendance")
		return ErrSuperseded
	}
	for _, e := range rec.Entries {
		if _, dup := s.status[e.Student]; dup {
			continue
		}
		s.students = append(s.students, Student{ID: e.Student, Name: e.StudentName})
		st := Status(e.Status)
		if !st.Valid() {
			st = Present
		}
		s.status[e.Student] = st
	}
	s.mode = ModeEdit
	s.recordID = rec.ID
	s.loading = false
	return nil
}

func (s *Screen) applyEnrollments(seq uint64, enrolled []backend.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		obs.ObserveStale("attendance")
		return ErrSuperseded
	}
	for _, e := range enrolled {
		if _, dup := s.status[e.Student]; dup {
			continue
		}
		s.students = append(s.students, Student{ID: e.Student, Name: e.StudentName})
		s.status[e.Student] = Present
	}
	s.mode = ModeCreate
	s.loading = false
	return nil
}

func (s *Screen) fail(seq uint64, err error, fallback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq != seq {
		obs.ObserveStale("attendance")
		return ErrSuperseded
	}
	s.loading = false
	s.errMsg = backend.Message(err, fallback)
	return err
}

// SetStatus changes one student's status locally.
func (s *Screen) SetStatus(student int64, st Status) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return ErrLoading
	}
	if _, ok := s.status[student]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStudent, student)
	}
	s.status[student] = st
	return nil
}

// Submit sends one entry per visible student, updating the bound record or
// creating a new one. A created record's id is bound so the next submit is
// an update, as long as the selection has not changed meanwhile.
func (s *Screen) Submit(ctx context.Context) (backend.AttendanceRecord, error) {
	s.mu.Lock()
	switch {
	case !s.selected:
		s.mu.Unlock()
		return backend.AttendanceRecord{}, ErrNotSelected
	case s.loading:
		s.mu.Unlock()
		return backend.AttendanceRecord{}, ErrLoading
	case s.submitting:
		s.mu.Unlock()
		return backend.AttendanceRecord{}, ErrSubmitting
	case len(s.students) == 0:
		s.mu.Unlock()
		return backend.AttendanceRecord{}, ErrNothingToSubmit
	}
	seq := s.seq
	id := s.recordID
	rec := backend.AttendanceRecord{
		Batch:   s.batch,
		Date:    s.date.Format(backend.DateLayout),
		Entries: make([]backend.AttendanceEntry, 0, len(s.students)),
	}
	for _, st := range s.students {
		rec.Entries = append(rec.Entries, backend.AttendanceEntry{
			Student:     st.ID,
			StudentName: st.Name,
			Status:      string(s.status[st.ID]),
		})
	}
	s.submitting = true
	s.errMsg = ""
	s.mu.Unlock()

	var (
		saved backend.AttendanceRecord
		err   error
	)
	if id != 0 {
		saved, err = s.api.UpdateAttendance(ctx, id, rec)
	} else {
		saved, err = s.api.CreateAttendance(ctx, rec)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if s.seq != seq {
		obs.ObserveStale("attendance")
		if err != nil {
			return backend.AttendanceRecord{}, err
		}
		return saved, ErrSuperseded
	}
	if err != nil {
		s.errMsg = backend.Message(err, saveFailed)
		return backend.AttendanceRecord{}, err
	}
	if saved.ID != 0 {
		s.recordID = saved.ID
		s.mode = ModeEdit
	}
	_ = audit.LogEvent(ctx, "attendance.submit", map[string]any{
		"batch":     rec.Batch,
		"date":      rec.Date,
		"record_id": saved.ID,
		"updated":   id != 0,
		"entries":   len(rec.Entries),
	})
	return saved, nil
}

// Row is a student with the current status.
type Row struct {
	Student
	Status Status `json:"status"`
}

// Summary counts rows per status.
type Summary struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
	Leave   int `json:"leave"`
}

// View is a copy of the screen state for rendering.
type View struct {
	Selected   bool    `json:"selected"`
	Batch      int64   `json:"batch,omitempty"`
	Date       string  `json:"date,omitempty"`
	Mode       Mode    `json:"mode,omitempty"`
	RecordID   int64   `json:"record_id,omitempty"`
	Rows       []Row   `json:"rows"`
	Loading    bool    `json:"loading"`
	Submitting bool    `json:"submitting"`
	Error      string  `json:"error,omitempty"`
	CanSubmit  bool    `json:"can_submit"`
	Summary    Summary `json:"summary"`
}

// View snapshots the screen.
func (s *Screen) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		Selected:   s.selected,
		Batch:      s.batch,
		Mode:       s.mode,
		RecordID:   s.recordID,
		Rows:       make([]Row, 0, len(s.students)),
		Loading:    s.loading,
		Submitting: s.submitting,
		Error:      s.errMsg,
	}
	if s.selected {
		v.Date = s.date.Format(backend.DateLayout)
	}
	for _, st := range s.students {
		status := s.status[st.ID]
		v.Rows = append(v.Rows, Row{Student: st, Status: status})
		switch status {
		case Present:
			v.Summary.Present++
		case Absent:
			v.Summary.Absent++
		case Leave:
			v.Summary.Leave++
		}
	}
	v.CanSubmit = s.selected && !s.loading && !s.submitting && len(v.Rows) > 0
	return v
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
