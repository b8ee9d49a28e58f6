package attendance

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"noorstitching.org/internal/backend"
)

type fakeBackend struct {
	mu          sync.Mutex
	records     map[int64]backend.AttendanceRecord // by batch
	enrollments map[int64][]backend.Enrollment
	gates       map[int64]chan struct{} // blocks FindAttendance for a batch
	createErr   error
	nextID      int64
	finds       int
	enrollCalls int
	creates     int
	updates     []int64
}

func newFake() *fakeBackend {
	return &fakeBackend{
		records:     make(map[int64]backend.AttendanceRecord),
		enrollments: make(map[int64][]backend.Enrollment),
		gates:       make(map[int64]chan struct{}),
		nextID:      500,
	}
}

func (f *fakeBackend) FindAttendance(_ context.Context, batch int64, _ time.Time) (backend.AttendanceRecord, error) {
	f.mu.Lock()
	f.finds++
	gate := f.gates[batch]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[batch]
	if !ok {
		return backend.AttendanceRecord{}, backend.ErrNotFound
	}
	return rec, nil
}

func (f *fakeBackend) ActiveEnrollments(_ context.Context, batch int64) ([]backend.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrollCalls++
	return f.enrollments[batch], nil
}

func (f *fakeBackend) CreateAttendance(_ context.Context, rec backend.AttendanceRecord) (backend.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return backend.AttendanceRecord{}, f.createErr
	}
	f.nextID++
	rec.ID = f.nextID
	f.records[rec.Batch] = rec
	return rec, nil
}

func (f *fakeBackend) UpdateAttendance(_ context.Context, id int64, rec backend.AttendanceRecord) (backend.AttendanceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, id)
	rec.ID = id
	f.records[rec.Batch] = rec
	return rec, nil
}

var today = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func enroll(ids ...int64) []backend.Enrollment {
	out := make([]backend.Enrollment, 0, len(ids))
	for _, id := range ids {
		out = append(out, backend.Enrollment{Student: id, StudentName: "student", Status: backend.EnrollmentActive})
	}
	return out
}

func TestCreateModeDefaultsEveryoneToPresent(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10, 11, 12)
	s := NewScreen(f)

	if err := s.Select(context.Background(), 1, today); err != nil {
		t.Fatalf("Select: %v", err)
	}
	v := s.View()
	if v.Mode != ModeCreate || v.RecordID != 0 {
		t.Fatalf("mode=%s record=%d", v.Mode, v.RecordID)
	}
	if len(v.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(v.Rows))
	}
	for _, r := range v.Rows {
		if r.Status != Present {
			t.Fatalf("student %d defaulted to %s", r.ID, r.Status)
		}
	}
	if v.Summary != (Summary{Present: 3}) || !v.CanSubmit {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Date != "2026-10-14" {
		t.Fatalf("date = %s", v.Date)
	}
}

func TestEditModeUsesSavedEntries(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10, 11, 12, 13)
	f.records[1] = backend.AttendanceRecord{ID: 77, Batch: 1, Date: "2026-10-14", Entries: []backend.AttendanceEntry{
		{Student: 10, Status: "absent"},
		{Student: 11, Status: "leave"},
	}}
	s := NewScreen(f)

	if err := s.Select(context.Background(), 1, today); err != nil {
		t.Fatalf("Select: %v", err)
	}
	v := s.View()
	if v.Mode != ModeEdit || v.RecordID != 77 {
		t.Fatalf("mode=%s record=%d", v.Mode, v.RecordID)
	}
	if len(v.Rows) != 2 || v.Rows[0].Status != Absent || v.Rows[1].Status != Leave {
		t.Fatalf("rows = %+v", v.Rows)
	}
	if f.enrollCalls != 0 {
		t.Fatal("edit mode must not query enrollments")
	}
}

func TestSubmitBindsIdentifier(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10, 11)
	s := NewScreen(f)
	ctx := context.Background()
	if err := s.Select(ctx, 1, today); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := s.SetStatus(11, Absent); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}

	first, err := s.Submit(ctx)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if f.creates != 1 || len(f.updates) != 0 {
		t.Fatalf("creates=%d updates=%v", f.creates, f.updates)
	}
	if got := first.Entries[1].Status; got != "absent" {
		t.Fatalf("submitted status = %s", got)
	}
	if _, err := s.Submit(ctx); err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if f.creates != 1 || len(f.updates) != 1 || f.updates[0] != first.ID {
		t.Fatalf("creates=%d updates=%v, want update of %d", f.creates, f.updates, first.ID)
	}
	if v := s.View(); v.Mode != ModeEdit || v.RecordID != first.ID {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestEmptyBatchCannotSubmit(t *testing.T) {
	f := newFake()
	s := NewScreen(f)
	if err := s.Select(context.Background(), 5, today); err != nil {
		t.Fatalf("Select: %v", err)
	}
	v := s.View()
	if len(v.Rows) != 0 || v.CanSubmit {
		t.Fatalf("unexpected view %+v", v)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrNothingToSubmit) {
		t.Fatalf("expected ErrNothingToSubmit, got %v", err)
	}
	if f.creates != 0 {
		t.Fatal("nothing should be created")
	}
}

func TestSubmitBeforeSelect(t *testing.T) {
	s := NewScreen(newFake())
	if _, err := s.Submit(context.Background()); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("expected ErrNotSelected, got %v", err)
	}
	if err := s.Select(context.Background(), 0, today); !errors.Is(err, ErrInvalidBatch) {
		t.Fatalf("expected ErrInvalidBatch, got %v", err)
	}
}

func TestSetStatusValidation(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10)
	s := NewScreen(f)
	if err := s.Select(context.Background(), 1, today); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := s.SetStatus(99, Absent); !errors.Is(err, ErrUnknownStudent) {
		t.Fatalf("expected ErrUnknownStudent, got %v", err)
	}
	if err := s.SetStatus(10, Status("late")); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if err := s.SetStatus(10, Leave); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if v := s.View(); v.Summary != (Summary{Leave: 1}) {
		t.Fatalf("summary = %+v", v.Summary)
	}
}

func TestParseStatus(t *testing.T) {
	for raw, want := range map[string]Status{"present": Present, " Absent ": Absent, "LEAVE": Leave} {
		got, err := ParseStatus(raw)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %s, %v", raw, got, err)
		}
	}
	if _, err := ParseStatus("late"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestSwitchingBatchDiscardsStaleResult(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10, 11, 12)
	f.enrollments[2] = enroll(20)
	f.gates[1] = make(chan struct{})
	s := NewScreen(f)

	staleErr := make(chan error, 1)
	go func() { staleErr <- s.Select(context.Background(), 1, today) }()
	for {
		f.mu.Lock()
		n := f.finds
		f.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Select(context.Background(), 2, today); err != nil {
		t.Fatalf("Select(2): %v", err)
	}
	close(f.gates[1])
	if err := <-staleErr; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	v := s.View()
	if v.Batch != 2 || len(v.Rows) != 1 || v.Rows[0].ID != 20 {
		t.Fatalf("expected batch 2 roster only, got %+v", v)
	}
}

func TestSelectClearsPreviousState(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10, 11)
	f.records[1] = backend.AttendanceRecord{ID: 9, Batch: 1, Entries: []backend.AttendanceEntry{{Student: 10, Status: "present"}}}
	f.gates[2] = make(chan struct{})
	s := NewScreen(f)
	if err := s.Select(context.Background(), 1, today); err != nil {
		t.Fatalf("Select: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Select(context.Background(), 2, today) }()
	deadline := time.Now().Add(time.Second)
	for !s.View().Loading || s.View().Batch != 2 {
		if time.Now().After(deadline) {
			t.Fatal("second selection never started")
		}
		time.Sleep(time.Millisecond)
	}
	v := s.View()
	if len(v.Rows) != 0 || v.RecordID != 0 || v.Mode != ModeNone || v.CanSubmit {
		t.Fatalf("state leaked into new selection: %+v", v)
	}
	close(f.gates[2])
	if err := <-done; err != nil {
		t.Fatalf("Select(2): %v", err)
	}
}

func TestCreateConflictIsGenericFailure(t *testing.T) {
	f := newFake()
	f.enrollments[1] = enroll(10)
	f.createErr = &backend.APIError{Status: http.StatusBadRequest, Message: "Attendance for this batch and date already exists."}
	s := NewScreen(f)
	if err := s.Select(context.Background(), 1, today); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if _, err := s.Submit(context.Background()); !errors.Is(err, backend.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	v := s.View()
	if v.Error != "Attendance for this batch and date already exists." {
		t.Fatalf("error = %q", v.Error)
	}
	if v.RecordID != 0 || v.Mode != ModeCreate || len(v.Rows) != 1 {
		t.Fatalf("form state must be kept: %+v", v)
	}
}
