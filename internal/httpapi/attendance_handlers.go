package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"noorstitching.org/internal/attendance"
	"noorstitching.org/internal/forms"
)

const attendancePath = "/staff/attendance"

// AttendancePage renders the screen. ?batch=&date= selects, which loads the
// saved record or starts a new one from the batch's active enrollments.
func (a *API) AttendancePage(w http.ResponseWriter, r *http.Request) {
	screen := clientFrom(r.Context()).Attendance
	q := r.URL.Query()
	if q.Has("batch") || q.Has("date") {
		sel := forms.AttendanceSelect{Date: q.Get("date")}
		if raw := q.Get("batch"); raw != "" {
			batch, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				a.fail(w, r, &forms.ValidationError{Fields: map[string]string{"batch": "batch must be a number"}}, "Invalid input")
				return
			}
			sel.Batch = batch
		}
		if err := forms.Check(sel); err != nil {
			a.fail(w, r, err, "Invalid input")
			return
		}
		day, err := sel.Day()
		if err != nil {
			a.fail(w, r, &forms.ValidationError{Fields: map[string]string{"date": err.Error()}}, "Invalid input")
			return
		}
		ctx, cancel := a.clients.Detach(r.Context())
		err = screen.Select(ctx, sel.Batch, day)
		cancel()
		if err != nil && !errors.Is(err, attendance.ErrSuperseded) {
			// The screen keeps the message; the view carries it.
			a.render(w, r, attendanceStatusCode(err), "attendance.html", "Attendance", screen.View())
			return
		}
	}
	a.render(w, r, http.StatusOK, "attendance.html", "Attendance", screen.View())
}

// AttendanceStatus sets one student's status on the loaded record.
func (a *API) AttendanceStatus(w http.ResponseWriter, r *http.Request) {
	var form forms.AttendanceStatus
	if err := bind(w, r, &form, func(v url.Values) error {
		student, err := strconv.ParseInt(v.Get("student"), 10, 64)
		if err != nil {
			return errors.New("student must be a number")
		}
		form.Student = student
		form.Status = v.Get("status")
		return nil
	}); err != nil {
		a.rejectInput(w, r, err)
		return
	}
	status, err := attendance.ParseStatus(form.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	screen := clientFrom(r.Context()).Attendance
	if err := screen.SetStatus(form.Student, status); err != nil {
		a.attendanceFailed(w, r, err)
		return
	}
	a.afterAttendance(w, r)
}

// AttendanceSubmit saves the loaded record. A new record's id is bound so
// the next submit updates it, even when the browser left before the reply.
func (a *API) AttendanceSubmit(w http.ResponseWriter, r *http.Request) {
	c := clientFrom(r.Context())
	ctx, cancel := a.clients.Detach(r.Context())
	defer cancel()
	rec, err := c.Attendance.Submit(ctx)
	if err != nil {
		a.attendanceFailed(w, r, err)
		return
	}
	c.Notifications.Success("Attendance saved for " + rec.Date + ".")
	a.afterAttendance(w, r)
}

// afterAttendance answers a mutation: the fresh view for JSON callers, a
// redirect back to the screen for forms.
func (a *API) afterAttendance(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		a.render(w, r, http.StatusOK, "attendance.html", "Attendance", clientFrom(r.Context()).Attendance.View())
		return
	}
	redirect(w, r, attendancePath)
}

func (a *API) attendanceFailed(w http.ResponseWriter, r *http.Request, err error) {
	code := attendanceStatusCode(err)
	msg := attendanceMessage(err)
	if msg == "" {
		// Backend failures are recorded on the screen.
		msg = clientFrom(r.Context()).Attendance.View().Error
		if msg == "" {
			a.fail(w, r, err, "Failed to save attendance")
			return
		}
	}
	if wantsJSON(r) {
		writeError(w, r, code, msg)
		return
	}
	clientFrom(r.Context()).Notifications.Error(msg)
	redirect(w, r, attendancePath)
}

func attendanceStatusCode(err error) int {
	switch {
	case errors.Is(err, attendance.ErrInvalidBatch), errors.Is(err, attendance.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrUnknownStudent):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrNotSelected), errors.Is(err, attendance.ErrLoading),
		errors.Is(err, attendance.ErrSubmitting), errors.Is(err, attendance.ErrNothingToSubmit),
		errors.Is(err, attendance.ErrSuperseded):
		return http.StatusConflict
	}
	return statusFor(err)
}

func attendanceMessage(err error) string {
	switch {
	case errors.Is(err, attendance.ErrInvalidBatch):
		return "Choose a batch."
	case errors.Is(err, attendance.ErrInvalidStatus):
		return "Unknown attendance status."
	case errors.Is(err, attendance.ErrUnknownStudent):
		return "That student is not on this record."
	case errors.Is(err, attendance.ErrNotSelected):
		return "Choose a batch and a date first."
	case errors.Is(err, attendance.ErrLoading):
		return "Attendance is still loading."
	case errors.Is(err, attendance.ErrSubmitting):
		return "Attendance is already being saved."
	case errors.Is(err, attendance.ErrNothingToSubmit):
		return "No students to mark for this batch."
	case errors.Is(err, attendance.ErrSuperseded):
		return "The selection changed before the save finished."
	}
	return ""
}
