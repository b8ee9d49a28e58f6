package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	pathAttendance  = "attendance/"
	pathEnrollments = "enrollments/"
	enrollmentPage  = 100
	maxPages        = 50
)

// FindAttendance returns the record saved for (batch, date) or ErrNotFound.
func (c *Client) FindAttendance(ctx context.Context, batch int64, date time.Time) (AttendanceRecord, error) {
	q := url.Values{}
	q.Set("batch", strconv.FormatInt(batch, 10))
	q.Set("date", date.Format(DateLayout))
	var page Page[AttendanceRecord]
	if err := c.do(ctx, http.MethodGet, pathAttendance, q, nil, &page); err != nil {
		return AttendanceRecord{}, err
	}
	if len(page.Results) == 0 {
		return AttendanceRecord{}, ErrNotFound
	}
	return page.Results[0], nil
}

// ActiveEnrollments walks every page of the batch's active enrollments.
func (c *Client) ActiveEnrollments(ctx context.Context, batch int64) ([]Enrollment, error) {
	var out []Enrollment
	for p := 1; p <= maxPages; p++ {
		opts := ListOptions{Page: p, PageSize: enrollmentPage, Filters: url.Values{}}
		opts.Filters.Set("batch", strconv.FormatInt(batch, 10))
		opts.Filters.Set("status", EnrollmentActive)
		var page Page[Enrollment]
		if err := c.do(ctx, http.MethodGet, pathEnrollments, opts.query(), nil, &page); err != nil {
			return nil, err
		}
		out = append(out, page.Results...)
		if page.Next == "" || len(page.Results) == 0 {
			return out, nil
		}
	}
	return out, fmt.Errorf("backend: enrollments for batch %d exceed %d pages", batch, maxPages)
}

// CreateAttendance stores a new record and returns it with its identifier.
func (c *Client) CreateAttendance(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	rec.ID = 0
	var out AttendanceRecord
	if err := c.do(ctx, http.MethodPost, pathAttendance, nil, rec, &out); err != nil {
		return AttendanceRecord{}, err
	}
	return out, nil
}

// UpdateAttendance replaces the entries of record id.
func (c *Client) UpdateAttendance(ctx context.Context, id int64, rec AttendanceRecord) (AttendanceRecord, error) {
	rec.ID = id
	var out AttendanceRecord
	path := pathAttendance + strconv.FormatInt(id, 10) + "/"
	if err := c.do(ctx, http.MethodPut, path, nil, rec, &out); err != nil {
		return AttendanceRecord{}, err
	}
	if out.ID == 0 {
		out.ID = id
	}
	return out, nil
}
