package backend

import (
	"net/url"
	"strconv"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// TokenPair is the access/refresh pair issued by the token endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// User is the profile returned by the current-user endpoint.
type User struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone,omitempty"`
	IsStaff        bool            `json:"is_staff"`
	IsSuperuser    bool            `json:"is_superuser"`
	StudentID      *int64          `json:"student_id,omitempty"`
	StudentDetails *StudentDetails `json:"student_details,omitempty"`
}

// FullName joins first and last name, falling back to the username.
func (u User) FullName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Username
}

// StudentDetails is the student-specific part of a profile.
type StudentDetails struct {
	ID             int64  `json:"id"`
	RegistrationNo string `json:"registration_no"`
	Course         string `json:"course,omitempty"`
	Batch          string `json:"batch,omitempty"`
	AdmissionDate  string `json:"admission_date,omitempty"`
	FeeBalance     string `json:"fee_balance,omitempty"`
}

// Page is the server-side pagination envelope.
type Page[T any] struct {
	Count    int    `json:"count"`
	Next     string `json:"next"`
	Previous string `json:"previous"`
	Results  []T    `json:"results"`
}

// ListOptions selects one page of a collection.
type ListOptions struct {
	Page     int
	PageSize int
	Filters  url.Values
}

func (o ListOptions) query() url.Values {
	q := url.Values{}
	for k, vs := range o.Filters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	return q
}

// Batch is a scheduled instance of a course.
type Batch struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Course   string `json:"course,omitempty"`
	Timing   string `json:"timing,omitempty"`
	Teacher  string `json:"teacher,omitempty"`
	IsActive bool   `json:"is_active"`
}

// Enrollment statuses.
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
	EnrollmentDropped   = "dropped"
)

// Enrollment associates one student to one batch.
type Enrollment struct {
	ID          int64  `json:"id"`
	Student     int64  `json:"student"`
	StudentName string `json:"student_name"`
	Batch       int64  `json:"batch"`
	Status      string `json:"status"`
}

// AttendanceEntry is one student's status inside a record.
type AttendanceEntry struct {
	Student     int64  `json:"student"`
	StudentName string `json:"student_name,omitempty"`
	Status      string `json:"status"`
}

// AttendanceRecord is one saved submission for a (batch, date).
type AttendanceRecord struct {
	ID      int64             `json:"id,omitempty"`
	Batch   int64             `json:"batch"`
	Date    string            `json:"date"`
	Entries []AttendanceEntry `json:"entries"`
}

// Certificate is the public verification view of an issued certificate.
type Certificate struct {
	Code        string `json:"code"`
	StudentName string `json:"student_name"`
	Course      string `json:"course"`
	IssuedOn    string `json:"issued_on"`
	Grade       string `json:"grade,omitempty"`
	Valid       bool   `json:"valid"`
}

// Resource is an untyped collection item for screens that only pass data
// through.
type Resource map[string]any
