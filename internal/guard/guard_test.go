package guard

import (
	"testing"

	"noorstitching.org/internal/session"
)

var (
	student = &session.User{ID: 1, Username: "sara"}
	teacher = &session.User{ID: 2, Username: "huda", IsStaff: true}
	admin   = &session.User{ID: 3, Username: "amina", IsStaff: true, IsSuperuser: true}
)

func TestDecideTable(t *testing.T) {
	cases := []struct {
		name string
		user *session.User
		req  Requirement
		want Decision
	}{
		{"anon none", nil, None, Decision{Outcome: Redirect, Location: "/login", ReturnTo: "/x"}},
		{"anon student", nil, StudentOnly, Decision{Outcome: Redirect, Location: "/login", ReturnTo: "/x"}},
		{"anon staff", nil, StaffOnly, Decision{Outcome: Redirect, Location: "/login", ReturnTo: "/x"}},

		{"student none", student, None, Decision{Outcome: Allow}},
		{"student student", student, StudentOnly, Decision{Outcome: Allow}},
		{"student teacher", student, TeacherOnly, Decision{Outcome: Redirect, Location: "/student/home"}},
		{"student admin", student, AdminOnly, Decision{Outcome: Redirect, Location: "/student/home"}},
		{"student staff", student, StaffOnly, Decision{Outcome: Redirect, Location: "/student/home"}},

		{"teacher none", teacher, None, Decision{Outcome: Allow}},
		{"teacher student", teacher, StudentOnly, Decision{Outcome: Redirect, Location: "/teacher/dashboard"}},
		{"teacher teacher", teacher, TeacherOnly, Decision{Outcome: Allow}},
		{"teacher admin", teacher, AdminOnly, Decision{Outcome: Redirect, Location: "/teacher/dashboard"}},
		{"teacher staff", teacher, StaffOnly, Decision{Outcome: Allow}},

		{"admin none", admin, None, Decision{Outcome: Allow}},
		{"admin student", admin, StudentOnly, Decision{Outcome: Redirect, Location: "/admin/dashboard"}},
		{"admin teacher", admin, TeacherOnly, Decision{Outcome: Redirect, Location: "/admin/dashboard"}},
		{"admin admin", admin, AdminOnly, Decision{Outcome: Allow}},
		{"admin staff", admin, StaffOnly, Decision{Outcome: Allow}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(session.Snapshot{User: tc.user}, tc.req, "/x")
			if got != tc.want {
				t.Fatalf("Decide = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestDecideWhileLoading(t *testing.T) {
	for _, user := range []*session.User{nil, student, teacher, admin} {
		for req := None; req <= StaffOnly; req++ {
			got := Decide(session.Snapshot{User: user, Loading: true}, req, "/admin/dashboard")
			if got != (Decision{Outcome: Loading}) {
				t.Fatalf("user=%v req=%s: got %+v", user, req, got)
			}
		}
	}
}

func TestRedirectNeverLoops(t *testing.T) {
	// Following a role redirect must land on a page the same user is allowed to see.
	homes := map[string]Requirement{
		session.StudentHome: StudentOnly,
		session.TeacherHome: TeacherOnly,
		session.AdminHome:   AdminOnly,
	}
	for _, user := range []*session.User{student, teacher, admin} {
		for req := None; req <= StaffOnly; req++ {
			d := Decide(session.Snapshot{User: user}, req, "/x")
			if d.Outcome != Redirect {
				continue
			}
			next := Decide(session.Snapshot{User: user}, homes[d.Location], d.Location)
			if next.Outcome != Allow {
				t.Fatalf("user %s: redirect to %s is not allowed (%+v)", user.Username, d.Location, next)
			}
		}
	}
}
