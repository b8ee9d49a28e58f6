// Package guard decides whether a location may be rendered for a session.
package guard

import (
	"noorstitching.org/internal/session"
)

// Requirement is the role constraint of a location.
type Requirement int

const (
	// None admits any logged-in user.
	None Requirement = iota
	StudentOnly
	TeacherOnly
	AdminOnly
	// StaffOnly admits teachers and admins.
	StaffOnly
)

func (r Requirement) String() string {
	switch r {
	case StudentOnly:
		return "student"
	case TeacherOnly:
		return "teacher"
	case AdminOnly:
		return "admin"
	case StaffOnly:
		return "staff"
	}
	return "none"
}

// Outcome of a decision.
type Outcome int

const (
	Loading Outcome = iota
	Redirect
	Allow
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case Allow:
		return "allow"
	}
	return "loading"
}

// Decision is what to do with a request for a location.
type Decision struct {
	Outcome Outcome
	// Location is set for Redirect.
	Location string
	// ReturnTo is the originally requested location when redirecting to login.
	ReturnTo string
}

// Decide is total over every snapshot and requirement. While the session is
// loading nothing is decided; without a user everything gated goes to login;
// a role mismatch goes to that role's home.
func Decide(snap session.Snapshot, req Requirement, requested string) Decision {
	if snap.Loading {
		return Decision{Outcome: Loading}
	}
	if snap.User == nil {
		return Decision{Outcome: Redirect, Location: session.LoginPath, ReturnTo: requested}
	}
	role := session.RoleOf(snap.User)
	if !admits(req, role) {
		return Decision{Outcome: Redirect, Location: session.HomePath(role)}
	}
	return Decision{Outcome: Allow}
}

func admits(req Requirement, role session.Role) bool {
	switch req {
	case StudentOnly:
		return role == session.RoleStudent
	case TeacherOnly:
		return role == session.RoleTeacher
	case AdminOnly:
		return role == session.RoleAdmin
	case StaffOnly:
		return role == session.RoleTeacher || role == session.RoleAdmin
	}
	return true
}
