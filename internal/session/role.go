package session

// Role is derived from the backend's staff/superuser flags. It is never
// stored.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Well-known locations.
const (
	LoginPath   = "/login"
	AdminHome   = "/admin/dashboard"
	TeacherHome = "/teacher/dashboard"
	StudentHome = "/student/home"
)

// RoleOf is the only place a role is computed from a profile.
func RoleOf(u *User) Role {
	switch {
	case u == nil:
		return RoleStudent
	case u.IsSuperuser:
		return RoleAdmin
	case u.IsStaff:
		return RoleTeacher
	}
	return RoleStudent
}

// HomePath returns the landing page of r.
func HomePath(r Role) string {
	switch r {
	case RoleAdmin:
		return AdminHome
	case RoleTeacher:
		return TeacherHome
	}
	return StudentHome
}

// LoginDestination is where a successful login lands. Staff accounts go to
// the admin dashboard and are routed on from there by the guard.
func LoginDestination(u *User) string {
	if u != nil && u.IsStaff {
		return AdminHome
	}
	return StudentHome
}
