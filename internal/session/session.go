// Package session is the single authority for who is logged in on a client.
// A Store owns the current user and the loading flag; it is read through
// Current, Subscribe, Ready and Authorize and written only by Bootstrap,
// Login, Logout and the token upkeep in EnsureFresh.
package session

import (
	"errors"

	"noorstitching.org/internal/backend"
)

// User is the profile of the logged-in account.
type User = backend.User

// Snapshot is a consistent view of the store.
type Snapshot struct {
	User    *User `json:"user"`
	Loading bool  `json:"loading"`
}

// Authenticated reports whether a user is logged in.
func (s Snapshot) Authenticated() bool { return s.User != nil }

// Role returns the role of the logged-in user, or "" when there is none.
func (s Snapshot) Role() Role {
	if s.User == nil {
		return ""
	}
	return RoleOf(s.User)
}

var (
	ErrNoSession          = errors.New("session: not logged in")
	ErrSessionExpired     = errors.New("session: expired")
	ErrSuperseded         = errors.New("session: superseded by a newer operation")
	ErrMissingCredentials = errors.New("session: username and password are required")
)

// DefaultLoginError is shown when the backend gives no reason for a rejected login.
const DefaultLoginError = "Invalid username or password"

// LoginError is returned by Login. Message is what the user was shown.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return "session: login failed: " + e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.StudentID != nil {
		id := *u.StudentID
		out.StudentID = &id
	}
	if u.StudentDetails != nil {
		d := *u.StudentDetails
		out.StudentDetails = &d
	}
	return &out
}
