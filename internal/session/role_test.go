package session

import "testing"

func TestRoleOfAndHome(t *testing.T) {
	cases := []struct {
		name string
		user *User
		role Role
		home string
	}{
		{"nil", nil, RoleStudent, StudentHome},
		{"student", &User{}, RoleStudent, StudentHome},
		{"teacher", &User{IsStaff: true}, RoleTeacher, TeacherHome},
		{"admin", &User{IsStaff: true, IsSuperuser: true}, RoleAdmin, AdminHome},
		{"superuser without staff", &User{IsSuperuser: true}, RoleAdmin, AdminHome},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RoleOf(tc.user); got != tc.role {
				t.Fatalf("RoleOf = %s, want %s", got, tc.role)
			}
			if got := HomePath(RoleOf(tc.user)); got != tc.home {
				t.Fatalf("HomePath = %s, want %s", got, tc.home)
			}
		})
	}
}

func TestLoginDestination(t *testing.T) {
	if got := LoginDestination(&User{IsStaff: true}); got != AdminHome {
		t.Fatalf("staff destination = %s", got)
	}
	if got := LoginDestination(&User{}); got != StudentHome {
		t.Fatalf("student destination = %s", got)
	}
}
