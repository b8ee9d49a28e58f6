package forms

import (
	"errors"
	"testing"
)

func TestCheck(t *testing.T) {
	cases := []struct {
		name   string
		form   any
		fields []string
	}{
		{"login ok", Login{Username: "amina", Password: "pw"}, nil},
		{"login blank", Login{Username: "   ", Password: ""}, []string{"username", "password"}},
		{"login external next", Login{Username: "a", Password: "b", Next: "https://evil.test"}, []string{"next"}},
		{"reset email", PasswordReset{Email: "not-an-email"}, []string{"email"}},
		{"confirm mismatch", PasswordResetConfirm{UID: "1", Token: "t", NewPassword: "longenough", ConfirmPassword: "different1"}, []string{"confirm_password"}},
		{"confirm short", PasswordResetConfirm{UID: "1", Token: "t", NewPassword: "short", ConfirmPassword: "short"}, []string{"new_password"}},
		{"select ok", AttendanceSelect{Batch: 3, Date: "2026-10-14"}, nil},
		{"select bad date", AttendanceSelect{Batch: 3, Date: "14/10/2026"}, []string{"date"}},
		{"select no batch", AttendanceSelect{Date: "2026-10-14"}, []string{"batch"}},
		{"status ok", AttendanceStatus{Student: 1, Status: "Leave"}, nil},
		{"status bad", AttendanceStatus{Student: 1, Status: "late"}, []string{"status"}},
		{"theme bad", ThemePreference{Theme: "neon"}, []string{"theme"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.form)
			if len(tc.fields) == 0 {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if len(verr.Fields) != len(tc.fields) {
				t.Fatalf("fields = %v, want %v", verr.Fields, tc.fields)
			}
			for _, f := range tc.fields {
				if verr.Fields[f] == "" {
					t.Fatalf("missing message for %s in %v", f, verr.Fields)
				}
			}
		})
	}
}

func TestCustomMessages(t *testing.T) {
	err := Check(AttendanceStatus{Student: 1, Status: "late"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if got := verr.Fields["status"]; got != "must be one of present, absent or leave" {
		t.Fatalf("message = %q", got)
	}
}

func TestDay(t *testing.T) {
	d, err := AttendanceSelect{Batch: 1, Date: "2026-03-02"}.Day()
	if err != nil || d.Day() != 2 || d.Month() != 3 {
		t.Fatalf("Day = %v, %v", d, err)
	}
}
