package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/backend/backendtest"
)

type cli struct {
	t     *testing.T
	fake  *backendtest.Server
	state string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("NOOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("NOOR_PASSWORD", "")

	fake := backendtest.New(t)
	fake.AddUser(backend.User{ID: 1, Username: "admin", FirstName: "Noor", IsStaff: true, IsSuperuser: true}, "admin-pw")
	fake.AddUser(backend.User{ID: 2, Username: "teacher", FirstName: "Huda", IsStaff: true}, "teacher-pw")
	fake.AddUser(backend.User{ID: 3, Username: "sara", FirstName: "Sara", LastName: "Khan"}, "sara-pw")
	fake.SetStudentDetails("sara", backend.StudentDetails{ID: 30, RegistrationNo: "NSI-0030", Course: "Tailoring"})
	fake.AddBatch(backend.Batch{ID: 4, Name: "Morning", IsActive: true},
		backend.Enrollment{Student: 10, StudentName: "Amina"},
		backend.Enrollment{Student: 11, StudentName: "Bushra"},
	)
	return &cli{t: t, fake: fake, state: filepath.Join(t.TempDir(), "state.json")}
}

func (c *cli) run(stdin string, args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"-backend", c.fake.BaseURL(), "-state", c.state}, args...)
	code := run(context.Background(), full, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	code, out, errOut := c.run("", args...)
	if code != 0 {
		c.t.Fatalf("noorctl %v: exit %d\nstdout: %s\nstderr: %s", args, code, out, errOut)
	}
	return out
}

func TestLoginWhoamiLogout(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("login", "-u", "sara", "-p", "sara-pw")
	if !strings.Contains(out, "Sara Khan (student)") {
		t.Fatalf("login output %q", out)
	}

	// A fresh process restores the session from the state file.
	out = c.mustRun("whoami")
	for _, want := range []string{"sara", "student", "/student/home", "NSI-0030"} {
		if !strings.Contains(out, want) {
			t.Fatalf("whoami output missing %q:\n%s", want, out)
		}
	}

	c.mustRun("logout")
	code, _, errOut := c.run("", "whoami")
	if code != 1 || !strings.Contains(errOut, "not logged in") {
		t.Fatalf("after logout: exit %d, stderr %q", code, errOut)
	}
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	c := newCLI(t)
	code, out, errOut := c.run("teacher-pw\n", "login", "-u", "teacher")
	if code != 0 || !strings.Contains(out, "(teacher)") {
		t.Fatalf("exit %d, stdout %q, stderr %q", code, out, errOut)
	}
}

func TestLoginFailure(t *testing.T) {
	c := newCLI(t)
	code, _, errOut := c.run("", "login", "-u", "sara", "-p", "wrong")
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if strings.Count(errOut, "\n") != 1 {
		t.Fatalf("expected a single error line, got %q", errOut)
	}

	code, _, errOut = c.run("", "login", "-u", "  ", "-p", "x")
	if code != 1 || !strings.Contains(errOut, "username") {
		t.Fatalf("blank username: exit %d, stderr %q", code, errOut)
	}
}

func TestCommandsFollowRoleRequirements(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "sara", "-p", "sara-pw")

	code, _, errOut := c.run("", "attendance", "show", "-batch", "4", "-date", "2026-03-02")
	if code != 1 || !strings.Contains(errOut, "not available to student accounts") {
		t.Fatalf("student attendance: exit %d, stderr %q", code, errOut)
	}
	code, _, errOut = c.run("", "export")
	if code != 1 || !strings.Contains(errOut, "not available") {
		t.Fatalf("student export: exit %d, stderr %q", code, errOut)
	}
}

func TestAttendanceFetchOrCreate(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "-u", "teacher", "-p", "teacher-pw")

	out := c.mustRun("attendance", "show", "-batch", "4", "-date", "2026-03-02")
	if !strings.Contains(out, "new record") || !strings.Contains(out, "present 2, absent 0, leave 0") {
		t.Fatalf("show before submit:\n%s", out)
	}

	out = c.mustRun("attendance", "submit", "-batch", "4", "-date", "2026-03-02", "11=absent")
	if !strings.Contains(out, "Saved attendance record") {
		t.Fatalf("submit output:\n%s", out)
	}
	if c.fake.Records() != 1 {
		t.Fatalf("expected one record, got %d", c.fake.Records())
	}

	out = c.mustRun("attendance", "submit", "-batch", "4", "-date", "2026-03-02", "10=leave")
	if c.fake.Records() != 1 {
		t.Fatalf("second submit must update, got %d records", c.fake.Records())
	}
	if !strings.Contains(out, "present 0, absent 1, leave 1") {
		t.Fatalf("edit keeps saved statuses:\n%s", out)
	}

	code, _, _ := c.run("", "attendance", "mark", "-batch", "4", "-date", "2026-03-02", "10=late")
	if code != 1 {
		t.Fatalf("invalid status: exit %d", code)
	}
	code, _, _ = c.run("", "attendance", "show", "-batch", "4", "-date", "02/03/2026")
	if code != 1 {
		t.Fatalf("invalid date: exit %d", code)
	}
	code, _, _ = c.run("", "attendance", "show", "-batch", "4", "-date", "2026-03-02", "10=absent")
	if code != 2 {
		t.Fatalf("show with marks: exit %d", code)
	}
}

func TestVerifyIsPublic(t *testing.T) {
	c := newCLI(t)
	c.fake.AddCertificate(backend.Certificate{Code: "NSI-2026-001", StudentName: "Sara Khan", Course: "Tailoring", Valid: true})

	out := c.mustRun("verify", "NSI-2026-001")
	if !strings.Contains(out, "is valid") || !strings.Contains(out, "Sara Khan") {
		t.Fatalf("verify output %q", out)
	}
	if code, _, _ := c.run("", "verify", "UNKNOWN"); code != 1 {
		t.Fatalf("unknown code: exit %d", code)
	}
}

func TestDownloadWritesFile(t *testing.T) {
	c := newCLI(t)
	pdf := []byte("%PDF-1.7 receipt")
	c.fake.AddFile(backend.ReceiptPDF(7), "application/pdf", "receipt-7.pdf", pdf)
	c.mustRun("login", "-u", "sara", "-p", "sara-pw")

	target := filepath.Join(t.TempDir(), "r.pdf")
	c.mustRun("download", "receipt", "7", "-o", target)
	got, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if !bytes.Equal(got, pdf) {
		t.Fatalf("downloaded %q", got)
	}

	missing := filepath.Join(t.TempDir(), "missing.pdf")
	if code, _, _ := c.run("", "download", "receipt", "8", "-o", missing); code != 1 {
		t.Fatalf("missing file: exit %d", code)
	}
	if _, err := os.Stat(missing); !os.IsNotExist(err) {
		t.Fatalf("failed download left %s behind", missing)
	}
}

func TestTheme(t *testing.T) {
	c := newCLI(t)
	if out := c.mustRun("theme"); strings.TrimSpace(out) != "system" {
		t.Fatalf("default theme %q", out)
	}
	c.mustRun("theme", "dark")
	if out := c.mustRun("theme"); strings.TrimSpace(out) != "dark" {
		t.Fatalf("theme after set %q", out)
	}
	if code, _, _ := c.run("", "theme", "neon"); code != 1 {
		t.Fatalf("invalid theme: exit %d", code)
	}
}

func TestUsageErrors(t *testing.T) {
	c := newCLI(t)
	for _, args := range [][]string{{}, {"bogus"}, {"verify"}, {"theme", "dark", "light"}} {
		if code, _, _ := c.run("", args...); code != 2 {
			t.Fatalf("noorctl %v: expected exit 2, got %d", args, code)
		}
	}
}
