package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"noorstitching.org/internal/attendance"
	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/clientstate"
	"noorstitching.org/internal/forms"
	"noorstitching.org/internal/session"
)

func newFlags(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags("login", a)
	username := fs.String("u", "", "username")
	password := fs.String("p", os.Getenv("NOOR_PASSWORD"), "password (default $NOOR_PASSWORD, else read from stdin)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *password == "" {
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		*password = strings.TrimRight(line, "\r\n")
	}
	form := forms.Login{Username: *username, Password: *password}
	if err := forms.Check(form); err != nil {
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid input: %s", fieldList(verr.Fields))
		}
		return err
	}

	user, err := a.session.Login(ctx, strings.TrimSpace(form.Username), form.Password)
	if err != nil {
		var lerr *session.LoginError
		if errors.As(err, &lerr) {
			a.notes.Drain()
			return errors.New(lerr.Message)
		}
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as %s (%s)\n", user.FullName(), session.RoleOf(user))
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	a.session.Logout(ctx)
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func runWhoami(_ context.Context, a *app, _ []string) error {
	snap := a.session.Current()
	u := snap.User
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "username\t%s\n", u.Username)
	fmt.Fprintf(tw, "name\t%s\n", u.FullName())
	if u.Email != "" {
		fmt.Fprintf(tw, "email\t%s\n", u.Email)
	}
	fmt.Fprintf(tw, "role\t%s\n", snap.Role())
	fmt.Fprintf(tw, "home\t%s\n", session.HomePath(snap.Role()))
	if d := u.StudentDetails; d != nil {
		fmt.Fprintf(tw, "registration\t%s\n", d.RegistrationNo)
		if d.Course != "" {
			fmt.Fprintf(tw, "course\t%s\n", d.Course)
		}
		if d.FeeBalance != "" {
			fmt.Fprintf(tw, "fee balance\t%s\n", d.FeeBalance)
		}
	}
	return tw.Flush()
}

func runAttendance(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	mode := args[0]
	switch mode {
	case "show", "mark", "submit":
	default:
		return errUsage
	}
	fs := newFlags("attendance "+mode, a)
	batch := fs.Int64("batch", 0, "batch id")
	date := fs.String("date", "", "day, YYYY-MM-DD")
	if err := fs.Parse(args[1:]); err != nil {
		return errUsage
	}
	sel := forms.AttendanceSelect{Batch: *batch, Date: *date}
	if err := forms.Check(sel); err != nil {
		var verr *forms.ValidationError
		if errors.As(err, &verr) {
			return fmt.Errorf("invalid input: %s", fieldList(verr.Fields))
		}
		return err
	}
	changes, err := parseMarks(fs.Args())
	if err != nil {
		return err
	}
	if mode == "show" && len(changes) > 0 {
		return errUsage
	}

	day, _ := sel.Day()
	screen := attendance.NewScreen(a.api)
	if err := screen.Select(ctx, sel.Batch, day); err != nil {
		if msg := screen.View().Error; msg != "" {
			return errors.New(msg)
		}
		return err
	}
	for _, c := range changes {
		if err := screen.SetStatus(c.student, c.status); err != nil {
			return fmt.Errorf("student %d: %w", c.student, err)
		}
	}
	if mode == "submit" {
		rec, err := screen.Submit(ctx)
		if err != nil {
			if msg := screen.View().Error; msg != "" {
				return errors.New(msg)
			}
			return err
		}
		fmt.Fprintf(a.stdout, "Saved attendance record %d for batch %d on %s\n", rec.ID, rec.Batch, rec.Date)
	}
	return printAttendance(a.stdout, screen.View())
}

type mark struct {
	student int64
	status  attendance.Status
}

func parseMarks(args []string) ([]mark, error) {
	out := make([]mark, 0, len(args))
	for _, arg := range args {
		id, st, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q: expected STUDENT=STATUS", arg)
		}
		student, err := strconv.ParseInt(id, 10, 64)
		if err != nil || student <= 0 {
			return nil, fmt.Errorf("%q: student must be a positive id", arg)
		}
		status, err := attendance.ParseStatus(st)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		out = append(out, mark{student: student, status: status})
	}
	return out, nil
}

func printAttendance(w io.Writer, v attendance.View) error {
	state := "new record"
	if v.Mode == attendance.ModeEdit {
		state = fmt.Sprintf("record %d", v.RecordID)
	}
	fmt.Fprintf(w, "Batch %d on %s (%s)\n", v.Batch, v.Date, state)
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No active students.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTUDENT\tSTATUS")
	for _, row := range v.Rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", row.ID, row.Name, row.Status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "present %d, absent %d, leave %d\n", v.Summary.Present, v.Summary.Absent, v.Summary.Leave)
	return nil
}

func runVerify(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return errUsage
	}
	cert, err := a.api.VerifyCertificate(backend.WithoutToken(ctx), strings.TrimSpace(args[0]))
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return errors.New(backend.Message(err, "no certificate matches this code"))
		}
		return err
	}
	validity := "valid"
	if !cert.Valid {
		validity = "no longer valid"
	}
	fmt.Fprintf(a.stdout, "Certificate %s is %s\n", cert.Code, validity)
	fmt.Fprintf(a.stdout, "  %s, %s, issued %s\n", cert.StudentName, cert.Course, cert.IssuedOn)
	if cert.Grade != "" {
		fmt.Fprintf(a.stdout, "  grade %s\n", cert.Grade)
	}
	return nil
}

func runDownload(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	var build func(int64) string
	switch args[0] {
	case "receipt":
		build = backend.ReceiptPDF
	case "certificate":
		build = backend.CertificatePDF
	case "material":
		build = backend.MaterialFile
	default:
		return errUsage
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || id <= 0 {
		return errUsage
	}
	fs := newFlags("download", a)
	out := fs.String("o", "", "output file (default: the server's file name)")
	if err := fs.Parse(args[2:]); err != nil {
		return errUsage
	}
	return a.save(ctx, build(id), *out)
}

func runExport(ctx context.Context, a *app, args []string) error {
	fs := newFlags("export", a)
	out := fs.String("o", "", "output file (default: the server's file name)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return a.save(ctx, backend.Export(), *out)
}

// save streams rel into a temporary file that is renamed once complete.
func (a *app) save(ctx context.Context, rel, out string) error {
	dir := "."
	if out != "" {
		dir = filepath.Dir(out)
	}
	tmp, err := os.CreateTemp(dir, ".noorctl-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	meta, err := a.api.Download(ctx, rel, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.New(backend.Message(err, err.Error()))
	}
	if out == "" {
		out = filepath.Base(meta.Filename)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved %s (%d bytes)\n", out, meta.Size)
	return nil
}

func runTheme(ctx context.Context, a *app, args []string) error {
	switch len(args) {
	case 0:
		st, err := a.state.Load(ctx, clientID)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, st.Theme)
		return nil
	case 1:
		theme, err := clientstate.ParseTheme(args[0])
		if err != nil {
			return err
		}
		return a.state.SaveTheme(ctx, clientID, theme)
	}
	return errUsage
}
