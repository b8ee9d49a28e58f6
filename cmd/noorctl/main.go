// Command noorctl drives the portal's session and attendance flows from a
// terminal. The process is the client: one session store backed by a state
// file in the user's config directory.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"noorstitching.org/internal/backend"
	"noorstitching.org/internal/clientstate"
	"noorstitching.org/internal/config"
	"noorstitching.org/internal/guard"
	"noorstitching.org/internal/notify"
	"noorstitching.org/internal/session"
)

// clientID keys the terminal client's record in the state file.
const clientID = "noorctl"

var errUsage = errors.New("usage")

type app struct {
	api     *backend.Client
	state   clientstate.Store
	session *session.Store
	notes   *notify.Queue
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	at      string
}

type command struct {
	usage string
	// requires is nil for commands that work without a session.
	requires *guard.Requirement
	run      func(ctx context.Context, a *app, args []string) error
}

func requirement(r guard.Requirement) *guard.Requirement { return &r }

var commands = map[string]command{
	"login":      {usage: "login -u USERNAME [-p PASSWORD]", run: runLogin},
	"logout":     {usage: "logout", run: runLogout},
	"whoami":     {usage: "whoami", requires: requirement(guard.None), run: runWhoami},
	"attendance": {usage: "attendance show|mark|submit -batch ID -date YYYY-MM-DD [STUDENT=STATUS ...]", requires: requirement(guard.StaffOnly), run: runAttendance},
	"verify":     {usage: "verify CODE", run: runVerify},
	"download":   {usage: "download receipt|certificate|material ID [-o FILE]", requires: requirement(guard.StudentOnly), run: runDownload},
	"export":     {usage: "export [-o FILE]", requires: requirement(guard.AdminOnly), run: runExport},
	"theme":      {usage: "theme [light|dark|system]", run: runTheme},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "noorctl: %v\n", err)
		return 1
	}
	defaultState, _ := clientstate.DefaultFilePath()

	fs := flag.NewFlagSet("noorctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	backendURL := fs.String("backend", cfg.BackendURL, "REST API root")
	statePath := fs.String("state", defaultState, "state file")
	fs.Usage = func() { printUsage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		printUsage(stderr)
		return 2
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "noorctl: unknown command %q\n", name)
		printUsage(stderr)
		return 2
	}
	if *statePath == "" {
		fmt.Fprintln(stderr, "noorctl: no state file location; pass -state")
		return 1
	}

	api, err := backend.New(*backendURL, backend.WithTimeout(cfg.BackendTimeout))
	if err != nil {
		fmt.Fprintf(stderr, "noorctl: %v\n", err)
		return 1
	}
	a := &app{
		api:    api,
		state:  clientstate.NewFile(*statePath),
		notes:  notify.NewQueue(0),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	a.session = session.New(api, clientstate.TokensFor(a.state, clientID),
		session.WithNotifier(a.notes),
		session.WithFallbackNavigator(session.NavigatorFunc(func(path string) { a.at = path })),
	)

	err = a.dispatch(ctx, cmd, fs.Args()[1:])
	a.flushNotes()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "usage: noorctl %s\n", cmd.usage)
		return 2
	default:
		fmt.Fprintf(stderr, "noorctl %s: %v\n", name, err)
		return 1
	}
}

// dispatch restores the session and checks the command's requirement with
// the same guard the portal uses for pages.
func (a *app) dispatch(ctx context.Context, cmd command, args []string) error {
	if cmd.requires == nil {
		return cmd.run(ctx, a, args)
	}
	a.session.Bootstrap(ctx)
	snap := a.session.Current()
	d := guard.Decide(snap, *cmd.requires, "")
	if d.Outcome == guard.Redirect {
		if d.Location == session.LoginPath {
			return errors.New("not logged in; run noorctl login")
		}
		return fmt.Errorf("not available to %s accounts", snap.Role())
	}
	actx, err := a.session.Authorize(ctx)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			return errors.New("session expired; run noorctl login")
		}
		return err
	}
	return cmd.run(actx, a, args)
}

func (a *app) flushNotes() {
	for _, n := range a.notes.Drain() {
		fmt.Fprintf(a.stderr, "[%s] %s\n", n.Kind, n.Message)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: noorctl [-backend URL] [-state FILE] COMMAND [ARGS]")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func fieldList(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fields[k])
	}
	return strings.Join(parts, "; ")
}
