// Package cli implements the hrctl command tree.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"ministry-hr/internal/authz"
	"ministry-hr/internal/models"
	"ministry-hr/internal/remote"
	"ministry-hr/internal/session"
	"ministry-hr/internal/workflow"
)

var (
	ErrLoginRequired    = errors.New("not logged in: run 'hrctl login <username>'")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUsage            = errors.New("invalid usage")
)

// Backend is the subset of the remote client hrctl calls after the session
// is resolved.
type Backend interface {
	ListAbsences(ctx context.Context, token string, requester string, status models.AbsenceStatus) ([]models.AbsenceRequest, error)
	GetAbsence(ctx context.Context, token, id string) (models.AbsenceRequest, error)
	SubmitAbsence(ctx context.Context, token string, req remote.SubmitRequest) (models.AbsenceRequest, error)
	Approve(ctx context.Context, token, id, comment string) (models.AbsenceRequest, error)
	Reject(ctx context.Context, token, id, reason string) (models.AbsenceRequest, error)
	Cancel(ctx context.Context, token, id string) (models.AbsenceRequest, error)
}

type Options struct {
	Out    io.Writer
	In     io.Reader
	Getenv func(string) string
}

type App struct {
	sessions *session.Service
	backend  Backend
	out      io.Writer
	in       io.Reader
	getenv   func(string) string
}

func New(sessions *session.Service, backend Backend, options Options) *App {
	app := &App{
		sessions: sessions,
		backend:  backend,
		out:      options.Out,
		in:       options.In,
		getenv:   options.Getenv,
	}
	if app.out == nil {
		app.out = os.Stdout
	}
	if app.in == nil {
		app.in = os.Stdin
	}
	if app.getenv == nil {
		app.getenv = os.Getenv
	}
	return app
}

// Run restores the persisted session, then executes args[0].
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.printUsage()
	}
	switch args[0] {
	case "help", "--help", "-h":
		return a.printUsage()
	}

	a.sessions.RestoreSession(ctx)

	command, rest := args[0], args[1:]
	switch command {
	case "login":
		return a.runLogin(ctx, rest)
	case "logout":
		a.sessions.Logout(ctx)
		fmt.Fprintln(a.out, "Logged out.")
		return nil
	case "whoami":
		return a.runWhoami()
	case "absences", "list":
		return a.runList(ctx, rest)
	case "show":
		return a.runShow(ctx, rest)
	case "submit":
		return a.runSubmit(ctx, rest)
	case "approve":
		return a.runApprove(ctx, rest)
	case "reject":
		return a.runReject(ctx, rest)
	case "cancel":
		return a.runCancel(ctx, rest)
	default:
		return fmt.Errorf("%w: unknown command %q, run 'hrctl help'", ErrUsage, command)
	}
}

func (a *App) printUsage() error {
	fmt.Fprintln(a.out, `hrctl: ministry HR client

Usage:
  hrctl <command> [arguments]

Commands:
  login <username>             Log in (password from HRCTL_PASSWORD or stdin)
  logout                       End the current session
  whoami                       Show the logged in user
  absences [status]            List absence requests visible to you
  show <id>                    Show one absence request
  submit <type> <start> <end>  Submit a request (dates as YYYY-MM-DD)
  approve <id> [comment]       Approve a pending request
  reject <id> <reason>         Reject a pending request
  cancel <id>                  Cancel your own pending request

Environment:
  HRCTL_PROFILE    Path to the YAML profile (default ~/.hrctl/profile.yaml)
  HRCTL_SERVER     hr-service base URL
  HRCTL_PASSWORD   Password used by 'hrctl login'`)
	return nil
}

func (a *App) runLogin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: hrctl login <username>", ErrUsage)
	}
	password, err := a.readPassword()
	if err != nil {
		return err
	}
	user, err := a.sessions.Login(ctx, session.Credentials{Username: args[0], Password: password})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Logged in as %s (%s).\n", displayName(user), user.Role)
	return nil
}

func (a *App) readPassword() (string, error) {
	if password := a.getenv("HRCTL_PASSWORD"); password != "" {
		return password, nil
	}
	fmt.Fprint(a.out, "Password: ")
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", fmt.Errorf("%w: empty password", ErrUsage)
	}
	return password, nil
}

func (a *App) runWhoami() error {
	user, ok := a.sessions.CurrentUser()
	if !ok {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "User:\t%s\n", user.Username)
	fmt.Fprintf(w, "Name:\t%s\n", displayName(user))
	fmt.Fprintf(w, "Role:\t%s\n", user.Role)
	if user.ServiceRef != "" {
		fmt.Fprintf(w, "Service:\t%s\n", user.ServiceRef)
	}
	return w.Flush()
}

func (a *App) runList(ctx context.Context, args []string) error {
	var status models.AbsenceStatus
	if len(args) > 0 {
		status = models.AbsenceStatus(strings.ToUpper(args[0]))
		if !status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrUsage, args[0])
		}
	}
	token, err := a.guard(authz.None())
	if err != nil {
		return err
	}
	requests, err := a.backend.ListAbsences(ctx, token, "", status)
	if err != nil {
		return a.describe(err)
	}
	if len(requests) == 0 {
		fmt.Fprintln(a.out, "No absence requests.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREQUESTER\tTYPE\tFROM\tTO\tSTATUS")
	for _, request := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			request.ID, request.RequesterRef, request.Type,
			request.StartDate.Format(models.DateLayout), request.EndDate.Format(models.DateLayout),
			request.Status)
	}
	return w.Flush()
}

func (a *App) runShow(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: hrctl show <id>", ErrUsage)
	}
	token, err := a.guard(authz.None())
	if err != nil {
		return err
	}
	request, err := a.backend.GetAbsence(ctx, token, args[0])
	if err != nil {
		return a.describe(err)
	}
	return a.printAbsence(request)
}

func (a *App) runSubmit(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: hrctl submit <type> <start> <end>", ErrUsage)
	}
	absenceType := models.AbsenceType(strings.ToUpper(args[0]))
	if !absenceType.Valid() {
		return fmt.Errorf("%w: unknown absence type %q", ErrUsage, args[0])
	}
	token, err := a.guard(authz.None())
	if err != nil {
		return err
	}
	request, err := a.backend.SubmitAbsence(ctx, token, remote.SubmitRequest{
		Type:      string(absenceType),
		StartDate: args[1],
		EndDate:   args[2],
	})
	if err != nil {
		return a.describe(err)
	}
	fmt.Fprintf(a.out, "Submitted %s (%s).\n", request.ID, request.Status)
	return nil
}

func (a *App) runApprove(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: hrctl approve <id> [comment]", ErrUsage)
	}
	token, err := a.guard(authz.ApproverRequirement())
	if err != nil {
		return err
	}
	request, err := a.backend.Approve(ctx, token, args[0], strings.Join(args[1:], " "))
	if err != nil {
		return a.describe(err)
	}
	fmt.Fprintf(a.out, "Approved %s.\n", request.ID)
	return nil
}

func (a *App) runReject(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: hrctl reject <id> <reason>", ErrUsage)
	}
	token, err := a.guard(authz.ApproverRequirement())
	if err != nil {
		return err
	}
	reason, err := workflow.ValidateReason(strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	request, err := a.backend.Reject(ctx, token, args[0], reason)
	if err != nil {
		return a.describe(err)
	}
	fmt.Fprintf(a.out, "Rejected %s.\n", request.ID)
	return nil
}

func (a *App) runCancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: hrctl cancel <id>", ErrUsage)
	}
	token, err := a.guard(authz.None())
	if err != nil {
		return err
	}
	request, err := a.backend.Cancel(ctx, token, args[0])
	if err != nil {
		return a.describe(err)
	}
	fmt.Fprintf(a.out, "Cancelled %s.\n", request.ID)
	return nil
}

// guard consults the authorization gate against the local session and
// returns the bearer token to use.
func (a *App) guard(req authz.Requirement) (string, error) {
	outcome := a.sessions.Authorize(req)
	switch outcome.Decision {
	case authz.AuthenticationRequired:
		return "", ErrLoginRequired
	case authz.Denied:
		return "", fmt.Errorf("%w: %s", ErrPermissionDenied, outcome.Reason)
	}
	token, ok := a.sessions.Token()
	if !ok {
		return "", ErrLoginRequired
	}
	return token, nil
}

func (a *App) describe(err error) error {
	if errors.Is(err, workflow.ErrAuthenticationRequired) {
		return fmt.Errorf("%w (session expired)", ErrLoginRequired)
	}
	return err
}

func (a *App) printAbsence(request models.AbsenceRequest) error {
	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", request.ID)
	fmt.Fprintf(w, "Requester:\t%s\n", request.RequesterRef)
	if request.ServiceRef != "" {
		fmt.Fprintf(w, "Service:\t%s\n", request.ServiceRef)
	}
	fmt.Fprintf(w, "Type:\t%s\n", request.Type)
	fmt.Fprintf(w, "Period:\t%s to %s\n", request.StartDate.Format(models.DateLayout), request.EndDate.Format(models.DateLayout))
	fmt.Fprintf(w, "Status:\t%s\n", request.Status)
	if request.ApproverRef != "" {
		fmt.Fprintf(w, "Decided by:\t%s\n", request.ApproverRef)
	}
	if request.ApproverComment != "" {
		fmt.Fprintf(w, "Comment:\t%s\n", request.ApproverComment)
	}
	if request.RejectionReason != "" {
		fmt.Fprintf(w, "Reason:\t%s\n", request.RejectionReason)
	}
	return w.Flush()
}

func displayName(user models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	return user.Username
}
