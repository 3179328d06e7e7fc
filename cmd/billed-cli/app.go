package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/billed/internal/api"
	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/bills"
	"github.com/zombor/billed/internal/newbill"
	"github.com/zombor/billed/internal/route"
	"github.com/zombor/billed/internal/session"
)

// app holds the settings shared by every subcommand
type app struct {
	stdout io.Writer
	stderr io.Writer

	serverURL   string
	sessionPath string
	authUser    string
	authPass    string
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

// alertWriter shows alerts on the terminal
type alertWriter struct {
	w io.Writer
}

func (a alertWriter) Alert(message string) {
	fmt.Fprintf(a.w, "! %s\n", message)
}

func (a *app) command() *ff.Command {
	rootFlags := ff.NewFlagSet("billed-cli")
	rootFlags.StringVar(&a.serverURL, 0, "server", "http://localhost:5678", "Bill store base URL")
	rootFlags.StringVar(&a.sessionPath, 0, "session", defaultSessionPath(), "Session file path")
	rootFlags.StringVar(&a.authUser, 0, "auth-user", "", "Basic auth username (optional)")
	rootFlags.StringVar(&a.authPass, 0, "auth-pass", "", "Basic auth password (optional)")

	loginFlags := ff.NewFlagSet("login").SetParent(rootFlags)
	email := loginFlags.StringLong("email", "", "Email of the user")
	userType := loginFlags.StringLong("type", route.EmployeeType, "User type: 'Employee' or 'Admin'")
	login := &ff.Command{
		Name:      "login",
		Usage:     "billed-cli login --email <email> [--type <type>]",
		ShortHelp: "remember who is using the application",
		Flags:     loginFlags,
		Exec: func(ctx context.Context, _ []string) error {
			return a.login(session.User{Type: *userType, Email: *email})
		},
	}

	logout := &ff.Command{
		Name:      "logout",
		Usage:     "billed-cli logout",
		ShortHelp: "forget the logged-in user",
		Flags:     ff.NewFlagSet("logout").SetParent(rootFlags),
		Exec: func(ctx context.Context, _ []string) error {
			return a.logout()
		},
	}

	list := &ff.Command{
		Name:      "bills",
		Usage:     "billed-cli bills",
		ShortHelp: "list the bills of the logged-in employee",
		Flags:     ff.NewFlagSet("bills").SetParent(rootFlags),
		Exec: func(ctx context.Context, _ []string) error {
			return a.bills(ctx)
		},
	}

	newFlags := ff.NewFlagSet("new").SetParent(rootFlags)
	var form newbill.Form
	file := newFlags.StringLong("file", "", "Receipt image (PNG or JPEG)")
	newFlags.StringVar(&form.Type, 0, "type", "", "Expense type, e.g. "+strings.Join(bill.ExpenseTypes, ", "))
	newFlags.StringVar(&form.Name, 0, "name", "", "Expense name")
	newFlags.StringVar(&form.Amount, 0, "amount", "", "Amount in euros")
	newFlags.StringVar(&form.Date, 0, "date", "", "Date as YYYY-MM-DD")
	newFlags.StringVar(&form.VAT, 0, "vat", "", "VAT amount")
	newFlags.StringVar(&form.Pct, 0, "pct", "", "VAT percentage (default 20)")
	newFlags.StringVar(&form.Commentary, 0, "commentary", "", "Commentary")
	create := &ff.Command{
		Name:      "new",
		Usage:     "billed-cli new --file <receipt> --type <type> --amount <amount> --date <date> [flags]",
		ShortHelp: "send a new bill with its receipt",
		Flags:     newFlags,
		Exec: func(ctx context.Context, _ []string) error {
			return a.newBill(ctx, *file, form)
		},
	}

	proofFlags := ff.NewFlagSet("proof").SetParent(rootFlags)
	fileURL := proofFlags.StringLong("url", "", "File URL of the bill")
	out := proofFlags.StringLong("out", "", "Where to write the receipt (default: its name in the current directory)")
	proof := &ff.Command{
		Name:      "proof",
		Usage:     "billed-cli proof --url <file url> [--out <path>]",
		ShortHelp: "download the receipt of a bill",
		Flags:     proofFlags,
		Exec: func(ctx context.Context, _ []string) error {
			return a.proof(ctx, *fileURL, *out)
		},
	}

	versionCmd := &ff.Command{
		Name:      "version",
		Usage:     "billed-cli version",
		ShortHelp: "print the version",
		Exec: func(context.Context, []string) error {
			fmt.Fprintln(a.stdout, version)
			return nil
		},
	}

	return &ff.Command{
		Name:        "billed-cli",
		Usage:       "billed-cli [flags] <subcommand> ...",
		ShortHelp:   "employee front-end of the Billed expense reports",
		Flags:       rootFlags,
		Subcommands: []*ff.Command{login, logout, list, create, proof, versionCmd},
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "billed-session.db"
	}
	return filepath.Join(dir, "billed", "session.db")
}

// openSession opens the session store; the caller closes it
func (a *app) openSession() (*session.Session, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(a.sessionPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating session directory: %w", err)
	}
	local, err := session.OpenLocal(a.sessionPath)
	if err != nil {
		return nil, nil, err
	}
	return session.New(local), local.Close, nil
}

func (a *app) client() *api.Client {
	return api.NewClient(a.serverURL, bill.BasicAuth{Username: a.authUser, Password: a.authPass})
}

func (a *app) login(user session.User) error {
	sess, closeSession, err := a.openSession()
	if err != nil {
		return err
	}
	defer closeSession()

	if err := sess.Login(user); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Connecté en tant que %s (%s)\n", user.Email, route.ForUser(user.Type))
	return nil
}

func (a *app) logout() error {
	sess, closeSession, err := a.openSession()
	if err != nil {
		return err
	}
	defer closeSession()

	if err := sess.Logout(); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "Déconnecté")
	return nil
}

func (a *app) bills(ctx context.Context) error {
	sess, closeSession, err := a.openSession()
	if err != nil {
		return err
	}
	defer closeSession()

	return a.showBills(ctx, bills.New(a.client(), sess, &route.Recorder{}))
}

// showBills renders the bill list, or the error page when the store fails
func (a *app) showBills(ctx context.Context, page *bills.Bills) error {
	list, err := page.GetBills(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoUser) {
			return fmt.Errorf("%w: run billed-cli login first", err)
		}
		renderError(a.stdout, err)
		return err
	}
	return renderBills(a.stdout, list)
}

func (a *app) newBill(ctx context.Context, path string, form newbill.Form) error {
	sess, closeSession, err := a.openSession()
	if err != nil {
		return err
	}
	defer closeSession()

	file, err := readFile(path)
	if err != nil {
		return err
	}

	client := a.client()
	navigator := &route.Recorder{}
	page := newbill.New(client, sess, navigator, alertWriter{w: a.stderr})

	if err := page.HandleChangeFile(ctx, file); err != nil {
		return err
	}
	if _, err := page.HandleSubmit(ctx, form); err != nil {
		return err
	}

	if navigator.Current() != route.Bills {
		return nil
	}
	return a.showBills(ctx, bills.New(client, sess, navigator))
}

// readFile loads the chosen receipt. An empty path means no file was chosen.
func readFile(path string) (*bill.File, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading receipt: %w", err)
	}
	return &bill.File{
		Name: path,
		Type: mimetype.Detect(data).String(),
		Data: data,
	}, nil
}

func (a *app) proof(ctx context.Context, fileURL, out string) error {
	sess, closeSession, err := a.openSession()
	if err != nil {
		return err
	}
	defer closeSession()

	proof, err := bills.New(a.client(), sess, &route.Recorder{}).HandleClickIconEye(ctx, fileURL)
	if err != nil {
		return err
	}

	if out == "" {
		out = "justificatif" + extension(proof.ContentType)
	}
	if err := os.WriteFile(out, proof.Data, 0644); err != nil {
		return fmt.Errorf("writing receipt: %w", err)
	}
	fmt.Fprintf(a.stdout, "Justificatif enregistré dans %s (%s, %d octets)\n", out, proof.ContentType, len(proof.Data))
	return nil
}

func extension(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}
