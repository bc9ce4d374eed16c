// csc is the terminal console for CSC operators: sign in, look up insurance
// status, work the policy renewal list and review uploaded documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"notifycsc/internal/console/apiclient"
	"notifycsc/internal/console/session"
	"notifycsc/internal/domain/toast"
	"notifycsc/internal/platform/logger"
)

const defaultServer = "http://localhost:8080"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: .env: %v\n", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		var shown reported
		if errors.As(err, &shown) {
			os.Exit(exitCode(err))
		}
		fmt.Fprintf(os.Stderr, "error: %s\n", describe(err))
		os.Exit(exitCode(err))
	}
}

// app carries what every subcommand needs.
type app struct {
	client *apiclient.Client
	store  *session.Store
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	notify *toast.Queue
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = []command{
	{"login", "sign in and save the session", runLogin},
	{"logout", "end the saved session", runLogout},
	{"whoami", "show the signed-in user", runWhoami},
	{"lookup", "public insurance status by vehicle or mobile", runLookup},
	{"policies", "list policies with expiry status", runPolicies},
	{"remind", "send a renewal reminder for a vehicle", runRemind},
	{"documents", "list uploaded documents", runDocuments},
	{"approve", "approve a pending document", runApprove},
	{"reject", "reject a pending document", runReject},
	{"delete-document", "delete a document", runDeleteDocument},
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var server, sessionFile, logLevel string

	flagSet := pflag.NewFlagSet("csc", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&server, "server", envOr("CSC_SERVER", defaultServer), "API server base URL (env CSC_SERVER)")
	flagSet.StringVar(&sessionFile, "session-file", session.DefaultPath(), "where the session is saved (env CSC_SESSION_FILE)")
	flagSet.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	logger.NewWithWriter(stderr, logLevel, "text")

	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return pflag.ErrHelp
	}

	var selected *command
	for i := range commands {
		if commands[i].name == rest[0] {
			selected = &commands[i]
		}
	}
	if selected == nil {
		return fmt.Errorf("unknown command %q, run csc --help", rest[0])
	}

	store := session.NewStore(session.WithPersister(session.NewFileStore(sessionFile)))
	printer := &toastPrinter{w: stderr}
	notify := toast.NewQueue(toast.WithListener(printer.print))
	defer notify.Close()
	store.OnLogout(func(reason session.Reason) {
		if reason == session.ReasonExpired {
			notify.Error("Session expired, run csc login")
		}
	})
	client, err := apiclient.New(server, store)
	if err != nil {
		return err
	}

	a := &app{client: client, store: store, stdin: stdin, stdout: stdout, stderr: stderr, notify: notify}
	return selected.run(ctx, a, rest[1:])
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: csc [global flags] <command> [flags] [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n%s", flagSet.FlagUsages())
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func describe(err error) string {
	if apiclient.KindOf(err) != "" {
		return apiclient.Message(err)
	}
	return err.Error()
}

func exitCode(err error) int {
	switch apiclient.KindOf(err) {
	case apiclient.KindValidation:
		return 2
	case apiclient.KindAuthentication, apiclient.KindAuthorization:
		return 3
	}
	return 1
}

// toastPrinter writes each toast to stderr once, when it first appears, so
// stdout stays machine-readable.
type toastPrinter struct {
	w io.Writer

	mu   sync.Mutex
	seen map[string]bool
}

func (p *toastPrinter) print(items []toast.Toast) {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := make(map[string]bool, len(items))
	for _, item := range items {
		live[item.ID] = true
		if p.seen[item.ID] {
			continue
		}
		prefix := "info"
		switch item.Severity {
		case toast.SeveritySuccess:
			prefix = "ok"
		case toast.SeverityError:
			prefix = "error"
		}
		fmt.Fprintf(p.w, "%s: %s\n", prefix, item.Message)
	}
	p.seen = live
}
