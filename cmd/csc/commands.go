package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"notifycsc/internal/console/apiclient"
	"notifycsc/internal/console/screen"
	"notifycsc/internal/domain/listquery"
	"notifycsc/internal/domain/policy"
)

const dateLayout = "2006-01-02"

// reported marks an error the screen already showed to the user.
type reported struct{ err error }

func (r reported) Error() string { return r.err.Error() }
func (r reported) Unwrap() error { return r.err }

func newFlags(a *app, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("csc "+name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

func runLogin(ctx context.Context, a *app, args []string) error {
	var in apiclient.LoginInput
	fs := newFlags(a, "login")
	fs.StringVar(&in.Email, "email", os.Getenv("CSC_EMAIL"), "account email (env CSC_EMAIL)")
	fs.StringVar(&in.MFACode, "mfa", "", "one-time code when MFA is enabled")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.Password = os.Getenv("CSC_PASSWORD")
	if in.Password == "" {
		fmt.Fprint(a.stderr, "password: ")
		line, err := bufio.NewReader(a.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read password: %w", err)
		}
		in.Password = strings.TrimRight(line, "\r\n")
	}

	user, err := a.client.Login(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "signed in as %s (%s)\n", user.Email, user.Role)
	return nil
}

func runLogout(ctx context.Context, a *app, _ []string) error {
	if err := a.client.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, "signed out")
	return nil
}

func runWhoami(_ context.Context, a *app, _ []string) error {
	user, ok := a.store.User()
	if !ok {
		return &apiclient.Error{Kind: apiclient.KindAuthentication, Message: "not signed in"}
	}
	fmt.Fprintf(a.stdout, "%s\t%s\t%s\n", user.Email, user.Name, user.Role)
	return nil
}

func runLookup(ctx context.Context, a *app, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: csc lookup vehicle|mobile <value>")
	}
	kind, ok := listquery.ParseLookupType(args[0])
	if !ok {
		return apiclient.Invalid("type", "must be vehicle or mobile")
	}
	out, err := a.client.Lookup(ctx, kind, args[1])
	if err != nil {
		return err
	}
	if len(out.Results) == 0 {
		fmt.Fprintln(a.stdout, "no policy found")
		return nil
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\tHOLDER\tMOBILE\tINSURER\tEXPIRY\tDAYS\tSTATUS")
	for _, s := range out.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			s.VehicleNumber, s.HolderName, s.Mobile, s.Insurer, s.PolicyExpiryDate, s.DaysRemaining, s.ExpiryLabel)
	}
	return tw.Flush()
}

type listFlags struct {
	status string
	search string
	from   string
	to     string
	page   int
	limit  int
}

func (l *listFlags) register(fs *pflag.FlagSet, dates bool) {
	fs.StringVar(&l.status, "status", "", "status filter")
	fs.StringVarP(&l.search, "search", "s", "", "server-side search text")
	if dates {
		fs.StringVar(&l.from, "from", "", "expiry on or after (YYYY-MM-DD)")
		fs.StringVar(&l.to, "to", "", "expiry on or before (YYYY-MM-DD)")
	}
	fs.IntVarP(&l.page, "page", "p", 1, "page number")
	fs.IntVar(&l.limit, "limit", listquery.DefaultPageSize, "rows per page")
}

func (l *listFlags) query() (listquery.Query, error) {
	q := listquery.Query{Status: l.status, Search: l.search, Page: l.page, Limit: l.limit}
	var err error
	if q.ExpiryFrom, err = parseDate("from", l.from); err != nil {
		return q, err
	}
	if q.ExpiryTo, err = parseDate("to", l.to); err != nil {
		return q, err
	}
	if err := q.Validate(); err != nil {
		return q, apiclient.Invalid("to", "must not be before from")
	}
	return q, nil
}

func parseDate(field, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, apiclient.Invalid(field, "must be a YYYY-MM-DD date")
	}
	return &t, nil
}

func loadPolicies(ctx context.Context, a *app, q listquery.Query) (*screen.PolicyList, error) {
	list := screen.NewPolicyList(ctx, a.client, a.notify, nil)
	if err := list.Restore(q); err != nil {
		list.Close()
		if errors.Is(err, listquery.ErrUnknownStatus) {
			return nil, apiclient.Invalid("status", "is not a known expiry status")
		}
		return nil, err
	}
	list.Wait()
	if err := list.State().Err; err != nil {
		list.Close()
		return nil, err
	}
	return list, nil
}

func runPolicies(ctx context.Context, a *app, args []string) error {
	var lf listFlags
	fs := newFlags(a, "policies")
	lf.register(fs, true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := lf.query()
	if err != nil {
		return err
	}
	list, err := loadPolicies(ctx, a, q)
	if err != nil {
		return err
	}
	defer list.Close()

	state := list.State()
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VEHICLE\tHOLDER\tMOBILE\tEXPIRY\tDAYS\tSTATUS\tREMINDERS\tREMINDER")
	for _, view := range state.Items {
		reminder := "available"
		if action := list.ReminderAction(view); !action.Enabled {
			reminder = action.Reason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			view.VehicleNumber, view.HolderName, view.Mobile, view.PolicyExpiryDate,
			view.DaysRemaining, view.ExpiryLabel, view.ReminderCount, reminder)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "page %d of %d, %d total\n", state.Query.Page, max(state.Pages, 1), state.Total)
	return nil
}

func runRemind(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: csc remind <vehicle-number>")
	}
	vehicle := policy.NormalizeVehicleNumber(args[0])
	if len(vehicle) < 4 {
		return apiclient.Invalid("vehicle", "must contain at least 4 characters")
	}
	list, err := loadPolicies(ctx, a, listquery.Query{Search: vehicle, Page: 1, Limit: listquery.DefaultPageSize})
	if err != nil {
		return err
	}
	defer list.Close()

	for _, view := range list.State().Items {
		if policy.NormalizeVehicleNumber(view.VehicleNumber) != vehicle {
			continue
		}
		if err := list.SendReminder(ctx, view.ID); err != nil {
			return reported{err}
		}
		list.Wait()
		return nil
	}
	return &apiclient.Error{Kind: apiclient.KindNotFound, Message: "no policy for vehicle " + vehicle}
}

func runDocuments(ctx context.Context, a *app, args []string) error {
	var lf listFlags
	var category, filter string
	fs := newFlags(a, "documents")
	lf.register(fs, false)
	fs.StringVar(&category, "category", "", "category id")
	fs.StringVarP(&filter, "filter", "f", "", "fuzzy filter applied to the fetched page")
	if err := fs.Parse(args); err != nil {
		return err
	}
	q, err := lf.query()
	if err != nil {
		return err
	}
	role := ""
	if user, ok := a.store.User(); ok {
		role = user.Role
	}

	list := screen.NewDocumentList(ctx, a.client, a.notify, role, nil)
	defer list.Close()
	if err := list.Restore(q, category); err != nil {
		return apiclient.Invalid("status", "must be pending, approved or rejected")
	}
	list.Wait()
	if filter != "" {
		list.SetFilter(filter)
	}
	state := list.State()
	if state.Err != nil {
		return state.Err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tFILE\tCATEGORY\tSTATUS\tUPLOADED")
	for _, doc := range state.Visible {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			doc.ID, doc.Title, doc.FileName, doc.CategoryName, doc.Status, doc.CreatedAt.Format(dateLayout))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "page %d of %d, %d total\n", state.Query.Page, max(state.Pages, 1), state.Total)
	return nil
}

func runApprove(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: csc approve <document-id>")
	}
	doc, err := a.client.ApproveDocument(ctx, args[0])
	if err != nil {
		return err
	}
	a.notify.Success("Document " + doc.ID + " approved")
	return nil
}

func runReject(ctx context.Context, a *app, args []string) error {
	var reason string
	fs := newFlags(a, "reject")
	fs.StringVarP(&reason, "reason", "r", "", "reason shown to the uploader")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: csc reject --reason <text> <document-id>")
	}
	doc, err := a.client.RejectDocument(ctx, fs.Arg(0), reason)
	if err != nil {
		return err
	}
	a.notify.Success("Document " + doc.ID + " rejected")
	return nil
}

func runDeleteDocument(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: csc delete-document <document-id>")
	}
	if err := a.client.DeleteDocument(ctx, args[0]); err != nil {
		return err
	}
	a.notify.Success("Document " + args[0] + " deleted")
	return nil
}
