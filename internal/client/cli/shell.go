// Package cli implements the interactive shell of the field-agent client.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/atinyakov/FarmCredit/internal/client/service"
	"github.com/atinyakov/FarmCredit/internal/client/storage"
	"github.com/atinyakov/FarmCredit/internal/client/syncer"
	"github.com/atinyakov/FarmCredit/internal/models"
)

const helpText = `Available commands:
  farmers                 list farmers
  add-farmer              register a farmer
  loans [farmerId]        list loans
  add-loan                record a loan request
  drafts                  list drafts
  new-draft               start and save a draft application
  submit <draftId>        submit a draft
  apps                    list applications
  show <id>               show an application and its messages
  resubmit <id>           resubmit an application after INFO_REQUESTED
  decide <id>             send a decision or message to the lender service
  sync                    sync now
  outbox                  list pending changes
  status                  show connectivity and pending count
  exit`

// Service is the device API driven by the shell.
type Service interface {
	LoadAll(ctx context.Context) (*storage.Snapshot, error)
	AddFarmer(ctx context.Context, f models.Farmer) (*models.Farmer, error)
	AddLoan(ctx context.Context, l models.Loan) (*models.Loan, error)
	NewDraft() models.Draft
	SaveDraft(ctx context.Context, d models.Draft) (models.Draft, error)
	SubmitDraft(ctx context.Context, id string) (*models.Application, error)
	Resubmit(ctx context.Context, id string, edit func(*models.Application)) (*models.Application, error)
	Decide(ctx context.Context, id string, upd models.StatusUpdate) (*models.Application, error)
	TriggerSync(ctx context.Context) (syncer.Report, error)
	PendingCount(ctx context.Context) (int, error)
	Outbox(ctx context.Context) ([]models.OutboxEntry, error)
}

// Shell reads commands from in and writes results to out.
type Shell struct {
	svc     Service
	scanner *bufio.Scanner
	out     io.Writer
	// Online reports connectivity for the status command; may be nil.
	Online func() bool
}

// New creates a shell bound to svc.
func New(svc Service, in io.Reader, out io.Writer) *Shell {
	return &Shell{svc: svc, scanner: bufio.NewScanner(in), out: out}
}

// Run executes commands until exit, end of input or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	for ctx.Err() == nil {
		fmt.Fprint(s.out, "farmcredit> ")
		if !s.scanner.Scan() {
			return s.scanner.Err()
		}
		args := strings.Fields(s.scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			fmt.Fprintln(s.out, "Bye")
			return nil
		}
		if err := s.exec(ctx, args); err != nil {
			fmt.Fprintf(s.out, "Error: %s\n", describe(err))
		}
	}
	return ctx.Err()
}

func (s *Shell) exec(ctx context.Context, args []string) error {
	arg := func() (string, error) {
		if len(args) < 2 {
			return "", fmt.Errorf("usage: %s <id>", args[0])
		}
		return args[1], nil
	}

	switch args[0] {
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "farmers":
		return s.listFarmers(ctx)
	case "add-farmer":
		return s.addFarmer(ctx)
	case "loans":
		farmerID := ""
		if len(args) > 1 {
			farmerID = args[1]
		}
		return s.listLoans(ctx, farmerID)
	case "add-loan":
		return s.addLoan(ctx)
	case "drafts":
		return s.listDrafts(ctx)
	case "new-draft":
		return s.newDraft(ctx)
	case "submit":
		id, err := arg()
		if err != nil {
			return err
		}
		app, err := s.svc.SubmitDraft(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "Application %s queued (%s)\n", app.ID, app.Status)
	case "apps":
		return s.listApplications(ctx)
	case "show":
		id, err := arg()
		if err != nil {
			return err
		}
		return s.showApplication(ctx, id)
	case "resubmit":
		id, err := arg()
		if err != nil {
			return err
		}
		return s.resubmit(ctx, id)
	case "decide":
		id, err := arg()
		if err != nil {
			return err
		}
		return s.decide(ctx, id)
	case "sync":
		return s.sync(ctx)
	case "outbox":
		return s.listOutbox(ctx)
	case "status":
		n, err := s.svc.PendingCount(ctx)
		if err != nil {
			return err
		}
		state := "unknown"
		if s.Online != nil {
			state = map[bool]string{true: "online", false: "offline"}[s.Online()]
		}
		fmt.Fprintf(s.out, "%s, %d pending\n", state, n)
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
	}
	return nil
}

// ask prints a prompt and returns the trimmed answer.
func (s *Shell) ask(prompt string) string {
	fmt.Fprint(s.out, prompt)
	if !s.scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(s.scanner.Text())
}

// askFloat returns 0 for an empty answer.
func (s *Shell) askFloat(prompt string) (float64, error) {
	v := s.ask(prompt)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", models.ErrValidation, v)
	}
	return f, nil
}

func (s *Shell) listFarmers(ctx context.Context) error {
	snap, err := s.svc.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(snap.Farmers) == 0 {
		fmt.Fprintln(s.out, "No farmers")
	}
	for _, f := range snap.Farmers {
		fmt.Fprintf(s.out, "%s  %-20s %-15s %.2f acres  %s\n", f.ID, f.Name, f.Village, f.LandSize, syncMark(f.SyncState))
	}
	return nil
}

func (s *Shell) addFarmer(ctx context.Context) error {
	f := models.Farmer{
		Name:    s.ask("Name: "),
		Village: s.ask("Village: "),
		Phone:   s.ask("Phone: "),
	}
	var err error
	if f.LandSize, err = s.askFloat("Land size (acres): "); err != nil {
		return err
	}
	saved, err := s.svc.AddFarmer(ctx, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Farmer %s saved\n", saved.ID)
	return nil
}

func (s *Shell) listLoans(ctx context.Context, farmerID string) error {
	snap, err := s.svc.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, l := range snap.Loans {
		if farmerID != "" && l.FarmerID != farmerID {
			continue
		}
		fmt.Fprintf(s.out, "%s  farmer=%s %-10s %.2f %s  %s\n", l.ID, l.FarmerID, l.ProductType, l.Amount, l.Status, syncMark(l.SyncState))
	}
	return nil
}

func (s *Shell) addLoan(ctx context.Context) error {
	l := models.Loan{
		FarmerID:    s.ask("Farmer id: "),
		ProductType: s.ask("Product type: "),
	}
	var err error
	if l.Amount, err = s.askFloat("Amount: "); err != nil {
		return err
	}
	saved, err := s.svc.AddLoan(ctx, l)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Loan %s saved\n", saved.ID)
	return nil
}

func (s *Shell) listDrafts(ctx context.Context) error {
	snap, err := s.svc.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(snap.Drafts) == 0 {
		fmt.Fprintln(s.out, "No drafts")
	}
	for _, d := range snap.Drafts {
		fmt.Fprintf(s.out, "%s  %-20s step %d  %s\n", d.ID, d.Personal.FarmerName, d.Step, d.LastModified.Format("2006-01-02 15:04"))
	}
	return nil
}

func (s *Shell) newDraft(ctx context.Context) error {
	d := s.svc.NewDraft()
	d.Personal.FarmerName = s.ask("Farmer name: ")
	d.Personal.AadhaarOrID = s.ask("Aadhaar or ID: ")
	d.Personal.Phone = s.ask("Phone: ")
	d.Personal.Address.Village = s.ask("Village: ")
	var err error
	if d.LoanRequest.Amount, err = s.askFloat("Loan amount: "); err != nil {
		return err
	}
	d.LoanRequest.Purpose = s.ask("Purpose: ")
	if tenure := s.ask("Tenure (months): "); tenure != "" {
		if d.LoanRequest.Tenure, err = strconv.Atoi(tenure); err != nil {
			return fmt.Errorf("%w: tenure %q is not a number", models.ErrValidation, tenure)
		}
	}
	d.Step = 2
	saved, err := s.svc.SaveDraft(ctx, d)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Draft %s saved\n", saved.ID)
	return nil
}

func (s *Shell) listApplications(ctx context.Context) error {
	snap, err := s.svc.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(snap.Applications) == 0 {
		fmt.Fprintln(s.out, "No applications")
	}
	for _, a := range snap.Applications {
		p := service.MaskedPersonal(a.Personal)
		fmt.Fprintf(s.out, "%s  %-20s %-14s id=%s msgs=%d  %s\n",
			a.ID, p.FarmerName, a.Status, p.AadhaarOrID, len(a.Messages), syncMark(a.SyncState))
	}
	return nil
}

func (s *Shell) showApplication(ctx context.Context, id string) error {
	snap, err := s.svc.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, a := range snap.Applications {
		if a.ID != id {
			continue
		}
		p := service.MaskedPersonal(a.Personal)
		fmt.Fprintf(s.out, "%s  %s  %s\n", a.ID, a.Status, syncMark(a.SyncState))
		fmt.Fprintf(s.out, "Farmer: %s  ID: %s  Phone: %s\n", p.FarmerName, p.AadhaarOrID, p.Phone)
		fmt.Fprintf(s.out, "Loan: %.2f for %s over %d months\n", a.LoanRequest.Amount, a.LoanRequest.Purpose, a.LoanRequest.Tenure)
		for _, m := range a.Messages {
			fmt.Fprintf(s.out, "  [%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04"), m.Sender, m.Text)
		}
		return nil
	}
	return fmt.Errorf("application %s: %w", id, models.ErrNotFound)
}

func (s *Shell) resubmit(ctx context.Context, id string) error {
	amount, err := s.askFloat("New loan amount (empty keeps current): ")
	if err != nil {
		return err
	}
	app, err := s.svc.Resubmit(ctx, id, func(a *models.Application) {
		if amount > 0 {
			a.LoanRequest.Amount = amount
		}
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Application %s queued (%s)\n", app.ID, app.Status)
	return nil
}

func (s *Shell) decide(ctx context.Context, id string) error {
	upd := models.StatusUpdate{
		Role:    models.Role(strings.ToUpper(s.ask("Role (LENDER/AGENT): "))),
		Status:  models.Status(strings.ToUpper(s.ask("Status (empty for message only): "))),
		Message: s.ask("Message: "),
	}
	app, err := s.svc.Decide(ctx, id, upd)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Application %s is %s\n", app.ID, app.Status)
	return nil
}

func (s *Shell) sync(ctx context.Context) error {
	rep, err := s.svc.TriggerSync(ctx)
	switch {
	case rep.Busy:
		fmt.Fprintln(s.out, "Sync already in progress")
		return nil
	case rep.Offline:
		fmt.Fprintln(s.out, "Offline, changes stay queued")
		return nil
	}
	fmt.Fprintf(s.out, "Delivered %d, failed %d, held back %d, %d pending\n",
		rep.Delivered, rep.Failed, rep.Skipped, rep.Pending)
	for _, id := range rep.Updated {
		fmt.Fprintf(s.out, "Application %s was updated by the lender\n", id)
	}
	if rep.PullFailed {
		fmt.Fprintln(s.out, "Could not refresh applications from the server")
	}
	return err
}

func (s *Shell) listOutbox(ctx context.Context) error {
	entries, err := s.svc.Outbox(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(s.out, "Nothing pending")
	}
	for _, e := range entries {
		fmt.Fprintf(s.out, "#%d  %s %s  %s  %s\n", e.ID, e.Method, e.Resource, e.EntityID, e.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func syncMark(st models.SyncState) string {
	if st == models.Confirmed {
		return "synced"
	}
	return "pending"
}

// describe turns an error into a message for the agent.
func describe(err error) string {
	switch {
	case errors.Is(err, storage.ErrStoreIO):
		return "could not save on this device: " + err.Error()
	case errors.Is(err, syncer.ErrAllFailed):
		return "no pending change could be delivered, will retry"
	}
	return err.Error()
}
