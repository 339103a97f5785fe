package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// ExitUnbalanced is returned when a report or check finds the books out of balance.
const ExitUnbalanced = 10

// ReportSource produces ledger reports.
type ReportSource interface {
	TrialBalance(ctx context.Context, asOf time.Time) (reports.TrialBalance, error)
	Ledger(ctx context.Context, accountID int64, from, to time.Time) (reports.Ledger, error)
}

// IntegrityChecker runs the general ledger integrity check.
type IntegrityChecker interface {
	Run(ctx context.Context, asOf time.Time) (jobs.IntegrityReport, error)
}

// LedgerOpsCLI prints ledger reports for operators.
type LedgerOpsCLI struct {
	reports   ReportSource
	integrity IntegrityChecker
	printer   *message.Printer
}

// NewLedgerOpsCLI constructs the helper. integrity may be nil when the
// integrity command is not exposed.
func NewLedgerOpsCLI(source ReportSource, integrity IntegrityChecker) (*LedgerOpsCLI, error) {
	if source == nil {
		return nil, errors.New("ledger cli: report source required")
	}
	return &LedgerOpsCLI{
		reports:   source,
		integrity: integrity,
		printer:   message.NewPrinter(language.English),
	}, nil
}

// TrialBalanceOptions defines flags for the trial balance command.
type TrialBalanceOptions struct {
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// LedgerOptions defines flags for the account ledger command.
type LedgerOptions struct {
	AccountID  int64
	From       string
	To         string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// IntegrityOptions defines flags for the integrity command.
type IntegrityOptions struct {
	AsOf       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// TrialBalanceCommand prints the trial balance and returns the exit code.
func (c *LedgerOpsCLI) TrialBalanceCommand(ctx context.Context, opts TrialBalanceOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	asOf, err := parseDay(opts.AsOf, time.Now().UTC())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "trial-balance: invalid --as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
		return 1
	}
	tb, err := c.reports.TrialBalance(ctx, asOf)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "trial-balance: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(tb); err != nil {
			_, _ = fmt.Fprintf(stderr, "trial-balance: encode json: %v\n", err)
			return 1
		}
	} else {
		c.renderTrialBalance(stdout, tb)
	}
	if !tb.Balanced() {
		return ExitUnbalanced
	}
	return 0
}

// LedgerCommand prints an account statement and returns the exit code.
func (c *LedgerOpsCLI) LedgerCommand(ctx context.Context, opts LedgerOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	if opts.AccountID <= 0 {
		_, _ = fmt.Fprintln(stderr, "ledger: --account is required and must be positive")
		return 1
	}
	to, err := parseDay(opts.To, time.Now().UTC())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledger: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}
	from, err := parseDay(opts.From, time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledger: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	ledger, err := c.reports.Ledger(ctx, opts.AccountID, from, to)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ledger: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(stdout).Encode(ledger); err != nil {
			_, _ = fmt.Fprintf(stderr, "ledger: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	c.renderLedger(stdout, ledger)
	return 0
}

// IntegrityCommand runs the integrity check and returns ExitUnbalanced when it fails.
func (c *LedgerOpsCLI) IntegrityCommand(ctx context.Context, opts IntegrityOptions) int {
	stdout, stderr := streams(opts.Stdout, opts.Stderr)
	if c.integrity == nil {
		_, _ = fmt.Fprintln(stderr, "integrity: checker not configured")
		return 1
	}
	asOf, err := parseDay(opts.AsOf, time.Now().UTC())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "integrity: invalid --as-of %q (expected YYYY-MM-DD)\n", opts.AsOf)
		return 1
	}
	report, err := c.integrity.Run(ctx, asOf)
	if err != nil && !errors.Is(err, jobs.ErrIntegrity) {
		_, _ = fmt.Fprintf(stderr, "integrity: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		out := struct {
			OK bool `json:"ok"`
			jobs.IntegrityReport
		}{OK: report.OK(), IntegrityReport: report}
		if err := json.NewEncoder(stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(stderr, "integrity: encode json: %v\n", err)
			return 1
		}
	} else {
		c.renderIntegrity(stdout, report)
	}
	if !report.OK() {
		return ExitUnbalanced
	}
	return 0
}

func (c *LedgerOpsCLI) renderTrialBalance(out io.Writer, tb reports.TrialBalance) {
	_, _ = fmt.Fprintf(out, "Trial balance as of %s\n", tb.AsOf.Format(time.DateOnly))
	_, _ = fmt.Fprintf(out, "%-8s %-30s %18s %18s\n", "Code", "Account", "Debit", "Credit")
	for _, row := range tb.Rows {
		name := row.Name
		if !row.IsActive {
			name += " (inactive)"
		}
		_, _ = fmt.Fprintf(out, "%-8s %-30s %18s %18s\n", row.Code, name, c.amount(row.Debit), c.amount(row.Credit))
	}
	_, _ = fmt.Fprintf(out, "%-39s %18s %18s\n", "Total", c.amount(tb.TotalDebits), c.amount(tb.TotalCredits))
	if tb.Balanced() {
		_, _ = fmt.Fprintln(out, "Books balance.")
		return
	}
	_, _ = fmt.Fprintf(out, "OUT OF BALANCE by %s\n", c.amount(tb.Difference()))
}

func (c *LedgerOpsCLI) renderLedger(out io.Writer, l reports.Ledger) {
	_, _ = fmt.Fprintf(out, "Ledger %s %s from %s to %s\n", l.Account.Code, l.Account.Name,
		l.From.Format(time.DateOnly), l.To.Format(time.DateOnly))
	_, _ = fmt.Fprintf(out, "Opening balance %s\n", c.amount(l.OpeningBalance))
	for _, e := range l.Transactions {
		_, _ = fmt.Fprintf(out, "%s %-10s %-30s %14s %14s %16s\n", e.Date.Format(time.DateOnly), e.GroupID,
			truncate(e.Description, 30), c.amount(e.Debit), c.amount(e.Credit), c.amount(e.RunningBalance))
	}
	_, _ = fmt.Fprintf(out, "Totals debit %s credit %s\n", c.amount(l.TotalDebit), c.amount(l.TotalCredit))
	_, _ = fmt.Fprintf(out, "Closing balance %s\n", c.amount(l.ClosingBalance))
}

func (c *LedgerOpsCLI) renderIntegrity(out io.Writer, r jobs.IntegrityReport) {
	_, _ = fmt.Fprintf(out, "GL integrity as of %s\n", r.AsOf.Format(time.DateOnly))
	if len(r.Unbalanced) == 0 {
		_, _ = fmt.Fprintln(out, "All posting groups balance.")
	} else {
		_, _ = fmt.Fprintf(out, "%d unbalanced group(s):\n", len(r.Unbalanced))
		for _, g := range r.Unbalanced {
			_, _ = fmt.Fprintf(out, " - %s legs=%d debit=%s credit=%s\n", g.GroupID, g.Legs, c.amount(g.Debit), c.amount(g.Credit))
		}
	}
	_, _ = fmt.Fprintf(out, "Trial balance debits %s credits %s\n", c.amount(r.Trial.TotalDebits), c.amount(r.Trial.TotalCredits))
}

// amount renders d with two decimals and English digit grouping.
func (c *LedgerOpsCLI) amount(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	whole := d.Truncate(0)
	frac := d.Sub(whole).StringFixed(2)
	return sign + c.printer.Sprintf("%d", whole.IntPart()) + strings.TrimPrefix(frac, "0")
}

func streams(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

func parseDay(v string, fallback time.Time) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Date(fallback.Year(), fallback.Month(), fallback.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(time.DateOnly, v)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "~"
}
