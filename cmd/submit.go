package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/service"
)

var (
	submitDate    string
	submitEntries []string
	submitNoWork  bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a daily or weekly report",
}

var submitDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Create or replace the daily report for a date",
	Example: `  hours submit daily --entry Alpha=4 --entry "other tasks=2:department meeting"
  hours submit daily --date 2025-09-01 --no-work`,
	Args: cobra.NoArgs,
	RunE: runSubmitDaily,
}

var submitWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Submit a weekly report (Thursday or Sunday only)",
	Example: `  hours submit weekly --entry Alpha=3 --entry Beta=2`,
	Args:    cobra.NoArgs,
	RunE:    runSubmitWeekly,
}

func init() {
	for _, c := range []*cobra.Command{submitDailyCmd, submitWeeklyCmd} {
		c.Flags().StringVar(&submitDate, "date", "", "Report date (YYYY-MM-DD); defaults to today")
		c.Flags().StringArrayVar(&submitEntries, "entry", nil, "Entry as label=amount[:detail]; repeatable")
	}
	submitDailyCmd.Flags().BoolVar(&submitNoWork, "no-work", false, "Record a day without work")
	submitCmd.AddCommand(submitDailyCmd)
	submitCmd.AddCommand(submitWeeklyCmd)
}

// parseEntry parses label=amount[:detail]. Amount is hours for daily
// reports and days for weekly ones.
func parseEntry(s string, kind model.Kind) (model.Entry, error) {
	label, rest, found := strings.Cut(s, "=")
	label = strings.TrimSpace(label)
	if !found || label == "" {
		return model.Entry{}, fmt.Errorf("entry %q: want label=amount[:detail]", s)
	}
	amountStr, detail, _ := strings.Cut(rest, ":")
	amount, err := strconv.ParseFloat(strings.TrimSpace(amountStr), 64)
	if err != nil || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return model.Entry{}, fmt.Errorf("entry %q: invalid amount %q", s, amountStr)
	}
	e := model.Entry{Researcher: label, Detail: strings.TrimSpace(detail)}
	if kind == model.KindWeekly {
		e.Days = amount
	} else {
		e.Hours = amount
	}
	return e, nil
}

func parseEntries(kind model.Kind) ([]model.Entry, error) {
	entries := make([]model.Entry, 0, len(submitEntries))
	for _, s := range submitEntries {
		e, err := parseEntry(s, kind)
		if err != nil {
			return nil, exitWith(1, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func runSubmitDaily(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := a.svc.ParseDate(submitDate)
	if err != nil {
		return exitWith(1, fmt.Errorf("invalid --date value %q: %w", submitDate, err))
	}
	entries, err := parseEntries(model.KindDaily)
	if err != nil {
		return err
	}
	d, err := a.svc.SubmitDaily(ctx, service.DailyDraft{Date: date, NoWork: submitNoWork, Entries: entries})
	if err != nil {
		return submitError(err)
	}
	fmt.Printf("Saved daily report %s: %sh\n", d.Key, hours.Format(hours.Total(d)))
	return nil
}

func runSubmitWeekly(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := a.svc.ParseDate(submitDate)
	if err != nil {
		return exitWith(1, fmt.Errorf("invalid --date value %q: %w", submitDate, err))
	}
	entries, err := parseEntries(model.KindWeekly)
	if err != nil {
		return err
	}
	w, err := a.svc.SubmitWeekly(ctx, service.WeeklyDraft{Date: date, Entries: entries})
	if err != nil {
		return submitError(err)
	}
	fmt.Printf("Saved weekly report %s (%s): %sh\n", w.Key, w.Label, hours.Format(hours.Total(w)))
	return nil
}

// submitError prints a rule rejection itself so the message keeps its
// "Rejected:" prefix.
func submitError(err error) error {
	var rej *service.RejectionError
	if errors.As(err, &rej) {
		fmt.Fprintf(os.Stderr, "Rejected: %s\n", rej.Decision.Message)
		return exitWith(1, nil)
	}
	return fail(err)
}
