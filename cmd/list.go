package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

var (
	listMonth int
	listYear  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your reports for a month",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listMonth, "month", 0, "Month 1-12 (default current)")
	listCmd.Flags().IntVar(&listYear, "year", 0, "Year (default current)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	month, year, err := monthYear(a.svc.Today(), listMonth, listYear)
	if err != nil {
		return err
	}
	reports, err := a.svc.Reports(ctx)
	if err != nil {
		return fail(err)
	}

	var selected model.Collection
	for _, r := range reports {
		if allocation.InMonth(r, month, year) {
			selected = append(selected, r)
		}
	}
	printList(selected)
	return nil
}

// monthYear fills unset month/year flags from today.
func monthYear(today time.Time, month, year int) (time.Month, int, error) {
	if month == 0 {
		month = int(today.Month())
	}
	if month < 1 || month > 12 {
		return 0, 0, exitWith(1, fmt.Errorf("invalid --month value %d (use 1-12)", month))
	}
	if year == 0 {
		year = today.Year()
	}
	return time.Month(month), year, nil
}

// printList prints reports in date order with their entries.
func printList(reports model.Collection) {
	if len(reports) == 0 {
		fmt.Println("No reports found.")
		return
	}
	sort.SliceStable(reports, func(i, j int) bool {
		a, _ := reports[i].Span()
		b, _ := reports[j].Span()
		return a.Before(b)
	})

	for _, r := range reports {
		switch v := r.(type) {
		case model.Daily:
			fmt.Printf("%s  daily   %-8s %sh\n", timecalc.FormatDate(v.Date), v.WorkStatus, hours.Format(hours.Total(v)))
		case model.Weekly:
			fmt.Printf("%s  weekly           %sh\n", v.Label, hours.Format(hours.Total(v)))
		}
		for _, e := range r.Head().Entries {
			unit := "h"
			if r.Kind() == model.KindWeekly {
				unit = "d"
			}
			line := fmt.Sprintf("  %-24s%s%s", e.Researcher, hours.Format(hours.Amount(e, r.Kind())), unit)
			if e.Detail != "" {
				line += "  (" + e.Detail + ")"
			}
			fmt.Println(line)
		}
	}
}
