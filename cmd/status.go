package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/coverage"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/timecalc"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's reporting status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reports, err := a.svc.Reports(ctx)
	if err != nil {
		return fail(err)
	}
	today := a.svc.Today()

	fmt.Printf("User:  %s (%s)\n", a.uid, a.cfg.Store.Driver)
	fmt.Printf("Today: %s %s\n", timecalc.FormatDate(today), today.Weekday())

	c := coverage.Find(today, reports)
	switch {
	case c.Daily != nil:
		fmt.Printf("Reported today: %sh (%s)\n", hours.Format(hours.Total(*c.Daily)), c.Daily.WorkStatus)
	case c.Weekly != nil:
		fmt.Printf("Covered by weekly report %s\n", c.Weekly.Label)
	case timecalc.IsWorkday(today):
		fmt.Println("Nothing reported today.")
	default:
		fmt.Println("Not a workday.")
	}

	// This week's total, Sunday through today.
	sunday := timecalc.SundayOf(today)
	var week float64
	for _, r := range reports {
		from, to := r.Span()
		if !to.Before(sunday) && !from.After(timecalc.EndOfDay(today)) {
			week += hours.Total(r)
		}
	}
	fmt.Printf("This week: %sh logged.\n", hours.Format(week))
	return nil
}
