package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/rules"
)

var checkDate string

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show whether a report may be created or edited for a date",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDate, "date", "", "Date to check (YYYY-MM-DD); defaults to today")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	date, err := a.svc.ParseDate(checkDate)
	if err != nil {
		return exitWith(1, fmt.Errorf("invalid --date value %q: %w", checkDate, err))
	}
	v, err := a.svc.Validity(ctx, date)
	if err != nil {
		return fail(err)
	}

	fmt.Printf("Date:     %s (%s)\n", v.Date, v.Period)
	if v.Key != "" {
		fmt.Printf("Coverage: %s (%s)\n", v.Coverage, v.Key)
	} else {
		fmt.Printf("Coverage: %s\n", v.Coverage)
	}
	fmt.Printf("Create:   %s\n", yesNo(v.Create))
	fmt.Printf("Edit:     %s\n", yesNo(v.Edit))
	fmt.Printf("Weekly:   %s\n", yesNo(v.Weekly))
	fmt.Printf("Week:     %s\n", v.WeekLabel)
	return nil
}

func yesNo(d rules.Decision) string {
	if d.Allowed {
		return "yes"
	}
	return "no – " + d.Message
}
