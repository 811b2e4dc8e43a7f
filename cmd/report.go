package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/allocation"
	"github.com/Tiliavir/research-hours/internal/export"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/model"
	"github.com/Tiliavir/research-hours/internal/service"
)

var (
	reportMonth    int
	reportYear     int
	reportAllocate bool
	reportEveryone bool
	reportFormat   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the monthly hours summary",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().IntVar(&reportMonth, "month", 0, "Month 1-12 (default current)")
	reportCmd.Flags().IntVar(&reportYear, "year", 0, "Year (default current)")
	reportCmd.Flags().BoolVar(&reportAllocate, "allocate", false, `Spread "other tasks" over active researchers`)
	reportCmd.Flags().BoolVar(&reportEveryone, "everyone", false, "Summarize every user (admin only)")
	reportCmd.Flags().StringVar(&reportFormat, "format", "md", "Output format: md, csv, json")
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	month, year, err := monthYear(a.svc.Today(), reportMonth, reportYear)
	if err != nil {
		return err
	}
	sum, users, err := a.svc.MonthlySummary(ctx, service.SummaryQuery{Month: month, Year: year, Allocate: reportAllocate, Everyone: reportEveryone})
	if err != nil {
		return fail(err)
	}

	switch reportFormat {
	case "csv":
		byLabel, totals := export.SummaryTables(sum, users)
		os.Stdout.Write(export.ToDelimitedText(byLabel, &totals))
	case "json":
		data, err := json.MarshalIndent(reportJSON(sum, users), "", "  ")
		if err != nil {
			return exitWith(2, fmt.Errorf("encoding JSON: %w", err))
		}
		fmt.Println(string(data))
	default: // md
		printSummary(sum, users)
	}
	return nil
}

type labelHours struct {
	Label string  `json:"label"`
	Hours float64 `json:"hours"`
}

type userHours struct {
	UID    string       `json:"uid"`
	Name   string       `json:"name"`
	Hours  float64      `json:"hours"`
	Labels []labelHours `json:"labels"`
}

type summaryJSON struct {
	Month       string       `json:"month"`
	Allocated   bool         `json:"allocated"`
	Labels      []labelHours `json:"labels"`
	Users       []userHours  `json:"users"`
	ActiveUsers int          `json:"active_users"`
	Entries     int          `json:"entries"`
	TotalHours  float64      `json:"total_hours"`
}

func reportJSON(sum allocation.Summary, users map[string]model.Profile) summaryJSON {
	out := summaryJSON{
		Month:       fmt.Sprintf("%04d-%02d", sum.Year, int(sum.Month)),
		Allocated:   sum.AllocateOthers,
		Labels:      []labelHours{},
		Users:       []userHours{},
		ActiveUsers: sum.ActiveUsers,
		Entries:     sum.EntryCount,
		TotalHours:  hours.Round2(sum.TotalHours),
	}
	for _, l := range sum.Labels {
		out.Labels = append(out.Labels, labelHours{Label: l, Hours: hours.Round2(sum.ByLabel[l])})
	}
	for _, uid := range sum.Users {
		u := userHours{UID: uid, Name: displayName(uid, users), Hours: hours.Round2(sum.ByUser[uid])}
		for _, l := range sum.LabelsFor(uid) {
			u.Labels = append(u.Labels, labelHours{Label: l, Hours: hours.Round2(sum.ByUserLabel[uid][l])})
		}
		out.Users = append(out.Users, u)
	}
	return out
}

func printSummary(sum allocation.Summary, users map[string]model.Profile) {
	mode := "raw"
	if sum.AllocateOthers {
		mode = "allocated"
	}
	fmt.Printf("%s %d (%s)\n", sum.Month, sum.Year, mode)
	fmt.Println("--------------------------------")
	for _, l := range sum.Labels {
		fmt.Printf("%-24s%8s\n", l, hours.Format(sum.ByLabel[l]))
	}
	fmt.Println("--------------------------------")
	fmt.Printf("%-24s%8s\n", "Total", hours.Format(sum.TotalHours))

	if len(sum.Users) > 1 {
		fmt.Println()
		for _, uid := range sum.Users {
			fmt.Printf("%-24s%8s\n", displayName(uid, users), hours.Format(sum.ByUser[uid]))
		}
	}
	fmt.Printf("\n%d active users, %d entries\n", sum.ActiveUsers, sum.EntryCount)
}

func displayName(uid string, users map[string]model.Profile) string {
	p := users[uid]
	p.UID = uid
	return p.DisplayName()
}
