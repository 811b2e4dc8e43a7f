package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	todayFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "hours",
	Short: "research-hours – daily and weekly work-hour reports",
	Long: `hours records daily and weekly work-hour reports against research
projects and builds the monthly summaries and exports an admin needs.
Reports are kept in a local SQLite file or a Firebase Realtime Database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if msg := err.Error(); msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(exitStatus(err))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ~/.hours/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&todayFlag, "today", "", "Evaluate rules as if today were this date (YYYY-MM-DD)")
	_ = rootCmd.PersistentFlags().MarkHidden("today")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(researchersCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(adminCmd)
}
