package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/session"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow your reports (and, for admins, everyone's) live",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl := session.NewController(a.logger, func(s session.Snapshot) {
		fmt.Println(describeSnapshot(s, time.Now()))
	})
	if err := ctrl.SignIn(ctx, a.uid, a.store); err != nil {
		return fail(err)
	}
	snap := ctrl.Snapshot()
	a.logger.Info("Watching", zap.String("session", snap.ID), zap.Bool("privileged", snap.Privileged))
	fmt.Fprintln(os.Stderr, "Watching for changes, press Ctrl+C to stop.")

	<-ctx.Done()
	ctrl.SignOut()
	return nil
}

func describeSnapshot(s session.Snapshot, now time.Time) string {
	var total float64
	for _, r := range s.Reports {
		total += hours.Total(r)
	}
	line := fmt.Sprintf("%s  %s: %d reports, %sh", now.Format("15:04:05"), s.Profile.DisplayName(), len(s.Reports), hours.Format(total))
	if s.Privileged {
		reports := 0
		for _, c := range s.AllReports {
			reports += len(c)
		}
		line += fmt.Sprintf(" | all users: %d, all reports: %d", len(s.AllUsers), reports)
	}
	return line
}
