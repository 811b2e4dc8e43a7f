package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage administrators of the local store",
	Long: `Manage administrators of the local store. Admins may read every user's
reports and edit the global researcher list. With the firebase driver this
is governed by the database rules instead.`,
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant <uid>",
	Short: "Make a user an administrator",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAdmin(args[0], true) },
}

var adminRevokeCmd = &cobra.Command{
	Use:   "revoke <uid>",
	Short: "Remove administrator rights",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setAdmin(args[0], false) },
}

var adminResearchersCmd = &cobra.Command{
	Use:   "researchers <label>...",
	Short: "Replace the global researcher list",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdminResearchers,
}

func init() {
	adminCmd.AddCommand(adminGrantCmd)
	adminCmd.AddCommand(adminRevokeCmd)
	adminCmd.AddCommand(adminResearchersCmd)
}

func setAdmin(uid string, admin bool) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.db == nil {
		return exitWith(1, errors.New("admin rights are managed in the Firebase console for the firebase driver"))
	}
	if err := a.db.SetAdmin(ctx, uid, admin); err != nil {
		return exitWith(2, err)
	}
	if admin {
		fmt.Printf("%s is now an administrator\n", uid)
	} else {
		fmt.Printf("%s is no longer an administrator\n", uid)
	}
	return nil
}

func runAdminResearchers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.WriteResearchers(ctx, args); err != nil {
		return fail(err)
	}
	fmt.Printf("Global researchers: %s\n", joinOrNone(args))
	return nil
}
