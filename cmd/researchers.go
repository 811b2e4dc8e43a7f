package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var researchersCmd = &cobra.Command{
	Use:   "researchers",
	Short: "Show or change the researchers you report against",
}

var researchersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the global and your active researchers",
	Args:  cobra.NoArgs,
	RunE:  runResearchersList,
}

var researchersSetCmd = &cobra.Command{
	Use:   "set <label>...",
	Short: "Replace your active researchers",
	Long: `Replace your active researchers. "other tasks" is allocated over
this list in allocated summaries. Pass no labels to clear it.`,
	RunE: runResearchersSet,
}

func init() {
	researchersCmd.AddCommand(researchersListCmd)
	researchersCmd.AddCommand(researchersSetCmd)
}

func runResearchersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	d := a.svc.Directory(ctx)
	fmt.Printf("Global: %s\n", joinOrNone(d.Global))
	fmt.Printf("Active: %s\n", joinOrNone(d.Active))
	fmt.Println("Selectable:")
	for _, l := range d.Selectable {
		fmt.Printf("  %s\n", l)
	}
	return nil
}

func runResearchersSet(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	active, err := a.svc.SetResearchers(ctx, args)
	if err != nil {
		return fail(err)
	}
	fmt.Printf("Active researchers: %s\n", joinOrNone(active))
	return nil
}

func joinOrNone(labels []string) string {
	if len(labels) == 0 {
		return "(none)"
	}
	return strings.Join(labels, ", ")
}
