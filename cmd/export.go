package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/research-hours/internal/export"
	"github.com/Tiliavir/research-hours/internal/hours"
	"github.com/Tiliavir/research-hours/internal/service"
)

var (
	exportMonth    int
	exportYear     int
	exportAllocate bool
	exportEveryone bool
	exportFormat   string
	exportDetailed bool
	exportOut      string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the monthly summary to a CSV or XLSX file",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().IntVar(&exportMonth, "month", 0, "Month 1-12 (default current)")
	exportCmd.Flags().IntVar(&exportYear, "year", 0, "Year (default current)")
	exportCmd.Flags().BoolVar(&exportAllocate, "allocate", false, `Spread "other tasks" over active researchers`)
	exportCmd.Flags().BoolVar(&exportEveryone, "everyone", false, "Export every user (admin only)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv, xlsx")
	exportCmd.Flags().BoolVar(&exportDetailed, "detailed", false, "Include one row per report entry")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "Output directory (default export.dir from config)")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if exportFormat != service.FormatCSV && exportFormat != service.FormatXLSX {
		return exitWith(1, fmt.Errorf("invalid --format value %q (use csv or xlsx)", exportFormat))
	}
	month, year, err := monthYear(a.svc.Today(), exportMonth, exportYear)
	if err != nil {
		return err
	}
	res, err := a.svc.Export(ctx, service.ExportQuery{
		SummaryQuery: service.SummaryQuery{Month: month, Year: year, Allocate: exportAllocate, Everyone: exportEveryone},
		Format:       exportFormat,
		Detailed:     exportDetailed,
	})
	if err != nil {
		return fail(err)
	}

	dir := exportOut
	if dir == "" {
		dir = a.cfg.Export.Dir
	}
	path, err := export.WriteFile(dir, res.Name, res.Data)
	if err != nil {
		return exitWith(2, err)
	}
	fmt.Printf("Wrote %s (%d entries, %sh)\n", path, res.Summary.EntryCount, hours.Format(res.Summary.TotalHours))
	return nil
}
