package main

import (
	"fmt"
	"io"
	"os"

	"github.com/MrCodeEU/attendpass/pkg/attendance"
	"github.com/MrCodeEU/attendpass/pkg/logging"
	"github.com/spf13/cobra"
)

var (
	exportFrom string
	exportTo   string
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export attendance records as CSV",
	Long: `Write the attendance records of a day range as CSV with the columns
Sr No, User ID, Username, Status, Timestamp (DD-MM-YYYY HH:MM).`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "First day, YYYY-MM-DD (default today)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Last day, YYYY-MM-DD (default --from)")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "Output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	from, err := parseDay(exportFrom)
	if err != nil {
		return err
	}
	to := from
	if exportTo != "" {
		if to, err = parseDay(exportTo); err != nil {
			return err
		}
	}
	if to.Before(from) {
		return fmt.Errorf("--to %s is before --from %s", to.Format(dayLayout), from.Format(dayLayout))
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var w io.Writer = cmd.OutOrStdout()
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", exportOut, err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	n, err := attendance.Export(cmd.Context(), store, from, to, w)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	logging.Infof("Exported %d attendance record(s) from %s to %s", n, from.Format(dayLayout), to.Format(dayLayout))
	return nil
}
