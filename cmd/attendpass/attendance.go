package main

import (
	"fmt"

	"github.com/MrCodeEU/attendpass/pkg/attendance"
	"github.com/spf13/cobra"
)

var attendanceDate string

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show the attendance of one day",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		day, err := parseDay(attendanceDate)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		ctx := cmd.Context()
		records, err := store.ListAttendance(ctx, day, day)
		if err != nil {
			return err
		}
		identities, err := store.LookupIdentities(ctx)
		if err != nil {
			return err
		}
		names := make(map[string]string, len(identities))
		for _, identity := range identities {
			names[identity.ID] = identity.Name
		}

		out := cmd.OutOrStdout()
		rows := attendance.ExportRows(records, names)
		if len(rows) == 0 {
			fmt.Fprintf(out, "No attendance recorded on %s.\n", day.Format(dayLayout))
			return nil
		}

		fmt.Fprintf(out, "Attendance on %s:\n", day.Format(dayLayout))
		for _, row := range rows {
			fmt.Fprintf(out, "  %3d  %-24s  %-8s  %s\n", row.SrNo, row.Username, row.Status, row.Timestamp)
		}
		fmt.Fprintf(out, "\nTotal: %d\n", len(rows))
		return nil
	},
}

func init() {
	attendanceCmd.Flags().StringVar(&attendanceDate, "date", "", "Day to show, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(attendanceCmd)
}
