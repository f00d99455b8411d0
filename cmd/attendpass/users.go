package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		identities, err := store.LookupIdentities(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(identities) == 0 {
			fmt.Fprintln(out, "No identities enrolled.")
			return nil
		}

		fmt.Fprintln(out, "Enrolled identities:")
		for _, identity := range identities {
			fmt.Fprintf(out, "  %-36s  %-24s  %s\n", identity.ID, identity.Name, identity.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(out, "\nTotal: %d\n", len(identities))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
}
