package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/logohunter/internal/storage/postgres"
)

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history DOMAIN",
		Short: "Show the last recorded batch result for a domain",
		Long: `Prints the most recent batch result stored in Postgres for DOMAIN as JSON.
Requires database.dsn.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			store := appInstance.Results()
			if store == nil {
				return errors.New("history requires database.dsn")
			}
			res, err := store.Latest(cmd.Context(), args[0])
			if errors.Is(err, postgres.ErrNotFound) {
				return fmt.Errorf("no recorded result for %s", args[0])
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
}
