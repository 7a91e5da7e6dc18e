package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the convmem tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			be, err := openBackend(cmd.Context(), st.cfg)
			if err != nil {
				return err
			}
			defer be.close()

			if be.migrate == nil {
				return errNoDatabase
			}
			if err := be.migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			st.logger.Info("schema migrated", "driver", st.cfg.Driver)
			return nil
		},
	}
}
