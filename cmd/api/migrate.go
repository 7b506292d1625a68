package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridesplit/ridesplit/internal/repository"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database migrations",
	Long: `Applies every pending migration to DATABASE_URL. Running it again when
the schema is current is a no-op.

With --down every migration is rolled back, dropping all ridesplit tables.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		migrate, direction := repository.Migrate, "up"
		if migrateDown {
			migrate, direction = repository.MigrateDown, "down"
		}

		if err := migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate %s: %s", direction, sanitizeError(err, cfg.DatabaseURL))
		}

		logger.Info("migrations complete",
			"direction", direction,
			"database_url", redactURL(cfg.DatabaseURL),
		)
		return nil
	},
}
