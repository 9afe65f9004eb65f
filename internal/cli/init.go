package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/quill/internal/config"
	"github.com/example/quill/internal/db"
	"github.com/example/quill/internal/wire"
)

// InitCmd returns the init command
func InitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the quill home and database",
		Long: `Write a default quill.yaml into the quill home ($QUILL_HOME or ~/.quill)
and create the database with the current schema. Existing files are left alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.Home()
			if err != nil {
				return err
			}

			path, wrote, err := config.WriteDefault(home)
			if err != nil {
				return err
			}
			if wrote {
				fmt.Printf("✓ Config written to %s\n", path)
			} else {
				fmt.Printf("Config already present at %s\n", path)
			}

			cfg := wire.Config()
			version, err := db.CurrentVersion(wire.DB())
			if err != nil {
				return fmt.Errorf("failed to read schema version: %w", err)
			}
			fmt.Printf("✓ Database ready at %s (schema v%d)\n", cfg.Database.Path, version)
			fmt.Println()
			fmt.Println("Next steps:")
			fmt.Println("  quill plan create my-novel --template novel")
			fmt.Println("  quill plan list")
			return nil
		},
	}
}
