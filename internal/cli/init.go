package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stackmem/stackmem/internal/config"
	"github.com/stackmem/stackmem/internal/db"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialise stackmem in the current directory",
		Long: `Create the .stackmem directory, the SQLite database, the tier payload
directories, and a default config.toml you can edit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := os.Getwd()
			if err != nil {
				return err
			}

			if _, err := os.Stat(config.ProjectConfigPath(root)); err == nil {
				fmt.Println("stackmem is already initialised here.")
				return nil
			}

			if err := config.Save(root, config.Default()); err != nil {
				return err
			}

			database, err := db.Open(config.ProjectDBPath(root))
			if err != nil {
				return fmt.Errorf("create database: %w", err)
			}
			defer database.Close()

			for _, sub := range []string{"warm", "cold"} {
				if err := os.MkdirAll(config.ProjectTierDir(root)+string(os.PathSeparator)+sub, 0o755); err != nil {
					return fmt.Errorf("create tier directory: %w", err)
				}
			}

			fmt.Printf("Initialised stackmem in %s\n", config.ProjectDir(root))
			fmt.Println("Edit .stackmem/config.toml to tune scoring weights and tier policy.")
			return nil
		},
	}
}
