package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// backupCmd represents the backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database once",
	Long: `Backup takes a pg_dump snapshot into the configured backup
directory and prunes old snapshots down to the retention count.

Example:
  cuprum backup`,
	RunE: runBackup,
}

func init() {
	rootCmd.AddCommand(backupCmd)
}

func runBackup(cmd *cobra.Command, args []string) error {
	d, err := initDeps(false)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer d.close()

	if err := d.backupMgr.Run(context.Background()); err != nil {
		return fmt.Errorf("backup: %w", err)
	}

	fmt.Println("Backup completed")
	return nil
}
