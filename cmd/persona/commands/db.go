package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/personakb/persona/config"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database operations",
	Long: `db — Database operations

Examples:
  persona db migrate    # Apply pending migrations
  persona db stats      # Show table counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Println("Migrations applied")
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database Statistics\n")
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path: %s\n\n", cfg.Database.Path)

	tables := []struct {
		label string
		query string
	}{
		{"Claims", "SELECT COUNT(*) FROM claims"},
		{"  contested", "SELECT COUNT(*) FROM claims WHERE status = 'contested'"},
		{"  retracted", "SELECT COUNT(*) FROM claims WHERE status = 'retracted'"},
		{"Tags", "SELECT COUNT(*) FROM tags"},
		{"Contexts", "SELECT COUNT(*) FROM contexts"},
		{"Entities", "SELECT COUNT(*) FROM entities"},
		{"Conflict sets", "SELECT COUNT(*) FROM conflict_sets"},
		{"  open", "SELECT COUNT(*) FROM conflict_sets WHERE status = 'open'"},
		{"Cached embeddings", "SELECT COUNT(*) FROM embeddings"},
	}
	for _, table := range tables {
		var count int
		if err := database.QueryRow(table.query).Scan(&count); err != nil {
			return fmt.Errorf("failed to query %s: %w", table.label, err)
		}
		fmt.Printf("%-18s %d\n", table.label+":", count)
	}
	return nil
}
