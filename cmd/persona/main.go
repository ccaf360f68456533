package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/personakb/persona/cmd/persona/commands"
	"github.com/personakb/persona/logger"
)

var rootCmd = &cobra.Command{
	Use:   "persona",
	Short: "Persona - personal knowledge store",
	Long: `Persona - claim-based personal knowledge store.

Persona stores what you know about yourself as claims: atomic statements
with a lifecycle, organized into tag and context hierarchies, searched
with fused lexical and semantic retrieval, and kept honest through
conflict sets.

Available commands:
  claim    - Add, edit, retract, and list claims
  search   - Search claims across strategies
  conflict - Manage contradiction conflict sets
  tag      - Manage the tag hierarchy
  context  - Manage the context hierarchy
  resolve  - Resolve a reference to its claims
  db       - Database operations

Examples:
  persona claim add "I prefer oat milk" --type preference
  persona search "coffee" -k 5
  persona conflict create <id1> <id2>
  persona context tree
  persona resolve health:context`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ClaimCmd)
	rootCmd.AddCommand(commands.SearchCmd)
	rootCmd.AddCommand(commands.ConflictCmd)
	rootCmd.AddCommand(commands.TagCmd)
	rootCmd.AddCommand(commands.ContextCmd)
	rootCmd.AddCommand(commands.ResolveCmd)
	rootCmd.AddCommand(commands.DbCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
