package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ResolveCmd represents the resolve command
var ResolveCmd = &cobra.Command{
	Use:   "resolve REFERENCE",
	Short: "Resolve a reference to its claims",
	Long: `resolve — Resolve a reference to its claims

Accepts claim ids, friendly ids, typed references with a trailing marker
(:context, :tag, :entity, :domain), and bare names. Typed references expand
to every claim in the matched scope.

Examples:
  persona resolve 3f2b8c1a-7d4e-4f2a-9b6c-1a2b3c4d5e6f
  persona resolve oat-milk-a1b2c3
  persona resolve health:context
  persona resolve caffeine:tag
  persona resolve work:domain`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.resolver.Resolve(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	pterm.Info.Printf("Resolved as %s: %s\n", res.Type, res.SourceName)
	if len(res.Claims) == 0 {
		pterm.Info.Println("No claims in scope")
		return nil
	}
	for _, claim := range res.Claims {
		fmt.Printf("  [%s] %s: %s\n", claim.Status, claim.FriendlyID,
			truncate(claim.Statement, 70))
	}
	return nil
}
