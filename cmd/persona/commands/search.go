package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/personakb/persona/kb/types"
)

// SearchCmd represents the search command
var SearchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search claims",
	Long: `search — Search claims across strategies

Fans the query out over the enabled strategies (lexical full-text, vector
similarity, query rewrite, LLM scoring), fuses the rankings, and prints the
top results. Contested claims are flagged.

Examples:
  persona search "coffee"
  persona search "what do I eat for breakfast" -k 5
  persona search "deadline" --domain work --status active
  persona search "gym" --strategy lexical --strategy vector`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchKFlag          int
	searchStatusFlag     []string
	searchDomainFlag     []string
	searchTypeFlag       []string
	searchStrategiesFlag []string
)

func init() {
	SearchCmd.Flags().IntVarP(&searchKFlag, "k", "k", 10, "Number of results")
	SearchCmd.Flags().StringSliceVar(&searchStatusFlag, "status", nil, "Filter by status")
	SearchCmd.Flags().StringSliceVar(&searchDomainFlag, "domain", nil, "Filter by domain")
	SearchCmd.Flags().StringSliceVar(&searchTypeFlag, "type", nil, "Filter by type")
	SearchCmd.Flags().StringSliceVar(&searchStrategiesFlag, "strategy", nil, "Strategy subset to run (default: configured set)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	req := types.SearchRequest{
		Query:      args[0],
		K:          searchKFlag,
		Strategies: searchStrategiesFlag,
	}
	for _, s := range searchStatusFlag {
		req.Filters.Statuses = append(req.Filters.Statuses, types.ClaimStatus(s))
	}
	for _, d := range searchDomainFlag {
		req.Filters.Domains = append(req.Filters.Domains, types.Domain(d))
	}
	for _, ct := range searchTypeFlag {
		req.Filters.Types = append(req.Filters.Types, types.ClaimType(ct))
	}

	results, err := eng.orchestrator.Search(cmd.Context(), req)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		pterm.Info.Println("No results")
		return nil
	}

	for i, result := range results {
		marker := " "
		if result.IsContested {
			marker = pterm.Yellow("!")
		}
		fmt.Printf("%2d. %s %-28s %.4f  %s\n",
			i+1, marker, result.Claim.FriendlyID, result.Score,
			truncate(result.Claim.Statement, 70))
		if len(result.Contributors) > 1 {
			fmt.Printf("       via %v\n", result.Contributors)
		}
	}

	contested := 0
	for _, result := range results {
		if result.IsContested {
			contested++
		}
	}
	if contested > 0 {
		pterm.Warning.Printf("%d result(s) are contested; run 'persona claim show <id>' to review\n", contested)
	}
	return nil
}
