package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/personakb/persona/kb/types"
)

// ClaimCmd represents the claim command
var ClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Add, edit, retract, and list claims",
	Long: `claim — Manage claims

A claim is one atomic statement about you with a lifecycle status.

Examples:
  persona claim add "I prefer oat milk" --type preference
  persona claim add "standup at 9:30" --domain work --tag work-rituals
  persona claim show oat-milk-a1b2c3
  persona claim edit <id> --statement "I prefer soy milk"
  persona claim rm <id>
  persona claim ls --status active --domain personal`,
}

var (
	claimTypeFlag       string
	claimDomainFlag     string
	claimConfidenceFlag float64
	claimTagsFlag       []string
	claimEntitiesFlag   []string
	claimFriendlyFlag   string

	editStatementFlag  string
	editTypeFlag       string
	editDomainFlag     string
	editStatusFlag     string
	editConfidenceFlag float64

	listStatusFlag []string
	listDomainFlag []string
	listTypeFlag   []string
	listLimitFlag  int
)

var claimAddCmd = &cobra.Command{
	Use:   "add STATEMENT",
	Short: "Add a new claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaimAdd,
}

var claimShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a claim by id or friendly id",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaimShow,
}

var claimEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Edit a claim",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaimEdit,
}

var claimRmCmd = &cobra.Command{
	Use:   "rm ID",
	Short: "Retract a claim (soft delete)",
	Args:  cobra.ExactArgs(1),
	RunE:  runClaimRm,
}

var claimLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List claims",
	RunE:  runClaimLs,
}

func init() {
	claimAddCmd.Flags().StringVar(&claimTypeFlag, "type", "fact", "Claim type (fact, memory, decision, preference, task, reminder, habit, observation)")
	claimAddCmd.Flags().StringVar(&claimDomainFlag, "domain", "personal", "Context domain (personal, work, health, finance, social)")
	claimAddCmd.Flags().Float64Var(&claimConfidenceFlag, "confidence", -1, "Confidence in [0, 1]")
	claimAddCmd.Flags().StringSliceVar(&claimTagsFlag, "tag", nil, "Tag ids to link")
	claimAddCmd.Flags().StringSliceVar(&claimEntitiesFlag, "entity", nil, "Entity ids to link")
	claimAddCmd.Flags().StringVar(&claimFriendlyFlag, "friendly-id", "", "Explicit friendly id (generated when omitted)")

	claimEditCmd.Flags().StringVar(&editStatementFlag, "statement", "", "New statement text")
	claimEditCmd.Flags().StringVar(&editTypeFlag, "type", "", "New claim type")
	claimEditCmd.Flags().StringVar(&editDomainFlag, "domain", "", "New context domain")
	claimEditCmd.Flags().StringVar(&editStatusFlag, "status", "", "New lifecycle status")
	claimEditCmd.Flags().Float64Var(&editConfidenceFlag, "confidence", -1, "New confidence in [0, 1]")

	claimLsCmd.Flags().StringSliceVar(&listStatusFlag, "status", nil, "Filter by status")
	claimLsCmd.Flags().StringSliceVar(&listDomainFlag, "domain", nil, "Filter by domain")
	claimLsCmd.Flags().StringSliceVar(&listTypeFlag, "type", nil, "Filter by type")
	claimLsCmd.Flags().IntVar(&listLimitFlag, "limit", 50, "Maximum rows")

	ClaimCmd.AddCommand(claimAddCmd)
	ClaimCmd.AddCommand(claimShowCmd)
	ClaimCmd.AddCommand(claimEditCmd)
	ClaimCmd.AddCommand(claimRmCmd)
	ClaimCmd.AddCommand(claimLsCmd)
}

func runClaimAdd(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	claim := &types.Claim{
		Statement:     args[0],
		ClaimType:     types.ClaimType(claimTypeFlag),
		ContextDomain: types.Domain(claimDomainFlag),
		FriendlyID:    claimFriendlyFlag,
	}
	if claimConfidenceFlag >= 0 {
		claim.Confidence = &claimConfidenceFlag
	}

	if err := eng.claims.Add(cmd.Context(), claim, claimTagsFlag, claimEntitiesFlag); err != nil {
		return err
	}

	pterm.Success.Printf("Claim created: %s (%s)\n", claim.FriendlyID, claim.ID)
	return nil
}

func runClaimShow(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	claim, err := eng.claims.Get(cmd.Context(), args[0])
	if err != nil {
		claim, err = eng.claims.GetByFriendlyID(cmd.Context(), args[0])
	}
	if err != nil {
		return err
	}

	printClaim(claim)

	open, err := eng.conflicts.OpenSetsForClaim(cmd.Context(), claim.ID)
	if err != nil {
		return err
	}
	for _, set := range open {
		pterm.Warning.Printf("Contested in conflict set %s (%d members)\n",
			set.ID, len(set.MemberClaimIDs))
	}
	return nil
}

func runClaimEdit(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	patch := types.ClaimPatch{}
	if editStatementFlag != "" {
		patch.Statement = &editStatementFlag
	}
	if editTypeFlag != "" {
		ct := types.ClaimType(editTypeFlag)
		patch.ClaimType = &ct
	}
	if editDomainFlag != "" {
		d := types.Domain(editDomainFlag)
		patch.ContextDomain = &d
	}
	if editStatusFlag != "" {
		s := types.ClaimStatus(editStatusFlag)
		patch.Status = &s
	}
	if editConfidenceFlag >= 0 {
		patch.Confidence = &editConfidenceFlag
	}

	claim, err := eng.claims.Edit(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}

	pterm.Success.Printf("Claim updated: %s\n", claim.ID)
	printClaim(claim)
	return nil
}

func runClaimRm(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.claims.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printf("Claim retracted: %s\n", args[0])
	return nil
}

func runClaimLs(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	filters := types.DefaultSearchFilters()
	filters.Limit = listLimitFlag
	if len(listStatusFlag) > 0 {
		filters.Statuses = nil
		for _, s := range listStatusFlag {
			filters.Statuses = append(filters.Statuses, types.ClaimStatus(s))
		}
	}
	for _, d := range listDomainFlag {
		filters.Domains = append(filters.Domains, types.Domain(d))
	}
	for _, ct := range listTypeFlag {
		filters.Types = append(filters.Types, types.ClaimType(ct))
	}

	claims, err := eng.claims.List(cmd.Context(), filters)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		pterm.Info.Println("No claims match")
		return nil
	}

	rows := pterm.TableData{{"Friendly ID", "Status", "Type", "Domain", "Statement"}}
	for _, claim := range claims {
		rows = append(rows, []string{
			claim.FriendlyID,
			string(claim.Status),
			string(claim.ClaimType),
			string(claim.ContextDomain),
			truncate(claim.Statement, 60),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func printClaim(claim *types.Claim) {
	fmt.Printf("ID:          %s\n", claim.ID)
	fmt.Printf("Friendly ID: %s\n", claim.FriendlyID)
	fmt.Printf("Statement:   %s\n", claim.Statement)
	fmt.Printf("Type:        %s\n", claim.ClaimType)
	fmt.Printf("Domain:      %s\n", claim.ContextDomain)
	fmt.Printf("Status:      %s\n", claim.Status)
	if claim.Confidence != nil {
		fmt.Printf("Confidence:  %.2f\n", *claim.Confidence)
	}
	if claim.ValidFrom != nil || claim.ValidTo != nil {
		from, to := "-", "-"
		if claim.ValidFrom != nil {
			from = claim.ValidFrom.Format("2006-01-02")
		}
		if claim.ValidTo != nil {
			to = claim.ValidTo.Format("2006-01-02")
		}
		fmt.Printf("Valid:       %s .. %s\n", from, to)
	}
	if len(claim.Metadata) > 0 {
		pairs := make([]string, 0, len(claim.Metadata))
		for k, v := range claim.Metadata {
			pairs = append(pairs, k+"="+v)
		}
		fmt.Printf("Metadata:    %s\n", strings.Join(pairs, " "))
	}
	fmt.Printf("Created:     %s\n", claim.CreatedAt.Format("2006-01-02 15:04"))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
