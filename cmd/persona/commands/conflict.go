package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/personakb/persona/kb/types"
)

// ConflictCmd represents the conflict command
var ConflictCmd = &cobra.Command{
	Use:   "conflict",
	Short: "Manage contradiction conflict sets",
	Long: `conflict — Manage conflict sets

A conflict set groups two or more claims that contradict each other. While
the set is open every member is contested. Resolution picks a winner (the
rest are superseded), or the set can be ignored to let the claims coexist.

Examples:
  persona conflict create <id1> <id2> --notes "habit changed"
  persona conflict show <set-id>
  persona conflict resolve <set-id> --winner <id1>
  persona conflict ignore <set-id>
  persona conflict add-member <set-id> <claim-id>
  persona conflict rm-member <set-id> <claim-id>`,
}

var (
	conflictNotesFlag       string
	conflictWinnerFlag      string
	conflictLoserStatusFlag string
	conflictRestoreFlag     string
)

var conflictCreateCmd = &cobra.Command{
	Use:   "create CLAIM_ID...",
	Short: "Open a conflict set over two or more claims",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runConflictCreate,
}

var conflictShowCmd = &cobra.Command{
	Use:   "show SET_ID",
	Short: "Show a conflict set",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictShow,
}

var conflictResolveCmd = &cobra.Command{
	Use:   "resolve SET_ID",
	Short: "Resolve a conflict set",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictResolve,
}

var conflictIgnoreCmd = &cobra.Command{
	Use:   "ignore SET_ID",
	Short: "Close a conflict set accepting the contradiction",
	Args:  cobra.ExactArgs(1),
	RunE:  runConflictIgnore,
}

var conflictAddMemberCmd = &cobra.Command{
	Use:   "add-member SET_ID CLAIM_ID",
	Short: "Add a claim to an open conflict set",
	Args:  cobra.ExactArgs(2),
	RunE:  runConflictAddMember,
}

var conflictRmMemberCmd = &cobra.Command{
	Use:   "rm-member SET_ID CLAIM_ID",
	Short: "Remove a claim from an open conflict set",
	Args:  cobra.ExactArgs(2),
	RunE:  runConflictRmMember,
}

func init() {
	conflictCreateCmd.Flags().StringVar(&conflictNotesFlag, "notes", "", "Why these claims conflict")
	conflictResolveCmd.Flags().StringVar(&conflictWinnerFlag, "winner", "", "Winning claim id (omit to close without picking a side)")
	conflictResolveCmd.Flags().StringVar(&conflictNotesFlag, "notes", "", "Resolution notes")
	conflictResolveCmd.Flags().StringVar(&conflictLoserStatusFlag, "loser-status", "", "Status for losing claims (default superseded)")
	conflictRmMemberCmd.Flags().StringVar(&conflictRestoreFlag, "restore-status", "", "Status to restore the removed claim to (default active)")

	ConflictCmd.AddCommand(conflictCreateCmd)
	ConflictCmd.AddCommand(conflictShowCmd)
	ConflictCmd.AddCommand(conflictResolveCmd)
	ConflictCmd.AddCommand(conflictIgnoreCmd)
	ConflictCmd.AddCommand(conflictAddMemberCmd)
	ConflictCmd.AddCommand(conflictRmMemberCmd)
}

func runConflictCreate(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	set, err := eng.conflicts.Create(cmd.Context(), args, conflictNotesFlag)
	if err != nil {
		return err
	}

	pterm.Success.Printf("Conflict set opened: %s (%d members, all contested)\n",
		set.ID, len(set.MemberClaimIDs))
	return nil
}

func runConflictShow(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	set, err := eng.conflicts.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	fmt.Printf("ID:     %s\n", set.ID)
	fmt.Printf("Status: %s\n", set.Status)
	if set.ResolutionNotes != "" {
		fmt.Printf("Notes:  %s\n", set.ResolutionNotes)
	}
	fmt.Printf("Opened: %s\n\n", set.CreatedAt.Format("2006-01-02 15:04"))

	for _, claimID := range set.MemberClaimIDs {
		claim, err := eng.claims.Get(cmd.Context(), claimID)
		if err != nil {
			fmt.Printf("  %s (unreadable: %v)\n", claimID, err)
			continue
		}
		fmt.Printf("  [%s] %s: %s\n", claim.Status, claim.FriendlyID,
			truncate(claim.Statement, 70))
	}
	return nil
}

func runConflictResolve(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	err = eng.conflicts.Resolve(cmd.Context(), args[0], conflictNotesFlag,
		conflictWinnerFlag, types.ClaimStatus(conflictLoserStatusFlag))
	if err != nil {
		return err
	}

	if conflictWinnerFlag == "" {
		pterm.Success.Println("Conflict set closed; member statuses unchanged")
	} else {
		pterm.Success.Printf("Conflict resolved; %s is active\n", conflictWinnerFlag)
	}
	return nil
}

func runConflictIgnore(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.conflicts.Ignore(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Println("Conflict set ignored; member statuses unchanged")
	return nil
}

func runConflictAddMember(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.conflicts.AddMember(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	pterm.Success.Printf("Claim %s added to conflict set (now contested)\n", args[1])
	return nil
}

func runConflictRmMember(cmd *cobra.Command, args []string) error {
	eng, err := buildEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	err = eng.conflicts.RemoveMember(cmd.Context(), args[0], args[1],
		types.ClaimStatus(conflictRestoreFlag))
	if err != nil {
		return err
	}
	pterm.Success.Printf("Claim %s removed from conflict set\n", args[1])
	return nil
}
