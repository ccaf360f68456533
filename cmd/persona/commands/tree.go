package commands

import (
	"context"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/personakb/persona/kb/storage"
	"github.com/personakb/persona/kb/types"
)

// TagCmd and ContextCmd share one implementation over the two forests.
var TagCmd = newNodeCommand(types.KindTag, "tag", "Manage the tag hierarchy")
var ContextCmd = newNodeCommand(types.KindContext, "context", "Manage the context hierarchy")

func newNodeCommand(kind types.NodeKind, use, short string) *cobra.Command {
	var parentFlag string
	var friendlyFlag string
	var depthFlag int
	var statusFlag []string

	root := &cobra.Command{
		Use:   use,
		Short: short,
		Long: fmt.Sprintf(`%s — %s

Nodes form a forest: each node has at most one parent and cycles are
rejected. Deleting a node orphans its children (they become roots) and
unlinks its claims without touching them.

Examples:
  persona %s add health
  persona %s add sleep --parent <health-id>
  persona %s mv <id> --parent <new-parent-id>
  persona %s tree
  persona %s claims <id> --depth 2
  persona %s rm <id>`, use, short, use, use, use, use, use, use),
	}

	addCmd := &cobra.Command{
		Use:   "add NAME",
		Short: fmt.Sprintf("Add a %s", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			node := &types.Node{Kind: kind, Name: args[0], FriendlyID: friendlyFlag}
			if parentFlag != "" {
				node.ParentID = &parentFlag
			}
			if err := eng.hierarchy.Add(cmd.Context(), node); err != nil {
				return err
			}
			pterm.Success.Printf("%s created: %s (%s)\n", use, node.FriendlyID, node.ID)
			return nil
		},
	}
	addCmd.Flags().StringVar(&parentFlag, "parent", "", "Parent node id")
	addCmd.Flags().StringVar(&friendlyFlag, "friendly-id", "", "Explicit friendly id (generated when omitted)")

	mvCmd := &cobra.Command{
		Use:   "mv ID",
		Short: fmt.Sprintf("Move a %s to a new parent", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			var newParent *string
			if parentFlag != "" {
				newParent = &parentFlag
			}
			if err := eng.hierarchy.Move(cmd.Context(), kind, args[0], newParent); err != nil {
				return err
			}
			pterm.Success.Printf("%s moved\n", use)
			return nil
		},
	}
	mvCmd.Flags().StringVar(&parentFlag, "parent", "", "New parent id (omit to make the node a root)")

	rmCmd := &cobra.Command{
		Use:   "rm ID",
		Short: fmt.Sprintf("Delete a %s (children become roots)", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.hierarchy.Delete(cmd.Context(), kind, args[0]); err != nil {
				return err
			}
			pterm.Success.Printf("%s deleted\n", use)
			return nil
		},
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: fmt.Sprintf("Print the %s forest", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			roots, err := eng.hierarchy.Roots(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if len(roots) == 0 {
				pterm.Info.Printf("No %ss yet\n", use)
				return nil
			}
			for _, root := range roots {
				if err := printSubtree(cmd.Context(), eng.hierarchy, kind, root, 0); err != nil {
					return err
				}
			}
			return nil
		},
	}

	claimsCmd := &cobra.Command{
		Use:   "claims ID",
		Short: fmt.Sprintf("List claims in the subtree rooted at a %s", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := buildEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			statuses := types.DefaultSearchFilters().Statuses
			if len(statusFlag) > 0 {
				statuses = nil
				for _, s := range statusFlag {
					statuses = append(statuses, types.ClaimStatus(s))
				}
			}

			claims, err := eng.hierarchy.ResolveClaims(cmd.Context(), kind, args[0], statuses, depthFlag)
			if err != nil {
				return err
			}
			if len(claims) == 0 {
				pterm.Info.Println("No claims in this subtree")
				return nil
			}
			for _, claim := range claims {
				fmt.Printf("  [%s] %s: %s\n", claim.Status, claim.FriendlyID,
					truncate(claim.Statement, 70))
			}
			return nil
		},
	}
	claimsCmd.Flags().IntVar(&depthFlag, "depth", 0, "Traversal depth bound (0 = default)")
	claimsCmd.Flags().StringSliceVar(&statusFlag, "status", nil, "Filter by status")

	root.AddCommand(addCmd)
	root.AddCommand(mvCmd)
	root.AddCommand(rmCmd)
	root.AddCommand(treeCmd)
	root.AddCommand(claimsCmd)
	return root
}

func printSubtree(ctx context.Context, store *storage.HierarchyStore, kind types.NodeKind, node *types.Node, depth int) error {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	fmt.Printf("%s%s (%s)\n", indent, node.Name, node.FriendlyID)

	children, err := store.GetChildren(ctx, kind, node.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := printSubtree(ctx, store, kind, child, depth+1); err != nil {
			return err
		}
	}
	return nil
}
