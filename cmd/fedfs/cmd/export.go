package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aweris/fedfs"
	"github.com/aweris/fedfs/internal/graph"
	"github.com/aweris/fedfs/internal/seed"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export <path> <file>",
	Short: "Export a federated subtree as a seed file",
	Long:  "Write the merged subtree at path to a seed file. Use - for stdout; files ending in .zst are compressed.",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().Bool("ids", false, "include uuid properties")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	path, err := fedfs.ParsePath(args[0])
	if err != nil {
		return err
	}
	file := args[1]
	withIDs, _ := cmd.Flags().GetBool("ids")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	ctx := context.Background()
	node, err := s.ws.Read(ctx, path)
	if err != nil {
		return err
	}
	children, err := exportChildren(ctx, s.ws, node, withIDs)
	if err != nil {
		return err
	}
	tree := &seed.Tree{Properties: nodeProperties(node, withIDs), Children: children}

	if file == "-" {
		return seed.Encode(cmd.OutOrStdout(), tree)
	}
	if err := seed.WriteFile(file, tree); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Exported %s to %s\n", path, file)
	return nil
}

func exportChildren(ctx context.Context, ws *fedfs.Workspace, parent *fedfs.FederatedNode, withIDs bool) ([]seed.Node, error) {
	var out []seed.Node
	for _, p := range parent.ChildPaths() {
		child, err := ws.Read(ctx, p)
		if err != nil {
			return nil, err
		}
		grand, err := exportChildren(ctx, ws, child, withIDs)
		if err != nil {
			return nil, err
		}
		last, _ := p.Last()
		out = append(out, seed.Node{
			Name:       last.Name.String(),
			Properties: nodeProperties(child, withIDs),
			Children:   grand,
		})
	}
	return out, nil
}

// nodeProperties returns the seed form of n's properties, leaving out
// identity properties unless withIDs is set.
func nodeProperties(n *fedfs.FederatedNode, withIDs bool) map[string]any {
	props := make([]fedfs.Property, 0, len(n.Properties))
	for name, p := range n.Properties {
		if !withIDs && graph.IsUUIDName(name) {
			continue
		}
		props = append(props, p)
	}
	return seed.FromProperties(props)
}
