package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/aweris/fedfs"
	"github.com/aweris/fedfs/internal/seed"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <file> [path]",
	Short: "Import a seed file into the workspace",
	Long: `Create the nodes of a seed file below path (default: the root) through the
workspace, then save every writable source back to its seed file.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "apply without saving sources")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) (err error) {
	tree, err := seed.ReadFile(args[0])
	if err != nil {
		return err
	}
	at := fedfs.Root
	if len(args) > 1 {
		if at, err = fedfs.ParsePath(args[1]); err != nil {
			return err
		}
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	fmt.Fprintf(os.Stderr, "Importing %s into %s...\n", args[0], at)

	ctx := context.Background()
	if err := setProperties(ctx, s.ws, at, tree.Properties); err != nil {
		return err
	}
	n, err := importChildren(ctx, s.ws, at, tree.Children)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	if !dryRun {
		if err := s.save(); err != nil {
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "Done. Created %d nodes\n", n)
	return nil
}

func importChildren(ctx context.Context, ws *fedfs.Workspace, parent fedfs.Path, children []seed.Node) (int, error) {
	created := 0
	for _, c := range children {
		p, err := ws.CreateNode(ctx, parent, fedfs.ParseName(c.Name))
		if err != nil {
			return created, fmt.Errorf("create %s below %s: %w", c.Name, parent, err)
		}
		created++
		if err := setProperties(ctx, ws, p, c.Properties); err != nil {
			return created, err
		}
		n, err := importChildren(ctx, ws, p, c.Children)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func setProperties(ctx context.Context, ws *fedfs.Workspace, path fedfs.Path, props map[string]any) error {
	for _, key := range seed.SortedKeys(props) {
		prop := seed.ToProperty(fedfs.ParseName(key), props[key])
		if err := ws.SetProperty(ctx, path, prop); err != nil {
			return fmt.Errorf("set %s on %s: %w", key, path, err)
		}
	}
	return nil
}
