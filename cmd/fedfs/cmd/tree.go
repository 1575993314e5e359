package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/aweris/fedfs"
	"github.com/aweris/fedfs/internal/seed"
	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree [path]",
	Short: "Print the federated tree",
	Long:  "Print the federated tree below a path (default: the root), optionally with properties.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTree,
}

func init() {
	treeCmd.Flags().BoolP("properties", "p", false, "print properties")
	treeCmd.Flags().Bool("stats", false, "print cache statistics afterwards")
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, args []string) (err error) {
	start := fedfs.Root
	if len(args) > 0 {
		if start, err = fedfs.ParsePath(args[0]); err != nil {
			return err
		}
	}
	withProps, _ := cmd.Flags().GetBool("properties")
	withStats, _ := cmd.Flags().GetBool("stats")

	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out := cmd.OutOrStdout()
	err = s.ws.Walk(context.Background(), start, func(n *fedfs.FederatedNode) error {
		depth := n.Path.Len() - start.Len()
		indent := strings.Repeat("  ", depth)

		label := "/"
		if last, ok := n.Path.Last(); ok {
			label = last.String()
		}
		fmt.Fprintf(out, "%s%s\n", indent, label)

		if withProps {
			values := nodeProperties(n, true)
			for _, key := range seed.SortedKeys(values) {
				fmt.Fprintf(out, "%s  @%s = %v\n", indent, key, values[key])
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if withStats {
		st := s.ws.Statistics()
		fmt.Fprintf(cmd.ErrOrStderr(), "cache: writes=%d hits=%d misses=%d expirations=%d\n",
			st.Writes, st.Hits, st.Misses, st.Expirations)
	}
	return nil
}
