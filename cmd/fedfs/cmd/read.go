package cmd

import (
	"context"

	"github.com/aweris/fedfs"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var readCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Show a merged node",
	Long:  "Print the merged node at path: its identity, properties, children and contributing sources.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRead,
}

func init() {
	rootCmd.AddCommand(readCmd)
}

type nodeView struct {
	Path       string         `yaml:"path"`
	ID         string         `yaml:"id"`
	Properties map[string]any `yaml:"properties,omitempty"`
	Children   []string       `yaml:"children,omitempty"`
	Sources    []sourceView   `yaml:"sources"`
}

type sourceView struct {
	Name        string `yaml:"name"`
	Path        string `yaml:"path"`
	Placeholder bool   `yaml:"placeholder,omitempty"`
}

func runRead(cmd *cobra.Command, args []string) (err error) {
	path, err := fedfs.ParsePath(args[0])
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	node, err := s.ws.Read(context.Background(), path)
	if err != nil {
		return err
	}

	view := nodeView{
		Path:       node.Path.String(),
		ID:         node.ID.String(),
		Properties: nodeProperties(node, true),
	}
	for _, c := range node.Children {
		view.Children = append(view.Children, c.String())
	}
	for _, e := range node.Plan.Entries() {
		view.Sources = append(view.Sources, sourceView{
			Name:        e.Source,
			Path:        e.Path.String(),
			Placeholder: e.Placeholder,
		})
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(view); err != nil {
		return err
	}
	return enc.Close()
}
