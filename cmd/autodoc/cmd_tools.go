package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/martinemde/autodoc/agentloop"
	"github.com/martinemde/autodoc/tools"
)

var toolsTags []string

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the agent can call",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		registry, err := buildRegistry(tools.NewLocalEnvironment(cfg.WorkDir), toolsTags, nil)
		if err != nil {
			return err
		}
		return printTools(cmd.OutOrStdout(), registry.List())
	},
}

func init() {
	toolsCmd.Flags().StringSliceVar(&toolsTags, "tags", nil, "Only list tools carrying any of these tags")
}

func printTools(w io.Writer, actions []*agentloop.Action) error {
	for _, a := range actions {
		schema, err := json.Marshal(a.Parameters)
		if err != nil {
			return fmt.Errorf("encode schema for %s: %w", a.Name, err)
		}
		marker := ""
		if a.Terminal {
			marker = " (terminal)"
		}
		fmt.Fprintf(w, "%s%s [%s]\n  %s\n  %s\n", a.Name, marker, strings.Join(a.Tags, ", "), a.Description, schema)
	}
	return nil
}
