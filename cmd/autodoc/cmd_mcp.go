package main

import (
	"github.com/spf13/cobra"

	"github.com/martinemde/autodoc/agentloop"
	"github.com/martinemde/autodoc/mcpserver"
	"github.com/martinemde/autodoc/tools"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tool catalog over MCP on stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		registry, err := buildRegistry(tools.NewLocalEnvironment(cfg.WorkDir), nil, nil)
		if err != nil {
			return err
		}
		sandbox := agentloop.NewSandbox(
			agentloop.WithDryRun(cfg.DryRun),
			agentloop.WithSandboxLogger(logger),
		)
		srv, err := mcpserver.New(registry, sandbox, version, logger)
		if err != nil {
			return err
		}
		logger.Info("serving MCP on stdio")
		return srv.ServeStdio()
	},
}
