package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/repochat/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This exposes the repository analysis surface to MCP clients. Configure
in a client with:

  {
    "mcpServers": {
      "repochat": { "command": "repochat", "args": ["mcp"] }
    }
  }

Available tools: repo_load, repo_file_structure, repo_fetch_code,
repo_find_usage, repo_search_issues, repo_issue_details`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := getDeps(); err != nil {
			return err
		}
		srv := mcp.NewServer(repoStore, gateway)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
