// Package mcp exposes the repository analysis surface as MCP tools over
// the stdio transport.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/repochat/internal/github"
	"github.com/joescharf/repochat/internal/repo"
)

// Server wraps the snapshot store and issue gateway and exposes them as
// MCP tools.
type Server struct {
	repo    *repo.Store
	gateway github.Gateway
}

// NewServer creates the MCP server wrapper.
func NewServer(repoStore *repo.Store, gateway github.Gateway) *Server {
	return &Server{
		repo:    repoStore,
		gateway: gateway,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("repochat", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.loadRepoTool())
	srv.AddTool(s.fileStructureTool())
	srv.AddTool(s.fetchCodeTool())
	srv.AddTool(s.findUsageTool())
	srv.AddTool(s.searchIssuesTool())
	srv.AddTool(s.issueDetailsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// repo_load
func (s *Server) loadRepoTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("repo_load",
		mcp.WithDescription("Clone a git repository and build its Python import graph. Replaces any previously loaded repository."),
		mcp.WithString("url", mcp.Required(), mcp.Description("Git clone URL, e.g. https://github.com/owner/repo.git")),
	)
	return tool, s.handleLoadRepo
}

func (s *Server) handleLoadRepo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	url, err := request.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: url"), nil
	}

	if err := s.repo.Load(ctx, url); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load repository: %v", err)), nil
	}

	structure, err := s.repo.FileStructure()
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to summarize repository: %v", err)), nil
	}

	result := map[string]any{
		"url":         url,
		"total_files": structure.TotalFiles,
		"file_types":  structure.FileTypes,
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// repo_file_structure
func (s *Server) fileStructureTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("repo_file_structure",
		mcp.WithDescription("Summarize the loaded repository: total file count, a per-extension breakdown, and the indexed file paths."),
	)
	return tool, s.handleFileStructure
}

func (s *Server) handleFileStructure(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	structure, err := s.repo.FileStructure()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := map[string]any{
		"total_files": structure.TotalFiles,
		"file_types":  structure.FileTypes,
		"paths":       s.repo.Current().Paths(),
	}
	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal structure: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// repo_fetch_code
func (s *Server) fetchCodeTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("repo_fetch_code",
		mcp.WithDescription("Fetch the content of one file from the loaded repository by its relative path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path relative to the repository root, e.g. pkg/parser.py")),
	)
	return tool, s.handleFetchCode
}

func (s *Server) handleFetchCode(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	rec, err := s.repo.FetchFile(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal file: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// repo_find_usage
func (s *Server) findUsageTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("repo_find_usage",
		mcp.WithDescription("Show a file's position in the import graph: what it imports and which files import it."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path relative to the repository root")),
	)
	return tool, s.handleFindUsage
}

func (s *Server) handleFindUsage(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: path"), nil
	}

	usage, err := s.repo.UsageOf(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, err := json.Marshal(usage)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal usage: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// repo_search_issues
func (s *Server) searchIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("repo_search_issues",
		mcp.WithDescription("Search GitHub issues and pull requests of the loaded repository. Returns a deduplicated JSON array of matches."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Free-text search query")),
	)
	return tool, s.handleSearchIssues
}

func (s *Server) handleSearchIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	sourceURL, ok := s.repo.SourceURL()
	if !ok {
		return mcp.NewToolResultError(repo.ErrNoRepository.Error()), nil
	}

	issues, err := s.gateway.SearchIssues(ctx, sourceURL, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("issue search failed: %v", err)), nil
	}

	data, err := json.Marshal(issues)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal issues: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// repo_issue_details
func (s *Server) issueDetailsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("repo_issue_details",
		mcp.WithDescription("Fetch one issue or pull request of the loaded repository with its comment thread. Pull requests include review records."),
		mcp.WithNumber("number", mcp.Required(), mcp.Description("Issue or pull request number")),
	)
	return tool, s.handleIssueDetails
}

func (s *Server) handleIssueDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	number, err := request.RequireInt("number")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: number"), nil
	}

	sourceURL, ok := s.repo.SourceURL()
	if !ok {
		return mcp.NewToolResultError(repo.ErrNoRepository.Error()), nil
	}

	details, err := s.gateway.GetIssueDetails(ctx, sourceURL, number)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("issue lookup failed: %v", err)), nil
	}

	data, err := json.Marshal(details)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal details: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
