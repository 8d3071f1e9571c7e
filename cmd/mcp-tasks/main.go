// Command mcp-tasks provides an MCP server for the family task manager.
//
// This server exposes task and family management tools over stdio so
// the companion application can use the same core as the chat bot.
//
// Usage:
//
//	./mcp-tasks          # Start MCP server (stdio)
//	./mcp-tasks --help   # Show help
//
// Environment:
//
//	JSONBIN_ID           Bin id of the shared document (required)
//	JSONBIN_ACCESS_KEY   Bin master key
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"github.com/din98/family-tasks/internal/access"
	"github.com/din98/family-tasks/internal/config"
	"github.com/din98/family-tasks/internal/family"
	"github.com/din98/family-tasks/internal/jsonbin"
	"github.com/din98/family-tasks/internal/mcpserver"
	"github.com/din98/family-tasks/internal/task"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--help", "-h":
			printHelp()
			return
		}
	}

	_ = godotenv.Load()

	cfg, err := config.Load(config.GetDefaultConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.JSONBin.BinID == "" {
		fmt.Fprintf(os.Stderr, "JSONBIN_ID is required\n")
		os.Exit(1)
	}

	store := jsonbin.New(cfg.JSONBin.BinID, cfg.JSONBin.MasterKey, 0)

	registry := family.NewRegistry(store, cfg.Family.AllowTransfer)
	if err := registry.Load(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading family registry: %v\n", err)
		os.Exit(1)
	}

	repo := task.NewRepository(store)
	policy := access.NewPolicy(registry)

	s := mcpserver.NewServer(repo, registry, policy)

	if err := server.ServeStdio(s.MCPServer()); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println(`MCP Tasks Server - family task management via MCP protocol

USAGE:
    mcp-tasks          Start MCP server (communicates via stdio)
    mcp-tasks --help   Show this help

ENVIRONMENT:
    JSONBIN_ID          Bin id of the shared task document
    JSONBIN_ACCESS_KEY  Bin master key

TOOLS:
    add_task       Add a task (user_id, title, due_at, shared)
    list_tasks     List the tasks visible to a user
    update_task    Update a task's title or due time
    delete_task    Delete a task permanently
    create_family  Create a family with the user as first member
    invite_member  Add another user to the user's family`)
}
