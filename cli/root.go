// ABOUTME: Top-level CLI command routing
// ABOUTME: Wires config and the session, then dispatches subcommands
package cli

import (
	"fmt"
	"os"

	"github.com/harperreed/funnel/config"
	"github.com/harperreed/funnel/logging"
	"github.com/harperreed/funnel/models"
)

// Version is the CLI version string.
const Version = "0.1.0"

// Run is the CLI entry point. Returns an exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 0
	}

	command := args[0]
	commandArgs := args[1:]

	switch command {
	case "version":
		fmt.Printf("funnel version %s\n", Version)
		return 0
	case "help":
		printUsage()
		return 0
	case "login":
		return exit(LoginCommand(commandArgs))
	case "logout":
		return exit(LogoutCommand())
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	sync, err := logging.Setup(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer sync()

	app, err := NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer app.Close()

	switch command {
	case "clients":
		return exit(ListCommand(app, models.TypeClient, commandArgs))
	case "leads":
		return exit(ListCommand(app, models.TypeLead, commandArgs))
	case "save-client":
		return exit(SaveCommand(app, models.TypeClient, commandArgs))
	case "save-lead":
		return exit(SaveCommand(app, models.TypeLead, commandArgs))
	case "delete":
		return exit(DeleteCommand(app, commandArgs))
	case "star":
		return exit(StarCommand(app, commandArgs))
	case "stage":
		return exit(StageCommand(app, commandArgs))
	case "pipeline":
		return exit(PipelineCommand(app, commandArgs))
	case "groups":
		return exit(GroupsCommand(app, commandArgs))
	case "sync":
		return exit(SyncCommand(app, commandArgs))
	case "daemon":
		return exit(DaemonCommand(app, commandArgs))
	case "mcp":
		return exit(MCPCommand(app))
	case "tui":
		return exit(TUICommand(app))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		return 1
	}
}

func exit(err error) int {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println(`funnel - local-first CRM pipeline manager

Usage:
  funnel <command> [flags]

Commands:
  clients       List clients
  leads         List leads
  save-client   Create or update a client
  save-lead     Create or update a lead
  delete        Delete a client or lead
  star          Toggle the starred flag
  stage         Move an entity to a new pipeline stage
  pipeline      Show the unified pipeline with stage totals
  groups        Manage company groups (list/create/delete/assign/members)
  sync          Force a full refresh from the backend
  daemon        Run the live-sync channel until interrupted
  mcp           Start the MCP server on stdio
  tui           Open the interactive terminal UI
  login         Store an API token
  logout        Clear the stored API token
  version       Show version
  help          Show this help

Run 'funnel <command> -h' for command flags.`)
}
