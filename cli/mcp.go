// ABOUTME: MCP server subcommand
// ABOUTME: Exposes the record store's queries and mutations as MCP tools on stdio
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/funnel/handlers"
)

// MCPCommand starts the MCP server on stdio.
func MCPCommand(app *App) error {
	app.Store.Hydrate()

	entityHandlers := handlers.NewEntityHandlers(app.Store)
	pipelineHandlers := handlers.NewPipelineHandlers(app.Store)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "funnel",
		Version: Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_clients",
		Description: "List clients with optional search and status filter",
	}, entityHandlers.ListClients)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_leads",
		Description: "List leads with optional search and status filter",
	}, entityHandlers.ListLeads)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_client",
		Description: "Create or update a client; edits are applied optimistically and kept locally on server conflicts",
	}, entityHandlers.SaveClient)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_lead",
		Description: "Create or update a lead; edits are applied optimistically and kept locally on server conflicts",
	}, entityHandlers.SaveLead)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_entity",
		Description: "Delete a client or lead by id",
	}, entityHandlers.DeleteEntity)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "toggle_star",
		Description: "Toggle the starred flag on a client or lead",
	}, entityHandlers.ToggleStar)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_stage",
		Description: "Move a client or lead to a new pipeline stage (No Engagement, Awareness, Interest, Desire, Action)",
	}, entityHandlers.UpdateStage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assign_group",
		Description: "Assign a client or lead to a company group",
	}, entityHandlers.AssignGroup)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pipeline_view",
		Description: "View the unified sales pipeline of leads and client opportunities with per-stage totals",
	}, pipelineHandlers.PipelineView)

	ctx := context.Background()
	return server.Run(ctx, &mcp.StdioTransport{})
}
