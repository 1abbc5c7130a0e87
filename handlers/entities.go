// ABOUTME: Entity MCP tool handlers
// ABOUTME: Implements list/save/delete/star/stage/group tools over the record store
package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
	"github.com/harperreed/funnel/store"
)

type EntityHandlers struct {
	store *store.Store
}

func NewEntityHandlers(s *store.Store) *EntityHandlers {
	return &EntityHandlers{store: s}
}

type ListInput struct {
	Search  string `json:"search,omitempty" jsonschema:"Case-insensitive substring filter over name, status, stage, industry, and group names"`
	Status  string `json:"status,omitempty" jsonschema:"Filter by status (e.g. Active, Potential, On Hold)"`
	Refresh bool   `json:"refresh,omitempty" jsonschema:"Force a refresh from the backend before listing"`
}

type EntitySummary struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Status    string   `json:"status"`
	Stage     string   `json:"stage"`
	Industry  string   `json:"industry"`
	Revenue   float64  `json:"revenue,omitempty"`
	IsStarred bool     `json:"is_starred,omitempty"`
	Groups    []string `json:"groups,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

type ListOutput struct {
	Total   int             `json:"total"`
	Entries []EntitySummary `json:"entries"`
}

func (h *EntityHandlers) ListClients(ctx context.Context, request *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	return h.list(ctx, models.TypeClient, input)
}

func (h *EntityHandlers) ListLeads(ctx context.Context, request *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	return h.list(ctx, models.TypeLead, input)
}

func (h *EntityHandlers) list(ctx context.Context, t models.EntityType, input ListInput) (*mcp.CallToolResult, ListOutput, error) {
	if err := h.store.Load(ctx, t, input.Refresh); err != nil {
		// The store retains or restores cached state; serve what it holds.
		if len(h.store.Entities(t)) == 0 {
			return nil, ListOutput{}, fmt.Errorf("failed to load %ss: %w", t, err)
		}
	}

	h.store.SetSearchTerm(t, input.Search)
	h.store.SetStatusFilter(t, input.Status)

	out := ListOutput{Total: h.store.VisibleTotal(t)}
	for _, e := range h.store.VisibleEntities(t) {
		out.Entries = append(out.Entries, summarize(e))
	}
	return nil, out, nil
}

type SaveEntityInput struct {
	ID       string  `json:"id,omitempty" jsonschema:"Entity id; omit to create"`
	Name     string  `json:"name" jsonschema:"Entity name (required)"`
	Status   string  `json:"status,omitempty" jsonschema:"Status (defaults: Active for clients, Potential for leads)"`
	Stage    string  `json:"stage,omitempty" jsonschema:"Pipeline stage; legacy values like prospect or negotiation are normalized"`
	Industry string  `json:"industry,omitempty" jsonschema:"Industry (default Other)"`
	Revenue  float64 `json:"revenue,omitempty" jsonschema:"Revenue or deal value"`
	Notes    string  `json:"notes,omitempty" jsonschema:"Free-text notes"`
}

func (h *EntityHandlers) SaveClient(ctx context.Context, request *mcp.CallToolRequest, input SaveEntityInput) (*mcp.CallToolResult, EntitySummary, error) {
	return h.save(ctx, models.TypeClient, input)
}

func (h *EntityHandlers) SaveLead(ctx context.Context, request *mcp.CallToolRequest, input SaveEntityInput) (*mcp.CallToolResult, EntitySummary, error) {
	return h.save(ctx, models.TypeLead, input)
}

func (h *EntityHandlers) save(ctx context.Context, t models.EntityType, input SaveEntityInput) (*mcp.CallToolResult, EntitySummary, error) {
	entity := models.Entity{
		Type:     t,
		Name:     input.Name,
		Status:   input.Status,
		Stage:    normalize.Stage(input.Stage),
		Industry: input.Industry,
		Revenue:  input.Revenue,
		Notes:    input.Notes,
	}
	if input.ID != "" {
		if existing, ok := h.store.Entity(t, input.ID); ok {
			entity = existing
			entity.Name = input.Name
			if input.Status != "" {
				entity.Status = input.Status
			}
			if input.Stage != "" {
				entity.Stage = normalize.Stage(input.Stage)
			}
			if input.Industry != "" {
				entity.Industry = input.Industry
			}
			if input.Revenue != 0 {
				entity.Revenue = input.Revenue
			}
			if input.Notes != "" {
				entity.Notes = input.Notes
			}
		} else {
			entity.ID = input.ID
		}
	}

	saved, err := h.store.SaveEntity(ctx, entity, false)
	if err != nil {
		var localOnly *store.LocalOnlyError
		if errors.As(err, &localOnly) {
			// The edit was kept locally; report it rather than failing.
			return nil, summarize(saved), nil
		}
		return nil, EntitySummary{}, err
	}
	return nil, summarize(saved), nil
}

type DeleteEntityInput struct {
	Type string `json:"type" jsonschema:"Entity type: client or lead"`
	ID   string `json:"id" jsonschema:"Entity id (required)"`
}

type DeleteEntityOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

func (h *EntityHandlers) DeleteEntity(ctx context.Context, request *mcp.CallToolRequest, input DeleteEntityInput) (*mcp.CallToolResult, DeleteEntityOutput, error) {
	if input.ID == "" {
		return nil, DeleteEntityOutput{}, fmt.Errorf("id is required")
	}
	t := normalize.EntityType(input.Type)
	if err := h.store.DeleteEntity(ctx, t, input.ID); err != nil {
		return nil, DeleteEntityOutput{}, err
	}
	return nil, DeleteEntityOutput{Deleted: true, ID: input.ID}, nil
}

type ToggleStarInput struct {
	Type string `json:"type" jsonschema:"Entity type: client or lead"`
	ID   string `json:"id" jsonschema:"Entity id (required)"`
}

func (h *EntityHandlers) ToggleStar(ctx context.Context, request *mcp.CallToolRequest, input ToggleStarInput) (*mcp.CallToolResult, EntitySummary, error) {
	if input.ID == "" {
		return nil, EntitySummary{}, fmt.Errorf("id is required")
	}
	t := normalize.EntityType(input.Type)
	if err := h.store.ToggleStar(ctx, t, input.ID); err != nil {
		return nil, EntitySummary{}, err
	}
	e, ok := h.store.Entity(t, input.ID)
	if !ok {
		return nil, EntitySummary{}, fmt.Errorf("entity %s not found", input.ID)
	}
	return nil, summarize(e), nil
}

type UpdateStageInput struct {
	Type  string `json:"type" jsonschema:"Entity type: client or lead"`
	ID    string `json:"id" jsonschema:"Entity id (required)"`
	Stage string `json:"stage" jsonschema:"New pipeline stage; legacy values are normalized"`
}

func (h *EntityHandlers) UpdateStage(ctx context.Context, request *mcp.CallToolRequest, input UpdateStageInput) (*mcp.CallToolResult, EntitySummary, error) {
	if input.ID == "" {
		return nil, EntitySummary{}, fmt.Errorf("id is required")
	}
	t := normalize.EntityType(input.Type)
	if err := h.store.UpdateField(ctx, t, input.ID, "stage", input.Stage); err != nil {
		return nil, EntitySummary{}, err
	}
	e, ok := h.store.Entity(t, input.ID)
	if !ok {
		return nil, EntitySummary{}, fmt.Errorf("entity %s not found", input.ID)
	}
	return nil, summarize(e), nil
}

type AssignGroupInput struct {
	Type      string `json:"type" jsonschema:"Entity type: client or lead"`
	EntityID  string `json:"entity_id" jsonschema:"Entity id (required)"`
	GroupID   string `json:"group_id" jsonschema:"Group id (required)"`
	GroupName string `json:"group_name,omitempty" jsonschema:"Group display name"`
}

type AssignGroupOutput struct {
	EntityID string   `json:"entity_id"`
	Groups   []string `json:"groups"`
}

func (h *EntityHandlers) AssignGroup(ctx context.Context, request *mcp.CallToolRequest, input AssignGroupInput) (*mcp.CallToolResult, AssignGroupOutput, error) {
	if input.EntityID == "" || input.GroupID == "" {
		return nil, AssignGroupOutput{}, fmt.Errorf("entity_id and group_id are required")
	}
	t := normalize.EntityType(input.Type)
	group := models.GroupRef{ID: input.GroupID, Name: input.GroupName}
	if err := h.store.AssignGroup(ctx, t, input.EntityID, group); err != nil {
		return nil, AssignGroupOutput{}, err
	}
	e, _ := h.store.Entity(t, input.EntityID)
	return nil, AssignGroupOutput{EntityID: input.EntityID, Groups: e.GroupNames()}, nil
}

func summarize(e models.Entity) EntitySummary {
	t := "client"
	if e.IsLead() {
		t = "lead"
	}
	return EntitySummary{
		ID:        e.ID,
		Name:      e.Name,
		Type:      t,
		Status:    e.Status,
		Stage:     string(e.Stage),
		Industry:  e.Industry,
		Revenue:   e.Revenue,
		IsStarred: e.IsStarred,
		Groups:    e.GroupNames(),
		Notes:     e.Notes,
	}
}
