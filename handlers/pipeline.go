// ABOUTME: Pipeline MCP tool handler
// ABOUTME: Implements pipeline_view over the aggregator with lazy opportunity loading
package handlers

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/funnel/pipeline"
	"github.com/harperreed/funnel/store"
)

type PipelineHandlers struct {
	store *store.Store
}

func NewPipelineHandlers(s *store.Store) *PipelineHandlers {
	return &PipelineHandlers{store: s}
}

type PipelineViewInput struct {
	Filter string `json:"filter,omitempty" jsonschema:"Item filter: all, leads, or opportunities (default all)"`
	Search string `json:"search,omitempty" jsonschema:"Case-insensitive substring search over name, organization, stage, and owner"`
}

type PipelineItemOutput struct {
	ID           string  `json:"id"`
	Kind         string  `json:"kind"`
	Name         string  `json:"name"`
	Stage        string  `json:"stage"`
	Value        float64 `json:"value,omitempty"`
	Organization string  `json:"organization,omitempty"`
	Owner        string  `json:"owner,omitempty"`
	ClientID     string  `json:"client_id,omitempty"`
}

type PipelineStageOutput struct {
	Stage string  `json:"stage"`
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

type PipelineViewOutput struct {
	Items      []PipelineItemOutput  `json:"items"`
	Stages     []PipelineStageOutput `json:"stages"`
	TotalCount int                   `json:"total_count"`
	TotalValue float64               `json:"total_value"`
}

func (h *PipelineHandlers) PipelineView(ctx context.Context, request *mcp.CallToolRequest, input PipelineViewInput) (*mcp.CallToolResult, PipelineViewOutput, error) {
	// Opportunities are loaded lazily, only when the pipeline is viewed.
	if err := h.store.AttachOpportunities(ctx); err != nil {
		return nil, PipelineViewOutput{}, err
	}

	summary := pipeline.Aggregate(
		h.store.Leads(),
		h.store.Clients(),
		pipeline.Query{Filter: pipeline.TypeFilter(input.Filter), Search: input.Search},
	)

	out := PipelineViewOutput{
		TotalCount: summary.TotalCount,
		TotalValue: summary.TotalValue,
	}
	for _, item := range summary.Items {
		out.Items = append(out.Items, PipelineItemOutput{
			ID:           item.ID,
			Kind:         string(item.Kind),
			Name:         item.Name,
			Stage:        string(item.Stage),
			Value:        item.Value,
			Organization: item.Organization,
			Owner:        item.Owner,
			ClientID:     item.ClientID,
		})
	}
	for _, stage := range summary.Stages {
		out.Stages = append(out.Stages, PipelineStageOutput{
			Stage: string(stage.Stage),
			Count: stage.Count,
			Value: stage.Value,
		})
	}
	return nil, out, nil
}
