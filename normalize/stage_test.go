// ABOUTME: Tests for pipeline stage normalization and resolution
// ABOUTME: Covers idempotence, the legacy alias table, and candidate field probing
package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harperreed/funnel/models"
)

func TestStageCanonicalPassthrough(t *testing.T) {
	for _, s := range models.Stages {
		assert.Equal(t, s, Stage(string(s)))
	}
}

func TestStageAliases(t *testing.T) {
	cases := map[string]models.Stage{
		"prospect":      models.StageAwareness,
		"new":           models.StageNoEngagement,
		"qualification": models.StageInterest,
		"discovery":     models.StageInterest,
		"evaluation":    models.StageDesire,
		"proposal":      models.StageDesire,
		"negotiation":   models.StageAction,
		"contracting":   models.StageAction,
		"closing":       models.StageAction,
	}
	for raw, want := range cases {
		assert.Equal(t, want, Stage(raw), "alias %q", raw)
		// Case-insensitive lookup.
		assert.Equal(t, want, Stage("  "+raw+" "), "alias %q with whitespace", raw)
	}
}

func TestStageAliasTableResolvesViaEntity(t *testing.T) {
	for raw, want := range stageAliases {
		got := ResolveStage(map[string]any{"stage": raw})
		assert.Equal(t, want, got, "resolveStage stage=%q", raw)
	}
}

func TestStageUnrecognizedDefaults(t *testing.T) {
	assert.Equal(t, models.StageNoEngagement, Stage("xyz"))
	assert.Equal(t, models.StageNoEngagement, Stage(""))
	assert.Equal(t, models.StageNoEngagement, Stage("   "))
}

func TestStageIdempotent(t *testing.T) {
	inputs := []string{"prospect", "negotiation", "xyz", "Interest", "", "ACTION"}
	for _, in := range inputs {
		once := Stage(in)
		assert.Equal(t, once, Stage(string(once)), "normalizeStage not idempotent for %q", in)
	}
}

func TestResolveStagePriorityOrder(t *testing.T) {
	raw := map[string]any{
		"pipelineStage": "negotiation",
		"salesStage":    "prospect",
	}
	assert.Equal(t, models.StageAction, ResolveStage(raw))

	// Direct stage field wins over everything.
	raw["stage"] = "Interest"
	assert.Equal(t, models.StageInterest, ResolveStage(raw))
}

func TestResolveStageNestedObject(t *testing.T) {
	raw := map[string]any{
		"pipeline": map[string]any{"stage": "proposal"},
	}
	assert.Equal(t, models.StageDesire, ResolveStage(raw))
}

func TestResolveStageJSONEncodedPipeline(t *testing.T) {
	raw := map[string]any{
		"pipeline": `{"status":"closing"}`,
	}
	assert.Equal(t, models.StageAction, ResolveStage(raw))
}

func TestResolveStageMissingDefaults(t *testing.T) {
	assert.Equal(t, models.StageNoEngagement, ResolveStage(map[string]any{"name": "Acme"}))
	assert.Equal(t, models.StageNoEngagement, ResolveStage(map[string]any{"pipeline": "not json"}))
}
