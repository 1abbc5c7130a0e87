// ABOUTME: Pipeline stage normalization against the canonical AIDA stages
// ABOUTME: Maps legacy stage labels via a fixed alias table and probes candidate fields
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/harperreed/funnel/models"
)

// stageAliases maps legacy pipeline labels (lowercased) to canonical stages.
var stageAliases = map[string]models.Stage{
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

// Stage coerces an arbitrary stage label to one of the five canonical
// stages. Canonical input passes through unchanged, so the function is
// idempotent. Anything unrecognized maps to the first stage.
func Stage(raw string) models.Stage {
	trimmed := strings.TrimSpace(raw)
	for _, s := range models.Stages {
		if trimmed == string(s) {
			return s
		}
	}
	if mapped, ok := stageAliases[strings.ToLower(trimmed)]; ok {
		return mapped
	}
	return models.Stages[0]
}

// stageProbe names one candidate source for a record's stage. Path is a
// field path of at most two segments; the first segment may hold a nested
// object or a JSON-string-encoded object.
type stageProbe struct {
	path []string
}

// stageProbes is the fixed priority order for resolving a stage from a raw
// record. Data, not control flow, so the list can grow without touching
// ResolveStage.
var stageProbes = []stageProbe{
	{path: []string{"stage"}},
	{path: []string{"pipelineStage"}},
	{path: []string{"pipelineStageName"}},
	{path: []string{"pipeline_stage"}},
	{path: []string{"aidaStage"}},
	{path: []string{"salesStage"}},
	{path: []string{"pipeline", "stage"}},
	{path: []string{"pipeline", "status"}},
}

// ResolveStage probes the candidate stage fields on a raw record in priority
// order and normalizes the first non-empty hit. Records with no resolvable
// stage get the default stage.
func ResolveStage(raw map[string]any) models.Stage {
	for _, probe := range stageProbes {
		if v := probeString(raw, probe.path); v != "" {
			return Stage(v)
		}
	}
	return models.Stages[0]
}

// probeString walks a one- or two-segment path, unwrapping one level of
// JSON-string-encoded object along the way.
func probeString(raw map[string]any, path []string) string {
	v, ok := raw[path[0]]
	if !ok || v == nil {
		return ""
	}
	if len(path) == 1 {
		return asString(v)
	}

	nested, ok := v.(map[string]any)
	if !ok {
		s, isStr := v.(string)
		if !isStr {
			return ""
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return ""
		}
		nested = parsed
	}
	return asString(nested[path[1]])
}
