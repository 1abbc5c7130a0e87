// ABOUTME: Group membership normalization from the several shapes the API returns
// ABOUTME: Canonicalizes nested group relations and synthesizes memberships from legacy flat fields
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/harperreed/funnel/models"
)

// legacyGroupKeys are the flat fields older records carry group names in,
// probed in order when the relation itself is empty.
var legacyGroupKeys = []string{"companyGroups", "groups", "group", "companyGroup"}

// GroupMemberships coerces a raw groupMemberships value into canonical
// membership records. A JSON-encoded string is parsed (falling back to a
// comma-split of bare names), non-lists coerce to empty, and when the
// relation yields nothing the legacy fallback value is mined for group
// names. Synthesized memberships carry no group id. De-duplicated by name,
// first-seen order preserved.
func GroupMemberships(raw any, legacyFallback any) []models.GroupMembership {
	items := membershipItems(raw)

	var out []models.GroupMembership
	seen := make(map[string]bool)
	add := func(m models.GroupMembership) {
		name := m.Group.Name
		if name == "" {
			name = m.Name
		}
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, m)
	}

	for _, item := range items {
		switch val := item.(type) {
		case map[string]any:
			if m, ok := membershipFromObject(val); ok {
				add(m)
			}
		case string:
			if name := strings.TrimSpace(val); name != "" {
				add(synthesized(name))
			}
		}
	}

	if len(out) > 0 {
		return out
	}

	for _, name := range legacyGroupNames(legacyFallback) {
		add(synthesized(name))
	}
	return out
}

// GroupNames resolves an entity's effective group display names from its own
// group fields, de-duplicated in first-seen order.
func GroupNames(raw map[string]any) []string {
	memberships := GroupMemberships(raw["groupMemberships"], legacyFallbackValue(raw))
	names := make([]string, 0, len(memberships))
	seen := make(map[string]bool)
	for _, m := range memberships {
		name := m.Group.Name
		if name == "" {
			name = m.Name
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// legacyFallbackValue returns the first present legacy group field.
func legacyFallbackValue(raw map[string]any) any {
	for _, key := range legacyGroupKeys {
		if v, ok := raw[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// membershipItems turns the raw relation value into a generic item list.
func membershipItems(raw any) []any {
	switch val := raw.(type) {
	case nil:
		return nil
	case []any:
		return val
	case []map[string]any:
		items := make([]any, len(val))
		for i, m := range val {
			items[i] = m
		}
		return items
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		var parsed []any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed
		}
		// Comma-split into bare names when the string is not valid JSON.
		var items []any
		for _, part := range strings.Split(s, ",") {
			if name := strings.TrimSpace(part); name != "" {
				items = append(items, name)
			}
		}
		return items
	default:
		return nil
	}
}

// membershipFromObject canonicalizes one relation element. Elements carrying
// a nested group object become full memberships; elements that only carry a
// name synthesize one.
func membershipFromObject(obj map[string]any) (models.GroupMembership, bool) {
	if groupVal := ObjectField(obj["group"], nil); groupVal != nil {
		ref := models.GroupRef{
			ID:   asString(groupVal["id"]),
			Name: asString(groupVal["name"]),
			Type: asString(groupVal["type"]),
		}
		if ref.ID == "" && ref.Name == "" {
			return models.GroupMembership{}, false
		}
		return models.GroupMembership{Group: ref, Name: asString(obj["name"])}, true
	}
	if name := asString(obj["name"]); name != "" {
		return synthesized(name), true
	}
	return models.GroupMembership{}, false
}

// legacyGroupNames extracts group names from a legacy flat field, which may
// be a comma-string, a list of strings or objects, or a single object.
func legacyGroupNames(v any) []string {
	var names []string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		for _, part := range strings.Split(val, ",") {
			if name := strings.TrimSpace(part); name != "" {
				names = append(names, name)
			}
		}
	case []any:
		for _, item := range val {
			switch elem := item.(type) {
			case string:
				if name := strings.TrimSpace(elem); name != "" {
					names = append(names, name)
				}
			case map[string]any:
				if name := objectGroupName(elem); name != "" {
					names = append(names, name)
				}
			}
		}
	case map[string]any:
		if name := objectGroupName(val); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// objectGroupName digs a display name out of a legacy group object.
func objectGroupName(obj map[string]any) string {
	if name := asString(obj["name"]); name != "" {
		return name
	}
	if nested := ObjectField(obj["group"], nil); nested != nil {
		return asString(nested["name"])
	}
	return ""
}

func synthesized(name string) models.GroupMembership {
	return models.GroupMembership{
		Group: models.GroupRef{Name: name},
		Name:  name,
	}
}
