// ABOUTME: Identity resolution for externally-sourced records
// ABOUTME: Probes candidate id fields and fabricates deterministic fallback ids
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// idCandidates is the fixed priority order of candidate id fields.
var idCandidates = []string{
	"id", "leadId", "clientId", "uuid", "_id", "publicId",
	"externalId", "recordId", "tempId", "localId", "legacyId",
}

// idTimestampKeys are probed in order for the fallback id's timestamp.
var idTimestampKeys = []string{"createdAt", "updatedAt", "firstContactDate", "lastContact"}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

// ResolveID returns the first non-empty candidate id on a raw record,
// falling back to metadata.id and then the first entry of identifiers.
// Empty string means no id could be resolved.
func ResolveID(raw map[string]any) string {
	for _, key := range idCandidates {
		id := asString(raw[key])
		if id == "" {
			continue
		}
		// The uuid field has carried garbage before; only trust it when it
		// actually parses.
		if key == "uuid" && uuid.Validate(id) != nil {
			continue
		}
		return id
	}
	if meta := ObjectField(raw["metadata"], nil); meta != nil {
		if id := asString(meta["id"]); id != "" {
			return id
		}
	}
	for _, id := range StringList(raw["identifiers"], nil) {
		if id != "" {
			return id
		}
	}
	return ""
}

// GenerateFallbackID fabricates a deterministic id of the form
// "{prefix}-{slug}-{timestamp}". The slug is the lowercased name with runs
// of non-alphanumerics collapsed to single hyphens; a name that slugs to
// nothing falls back to the prefix. The timestamp is the best available
// record date, else the current time in milliseconds.
func GenerateFallbackID(raw map[string]any, prefix string) string {
	slug := Slug(asString(raw["name"]))
	if slug == "" {
		slug = prefix
	}

	var ts time.Time
	for _, key := range idTimestampKeys {
		if t := ParseTime(raw[key]); !t.IsZero() {
			ts = t
			break
		}
	}
	if ts.IsZero() {
		ts = time.Now()
	}

	return fmt.Sprintf("%s-%s-%d", prefix, slug, ts.UnixMilli())
}

// NormalizeID resolves a record's id, fabricating one when no candidate
// field holds a value. The generated flag must be propagated by every
// ingestion path so downstream logic can tell real ids from fabricated ones.
func NormalizeID(raw map[string]any, prefix string) (id string, generated bool) {
	if id := ResolveID(raw); id != "" {
		return id, false
	}
	return GenerateFallbackID(raw, prefix), true
}

// Slug lowercases a name and collapses non-alphanumerics to single hyphens,
// trimming hyphens at the edges.
func Slug(name string) string {
	slug := slugStrip.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(slug, "-")
}
