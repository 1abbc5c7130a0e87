// ABOUTME: Whole-record normalization pipeline for externally-sourced entities
// ABOUTME: Produces canonical Entity and Opportunity values from raw API payloads
package normalize

import (
	"strings"

	"github.com/harperreed/funnel/models"
)

// Entity coerces a raw API record into the canonical in-memory shape. Every
// ingestion path (cache hydrate, REST fetch, live-sync push) must run records
// through this before they reach the store.
func Entity(raw map[string]any) models.Entity {
	entityType := EntityType(raw["type"])

	prefix := "client"
	if entityType == models.TypeLead {
		prefix = "lead"
	}
	id, generated := NormalizeID(raw, prefix)

	e := models.Entity{
		ID:          id,
		GeneratedID: generated,
		Type:        entityType,
		Name:        asString(raw["name"]),
		Status:      Status(asString(raw["status"]), entityType),
		Stage:       ResolveStage(raw),
		Industry:    asString(raw["industry"]),
		Revenue:     resolveRevenue(raw),
		IsStarred:   ResolveStarred(raw),

		Contacts:    ObjectList(raw["contacts"], []map[string]any{}),
		FollowUps:   ObjectList(raw["followUps"], []map[string]any{}),
		ProjectIDs:  StringList(raw["projectIds"], []string{}),
		Comments:    ObjectList(raw["comments"], []map[string]any{}),
		ActivityLog: ObjectList(raw["activityLog"], []map[string]any{}),
		Sites:       ObjectList(raw["sites"], []map[string]any{}),
		Contracts:   ObjectList(raw["contracts"], []map[string]any{}),
		Services:    ObjectList(raw["services"], []map[string]any{}),
		Proposals:   ObjectList(raw["proposals"], []map[string]any{}),

		BillingTerms: BillingTermsField(raw["billingTerms"]),
		KYC:          ObjectField(raw["kyc"], map[string]any{}),

		GroupMemberships: GroupMemberships(raw["groupMemberships"], legacyFallbackValue(raw)),

		ExternalAgentID: asString(raw["externalAgentId"]),
		ExternalAgent:   ObjectField(raw["externalAgent"], nil),

		Notes: asString(raw["notes"]),

		CreatedAt: ParseTime(raw["createdAt"]),
		UpdatedAt: ParseTime(raw["updatedAt"]),
	}

	if generated {
		e.TempID = id
		e.LegacyID = asString(raw["legacyId"])
	}
	if e.Industry == "" {
		e.Industry = "Other"
	}

	for _, rawOpp := range ObjectList(raw["opportunities"], nil) {
		e.Opportunities = append(e.Opportunities, Opportunity(rawOpp))
	}

	return e
}

// EntityType normalizes the type discriminator. Anything other than "lead"
// is a client; missing/null is a legacy client.
func EntityType(v any) models.EntityType {
	switch strings.ToLower(asString(v)) {
	case "lead":
		return models.TypeLead
	case "client":
		return models.TypeClient
	default:
		return ""
	}
}

// Status title-cases a free-form status and applies the per-type default
// (Potential for leads, Active for clients). The result is never empty.
func Status(raw string, entityType models.EntityType) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if entityType == models.TypeLead {
			return models.StatusPotential
		}
		return models.StatusActive
	}
	return TitleCase(trimmed)
}

// TitleCase uppercases the first letter of each word, lowercasing the rest.
func TitleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// BillingTermsField merges a raw billingTerms value over the documented
// defaults. A JSON-encoded string is parsed; garbage yields the defaults.
func BillingTermsField(v any) models.BillingTerms {
	terms := models.DefaultBillingTerms()
	obj := ObjectField(v, nil)
	if obj == nil {
		return terms
	}
	if s := asString(obj["paymentTerms"]); s != "" {
		terms.PaymentTerms = s
	}
	if s := asString(obj["billingFrequency"]); s != "" {
		terms.BillingFrequency = s
	}
	if s := asString(obj["currency"]); s != "" {
		terms.Currency = s
	}
	if n := asFloat(obj["retainerAmount"]); n != 0 {
		terms.RetainerAmount = n
	}
	if truthy(obj["taxExempt"]) {
		terms.TaxExempt = true
	}
	if s := asString(obj["notes"]); s != "" {
		terms.Notes = s
	}
	return terms
}

// revenueKeys are probed in order for an entity's monetary value.
var revenueKeys = []string{"revenue", "value", "annualRevenue", "dealValue"}

func resolveRevenue(raw map[string]any) float64 {
	for _, key := range revenueKeys {
		if v, ok := raw[key]; ok && v != nil {
			if n := asFloat(v); n != 0 {
				return n
			}
		}
	}
	return 0
}

// Opportunity coerces a raw opportunity record. Stage and identity follow
// the same rules as entities; the raw payload is retained for callers that
// need fields outside the canonical shape.
func Opportunity(raw map[string]any) models.Opportunity {
	id, _ := NormalizeID(raw, "opp")

	clientID := asString(raw["clientId"])
	if clientID == "" {
		if client := ObjectField(raw["client"], nil); client != nil {
			clientID = asString(client["id"])
		}
	}

	name := asString(raw["name"])
	if name == "" {
		name = asString(raw["title"])
	}

	return models.Opportunity{
		ID:        id,
		Name:      name,
		Stage:     ResolveStage(raw),
		Value:     resolveRevenue(raw),
		ClientID:  clientID,
		Owner:     asString(raw["owner"]),
		UpdatedAt: ParseTime(raw["updatedAt"]),
		Raw:       raw,
	}
}
