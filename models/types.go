// ABOUTME: Data models for CRM pipeline entities
// ABOUTME: Defines Entity (client/lead), Opportunity, Group, and membership types
package models

import (
	"time"
)

// EntityType discriminates the two variants of the shared entity schema.
// An empty type is treated as a legacy client.
type EntityType string

const (
	TypeClient EntityType = "client"
	TypeLead   EntityType = "lead"
)

// Stage is a canonical AIDA pipeline stage.
type Stage string

const (
	StageNoEngagement Stage = "No Engagement"
	StageAwareness    Stage = "Awareness"
	StageInterest     Stage = "Interest"
	StageDesire       Stage = "Desire"
	StageAction       Stage = "Action"
)

// Stages is the fixed pipeline order. The first entry is the default for
// unrecognized input.
var Stages = []Stage{
	StageNoEngagement,
	StageAwareness,
	StageInterest,
	StageDesire,
	StageAction,
}

// StageIndex returns the position of s in the pipeline order, or 0 for
// anything unrecognized.
func StageIndex(s Stage) int {
	for i, stage := range Stages {
		if stage == s {
			return i
		}
	}
	return 0
}

// Status constants. The stored value is free-form; these are the known set.
const (
	StatusPotential     = "Potential"
	StatusActive        = "Active"
	StatusInactive      = "Inactive"
	StatusOnHold        = "On Hold"
	StatusQualified     = "Qualified"
	StatusDisinterested = "Disinterested"
	StatusProposal      = "Proposal"
	StatusTender        = "Tender"
)

// GroupRef is the canonical group reference carried on a membership.
type GroupRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// GroupMembership assigns an entity to a company group. Name mirrors the
// group name for memberships synthesized from legacy flat fields that carry
// no group id.
type GroupMembership struct {
	Group GroupRef `json:"group"`
	Name  string   `json:"name,omitempty"`
}

// BillingTerms holds the fixed optional billing fields.
type BillingTerms struct {
	PaymentTerms     string  `json:"paymentTerms"`
	BillingFrequency string  `json:"billingFrequency"`
	Currency         string  `json:"currency"`
	RetainerAmount   float64 `json:"retainerAmount"`
	TaxExempt        bool    `json:"taxExempt"`
	Notes            string  `json:"notes"`
}

// DefaultBillingTerms returns the documented billing defaults.
func DefaultBillingTerms() BillingTerms {
	return BillingTerms{
		PaymentTerms:     "Net 30",
		BillingFrequency: "Monthly",
		Currency:         "ZAR",
	}
}

// Entity is a client or lead. Both variants share this shape.
type Entity struct {
	ID       string `json:"id"`
	TempID   string `json:"tempId,omitempty"`
	LegacyID string `json:"legacyId,omitempty"`
	// GeneratedID marks ids fabricated by the identity resolver rather than
	// issued by the server.
	GeneratedID bool `json:"generatedId,omitempty"`

	Type     EntityType `json:"type,omitempty"`
	Name     string     `json:"name"`
	Status   string     `json:"status"`
	Stage    Stage      `json:"stage"`
	Industry string     `json:"industry"`
	Revenue  float64    `json:"revenue"`

	IsStarred bool `json:"isStarred"`

	Contacts    []map[string]any `json:"contacts"`
	FollowUps   []map[string]any `json:"followUps"`
	ProjectIDs  []string         `json:"projectIds"`
	Comments    []map[string]any `json:"comments"`
	ActivityLog []map[string]any `json:"activityLog"`
	Sites       []map[string]any `json:"sites"`
	Contracts   []map[string]any `json:"contracts"`
	Services    []map[string]any `json:"services"`
	Proposals   []map[string]any `json:"proposals"`

	BillingTerms BillingTerms   `json:"billingTerms"`
	KYC          map[string]any `json:"kyc"`

	GroupMemberships []GroupMembership `json:"groupMemberships"`

	ExternalAgentID string         `json:"externalAgentId,omitempty"`
	ExternalAgent   map[string]any `json:"externalAgent,omitempty"`

	// Opportunities is only meaningful for clients.
	Opportunities []Opportunity `json:"opportunities,omitempty"`

	Notes string `json:"notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsClient reports whether the entity is a client. A missing type is a
// legacy client.
func (e *Entity) IsClient() bool {
	return e.Type == TypeClient || e.Type == ""
}

// IsLead reports whether the entity is a lead.
func (e *Entity) IsLead() bool {
	return e.Type == TypeLead
}

// GroupNames flattens memberships to a de-duplicated ordered list of display
// names.
func (e *Entity) GroupNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range e.GroupMemberships {
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

// Opportunity belongs to a client and rides the same pipeline stages.
type Opportunity struct {
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Stage     Stage          `json:"stage"`
	Value     float64        `json:"value"`
	ClientID  string         `json:"clientId"`
	Owner     string         `json:"owner,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
	Raw       map[string]any `json:"-"`
}

// GroupCounts carries the relation counts the list API returns per group.
type GroupCounts struct {
	ChildCompanies int `json:"childCompanies"`
	GroupChildren  int `json:"groupChildren"`
}

// Group is a company group. Membership is many-to-many with entities.
type Group struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Industry string      `json:"industry,omitempty"`
	Notes    string      `json:"notes,omitempty"`
	Count    GroupCounts `json:"_count"`
}

// Industry is a selectable industry label.
type Industry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExternalAgent is the denormalized display record of an external agent.
type ExternalAgent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
