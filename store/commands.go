// ABOUTME: Typed command union for cross-component requests
// ABOUTME: Replaces stringly-typed event-bus coupling with Store.Handle(cmd)
package store

import (
	"github.com/harperreed/funnel/livesync"
	"github.com/harperreed/funnel/models"
)

// Command is a cross-component request delivered to the store.
type Command interface {
	isCommand()
}

// OpenEntityCommand opens an entity's detail view by type and id. Opening a
// detail starts an editing session, which suspends live-sync application.
type OpenEntityCommand struct {
	Type models.EntityType
	ID   string
}

// ResetViewCommand returns to the list view, ending any editing session.
type ResetViewCommand struct{}

// PipelineDataCommand carries a pushed replacement array routed from the
// pipeline view; applied with the same rules as a live-sync message.
type PipelineDataCommand struct {
	DataType string
	Data     []map[string]any
}

// OpenPipelineItemCommand opens a lead or a client (via its opportunity)
// from the pipeline board.
type OpenPipelineItemCommand struct {
	Kind     string // "lead" or "opportunity"
	ID       string
	ClientID string
}

func (OpenEntityCommand) isCommand()       {}
func (ResetViewCommand) isCommand()        {}
func (PipelineDataCommand) isCommand()     {}
func (OpenPipelineItemCommand) isCommand() {}

// Handle dispatches one command.
func (s *Store) Handle(cmd Command) {
	switch c := cmd.(type) {
	case OpenEntityCommand:
		s.mu.Lock()
		s.selectedType = canonicalType(c.Type)
		s.selectedID = c.ID
		s.editing = true
		s.mu.Unlock()

	case ResetViewCommand:
		s.mu.Lock()
		s.selectedType = ""
		s.selectedID = ""
		s.editing = false
		s.mu.Unlock()

	case PipelineDataCommand:
		s.ApplyLiveSync(livesync.Message{Type: "data", DataType: c.DataType, Data: c.Data})

	case OpenPipelineItemCommand:
		s.mu.Lock()
		if c.Kind == "lead" {
			s.selectedType = models.TypeLead
			s.selectedID = c.ID
		} else {
			s.selectedType = models.TypeClient
			s.selectedID = c.ClientID
		}
		s.editing = true
		s.mu.Unlock()
	}
}

// Selected returns the currently-open detail record, if any.
func (s *Store) Selected() (models.EntityType, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedType, s.selectedID, s.selectedID != ""
}
