// ABOUTME: Optimistic mutation handlers for entities
// ABOUTME: Two-phase commit: apply locally, call the API, confirm or roll back
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/harperreed/funnel/api"
	"github.com/harperreed/funnel/metrics"
	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
)

// ErrNameRequired blocks a save before any optimistic change is applied.
var ErrNameRequired = errors.New("name is required")

// LocalOnlyError reports that an update hit a server conflict and the edit
// was kept locally instead of being rolled back, so the user's work is not
// lost. The change may not be persisted server-side.
type LocalOnlyError struct {
	Cause error
}

func (e *LocalOnlyError) Error() string {
	return fmt.Sprintf("saved locally only: %v", e.Cause)
}

func (e *LocalOnlyError) Unwrap() error { return e.Cause }

// mutationHandle captures pre-mutation state for rollback. Mutations must
// replace field values rather than editing shared inner slices in place, or
// the snapshot would be corrupted.
type mutationHandle struct {
	clients []models.Entity
	leads   []models.Entity
}

// applyOptimistic snapshots state, applies mutate under the lock, and
// schedules the cache mirror.
func (s *Store) applyOptimistic(mutate func()) *mutationHandle {
	s.mu.Lock()
	h := &mutationHandle{
		clients: cloneEntities(s.clients),
		leads:   cloneEntities(s.leads),
	}
	mutate()
	s.scheduleCacheWriteLocked()
	s.mu.Unlock()
	return h
}

// rollback restores the captured pre-mutation state.
func (s *Store) rollback(h *mutationHandle) {
	s.mu.Lock()
	s.clients = h.clients
	s.leads = h.leads
	s.scheduleCacheWriteLocked()
	s.mu.Unlock()
	metrics.Rollbacks.Inc()
}

// SaveEntity creates or updates a client or lead. The record is applied
// optimistically; a record with no server id gets a temporary id so it is
// addressable until the server responds. On the server's response, locally
// held field values win over server defaults so a slow-refreshing copy
// cannot blank out what was just typed. stillEditing suppresses the delayed
// confirm refresh so the active form is not reset underneath the user.
func (s *Store) SaveEntity(ctx context.Context, e models.Entity, stillEditing bool) (models.Entity, error) {
	if strings.TrimSpace(e.Name) == "" {
		return models.Entity{}, ErrNameRequired
	}
	t := canonicalType(e.Type)
	e.Type = t
	e.Stage = normalize.Stage(string(e.Stage))
	e.Status = normalize.Status(e.Status, t)

	creating := e.ID == "" || e.GeneratedID
	if e.ID == "" {
		e.ID = "temp-" + newTempID()
		e.TempID = e.ID
		e.GeneratedID = true
	}
	optimisticID := e.ID

	h := s.applyOptimistic(func() {
		s.upsertLocked(e)
	})

	var raw map[string]any
	var err error
	if creating {
		raw, err = s.api.CreateEntity(ctx, t, entityPayload(e))
	} else {
		raw, err = s.api.UpdateEntity(ctx, t, e.ID, entityPayload(e))
	}
	if err != nil {
		if !creating && api.IsConflict(err) {
			// Keep the optimistic state rather than discarding the edit.
			return e, &LocalOnlyError{Cause: err}
		}
		s.rollback(h)
		return models.Entity{}, err
	}

	saved := e
	if raw != nil {
		saved = mergeLocalWins(e, normalize.Entity(raw))
	}

	s.mu.Lock()
	if saved.ID != optimisticID {
		// The server issued the permanent id; drop the temporary record.
		s.removeLocked(t, optimisticID)
	}
	s.upsertLocked(saved)
	s.scheduleCacheWriteLocked()
	s.mu.Unlock()

	if len(saved.GroupMemberships) > 0 && s.restore != nil {
		if err := s.restore.Observe(saved.ID, saved.GroupMemberships); err != nil {
			zap.L().Warn("failed to record memberships after save", zap.Error(err))
		}
	}

	s.afterMutation(stillEditing)
	return saved, nil
}

// DeleteEntity removes a record optimistically. A 404 from the backend is
// treated as already deleted; any other failure restores the record.
func (s *Store) DeleteEntity(ctx context.Context, t models.EntityType, id string) error {
	t = canonicalType(t)
	h := s.applyOptimistic(func() {
		s.removeLocked(t, id)
	})

	if err := s.api.DeleteEntity(ctx, t, id); err != nil && !errors.Is(err, api.ErrNotFound) {
		s.rollback(h)
		return fmt.Errorf("failed to delete %s: %w", id, err)
	}

	s.afterMutation(false)
	return nil
}

// ToggleStar flips the starred flag optimistically. The server's echoed
// record, when present, is merged back since the flag may be derived
// server-side.
func (s *Store) ToggleStar(ctx context.Context, t models.EntityType, id string) error {
	t = canonicalType(t)
	h := s.applyOptimistic(func() {
		s.patchLocked(t, id, func(e *models.Entity) {
			e.IsStarred = !e.IsStarred
		})
	})

	raw, err := s.api.ToggleStar(ctx, t, id)
	if err != nil {
		s.rollback(h)
		return fmt.Errorf("failed to toggle star on %s: %w", id, err)
	}
	s.mergeEcho(t, id, raw)
	return nil
}

// UpdateField patches a single field (stage, status, industry, external
// agent) optimistically and merges the server's echoed record back if one is
// provided, notably re-syncing sites.
func (s *Store) UpdateField(ctx context.Context, t models.EntityType, id, field string, value any) error {
	t = canonicalType(t)

	apply, payloadValue, err := fieldPatch(field, value)
	if err != nil {
		return err
	}

	h := s.applyOptimistic(func() {
		s.patchLocked(t, id, apply)
	})

	raw, err := s.api.PatchEntity(ctx, t, id, map[string]any{field: payloadValue})
	if err != nil {
		s.rollback(h)
		return fmt.Errorf("failed to update %s on %s: %w", field, id, err)
	}
	s.mergeEcho(t, id, raw)
	return nil
}

// UpdateSiteStage patches the pipeline stage of one site nested inside a
// lead's sites sequence.
func (s *Store) UpdateSiteStage(ctx context.Context, t models.EntityType, id string, siteIndex int, stage models.Stage) error {
	t = canonicalType(t)
	stage = normalize.Stage(string(stage))

	var sites []map[string]any
	s.mu.Lock()
	for _, e := range s.partitionLocked(t) {
		if e.ID == id {
			sites = cloneSites(e.Sites)
			break
		}
	}
	s.mu.Unlock()
	if siteIndex < 0 || siteIndex >= len(sites) {
		return fmt.Errorf("site index %d out of range for %s", siteIndex, id)
	}
	sites[siteIndex]["stage"] = string(stage)

	h := s.applyOptimistic(func() {
		s.patchLocked(t, id, func(e *models.Entity) {
			e.Sites = sites
		})
	})

	raw, err := s.api.PatchEntity(ctx, t, id, map[string]any{"sites": sites})
	if err != nil {
		s.rollback(h)
		return fmt.Errorf("failed to update site stage on %s: %w", id, err)
	}
	s.mergeEcho(t, id, raw)
	return nil
}

// SetGroupMemberships is the one user-initiated path allowed to empty an
// entity's memberships. An empty list writes an explicit-clear tombstone so
// the restoration subsystem does not resurrect the removed assignments.
func (s *Store) SetGroupMemberships(ctx context.Context, t models.EntityType, id string, memberships []models.GroupMembership) error {
	t = canonicalType(t)

	var priorRestored []models.GroupMembership
	var priorCleared bool
	if s.restore != nil {
		priorRestored, priorCleared, _ = s.restore.Lookup(id)
	}

	h := s.applyOptimistic(func() {
		s.patchLocked(t, id, func(e *models.Entity) {
			e.GroupMemberships = memberships
		})
	})
	if s.restore != nil {
		if len(memberships) == 0 {
			if err := s.restore.Clear(id); err != nil {
				zap.L().Warn("failed to record group clear", zap.Error(err))
			}
		} else {
			if err := s.restore.Observe(id, memberships); err != nil {
				zap.L().Warn("failed to record memberships", zap.Error(err))
			}
		}
	}

	_, err := s.api.PatchEntity(ctx, t, id, map[string]any{"groupMemberships": membershipPayload(memberships)})
	if err != nil {
		s.rollback(h)
		// Put the restoration map back the way it was.
		if s.restore != nil {
			switch {
			case priorCleared:
				_ = s.restore.Clear(id)
			case len(priorRestored) > 0:
				_ = s.restore.Observe(id, priorRestored)
			default:
				_ = s.restore.Clear(id)
			}
		}
		return fmt.Errorf("failed to update groups on %s: %w", id, err)
	}

	s.afterMutation(false)
	return nil
}

// mergeEcho merges a server-echoed record back into state after a field
// patch, preserving locally-attached opportunities.
func (s *Store) mergeEcho(t models.EntityType, id string, raw map[string]any) {
	if raw == nil {
		return
	}
	echoed := normalize.Entity(raw)
	if echoed.ID == "" || echoed.GeneratedID {
		return
	}
	s.mu.Lock()
	echoed = s.reconcileLocked(echoed, s.indexLocked())
	s.removeLocked(t, id)
	s.upsertLocked(echoed)
	s.scheduleCacheWriteLocked()
	s.mu.Unlock()
}

// afterMutation triggers the background live-sync re-pull and, unless an
// editing session is still open, a delayed confirm refresh that lets
// eventually-consistent backend writes settle.
func (s *Store) afterMutation(stillEditing bool) {
	if s.live != nil && s.live.IsRunning() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.live.ForceSync(ctx); err != nil {
				zap.L().Warn("post-mutation live-sync re-pull failed", zap.Error(err))
			}
		}()
	}
	if stillEditing {
		return
	}
	time.AfterFunc(confirmRefreshDelay, func() {
		if s.Editing() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.confirmRefresh(ctx); err != nil {
			zap.L().Warn("confirm refresh failed", zap.Error(err))
		}
	})
}

// confirmRefresh re-fetches both collections ignoring the refresh floors but
// still respecting the in-flight guards.
func (s *Store) confirmRefresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed || s.loading[models.TypeClient] || s.loading[models.TypeLead] {
		s.mu.Unlock()
		return nil
	}
	s.loading[models.TypeClient] = true
	s.loading[models.TypeLead] = true
	s.mu.Unlock()

	records, err := s.api.ListEntities(ctx, false)

	s.mu.Lock()
	s.loading[models.TypeClient] = false
	s.loading[models.TypeLead] = false
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.ingest(records)
	return nil
}

// upsertLocked inserts or replaces a record in its type's partition. Caller
// holds s.mu.
func (s *Store) upsertLocked(e models.Entity) {
	part := s.partitionLocked(canonicalType(e.Type))
	for i := range part {
		if part[i].ID == e.ID {
			part[i] = e
			return
		}
	}
	if canonicalType(e.Type) == models.TypeLead {
		s.leads = append(s.leads, e)
	} else {
		s.clients = append(s.clients, e)
	}
}

// removeLocked drops a record from its partition. Caller holds s.mu.
func (s *Store) removeLocked(t models.EntityType, id string) {
	part := s.partitionLocked(t)
	for i := range part {
		if part[i].ID == id {
			out := append(cloneEntities(part[:i]), part[i+1:]...)
			if t == models.TypeLead {
				s.leads = out
			} else {
				s.clients = out
			}
			return
		}
	}
}

// patchLocked applies fn to one record in place. Caller holds s.mu.
func (s *Store) patchLocked(t models.EntityType, id string, fn func(*models.Entity)) {
	part := s.partitionLocked(t)
	for i := range part {
		if part[i].ID == id {
			fn(&part[i])
			return
		}
	}
}

// fieldPatch maps a patchable field name to its local apply function and
// wire value.
func fieldPatch(field string, value any) (func(*models.Entity), any, error) {
	switch field {
	case "stage":
		stage := normalize.Stage(fmt.Sprint(value))
		return func(e *models.Entity) { e.Stage = stage }, string(stage), nil
	case "status":
		status := normalize.TitleCase(fmt.Sprint(value))
		if strings.TrimSpace(status) == "" {
			return nil, nil, fmt.Errorf("status must not be empty")
		}
		return func(e *models.Entity) { e.Status = status }, status, nil
	case "industry":
		industry := fmt.Sprint(value)
		return func(e *models.Entity) { e.Industry = industry }, industry, nil
	case "externalAgentId":
		agentID := fmt.Sprint(value)
		return func(e *models.Entity) { e.ExternalAgentID = agentID }, agentID, nil
	case "notes":
		notes := fmt.Sprint(value)
		return func(e *models.Entity) { e.Notes = notes }, notes, nil
	default:
		return nil, nil, fmt.Errorf("field %q is not patchable", field)
	}
}

// mergeLocalWins merges a server response over the local record with local
// non-empty values taking precedence. Server identity and timestamps are
// authoritative; free text and explicitly-set fields are not.
func mergeLocalWins(local, server models.Entity) models.Entity {
	merged := server
	merged.Type = canonicalType(local.Type)

	if strings.TrimSpace(local.Name) != "" {
		merged.Name = local.Name
	}
	if strings.TrimSpace(local.Notes) != "" {
		merged.Notes = local.Notes
	}
	if strings.TrimSpace(local.Status) != "" {
		merged.Status = local.Status
	}
	merged.Stage = local.Stage
	if local.Industry != "" && local.Industry != "Other" {
		merged.Industry = local.Industry
	}
	if local.Revenue != 0 {
		merged.Revenue = local.Revenue
	}
	merged.IsStarred = local.IsStarred
	if len(local.GroupMemberships) > 0 {
		merged.GroupMemberships = local.GroupMemberships
	}
	if len(local.Contacts) > 0 {
		merged.Contacts = local.Contacts
	}
	if len(local.FollowUps) > 0 {
		merged.FollowUps = local.FollowUps
	}
	if len(local.Comments) > 0 {
		merged.Comments = local.Comments
	}
	if len(local.Sites) > 0 {
		merged.Sites = local.Sites
	}
	if len(local.Contracts) > 0 {
		merged.Contracts = local.Contracts
	}
	if len(local.Services) > 0 {
		merged.Services = local.Services
	}
	if len(local.Proposals) > 0 {
		merged.Proposals = local.Proposals
	}
	if len(local.ProjectIDs) > 0 {
		merged.ProjectIDs = local.ProjectIDs
	}
	if len(local.KYC) > 0 {
		merged.KYC = local.KYC
	}
	if local.ExternalAgentID != "" {
		merged.ExternalAgentID = local.ExternalAgentID
	}
	merged.BillingTerms = local.BillingTerms
	if len(local.Opportunities) > 0 && len(merged.Opportunities) == 0 {
		merged.Opportunities = local.Opportunities
	}
	return merged
}

// entityPayload serializes an entity for the wire, dropping local-only
// bookkeeping fields.
func entityPayload(e models.Entity) map[string]any {
	data, err := json.Marshal(e)
	if err != nil {
		return map[string]any{"name": e.Name}
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return map[string]any{"name": e.Name}
	}
	delete(payload, "tempId")
	delete(payload, "generatedId")
	if e.GeneratedID {
		delete(payload, "id")
	}
	return payload
}

func membershipPayload(memberships []models.GroupMembership) []map[string]any {
	out := make([]map[string]any, 0, len(memberships))
	for _, m := range memberships {
		out = append(out, map[string]any{
			"group": map[string]any{
				"id":   m.Group.ID,
				"name": m.Group.Name,
				"type": m.Group.Type,
			},
		})
	}
	return out
}

func cloneSites(sites []map[string]any) []map[string]any {
	out := make([]map[string]any, len(sites))
	for i, site := range sites {
		copied := make(map[string]any, len(site))
		for k, v := range site {
			copied[k] = v
		}
		out[i] = copied
	}
	return out
}

func newTempID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
