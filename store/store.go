// ABOUTME: In-memory authoritative record store for clients and leads
// ABOUTME: Reconciles cache hydrate, REST refresh, live-sync pushes, and optimistic edits
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/funnel/api"
	"github.com/harperreed/funnel/cache"
	"github.com/harperreed/funnel/livesync"
	"github.com/harperreed/funnel/metrics"
	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
	"github.com/harperreed/funnel/restore"
)

const (
	// normalRefreshFloor is the minimum interval between ordinary refreshes.
	normalRefreshFloor = 30 * time.Second
	// forcedRefreshFloor back-pressures rapid-fire forced refreshes.
	forcedRefreshFloor = 5 * time.Second
	// cacheWriteDebounce coalesces bursts of state changes into one cache write.
	cacheWriteDebounce = 300 * time.Millisecond
	// liveSyncThrottle is the window within which an identical payload is a no-op.
	liveSyncThrottle = 10 * time.Second
	// confirmRefreshDelay lets eventually-consistent backend writes settle
	// before the post-save confirm refresh.
	confirmRefreshDelay = 3 * time.Second
)

// APIClient is the slice of the REST client the store consumes.
type APIClient interface {
	ListEntities(ctx context.Context, forceRefresh bool) ([]map[string]any, error)
	ListOpportunities(ctx context.Context) ([]map[string]any, error)
	GetEntity(ctx context.Context, t models.EntityType, id string) (map[string]any, error)
	CreateEntity(ctx context.Context, t models.EntityType, payload map[string]any) (map[string]any, error)
	UpdateEntity(ctx context.Context, t models.EntityType, id string, payload map[string]any) (map[string]any, error)
	PatchEntity(ctx context.Context, t models.EntityType, id string, fields map[string]any) (map[string]any, error)
	DeleteEntity(ctx context.Context, t models.EntityType, id string) error
	ToggleStar(ctx context.Context, t models.EntityType, id string) (map[string]any, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	CreateGroup(ctx context.Context, group models.Group) (models.Group, error)
	UpdateGroup(ctx context.Context, group models.Group) (models.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	ListGroupMembers(ctx context.Context, id string) ([]map[string]any, error)
	AssignGroup(ctx context.Context, entityID, groupID string) error
	ListIndustries(ctx context.Context) ([]models.Industry, error)
	CreateIndustry(ctx context.Context, name string) (models.Industry, error)
	DeleteIndustry(ctx context.Context, id string) error
	ListExternalAgents(ctx context.Context) ([]models.ExternalAgent, error)
}

// LiveChannel is the slice of the live-sync channel the store consumes.
type LiveChannel interface {
	Start(ctx context.Context) error
	Stop()
	IsRunning() bool
	ForceSync(ctx context.Context) error
	Subscribe(id string, handler livesync.Handler)
	Unsubscribe(id string)
}

// Options wires the store to its collaborators. API is required; the rest
// degrade gracefully when nil.
type Options struct {
	API     APIClient
	Cache   *cache.Adapter
	Restore *restore.Store
	Live    LiveChannel
	// RestoreDebounce overrides the restoration scan debounce (tests).
	RestoreDebounce time.Duration
}

// Store holds the session's authoritative clients and leads. All state
// mutation is serialized behind a mutex; the cache is a write-behind mirror
// and is never authoritative over in-memory state.
type Store struct {
	api        APIClient
	cache      *cache.Adapter
	restore    *restore.Store
	live       LiveChannel
	reconciler *restore.Reconciler

	mu        sync.Mutex
	clients   []models.Entity
	leads     []models.Entity
	rawBuffer []map[string]any

	// oppSignatures records a cheap hash of each client's opportunity set so
	// an unchanged bulk response does not churn state.
	oppSignatures map[string]uint64

	loading    map[models.EntityType]bool
	lastFetch  map[models.EntityType]time.Time
	lastForced map[models.EntityType]time.Time

	editing      bool
	selectedType models.EntityType
	selectedID   string

	lastLiveHash uint64
	lastLiveAt   time.Time

	lists map[models.EntityType]*ListState

	cacheTimer *time.Timer
	closed     bool
}

// New creates a store. Call Hydrate for the instant-paint cache load, then
// Load per collection.
func New(opts Options) *Store {
	s := &Store{
		api:           opts.API,
		cache:         opts.Cache,
		restore:       opts.Restore,
		live:          opts.Live,
		oppSignatures: make(map[string]uint64),
		loading:       make(map[models.EntityType]bool),
		lastFetch:     make(map[models.EntityType]time.Time),
		lastForced:    make(map[models.EntityType]time.Time),
		lists: map[models.EntityType]*ListState{
			models.TypeClient: {Page: 1},
			models.TypeLead:   {Page: 1},
		},
	}
	s.reconciler = restore.NewReconciler(restore.ReconcilerOptions{
		Store:     opts.Restore,
		Fetcher:   opts.API,
		Debounce:  opts.RestoreDebounce,
		RawBuffer: s.RawBuffer,
		Apply:     s.applyRestored,
	})
	return s
}

// Start connects the live-sync channel and routes its pushes into the store.
func (s *Store) Start(ctx context.Context) error {
	if s.live == nil {
		return nil
	}
	if err := s.live.Start(ctx); err != nil {
		return err
	}
	s.live.Subscribe("record-store", s.ApplyLiveSync)
	return nil
}

// Close flushes pending cache writes and tears down background work.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cacheTimer != nil {
		s.cacheTimer.Stop()
		s.cacheTimer = nil
	}
	s.mu.Unlock()

	s.reconciler.Stop()
	if s.live != nil {
		s.live.Unsubscribe("record-store")
		s.live.Stop()
	}
	s.flushCache()
}

// Hydrate paints the store from the cache before any network activity.
// Memberships still route through the restoration merge so a stale cached
// blob cannot regress a known assignment.
func (s *Store) Hydrate() {
	var cached []models.Entity
	if !s.cache.GetJSON(cache.CollectionClients, &cached) {
		return
	}

	s.mu.Lock()
	prev := s.indexLocked()
	var clients, leads []models.Entity
	for _, e := range cached {
		e = s.reconcileLocked(e, prev)
		if e.IsLead() {
			leads = append(leads, e)
		} else {
			clients = append(clients, e)
		}
	}
	s.clients, s.leads = clients, leads
	all := s.allLocked()
	s.mu.Unlock()

	s.reconciler.Schedule(all)
}

// Load refreshes one collection from the REST backend. Skips the fetch when
// a recent one already completed and nothing is known to be missing, in
// which case a lightweight live-sync re-pull is triggered instead. A forced
// refresh bypasses the skip but still honors a 5 second floor.
func (s *Store) Load(ctx context.Context, t models.EntityType, force bool) error {
	t = canonicalType(t)

	s.mu.Lock()
	if s.loading[t] {
		s.mu.Unlock()
		return nil
	}
	now := time.Now()
	if force {
		if now.Sub(s.lastForced[t]) < forcedRefreshFloor {
			s.mu.Unlock()
			return nil
		}
		s.lastForced[t] = now
	} else if now.Sub(s.lastFetch[t]) < normalRefreshFloor &&
		len(s.partitionLocked(t)) > 0 && !s.missingMembershipsLocked(t) {
		live := s.live
		s.mu.Unlock()
		if live != nil && live.IsRunning() {
			if err := live.ForceSync(ctx); err != nil {
				zap.L().Warn("live-sync re-pull failed", zap.Error(err))
			}
		}
		return nil
	}
	s.loading[t] = true
	s.mu.Unlock()

	if force {
		s.cache.Remove(cache.CollectionClients)
		s.mu.Lock()
		s.oppSignatures = make(map[string]uint64)
		s.mu.Unlock()
	}

	metrics.FetchTotal.WithLabelValues(string(t)).Inc()
	records, err := s.api.ListEntities(ctx, force)

	s.mu.Lock()
	s.loading[t] = false
	empty := len(s.clients) == 0 && len(s.leads) == 0
	s.mu.Unlock()

	if err != nil {
		metrics.FetchFailures.WithLabelValues(string(t)).Inc()
		if errors.Is(err, api.ErrUnauthorized) {
			zap.L().Warn("refresh unauthorized, keeping current state")
		}
		// Retain current state; an empty session falls back to the cache.
		if empty {
			s.Hydrate()
		}
		return fmt.Errorf("failed to refresh %s: %w", t, err)
	}
	if ctx.Err() != nil {
		// The view that asked for this load is gone; discard the response.
		return ctx.Err()
	}

	s.ingest(records)
	return nil
}

// ingest replaces both partitions from a raw bulk response, applying the
// membership merge and opportunity preservation per record.
func (s *Store) ingest(records []map[string]any) {
	s.mu.Lock()
	s.rawBuffer = records
	prev := s.indexLocked()

	var clients, leads []models.Entity
	for _, raw := range records {
		e := s.reconcileLocked(normalize.Entity(raw), prev)
		if e.IsLead() {
			leads = append(leads, e)
		} else {
			clients = append(clients, e)
		}
	}
	s.clients, s.leads = clients, leads

	now := time.Now()
	s.lastFetch[models.TypeClient] = now
	s.lastFetch[models.TypeLead] = now

	s.scheduleCacheWriteLocked()
	all := s.allLocked()
	s.mu.Unlock()

	s.reconciler.Schedule(all)
}

// ApplyLiveSync applies one pushed replacement array. Discarded entirely
// while an editing session is open, and when an identical payload arrived
// within the throttle window.
func (s *Store) ApplyLiveSync(msg livesync.Message) {
	if msg.Type != "data" {
		return
	}
	var t models.EntityType
	switch msg.DataType {
	case "clients":
		t = models.TypeClient
	case "leads":
		t = models.TypeLead
	default:
		return
	}

	s.mu.Lock()
	if s.editing {
		s.mu.Unlock()
		metrics.LiveSyncDiscarded.WithLabelValues("editing").Inc()
		return
	}
	hash := payloadHash(msg)
	now := time.Now()
	if hash == s.lastLiveHash && now.Sub(s.lastLiveAt) < liveSyncThrottle {
		s.mu.Unlock()
		metrics.LiveSyncDiscarded.WithLabelValues("duplicate").Inc()
		return
	}
	s.lastLiveHash = hash
	s.lastLiveAt = now

	prev := s.indexLocked()
	replacement := make([]models.Entity, 0, len(msg.Data))
	for _, raw := range msg.Data {
		replacement = append(replacement, s.reconcileLocked(normalize.Entity(raw), prev))
	}
	if t == models.TypeLead {
		s.leads = replacement
	} else {
		s.clients = replacement
	}
	s.scheduleCacheWriteLocked()
	s.mu.Unlock()

	metrics.LiveSyncApplied.Inc()
	s.reconciler.Schedule(replacement)
}

// AttachOpportunities bulk-fetches opportunities and merges them onto
// matching clients. Lazy: only the pipeline view calls this. A client absent
// from the response keeps its opportunities; a client present with an empty
// set is confirmed at zero. Transient server errors are swallowed.
func (s *Store) AttachOpportunities(ctx context.Context) error {
	records, err := s.api.ListOpportunities(ctx)
	if err != nil {
		if api.IsTransient(err) {
			zap.L().Warn("opportunity fetch failed, keeping current set", zap.Error(err))
			return nil
		}
		if _, limited := api.IsRateLimited(err); limited {
			zap.L().Warn("opportunity fetch rate limited", zap.Error(err))
			return nil
		}
		return fmt.Errorf("failed to fetch opportunities: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	grouped := groupOpportunities(records)

	s.mu.Lock()
	changed := false
	for i := range s.clients {
		id := s.clients[i].ID
		opps, present := grouped[id]
		if !present {
			continue
		}
		sig := oppSignature(opps)
		if prev, ok := s.oppSignatures[id]; ok && prev == sig {
			continue
		}
		s.clients[i].Opportunities = opps
		s.oppSignatures[id] = sig
		changed = true
	}
	if changed {
		s.scheduleCacheWriteLocked()
	}
	s.mu.Unlock()
	return nil
}

// SetEditing marks an editing session open or closed. While open, live-sync
// pushes are discarded so the form being edited always wins.
func (s *Store) SetEditing(editing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = editing
}

// Editing reports whether an editing session is open.
func (s *Store) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// Clients returns a copy of the current client collection.
func (s *Store) Clients() []models.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntities(s.clients)
}

// Leads returns a copy of the current lead collection.
func (s *Store) Leads() []models.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntities(s.leads)
}

// Entities returns a copy of one collection by type.
func (s *Store) Entities(t models.EntityType) []models.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneEntities(s.partitionLocked(canonicalType(t)))
}

// Entity looks up one record by type and id.
func (s *Store) Entity(t models.EntityType, id string) (models.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.partitionLocked(canonicalType(t)) {
		if e.ID == id {
			return e, true
		}
	}
	return models.Entity{}, false
}

// RawBuffer returns the latest raw bulk response, retained for the
// group-restoration fallback.
func (s *Store) RawBuffer() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, len(s.rawBuffer))
	copy(out, s.rawBuffer)
	return out
}

// applyRestored is the reconciler's push-back path for recovered memberships.
func (s *Store) applyRestored(id string, memberships []models.GroupMembership) {
	s.mu.Lock()
	applied := false
	for _, part := range [][]models.Entity{s.clients, s.leads} {
		for i := range part {
			if part[i].ID == id {
				part[i].GroupMemberships = memberships
				applied = true
			}
		}
	}
	if applied {
		s.scheduleCacheWriteLocked()
	}
	s.mu.Unlock()
	if applied {
		metrics.RestorationsApplied.Inc()
	}
}

// reconcileLocked produces the effective record for one incoming entity:
// the membership priority merge plus opportunity preservation against the
// previous in-memory record. Caller holds s.mu.
func (s *Store) reconcileLocked(e models.Entity, prev map[string]models.Entity) models.Entity {
	incoming := e.GroupMemberships
	var previous []models.Opportunity
	var prevMemberships []models.GroupMembership
	if p, ok := prev[e.ID]; ok {
		previous = p.Opportunities
		prevMemberships = p.GroupMemberships
	}

	var restored []models.GroupMembership
	var cleared bool
	if s.restore != nil {
		var err error
		restored, cleared, err = s.restore.Lookup(e.ID)
		if err != nil {
			zap.L().Warn("restoration lookup failed", zap.String("entity", e.ID), zap.Error(err))
		}
	}
	e.GroupMemberships = restore.MergeMemberships(restored, cleared, incoming, prevMemberships)
	if len(incoming) > 0 && s.restore != nil {
		if err := s.restore.Observe(e.ID, incoming); err != nil {
			zap.L().Warn("failed to record memberships", zap.String("entity", e.ID), zap.Error(err))
		}
	}

	if len(e.Opportunities) == 0 && len(previous) > 0 {
		e.Opportunities = previous
	}
	return e
}

// scheduleCacheWriteLocked debounces the write-behind mirror. Caller holds
// s.mu.
func (s *Store) scheduleCacheWriteLocked() {
	if s.closed {
		return
	}
	if s.cacheTimer != nil {
		s.cacheTimer.Stop()
	}
	s.cacheTimer = time.AfterFunc(cacheWriteDebounce, s.flushCache)
}

// flushCache mirrors the current collections and the restoration map to the
// cache. An empty collection is never written over possibly-good data.
func (s *Store) flushCache() {
	s.mu.Lock()
	all := s.allLocked()
	s.mu.Unlock()

	if len(all) == 0 {
		return
	}
	s.cache.SetJSON(cache.CollectionClients, all)
	s.cache.Touch(cache.CollectionClients)

	if s.restore == nil {
		return
	}
	restoreMap, err := s.restore.All()
	if err == nil && len(restoreMap) > 0 {
		s.cache.SetJSON(cache.CollectionGroupRestore, restoreMap)
	}
}

func (s *Store) partitionLocked(t models.EntityType) []models.Entity {
	if t == models.TypeLead {
		return s.leads
	}
	return s.clients
}

func (s *Store) allLocked() []models.Entity {
	all := make([]models.Entity, 0, len(s.clients)+len(s.leads))
	all = append(all, s.clients...)
	all = append(all, s.leads...)
	return all
}

func (s *Store) indexLocked() map[string]models.Entity {
	index := make(map[string]models.Entity, len(s.clients)+len(s.leads))
	for _, e := range s.clients {
		index[e.ID] = e
	}
	for _, e := range s.leads {
		index[e.ID] = e
	}
	return index
}

func (s *Store) missingMembershipsLocked(t models.EntityType) bool {
	for _, e := range s.partitionLocked(t) {
		if len(e.GroupMemberships) == 0 && !e.GeneratedID {
			return true
		}
	}
	return false
}

func canonicalType(t models.EntityType) models.EntityType {
	if t == models.TypeLead {
		return models.TypeLead
	}
	return models.TypeClient
}

func cloneEntities(entities []models.Entity) []models.Entity {
	out := make([]models.Entity, len(entities))
	copy(out, entities)
	return out
}

// groupOpportunities indexes a bulk response by client id. Accepts both a
// flat opportunity array and pre-grouped records carrying an explicit
// "opportunities" key, which is how a client can be present with an empty
// set.
func groupOpportunities(records []map[string]any) map[string][]models.Opportunity {
	grouped := make(map[string][]models.Opportunity)
	for _, raw := range records {
		if nested, ok := raw["opportunities"]; ok {
			clientID, _ := raw["clientId"].(string)
			if clientID == "" {
				if client := normalize.ObjectField(raw["client"], nil); client != nil {
					clientID, _ = client["id"].(string)
				}
			}
			if clientID == "" {
				continue
			}
			opps := []models.Opportunity{}
			for _, item := range normalize.ObjectList(nested, nil) {
				o := normalize.Opportunity(item)
				if o.ClientID == "" {
					o.ClientID = clientID
				}
				opps = append(opps, o)
			}
			grouped[clientID] = opps
			continue
		}
		o := normalize.Opportunity(raw)
		if o.ClientID == "" {
			continue
		}
		grouped[o.ClientID] = append(grouped[o.ClientID], o)
	}
	return grouped
}

// oppSignature is a cheap order-independent hash of an opportunity set.
func oppSignature(opps []models.Opportunity) uint64 {
	keys := make([]string, len(opps))
	for i, o := range opps {
		keys[i] = o.ID + "|" + string(o.Stage) + "|" + strconv.FormatFloat(o.Value, 'f', -1, 64)
	}
	sort.Strings(keys)
	h := fnv.New64a()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

func payloadHash(msg livesync.Message) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(msg.DataType))
	if data, err := json.Marshal(msg.Data); err == nil {
		_, _ = h.Write(data)
	}
	return h.Sum64()
}
