// ABOUTME: Debounced reconciliation pass for entities missing group memberships
// ABOUTME: Re-checks the raw response buffer and one bulk fetch, marking entities checked either way
package restore

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/normalize"
)

// BulkFetcher is the one API capability the reconciler needs.
type BulkFetcher interface {
	ListEntities(ctx context.Context, forceRefresh bool) ([]map[string]any, error)
}

// ReconcilerOptions wires the reconciler to its collaborators.
type ReconcilerOptions struct {
	Store   *Store
	Fetcher BulkFetcher
	// Apply pushes a recovered membership list back into the record store.
	Apply func(entityID string, memberships []models.GroupMembership)
	// RawBuffer returns the latest raw bulk response held by the record
	// store; consulted before spending a network fetch.
	RawBuffer func() []map[string]any
	// Debounce coalesces bursts of record-store changes into one pass.
	Debounce time.Duration
}

// Reconciler watches the record collection for entities whose memberships
// are missing and tries to recover them from a bulk fetch. Each entity is
// checked at most once per session, so entities that genuinely have no
// groups do not trigger repeated fetches.
type Reconciler struct {
	store     *Store
	fetcher   BulkFetcher
	apply     func(string, []models.GroupMembership)
	rawBuffer func() []map[string]any
	debounce  time.Duration

	mu      sync.Mutex
	checked map[string]bool
	pending map[string]bool
	timer   *time.Timer
	stopped bool
}

// NewReconciler creates a reconciler. Debounce defaults to 3 seconds.
func NewReconciler(opts ReconcilerOptions) *Reconciler {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 3 * time.Second
	}
	return &Reconciler{
		store:     opts.Store,
		fetcher:   opts.Fetcher,
		apply:     opts.Apply,
		rawBuffer: opts.RawBuffer,
		debounce:  debounce,
		checked:   make(map[string]bool),
		pending:   make(map[string]bool),
	}
}

// Schedule queues a reconciliation pass for any entity in the collection
// whose memberships are missing and which has not been checked this session.
// Repeated calls within the debounce window coalesce into one pass.
func (r *Reconciler) Schedule(entities []models.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	added := false
	for _, e := range entities {
		if len(e.GroupMemberships) > 0 || e.ID == "" {
			continue
		}
		// Fabricated ids will never appear in a bulk response.
		if e.GeneratedID {
			continue
		}
		if r.checked[e.ID] || r.pending[e.ID] {
			continue
		}
		r.pending[e.ID] = true
		added = true
	}
	if !added && len(r.pending) == 0 {
		return
	}

	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, r.run)
}

// Stop cancels any scheduled pass.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Reconciler) run() {
	r.mu.Lock()
	if r.stopped || len(r.pending) == 0 {
		r.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	r.pending = make(map[string]bool)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	r.ReconcileIDs(ctx, ids)
}

// ReconcileIDs runs one recovery pass for the given entity ids. Exposed for
// callers that need a synchronous pass (tests, force refresh).
func (r *Reconciler) ReconcileIDs(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}

	remaining := r.recoverFromBuffer(ids)

	var fetched []map[string]any
	if len(remaining) > 0 && r.fetcher != nil {
		var err error
		fetched, err = r.fetcher.ListEntities(ctx, false)
		if err != nil {
			zap.L().Warn("group restoration fetch failed", zap.Error(err))
			// Requeue unchecked so the next scheduled pass retries them.
			r.mu.Lock()
			for _, id := range remaining {
				r.pending[id] = true
			}
			r.mu.Unlock()
			return
		}
	}
	byID := indexByID(fetched)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.checked[id] = true
	}
	for _, id := range remaining {
		raw, ok := byID[id]
		if !ok {
			continue
		}
		r.applyRecovered(id, raw)
	}
}

// recoverFromBuffer restores what it can from the record store's retained
// raw response, returning the ids still unresolved.
func (r *Reconciler) recoverFromBuffer(ids []string) []string {
	var buffer []map[string]any
	if r.rawBuffer != nil {
		buffer = r.rawBuffer()
	}
	if len(buffer) == 0 {
		return ids
	}
	byID := indexByID(buffer)

	var remaining []string
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		raw, ok := byID[id]
		if !ok || !r.applyRecovered(id, raw) {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// applyRecovered normalizes a raw record's memberships and, when non-empty,
// pushes them into the record store and the restoration map. Caller holds
// r.mu. Returns true when something was recovered.
func (r *Reconciler) applyRecovered(id string, raw map[string]any) bool {
	memberships := normalize.GroupMemberships(raw["groupMemberships"], nil)
	if len(memberships) == 0 {
		return false
	}
	if _, cleared, err := r.store.Lookup(id); err == nil && cleared {
		return false
	}
	if err := r.store.Observe(id, memberships); err != nil {
		zap.L().Warn("failed to persist restored memberships", zap.String("entity", id), zap.Error(err))
	}
	if r.apply != nil {
		r.apply(id, memberships)
	}
	return true
}

// Checked reports whether an entity has already been reconciled this session.
func (r *Reconciler) Checked(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checked[id]
}

func indexByID(records []map[string]any) map[string]map[string]any {
	byID := make(map[string]map[string]any, len(records))
	for _, raw := range records {
		if id := normalize.ResolveID(raw); id != "" {
			byID[id] = raw
		}
	}
	return byID
}
