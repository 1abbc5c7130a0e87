// ABOUTME: Local cache adapter over a badger key-value store
// ABOUTME: Collection-keyed get/set/remove that degrades to "no data" on any failure
package cache

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

// Collection keys. The clients blob holds clients and leads mixed, tagged by
// type; groups carry a separate timestamp key for staleness checks.
const (
	CollectionClients      = "clients"
	CollectionGroups       = "groups"
	CollectionGroupRestore = "group-restore"

	timestampSuffix = ":ts"
	prefPrefix      = "pref:"
)

// Adapter wraps badger with the cache contract: reads return nil on any
// underlying failure, writes are fire-and-forget. The in-memory store stays
// authoritative; this is only a read-through/write-behind mirror.
type Adapter struct {
	db *badger.DB
	mu sync.RWMutex
}

// Open opens (or creates) the cache at path.
func Open(path string) (*Adapter, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db}, nil
}

// OpenInMemory opens an ephemeral cache, used by tests and by sessions where
// the on-disk store is unavailable.
func OpenInMemory() (*Adapter, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Adapter{db: db}, nil
}

// Close closes the underlying store.
func (a *Adapter) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Get returns the raw bytes stored for a collection, or nil if the key is
// missing or the read fails.
func (a *Adapter) Get(collection string) []byte {
	if a == nil || a.db == nil {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	var out []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(collection))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err != badger.ErrKeyNotFound {
			zap.L().Warn("cache read failed", zap.String("collection", collection), zap.Error(err))
		}
		return nil
	}
	return out
}

// GetJSON decodes the stored value for a collection into v. Returns false
// when there is no usable cached value (missing, read error, corrupt JSON).
func (a *Adapter) GetJSON(collection string, v any) bool {
	data := a.Get(collection)
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		zap.L().Warn("cache entry corrupt", zap.String("collection", collection), zap.Error(err))
		return false
	}
	return true
}

// Set stores raw bytes for a collection. Failures are swallowed.
func (a *Adapter) Set(collection string, data []byte) {
	if a == nil || a.db == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(collection), data)
	})
	if err != nil {
		zap.L().Warn("cache write failed", zap.String("collection", collection), zap.Error(err))
	}
}

// SetJSON encodes v and stores it for a collection. Failures are swallowed.
func (a *Adapter) SetJSON(collection string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("cache encode failed", zap.String("collection", collection), zap.Error(err))
		return
	}
	a.Set(collection, data)
}

// Remove deletes a collection's entry and its timestamp.
func (a *Adapter) Remove(collection string) {
	if a == nil || a.db == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(collection)); err != nil {
			return err
		}
		return txn.Delete([]byte(collection + timestampSuffix))
	})
	if err != nil {
		zap.L().Warn("cache delete failed", zap.String("collection", collection), zap.Error(err))
	}
}

// Touch records the current time as the collection's freshness timestamp.
func (a *Adapter) Touch(collection string) {
	a.Set(collection+timestampSuffix, []byte(strconv.FormatInt(time.Now().UnixMilli(), 10)))
}

// Timestamp returns the collection's freshness timestamp, or the zero time
// when none is recorded.
func (a *Adapter) Timestamp(collection string) time.Time {
	data := a.Get(collection + timestampSuffix)
	if data == nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// SetPreference stores a simple per-view preference string. No TTL.
func (a *Adapter) SetPreference(key, value string) {
	a.Set(prefPrefix+key, []byte(value))
}

// Preference returns a stored preference, or fallback when unset.
func (a *Adapter) Preference(key, fallback string) string {
	data := a.Get(prefPrefix + key)
	if data == nil {
		return fallback
	}
	return string(data)
}

// SetBoolPreference stores a boolean preference.
func (a *Adapter) SetBoolPreference(key string, value bool) {
	a.SetPreference(key, strconv.FormatBool(value))
}

// BoolPreference returns a stored boolean preference, or fallback when unset
// or unparseable.
func (a *Adapter) BoolPreference(key string, fallback bool) bool {
	v := a.Preference(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
