package keys

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// recentWindow is the trailing window counted by Stats.RecentUsage.
const recentWindow = time.Hour

// maxSecretAttempts bounds secret regeneration on collision.
const maxSecretAttempts = 8

// Stats aggregates the registry contents.
type Stats struct {
	Total      int   `json:"total_keys"`
	Active     int   `json:"active_keys"`
	Inactive   int   `json:"inactive_keys"`
	TotalUsage int64 `json:"total_usage"`

	// RecentUsage counts keys used within the last hour.
	RecentUsage int `json:"recent_usage"`

	LastReload time.Time `json:"last_reload"`
}

// Registry is the in-memory table of API keys.
//
// The table and the active set are guarded by one RWMutex and are always
// updated together. Validate and the read-only accessors take the read lock;
// usage counters are atomics so concurrent validations do not serialize.
//
// storeMu orders store I/O against mutations. Load, Save, Create, Activate
// and Deactivate hold it for their whole duration, so a reload never swaps
// in a table read before a mutation and saves reach the store in order.
// Validate never takes it. Lock order is storeMu, then mu.
type Registry struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger

	mu         sync.RWMutex
	entries    map[string]*entry   // secret -> entry
	active     map[string]struct{} // secrets whose entry is active
	names      map[string]string   // name -> secret
	lastReload time.Time

	storeMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty registry backed by store.
// Call Load to populate it.
func NewRegistry(store Store, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		now:     time.Now,
		logger:  slog.Default().With("component", "keys.registry"),
		entries: make(map[string]*entry),
		active:  make(map[string]struct{}),
		names:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Store returns the backing store.
func (r *Registry) Store() Store {
	return r.store
}

// Load reads every record from the store and replaces the table.
// On error the current table is left untouched.
func (r *Registry) Load(ctx context.Context) error {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	started := r.now()

	records, err := r.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load api keys: %w", err)
	}

	modTime, err := r.store.ModTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to stat api key store: %w", err)
	}

	entries := make(map[string]*entry, len(records))
	active := make(map[string]struct{}, len(records))
	names := make(map[string]string, len(records))
	for _, rec := range records {
		// Later lines win over earlier ones with the same secret or name.
		if old, dup := entries[rec.Secret]; dup {
			r.logger.Warn("duplicate api key secret in store, keeping last",
				"name", rec.Name,
			)
			delete(names, old.name)
		}
		if prev, dup := names[rec.Name]; dup && prev != rec.Secret {
			r.logger.Warn("duplicate api key name in store, keeping last",
				"name", rec.Name,
			)
			delete(entries, prev)
			delete(active, prev)
		}
		entries[rec.Secret] = newEntry(rec)
		names[rec.Name] = rec.Secret
		if rec.Active {
			active[rec.Secret] = struct{}{}
		} else {
			delete(active, rec.Secret)
		}
	}

	// A store clock ahead of ours must not cause a reload on every check.
	loaded := started
	if modTime.After(loaded) {
		loaded = modTime
	}

	r.mu.Lock()
	r.entries = entries
	r.active = active
	r.names = names
	r.lastReload = loaded
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "api keys loaded",
		"store", r.store.Name(),
		"total", len(entries),
		"active", len(active),
	)

	return nil
}

// RefreshIfStale reloads the table when the store's modification time is
// strictly newer than the last load. It reports whether a reload happened.
func (r *Registry) RefreshIfStale(ctx context.Context) (bool, error) {
	modTime, err := r.store.ModTime(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to stat api key store: %w", err)
	}

	if !modTime.After(r.LastReload()) {
		return false, nil
	}

	if err := r.Load(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Validate reports whether raw names an active key. On success the key's
// usage count is incremented and last_used is set to now. Unknown or
// inactive keys have no side effects.
func (r *Registry) Validate(raw string) bool {
	secret := Normalize(raw)
	if secret == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.active[secret]; !ok {
		return false
	}
	r.entries[secret].touch(r.now())
	return true
}

// Get returns a snapshot of the record for raw without modifying it.
func (r *Registry) Get(raw string) (Record, bool) {
	secret := Normalize(raw)

	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[secret]
	if !ok {
		return Record{}, false
	}
	return e.snapshot(), true
}

// Lookup returns the record with the given name.
func (r *Registry) Lookup(name string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	secret, ok := r.names[name]
	if !ok {
		return Record{}, false
	}
	return r.entries[secret].snapshot(), true
}

// List returns snapshots of every record ordered by name.
func (r *Registry) List() []Record {
	r.mu.RLock()
	records := make([]Record, 0, len(r.entries))
	for _, e := range r.entries {
		records = append(records, e.snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Create issues a new active key with zero usage and returns its secret.
// Names are unique across active and inactive records.
func (r *Registry) Create(name, description string) (string, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	description = sanitizeDescription(description)

	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.names[name]; exists {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	var secret string
	for attempt := 0; ; attempt++ {
		if attempt == maxSecretAttempts {
			return "", fmt.Errorf("failed to generate a unique secret after %d attempts", attempt)
		}
		s, err := GenerateSecret()
		if err != nil {
			return "", err
		}
		if _, taken := r.entries[s]; !taken {
			secret = s
			break
		}
	}

	r.entries[secret] = newEntry(Record{
		Secret:      secret,
		Name:        name,
		Description: description,
		CreatedAt:   r.now(),
		Active:      true,
	})
	r.active[secret] = struct{}{}
	r.names[name] = secret

	return secret, nil
}

// Activate marks the key active. It returns false if the secret is unknown.
func (r *Registry) Activate(raw string) bool {
	return r.setActive(Normalize(raw), true)
}

// Deactivate marks the key inactive. It returns false if the secret is unknown.
func (r *Registry) Deactivate(raw string) bool {
	return r.setActive(Normalize(raw), false)
}

func (r *Registry) setActive(secret string, active bool) bool {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[secret]
	if !ok {
		return false
	}

	e.active = active
	if active {
		r.active[secret] = struct{}{}
	} else {
		delete(r.active, secret)
	}
	return true
}

// Stats returns aggregate counters over all records.
func (r *Registry) Stats() Stats {
	cutoff := r.now().Add(-recentWindow).UnixNano()

	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{
		Total:      len(r.entries),
		Active:     len(r.active),
		LastReload: r.lastReload,
	}
	s.Inactive = s.Total - s.Active
	for _, e := range r.entries {
		s.TotalUsage += e.usage.Load()
		if last := e.lastUsed.Load(); last != 0 && last > cutoff {
			s.RecentUsage++
		}
	}
	return s
}

// LastReload returns the time of the last successful load.
func (r *Registry) LastReload() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastReload
}

// Save writes every record back to the store. The store's new modification
// time is recorded as seen so the write does not trigger a reload. Saves
// are serialized with mutations, so an older snapshot never overwrites a
// newer one.
func (r *Registry) Save(ctx context.Context) error {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	records := r.List()

	if err := r.store.Save(ctx, records); err != nil {
		return fmt.Errorf("failed to save api keys: %w", err)
	}

	modTime, err := r.store.ModTime(ctx)
	if err != nil {
		return fmt.Errorf("failed to stat api key store: %w", err)
	}

	r.mu.Lock()
	if modTime.After(r.lastReload) {
		r.lastReload = modTime
	}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "api keys saved",
		"store", r.store.Name(),
		"total", len(records),
	)
	return nil
}
