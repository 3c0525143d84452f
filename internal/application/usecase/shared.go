// Package usecase contains application use cases that orchestrate domain logic.
package usecase

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/plumekit/geoperm/internal/domain/entity"
	"github.com/plumekit/geoperm/internal/domain/repository"
	"github.com/plumekit/geoperm/internal/logging"
)

// SharedPermissions owns the two pieces of process-wide geolocation state:
// the permanent decisions shared by every tab, and the registry of live
// negotiators used to broadcast cancellation when a permanent decision is
// recorded. One instance is created at application start and handed to every
// negotiator at construction.
//
// A single mutex guards both tables: the cancellation broadcast reads the
// registry while other tabs' goroutines mutate the store.
type SharedPermissions struct {
	mu        sync.Mutex
	permanent entity.PermissionsMap
	tabs      []*Negotiator

	// repo is the storage collaborator decisions are loaded from and written
	// through to. Nil keeps the store purely in-memory.
	repo repository.PermissionRepository
}

// NewSharedPermissions creates the shared permission state. repo may be nil.
func NewSharedPermissions(repo repository.PermissionRepository) *SharedPermissions {
	return &SharedPermissions{
		permanent: entity.PermissionsMap{},
		repo:      repo,
	}
}

// Load seeds the permanent store from the repository. Call once at startup,
// before any negotiator resolves requests.
func (s *SharedPermissions) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	records, err := s.repo.All(ctx)
	if err != nil {
		return fmt.Errorf("load permanent permissions: %w", err)
	}

	s.mu.Lock()
	for _, rec := range records {
		s.permanent[rec.Origin] = rec.IsGranted()
	}
	s.mu.Unlock()

	logging.FromContext(ctx).Debug().
		Str("component", "geolocation").
		Int("origins", len(records)).
		Msg("permanent permissions loaded")
	return nil
}

// Record stores a permanent decision for origin and writes it through to the
// repository. The in-memory store is authoritative for the running process;
// a persistence failure is logged and otherwise ignored.
func (s *SharedPermissions) Record(ctx context.Context, origin entity.Origin, allow bool) {
	s.mu.Lock()
	s.permanent[origin] = allow
	s.mu.Unlock()

	log := logging.FromContext(ctx).With().
		Str("component", "geolocation").
		Str("origin", origin.String()).
		Bool("allow", allow).
		Logger()
	log.Debug().Msg("permanent permission recorded")

	if s.repo == nil {
		return
	}
	record := &entity.PermissionRecord{
		Origin:    origin,
		Decision:  entity.DecisionFromAllow(allow),
		UpdatedAt: time.Now().Unix(),
	}
	if err := s.repo.Set(ctx, record); err != nil {
		log.Warn().Err(err).Msg("failed to persist permanent permission")
	}
}

// Lookup returns the permanent decision for origin, if one exists.
func (s *SharedPermissions) Lookup(origin entity.Origin) (allow, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	allow, ok = s.permanent[origin]
	return allow, ok
}

// IsAllowed returns the stored decision for origin, or false if absent.
func (s *SharedPermissions) IsAllowed(origin entity.Origin) bool {
	allow, _ := s.Lookup(origin)
	return allow
}

// Origins returns every origin with a permanent decision, sorted.
func (s *SharedPermissions) Origins() []entity.Origin {
	s.mu.Lock()
	origins := make([]entity.Origin, 0, len(s.permanent))
	for origin := range s.permanent {
		origins = append(origins, origin)
	}
	s.mu.Unlock()

	slices.Sort(origins)
	return origins
}

// Clear removes the permanent decision for one origin.
func (s *SharedPermissions) Clear(ctx context.Context, origin entity.Origin) {
	s.mu.Lock()
	delete(s.permanent, origin)
	s.mu.Unlock()

	if s.repo == nil {
		return
	}
	if err := s.repo.Delete(ctx, origin); err != nil {
		logging.FromContext(ctx).Warn().Err(err).
			Str("component", "geolocation").
			Str("origin", origin.String()).
			Msg("failed to delete persisted permission")
	}
}

// ClearAll empties the permanent store.
func (s *SharedPermissions) ClearAll(ctx context.Context) {
	s.mu.Lock()
	s.permanent = entity.PermissionsMap{}
	s.mu.Unlock()

	if s.repo == nil {
		return
	}
	if err := s.repo.DeleteAll(ctx); err != nil {
		logging.FromContext(ctx).Warn().Err(err).
			Str("component", "geolocation").
			Msg("failed to delete persisted permissions")
	}
}

// mustAllowed returns the permanent decision for origin and panics when none
// exists. Callers rely on the invariant that cancellation is only broadcast
// immediately after a permanent write; a missing entry is a programming
// error, not a recoverable state.
func (s *SharedPermissions) mustAllowed(origin entity.Origin) bool {
	allow, ok := s.Lookup(origin)
	if !ok {
		panic(fmt.Sprintf("geoperm: no permanent decision for origin %q during queued-request cancellation", origin))
	}
	return allow
}

func (s *SharedPermissions) register(n *Negotiator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs = append(s.tabs, n)
}

func (s *SharedPermissions) unregister(n *Negotiator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := slices.Index(s.tabs, n); idx >= 0 {
		s.tabs = slices.Delete(s.tabs, idx, idx+1)
	}
}

// cancelPendingInOtherTabs tells every negotiator except requester to drop
// any queued request for origin and answer it from the permanent store. The
// registry is snapshotted under the lock; the negotiators are called without
// it, since each takes its own tab lock.
func (s *SharedPermissions) cancelPendingInOtherTabs(ctx context.Context, requester *Negotiator, origin entity.Origin) {
	s.mu.Lock()
	others := make([]*Negotiator, 0, len(s.tabs))
	for _, tab := range s.tabs {
		if tab != requester {
			others = append(others, tab)
		}
	}
	s.mu.Unlock()

	for _, tab := range others {
		tab.CancelQueued(ctx, origin)
	}
}
