// Package tracking holds the most recent GPS sample for every ride in memory.
//
// The store is the only shared mutable state on the location path. Each ride
// owns an independent entry with its own mutex, so drivers on different rides
// never contend with each other. Samples are never persisted.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/limoline/dispatch/internal/domain/entities"
	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/metrics"
	"github.com/limoline/dispatch/pkg/utils"
)

// Default store settings.
const (
	DefaultMinUpdateInterval = 15 * time.Second
	DefaultExpiration        = time.Hour
	DefaultSweepInterval     = 5 * time.Minute
	DefaultEventBuffer       = 1024
)

// Listener receives a notification for every accepted location sample. It
// runs on the store's dispatch goroutine, never on the writer's goroutine,
// with the ride's entry locked: it must not call back into the store.
type Listener interface {
	OnLocationUpdated(ctx context.Context, sample entities.LocationSample)
}

// ListenerFunc adapts a plain function to Listener.
type ListenerFunc func(ctx context.Context, sample entities.LocationSample)

// OnLocationUpdated calls f.
func (f ListenerFunc) OnLocationUpdated(ctx context.Context, sample entities.LocationSample) {
	f(ctx, sample)
}

// Options configures a Store. Zero values take the defaults above.
type Options struct {
	MinUpdateInterval time.Duration
	Expiration        time.Duration
	SweepInterval     time.Duration // <0 disables the background sweep
	EventBuffer       int
	GeohashPrecision  int
	Now               func() time.Time
}

func (o *Options) applyDefaults() {
	if o.MinUpdateInterval <= 0 {
		o.MinUpdateInterval = DefaultMinUpdateInterval
	}
	if o.Expiration <= 0 {
		o.Expiration = DefaultExpiration
	}
	if o.SweepInterval == 0 {
		o.SweepInterval = DefaultSweepInterval
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.GeohashPrecision <= 0 {
		o.GeohashPrecision = utils.DefaultGeohashPrecision
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// entry is one ride's slot. removed marks an entry that has been unlinked
// from the map; a writer that raced with the removal must start over with a
// fresh entry rather than resurrect the dead one.
type entry struct {
	mu         sync.Mutex
	sample     entities.LocationSample
	acceptedAt time.Time
	has        bool
	removed    bool
}

// Store is the rate-limited, expiring most-recent-location-per-ride cache.
//
// Go Learning Note — sync.Map:
// sync.Map is tuned for keys that are written once and read many times, or
// for goroutines working on disjoint key sets. A ride id is written by one
// driver and read by many dashboards, which fits both cases. The per-entry
// mutex then makes the read-check-write of the rate limiter atomic without
// any lock shared across rides.
type Store struct {
	opts    Options
	entries sync.Map // rideID -> *entry

	listenerMu sync.RWMutex
	listener   Listener

	events chan entities.LocationSample
	logger zerolog.Logger
}

// NewStore creates a Store. Call Serve (directly or under a supervisor) to
// deliver notifications and run the expiry sweep.
func NewStore(opts Options) *Store {
	opts.applyDefaults()
	return &Store{
		opts:   opts,
		events: make(chan entities.LocationSample, opts.EventBuffer),
		logger: logging.With().Str("component", "location_store").Logger(),
	}
}

// SetListener installs the notification consumer. It may be called once
// wiring is complete; samples accepted before that are not replayed.
func (s *Store) SetListener(l Listener) {
	s.listenerMu.Lock()
	s.listener = l
	s.listenerMu.Unlock()
}

// MinUpdateInterval returns the configured per-ride rate limit.
func (s *Store) MinUpdateInterval() time.Duration { return s.opts.MinUpdateInterval }

// TryUpdateLocation stores sample as the latest fix for sample.RideID unless
// the previous accepted sample is younger than the minimum interval. A
// rejected update leaves the stored sample untouched. On acceptance a
// notification is queued for the listener and true is returned.
func (s *Store) TryUpdateLocation(driverStableID string, sample entities.LocationSample) bool {
	now := s.opts.Now()

	sample.DriverID = driverStableID
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = now.UTC()
	}
	sample.Geohash = utils.EncodeGeohash(sample.Latitude, sample.Longitude, s.opts.GeohashPrecision)

	for {
		e := s.loadOrCreate(sample.RideID)
		e.mu.Lock()
		if e.removed {
			e.mu.Unlock()
			continue
		}

		if e.has && !s.expired(e, now) && now.Sub(e.acceptedAt) < s.opts.MinUpdateInterval {
			e.mu.Unlock()
			return false
		}

		if !e.has {
			metrics.TrackedRides.Inc()
		}
		e.sample = sample
		e.acceptedAt = now
		e.has = true
		e.mu.Unlock()

		s.notify(sample)
		return true
	}
}

// GetLatestLocation returns the stored sample for rideID. A sample older than
// the expiration window is evicted and reported as absent.
func (s *Store) GetLatestLocation(rideID string) (entities.LocationSample, bool) {
	v, ok := s.entries.Load(rideID)
	if !ok {
		return entities.LocationSample{}, false
	}
	return s.read(rideID, v.(*entry), s.opts.Now())
}

// GetLocations returns the live samples for the given rides, skipping rides
// without one.
func (s *Store) GetLocations(rideIDs []string) []entities.LocationSample {
	now := s.opts.Now()
	out := make([]entities.LocationSample, 0, len(rideIDs))
	for _, id := range rideIDs {
		v, ok := s.entries.Load(id)
		if !ok {
			continue
		}
		if sample, ok := s.read(id, v.(*entry), now); ok {
			out = append(out, sample)
		}
	}
	return out
}

// GetAllActiveLocations returns every live sample in the store.
func (s *Store) GetAllActiveLocations() []entities.LocationSample {
	now := s.opts.Now()
	var out []entities.LocationSample
	s.entries.Range(func(key, value any) bool {
		if sample, ok := s.read(key.(string), value.(*entry), now); ok {
			out = append(out, sample)
		}
		return true
	})
	return out
}

// RemoveLocation drops the sample for rideID. It is a no-op for unknown ids.
func (s *Store) RemoveLocation(rideID string) {
	v, ok := s.entries.Load(rideID)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.unlinkLocked(rideID, e) {
		metrics.LocationEvictions.WithLabelValues("terminal").Inc()
	}
}

// Len returns the number of live samples.
func (s *Store) Len() int {
	return len(s.GetAllActiveLocations())
}

// Sweep evicts every expired entry and returns how many were removed. Reads
// already ignore expired samples; the sweep only bounds memory for rides
// nobody reads again.
func (s *Store) Sweep() int {
	now := s.opts.Now()
	removed := 0
	s.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()
		if !e.removed && (!e.has || s.expired(e, now)) {
			if s.unlinkLocked(key.(string), e) {
				removed++
			}
		}
		e.mu.Unlock()
		return true
	})
	if removed > 0 {
		metrics.LocationEvictions.WithLabelValues("expired").Add(float64(removed))
	}
	return removed
}

// Serve delivers queued notifications to the listener in acceptance order and
// runs the periodic sweep until ctx is cancelled. It satisfies suture.Service.
func (s *Store) Serve(ctx context.Context) error {
	var tick <-chan time.Time
	if s.opts.SweepInterval > 0 {
		ticker := time.NewTicker(s.opts.SweepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample := <-s.events:
			s.dispatch(ctx, sample)
		case <-tick:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug().Int("evicted", n).Msg("expired locations swept")
			}
		}
	}
}

// String names the service in supervisor logs.
func (s *Store) String() string { return "location-store" }

func (s *Store) loadOrCreate(rideID string) *entry {
	if v, ok := s.entries.Load(rideID); ok {
		return v.(*entry)
	}
	v, _ := s.entries.LoadOrStore(rideID, &entry{})
	return v.(*entry)
}

func (s *Store) read(rideID string, e *entry, now time.Time) (entities.LocationSample, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed || !e.has {
		return entities.LocationSample{}, false
	}
	if s.expired(e, now) {
		if s.unlinkLocked(rideID, e) {
			metrics.LocationEvictions.WithLabelValues("expired").Inc()
		}
		return entities.LocationSample{}, false
	}
	return e.sample, true
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return now.Sub(e.acceptedAt) > s.opts.Expiration
}

// unlinkLocked marks e removed and deletes it from the map if it is still the
// current entry for rideID. Callers hold e.mu. Reports whether a sample was
// dropped.
func (s *Store) unlinkLocked(rideID string, e *entry) bool {
	if e.removed {
		return false
	}
	e.removed = true
	s.entries.CompareAndDelete(rideID, e)
	if e.has {
		metrics.TrackedRides.Dec()
		return true
	}
	return false
}

// notify queues sample without blocking the writer. A full buffer drops the
// notification; the sample itself is already stored.
func (s *Store) notify(sample entities.LocationSample) {
	select {
	case s.events <- sample:
	default:
		metrics.LocationEventsDropped.Inc()
		s.logger.Warn().Str("ride_id", sample.RideID).Msg("location notification buffer full, dropping event")
	}
}

// dispatch hands sample to the listener while holding the ride's entry lock.
// RemoveLocation takes the same lock, so once it returns no notification for
// that ride is still in flight, and a tracking-stopped event published after
// it cannot be overtaken by a stale position.
func (s *Store) dispatch(ctx context.Context, sample entities.LocationSample) {
	s.listenerMu.RLock()
	l := s.listener
	s.listenerMu.RUnlock()
	if l == nil {
		return
	}

	v, ok := s.entries.Load(sample.RideID)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || !e.has || s.expired(e, s.opts.Now()) {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("ride_id", sample.RideID).
				Err(fmt.Errorf("panic: %v", r)).
				Msg("location listener failed")
		}
	}()
	l.OnLocationUpdated(ctx, sample)
}
