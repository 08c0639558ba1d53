package sensor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches sensor metadata in front of a Repository and tracks the
// runtime liveness of every sensor. Liveness is never persisted: after a
// restart a sensor is offline until it is heard from again.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	mu     sync.RWMutex
	cache  map[string]*Sensor
	status map[string]Status
	logger Logger
}

// NewRegistry creates a new sensor registry.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Sensor),
		status: make(map[string]Status),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all sensors from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	sensors, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading sensors: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache = make(map[string]*Sensor, len(sensors))
	for i := range sensors {
		s := sensors[i]
		r.cache[s.ID] = s.DeepCopy()
	}

	r.logger.Info("sensor cache refreshed", "count", len(sensors))
	return nil
}

// Upsert validates and stores sensor metadata, creating the sensor if it is
// new. It reports whether the sensor was created.
func (r *Registry) Upsert(ctx context.Context, s *Sensor) (bool, error) {
	if err := s.Validate(); err != nil {
		return false, err
	}

	r.mu.RLock()
	existing, known := r.cache[s.ID]
	r.mu.RUnlock()

	created := false
	switch {
	case !known:
		err := r.repo.Create(ctx, s)
		if errors.Is(err, ErrSensorExists) {
			err = r.repo.Update(ctx, s)
		} else {
			created = err == nil
		}
		if err != nil {
			return false, err
		}
	default:
		s.CreatedAt = existing.CreatedAt
		if err := r.repo.Update(ctx, s); err != nil {
			return false, err
		}
	}

	r.mu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	st := r.status[s.ID]
	if s.UpdatePeriod > 0 {
		st.UpdatePeriod = s.UpdatePeriod
	}
	r.status[s.ID] = st
	r.mu.Unlock()

	if created {
		r.logger.Info("sensor created", "id", s.ID, "name", s.Name, "measurements", len(s.Measurements))
	} else {
		r.logger.Debug("sensor updated", "id", s.ID)
	}
	return created, nil
}

// Get retrieves a sensor by ID. The returned sensor is a deep copy.
func (r *Registry) Get(ctx context.Context, id string) (*Sensor, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	s, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[id] = s.DeepCopy()
	r.mu.Unlock()
	return s, nil
}

// List returns deep copies of all cached sensors ordered by ID.
func (r *Registry) List() []Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sensors := make([]Sensor, 0, len(r.cache))
	for _, s := range r.cache {
		sensors = append(sensors, *s.DeepCopy())
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	return sensors
}

// Delete removes a sensor and forgets its status.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cache, id)
	delete(r.status, id)
	r.mu.Unlock()

	r.logger.Info("sensor deleted", "id", id)
	return nil
}

// MarkSeen records that the sensor has just been heard from, which implies
// it is online.
func (r *Registry) MarkSeen(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.status[id]
	if s, ok := r.cache[id]; ok && st.UpdatePeriod == 0 {
		st.UpdatePeriod = s.UpdatePeriod
	}
	st.Online = true
	st.Known = true
	r.status[id] = st
}

// SetStatus applies a liveness report. A positive update period replaces
// the stored one and is persisted. It reports whether the online flag
// changed.
func (r *Registry) SetStatus(ctx context.Context, ev StatusChanged) (bool, error) {
	r.mu.Lock()
	s, ok := r.cache[ev.SensorID]
	if !ok {
		r.mu.Unlock()
		return false, ErrSensorNotFound
	}

	prev := r.status[ev.SensorID]
	next := prev
	next.Online = ev.Online
	next.Known = true
	if next.UpdatePeriod == 0 {
		next.UpdatePeriod = s.UpdatePeriod
	}

	var persist *Sensor
	if ev.UpdatePeriod > 0 && ev.UpdatePeriod != s.UpdatePeriod {
		next.UpdatePeriod = ev.UpdatePeriod
		updated := s.DeepCopy()
		updated.UpdatePeriod = ev.UpdatePeriod
		r.cache[ev.SensorID] = updated
		persist = updated.DeepCopy()
	}
	r.status[ev.SensorID] = next
	r.mu.Unlock()

	if persist != nil {
		if err := r.repo.Update(ctx, persist); err != nil {
			return false, fmt.Errorf("persisting update period: %w", err)
		}
	}

	changed := !prev.Known || prev.Online != next.Online
	if changed {
		r.logger.Info("sensor status changed", "id", ev.SensorID, "online", next.Online)
	}
	return changed, nil
}

// Status returns the liveness of a sensor. Unknown sensors are offline.
func (r *Registry) Status(id string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := r.status[id]
	if st.UpdatePeriod == 0 {
		if s, ok := r.cache[id]; ok {
			st.UpdatePeriod = s.UpdatePeriod
		}
	}
	return st
}

// Count returns the number of cached sensors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

// OnlineCount returns how many sensors are currently online.
func (r *Registry) OnlineCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, st := range r.status {
		if st.Online {
			n++
		}
	}
	return n
}
