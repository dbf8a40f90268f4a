// Package registry keeps the per-station rate-control state of one
// transmitter, keyed by remote station address.
package registry

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signalsfoundry/linkrate/ratectl"
)

// DefaultCapacity bounds the registry when Config.Capacity is zero.
const DefaultCapacity = 1024

// EventType indicates what kind of change happened in the registry.
type EventType int

const (
	// EventStationAdded fires when a station is created.
	EventStationAdded EventType = iota
	// EventStationRemoved fires on an explicit Remove.
	EventStationRemoved
	// EventStationEvicted fires when the capacity bound pushes out the
	// least recently used station.
	EventStationEvicted
)

func (t EventType) String() string {
	switch t {
	case EventStationAdded:
		return "added"
	case EventStationRemoved:
		return "removed"
	case EventStationEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Event is emitted to subscribers when the station set changes.
type Event struct {
	Type    EventType
	Address string
	Station *ratectl.Station
}

// Factory creates station state. Every ratectl.Controller is one.
type Factory interface {
	NewStation() *ratectl.Station
}

// Config bounds the registry.
type Config struct {
	// Capacity is the maximum number of stations kept. Default: 1024
	Capacity int
}

// Registry is an in-memory, thread-safe, LRU-bounded store of stations.
// It serialises access to the map only; callers still serialise the
// controller calls that touch one station.
type Registry struct {
	mu sync.Mutex

	factory  Factory
	stations *lru.Cache[string, *ratectl.Station]

	// pending collects evictions raised by the cache while mu is held.
	pending  []Event
	removing bool

	subs   map[int]func(Event)
	nextID int
}

// New constructs an empty registry that creates stations with factory.
func New(factory Factory, cfg Config) (*Registry, error) {
	if factory == nil {
		return nil, fmt.Errorf("registry: nil station factory")
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("registry: capacity %d must be positive", cfg.Capacity)
	}

	r := &Registry{factory: factory, subs: make(map[int]func(Event))}
	cache, err := lru.NewWithEvict(cfg.Capacity, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("registry: %w", err)
	}
	r.stations = cache
	return r, nil
}

// onEvict runs inside the cache with r.mu held.
func (r *Registry) onEvict(addr string, st *ratectl.Station) {
	if r.removing {
		return
	}
	r.pending = append(r.pending, Event{Type: EventStationEvicted, Address: addr, Station: st})
}

// Get returns the station for addr, or nil if none is registered.
func (r *Registry) Get(addr string) *ratectl.Station {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, _ := r.stations.Get(addr)
	return st
}

// GetOrCreate returns the station for addr, creating and labelling it on
// first sight. created reports whether a new station was made.
func (r *Registry) GetOrCreate(addr string) (st *ratectl.Station, created bool) {
	r.mu.Lock()
	if st, ok := r.stations.Get(addr); ok {
		r.mu.Unlock()
		return st, false
	}

	st = r.factory.NewStation()
	st.SetAddress(addr)
	r.stations.Add(addr, st)

	events := append(r.pending, Event{Type: EventStationAdded, Address: addr, Station: st})
	r.pending = nil
	subs := r.snapshotSubs()
	r.mu.Unlock()

	notify(subs, events)
	return st, true
}

// Remove drops the station for addr. It reports whether one existed.
func (r *Registry) Remove(addr string) bool {
	r.mu.Lock()
	st, ok := r.stations.Peek(addr)
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.removing = true
	r.stations.Remove(addr)
	r.removing = false
	subs := r.snapshotSubs()
	r.mu.Unlock()

	notify(subs, []Event{{Type: EventStationRemoved, Address: addr, Station: st}})
	return true
}

// Len returns the number of registered stations.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stations.Len()
}

// Addresses returns the registered addresses, least recently used first.
func (r *Registry) Addresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stations.Keys()
}

// Stations returns a snapshot of the registered stations, least recently
// used first.
func (r *Registry) Stations() []*ratectl.Station {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stations.Values()
}

// Subscribe registers a callback for registry events. It returns an
// unsubscribe function. Callbacks run outside the registry lock.
func (r *Registry) Subscribe(fn func(Event)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs, id)
	}
}

func (r *Registry) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(r.subs))
	for i := 0; i < r.nextID; i++ {
		if fn, ok := r.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func notify(subs []func(Event), events []Event) {
	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}
