package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/signalsfoundry/linkrate/phy"
	"github.com/signalsfoundry/linkrate/ratectl"
)

func newController(t *testing.T) *ratectl.ThresholdController {
	t.Helper()
	cat, err := phy.NewStandardCatalog(phy.Standard80211a)
	if err != nil {
		t.Fatalf("NewStandardCatalog error: %v", err)
	}
	c, err := ratectl.NewThresholdController(cat, ratectl.DefaultConfig())
	if err != nil {
		t.Fatalf("NewThresholdController error: %v", err)
	}
	return c
}

func TestGetOrCreate(t *testing.T) {
	reg, err := New(newController(t), Config{})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if got := reg.Get("sta-1"); got != nil {
		t.Fatalf("Get on empty registry = %v, want nil", got)
	}

	st, created := reg.GetOrCreate("sta-1")
	if !created || st == nil {
		t.Fatalf("GetOrCreate = %v, %v; want new station", st, created)
	}
	if st.Address() != "sta-1" {
		t.Fatalf("Address() = %q, want sta-1", st.Address())
	}
	again, created := reg.GetOrCreate("sta-1")
	if created || again != st {
		t.Fatalf("second GetOrCreate returned a different station")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, Config{}); err == nil {
		t.Fatalf("expected error for nil factory")
	}
	if _, err := New(newController(t), Config{Capacity: -1}); err == nil {
		t.Fatalf("expected error for negative capacity")
	}
}

func TestEvictionAndRemoveEvents(t *testing.T) {
	reg, err := New(newController(t), Config{Capacity: 2})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var events []Event
	unsubscribe := reg.Subscribe(func(ev Event) { events = append(events, ev) })

	reg.GetOrCreate("a")
	reg.GetOrCreate("b")
	reg.Get("a") // b is now least recently used
	reg.GetOrCreate("c")

	if reg.Get("b") != nil {
		t.Fatalf("least recently used station b was not evicted")
	}
	if got := reg.Addresses(); len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("Addresses() = %v, want [a c]", got)
	}

	if !reg.Remove("a") {
		t.Fatalf("Remove(a) = false, want true")
	}
	if reg.Remove("a") {
		t.Fatalf("second Remove(a) = true, want false")
	}

	want := []struct {
		typ  EventType
		addr string
	}{
		{EventStationAdded, "a"},
		{EventStationAdded, "b"},
		{EventStationEvicted, "b"},
		{EventStationAdded, "c"},
		{EventStationRemoved, "a"},
	}
	if len(events) != len(want) {
		t.Fatalf("got %d events %+v, want %d", len(events), events, len(want))
	}
	for i, w := range want {
		if events[i].Type != w.typ || events[i].Address != w.addr {
			t.Fatalf("event %d = %s %s, want %s %s", i, events[i].Type, events[i].Address, w.typ, w.addr)
		}
	}

	unsubscribe()
	reg.GetOrCreate("d")
	if len(events) != len(want) {
		t.Fatalf("received events after unsubscribe")
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	reg, err := New(newController(t), Config{Capacity: 64})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	var mu sync.Mutex
	added := 0
	reg.Subscribe(func(ev Event) {
		if ev.Type == EventStationAdded {
			mu.Lock()
			added++
			mu.Unlock()
		}
	})

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 32 {
				reg.GetOrCreate(fmt.Sprintf("sta-%d", (g+i)%32))
			}
		}()
	}
	wg.Wait()

	if reg.Len() != 32 {
		t.Fatalf("Len() = %d, want 32", reg.Len())
	}
	if added != 32 {
		t.Fatalf("added events = %d, want 32", added)
	}
	if got := len(reg.Stations()); got != 32 {
		t.Fatalf("Stations() len = %d, want 32", got)
	}
}
