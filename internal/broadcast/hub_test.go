package broadcast

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scenariosim/scenariosim/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) contains(substr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

func newTestHub(t *testing.T, buffer int) (*Hub, *testLogger) {
	logger := &testLogger{}

	h, err := New(logger, buffer)
	if err != nil {
		t.Fatalf("failed to create hub: %v", err)
	}

	return h, logger
}

func snap(scenario string, tick uint64) core.Snapshot {
	return core.Snapshot{
		Scenario: scenario,
		Tick:     tick,
		Vehicles: []core.SimVehicle{{Vehicle: core.Vehicle{ID: 1, Scenario: scenario, PositionX: float64(tick)}}},
	}
}

func TestHub_PublishToSubscriber(t *testing.T) {
	h, _ := newTestHub(t, 4)
	sub := h.Subscribe("S1")

	if n := h.Publish(snap("S1", 1)); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}

	select {
	case got := <-sub.C:
		if got.Tick != 1 {
			t.Errorf("expected tick 1, got %d", got.Tick)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for snapshot")
	}
}

func TestHub_RoutesByScenario(t *testing.T) {
	h, _ := newTestHub(t, 4)
	s1 := h.Subscribe("S1")
	s2 := h.Subscribe("S2")

	h.Publish(snap("S1", 1))

	if len(s1.C) != 1 {
		t.Errorf("expected S1 subscriber to have 1 snapshot, got %d", len(s1.C))
	}
	if len(s2.C) != 0 {
		t.Errorf("expected S2 subscriber to have 0 snapshots, got %d", len(s2.C))
	}
}

func TestHub_NoSubscribers(t *testing.T) {
	h, _ := newTestHub(t, 4)

	if n := h.Publish(snap("S1", 1)); n != 0 {
		t.Errorf("expected 0 deliveries, got %d", n)
	}
}

func TestHub_FullQueueDrops(t *testing.T) {
	h, logger := newTestHub(t, 1)
	sub := h.Subscribe("S1")

	h.Publish(snap("S1", 1))

	done := make(chan int)
	go func() { done <- h.Publish(snap("S1", 2)) }()

	select {
	case n := <-done:
		if n != 0 {
			t.Errorf("expected drop, got %d deliveries", n)
		}
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}

	got := <-sub.C
	if got.Tick != 1 {
		t.Errorf("expected the first snapshot to survive, got tick %d", got.Tick)
	}
	if !logger.contains("snapshot dropped") {
		t.Error("expected drop to be logged")
	}
}

func TestHub_BufferedOption(t *testing.T) {
	h, _ := newTestHub(t, 1)
	sub := h.Subscribe("S1", Buffered(3))

	for i := uint64(1); i <= 3; i++ {
		h.Publish(snap("S1", i))
	}

	if len(sub.C) != 3 {
		t.Errorf("expected 3 queued snapshots, got %d", len(sub.C))
	}
}

func TestHub_SubscribersGetIndependentCopies(t *testing.T) {
	h, _ := newTestHub(t, 2)
	a := h.Subscribe("S1")
	b := h.Subscribe("S1")

	h.Publish(snap("S1", 1))

	ga, gb := <-a.C, <-b.C
	ga.Vehicles[0].PositionX = 999
	if gb.Vehicles[0].PositionX != 1 {
		t.Errorf("subscribers share vehicle slices: got %v", gb.Vehicles[0].PositionX)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h, _ := newTestHub(t, 2)
	sub := h.Subscribe("S1")

	h.Unsubscribe(sub)
	h.Unsubscribe(sub)

	if _, ok := <-sub.C; ok {
		t.Error("expected channel to be closed")
	}
	if n := h.Subscribers("S1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
	if n := h.Publish(snap("S1", 1)); n != 0 {
		t.Errorf("expected 0 deliveries after unsubscribe, got %d", n)
	}
}

func TestHub_CloseScenario(t *testing.T) {
	h, logger := newTestHub(t, 2)
	a := h.Subscribe("S1")
	b := h.Subscribe("S1")
	other := h.Subscribe("S2")

	h.CloseScenario("S1")

	for _, sub := range []*Subscription{a, b} {
		if _, ok := <-sub.C; ok {
			t.Error("expected channel to be closed")
		}
	}
	if h.Subscribers("S2") != 1 {
		t.Error("other scenario should keep its subscriber")
	}
	if !logger.contains("closed subscribers") {
		t.Error("expected close to be logged")
	}

	// unsubscribing after the scenario closed must not panic
	h.Unsubscribe(a)
	h.Unsubscribe(other)
}

func TestHub_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	h, _ := newTestHub(t, 8)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		sub := h.Subscribe("S1")
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := uint64(0); j < 50; j++ {
				h.Publish(snap("S1", j))
			}
		}()
		go func() {
			defer wg.Done()
			h.Unsubscribe(sub)
		}()
	}
	wg.Wait()

	if n := h.Subscribers("S1"); n != 0 {
		t.Errorf("expected 0 subscribers, got %d", n)
	}
}
