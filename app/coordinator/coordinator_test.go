package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lysyi3m/birdbrain-relay/app/apiclient"
	"github.com/lysyi3m/birdbrain-relay/app/messaging"
	"github.com/lysyi3m/birdbrain-relay/app/store"
)

// MockSource returns queued responses in order, repeating the last one.
type MockSource struct {
	mu        sync.Mutex
	responses []apiclient.IncompleteList
	err       error
	calls     int
}

func (m *MockSource) Incomplete(ctx context.Context) (apiclient.IncompleteList, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return apiclient.IncompleteList{}, m.err
	}
	if len(m.responses) == 0 {
		return apiclient.IncompleteList{}, nil
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

// MockStore keeps records in memory.
type MockStore struct {
	mu         sync.Mutex
	records    map[string]store.Record
	replaceErr error
	deleteErr  error
	deletes    int
}

func NewMockStore() *MockStore {
	return &MockStore{records: make(map[string]store.Record)}
}

func (m *MockStore) Load(ctx context.Context) (map[string]store.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]store.Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func (m *MockStore) Replace(ctx context.Context, records map[string]store.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.records = make(map[string]store.Record, len(records))
	for k, v := range records {
		m.records[k] = v
	}
	return nil
}

func (m *MockStore) Delete(ctx context.Context, restID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.records, restID)
	return nil
}

func (m *MockStore) Close() error { return nil }

// MockRefresher records refresh requests.
type MockRefresher struct {
	mu       sync.Mutex
	triggers []Trigger
}

func (m *MockRefresher) RequestRefresh(trigger Trigger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers = append(m.triggers, trigger)
	return nil
}

func (m *MockRefresher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.triggers)
}

func list(ids ...string) apiclient.IncompleteList {
	l := apiclient.IncompleteList{Count: len(ids)}
	for _, id := range ids {
		l.Tweets = append(l.Tweets, apiclient.IncompleteTweet{RestID: id, AuthorHandle: "user" + id, IsTruncated: true})
	}
	return l
}

func keys(m map[string]Record) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

func TestRefreshReplacesWholeCache(t *testing.T) {
	source := &MockSource{responses: []apiclient.IncompleteList{list("1", "2", "3"), list("3", "4")}}
	st := NewMockStore()
	c := New(source, st)
	ctx := context.Background()

	if err := c.Refresh(ctx, TriggerStartup); err != nil {
		t.Fatalf("First refresh failed: %v", err)
	}
	if err := c.Refresh(ctx, TriggerInterval); err != nil {
		t.Fatalf("Second refresh failed: %v", err)
	}

	got := keys(c.Snapshot())
	if len(got) != 2 || !got["3"] || !got["4"] {
		t.Errorf("Expected exactly {3, 4}, got %v", got)
	}
	for _, stale := range []string{"1", "2"} {
		if _, ok := c.Lookup(stale); ok {
			t.Errorf("Expected %s not to survive the refresh", stale)
		}
	}

	persisted, _ := st.Load(ctx)
	if len(persisted) != 2 {
		t.Errorf("Expected persisted store to hold 2 records, got %d", len(persisted))
	}

	stats := c.Stats()
	if stats.Refreshes != 2 || stats.Records != 2 || stats.LastTrigger != TriggerInterval {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestRefreshFailureLeavesCacheUnchanged(t *testing.T) {
	source := &MockSource{responses: []apiclient.IncompleteList{list("1", "2")}}
	c := New(source, NewMockStore())
	ctx := context.Background()

	if err := c.Refresh(ctx, TriggerStartup); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	source.err = &apiclient.UnreachableError{Endpoint: "incomplete", Err: errors.New("connection refused")}
	if err := c.Refresh(ctx, TriggerInterval); err == nil {
		t.Fatal("Expected refresh error")
	}

	got := keys(c.Snapshot())
	if len(got) != 2 || !got["1"] || !got["2"] {
		t.Errorf("Expected cache to keep {1, 2}, got %v", got)
	}

	stats := c.Stats()
	if stats.Failures != 1 || stats.LastError == "" || stats.LastErrorAt == nil {
		t.Errorf("Expected failure to be recorded, got %+v", stats)
	}
}

func TestRefreshPersistFailureLeavesCacheUnchanged(t *testing.T) {
	source := &MockSource{responses: []apiclient.IncompleteList{list("1"), list("2")}}
	st := NewMockStore()
	c := New(source, st)
	ctx := context.Background()

	if err := c.Refresh(ctx, TriggerStartup); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	st.replaceErr = errors.New("disk full")
	if err := c.Refresh(ctx, TriggerInterval); err == nil {
		t.Fatal("Expected refresh error")
	}

	if _, ok := c.Lookup("1"); !ok {
		t.Error("Expected record 1 to remain after a failed commit")
	}
	if _, ok := c.Lookup("2"); ok {
		t.Error("Expected record 2 not to be committed")
	}
}

func TestEvictIsIdempotent(t *testing.T) {
	source := &MockSource{responses: []apiclient.IncompleteList{list("1", "2")}}
	c := New(source, NewMockStore())
	ctx := context.Background()

	if err := c.Refresh(ctx, TriggerStartup); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if err := c.Evict(ctx, "1"); err != nil {
		t.Fatalf("First evict failed: %v", err)
	}
	if err := c.Evict(ctx, "1"); err != nil {
		t.Fatalf("Second evict failed: %v", err)
	}

	if _, ok := c.Lookup("1"); ok {
		t.Error("Expected 1 to be evicted")
	}
	if _, ok := c.Lookup("2"); !ok {
		t.Error("Expected 2 to remain")
	}
	if c.Stats().Evictions != 1 {
		t.Errorf("Expected 1 counted eviction, got %d", c.Stats().Evictions)
	}
}

func TestEvictUnknownID(t *testing.T) {
	c := New(&MockSource{}, NewMockStore())
	if err := c.Evict(context.Background(), "never-seen"); err != nil {
		t.Errorf("Expected evicting an unknown id to succeed, got %v", err)
	}
}

func TestLookupUnknownID(t *testing.T) {
	c := New(&MockSource{}, NewMockStore())

	rec, ok := c.Lookup("never-seen")
	if ok {
		t.Error("Expected unknown id not to be incomplete")
	}
	if rec.RestID != "" || rec.AuthorHandle != "" {
		t.Errorf("Expected no metadata, got %+v", rec)
	}
}

func TestLoadSeedsSnapshot(t *testing.T) {
	st := NewMockStore()
	st.records["9"] = store.Record{RestID: "9", AuthorHandle: "frank", IsQuoteMissing: true}
	c := New(&MockSource{}, st)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	rec, ok := c.Lookup("9")
	if !ok || rec.AuthorHandle != "frank" {
		t.Errorf("Expected persisted record 9 to be visible, got %+v (ok=%v)", rec, ok)
	}
	if c.Stats().LoadedAtStart != 1 {
		t.Errorf("Expected 1 record loaded at start, got %d", c.Stats().LoadedAtStart)
	}
}

func TestHydrationScenarioOverBus(t *testing.T) {
	source := &MockSource{responses: []apiclient.IncompleteList{{
		Count:  1,
		Tweets: []apiclient.IncompleteTweet{{RestID: "100", IsTruncated: true}},
	}}}
	c := New(source, NewMockStore())
	ctx := context.Background()

	bus := messaging.NewBus(0)
	c.Register(bus, &MockRefresher{})
	bus.Start()
	defer bus.Stop()

	if err := c.Refresh(ctx, TriggerStartup); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	reply, err := bus.Request(ctx, messaging.CheckIncomplete("100"))
	if err != nil {
		t.Fatalf("CHECK_INCOMPLETE failed: %v", err)
	}
	if !reply.IsIncomplete || reply.Data == nil || !reply.Data.IsTruncated {
		t.Fatalf("Expected 100 to be incomplete and truncated, got %+v", reply)
	}

	bus.Notify(messaging.HydrationSuccess("100"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		reply, err = bus.Request(ctx, messaging.CheckIncomplete("100"))
		if err != nil {
			t.Fatalf("CHECK_INCOMPLETE failed: %v", err)
		}
		if !reply.IsIncomplete {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected 100 to be evicted after HYDRATION_SUCCESS")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if reply.Data != nil {
		t.Errorf("Expected no metadata for a complete tweet, got %+v", reply.Data)
	}
}

func TestRefreshIncompleteMessageQueuesRefresh(t *testing.T) {
	c := New(&MockSource{}, NewMockStore())
	refresher := &MockRefresher{}

	bus := messaging.NewBus(0)
	c.Register(bus, refresher)
	bus.Start()
	defer bus.Stop()

	bus.Notify(messaging.RefreshIncomplete())

	deadline := time.Now().Add(2 * time.Second)
	for refresher.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Expected REFRESH_INCOMPLETE to queue a refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	if refresher.triggers[0] != TriggerMessage {
		t.Errorf("Expected trigger %s, got %s", TriggerMessage, refresher.triggers[0])
	}
}

// gatedSource blocks each call until its release channel fires, so tests control commit order.
type gatedSource struct {
	mu      sync.Mutex
	calls   int
	gates   []chan struct{}
	answers []apiclient.IncompleteList
	entered chan int
}

func (g *gatedSource) Incomplete(ctx context.Context) (apiclient.IncompleteList, error) {
	g.mu.Lock()
	i := g.calls
	g.calls++
	g.mu.Unlock()

	g.entered <- i
	<-g.gates[i]
	return g.answers[i], nil
}

func TestConcurrentRefreshesLastCommitWins(t *testing.T) {
	source := &gatedSource{
		gates:   []chan struct{}{make(chan struct{}), make(chan struct{})},
		answers: []apiclient.IncompleteList{list("a1", "a2"), list("b1")},
		entered: make(chan int, 2),
	}
	c := New(source, NewMockStore())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Refresh(ctx, TriggerStartup); err != nil {
				t.Errorf("Refresh failed: %v", err)
			}
		}()
	}

	<-source.entered
	<-source.entered

	// Both fetches are in flight; lookups still answer without waiting.
	if _, ok := c.Lookup("a1"); ok {
		t.Error("Expected nothing committed yet")
	}

	close(source.gates[1])
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := c.Lookup("b1"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the first completed refresh to commit")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(source.gates[0])
	wg.Wait()

	got := keys(c.Snapshot())
	if len(got) != 2 || !got["a1"] || !got["a2"] {
		t.Errorf("Expected the last committed response {a1, a2} without merging, got %v", got)
	}
}
