package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aluiziolira/go-scrape-customers/models"
	"github.com/aluiziolira/go-scrape-customers/parser"
	"github.com/aluiziolira/go-scrape-customers/store"
)

func newStore(t *testing.T) (*store.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := store.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func record(name, country, industry string) models.Record {
	return models.Record{
		Name:      name,
		Country:   country,
		Industry:  industry,
		DetailURL: "https://example.test/customers/" + name + "-1",
	}
}

// flakyStore fails membership checks or inserts for chosen members.
type flakyStore struct {
	store.Store
	failIsMember map[string]bool
	failInsert   map[string]bool
}

func (f *flakyStore) IsMember(ctx context.Context, key, member string) (bool, error) {
	if f.failIsMember[member] {
		return false, &store.StoreError{Op: "sismember", Key: key, Err: errors.New("unavailable")}
	}
	return f.Store.IsMember(ctx, key, member)
}

func (f *flakyStore) Insert(ctx context.Context, key, member string) error {
	if f.failInsert[member] {
		return &store.StoreError{Op: "sadd", Key: key, Err: errors.New("unavailable")}
	}
	return f.Store.Insert(ctx, key, member)
}

func TestFilterNewReportsEachRecordOnce(t *testing.T) {
	s, _ := newStore(t)
	n := NewNovelty(s, false)
	ctx := context.Background()

	page := []models.Record{
		record("Acme", "Germany", "Retail"),
		record("Beta", "Austria", "Services"),
		record("Gamma", "Switzerland", "Software"),
	}

	fresh, err := n.FilterNew(ctx, models.TargetDACH, page)
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(fresh) != 3 {
		t.Fatalf("first pass new = %d, want 3", len(fresh))
	}
	if count, err := n.Count(ctx, models.TargetDACH); err != nil || count != 3 {
		t.Fatalf("Count() = %d, %v, want 3", count, err)
	}

	again, err := n.FilterNew(ctx, models.TargetDACH, page)
	if err != nil {
		t.Fatalf("filter again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second pass new = %d, want 0", len(again))
	}
}

func TestFilterNewPersistsAcrossInstances(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	page := []models.Record{record("Acme", "Germany", "Retail")}

	if fresh, _ := NewNovelty(s, false).FilterNew(ctx, models.TargetAll, page); len(fresh) != 1 {
		t.Fatalf("first instance new = %d, want 1", len(fresh))
	}
	cosmetic := []models.Record{record("  ACME. ", "germany", "RETAIL!")}
	if fresh, _ := NewNovelty(s, false).FilterNew(ctx, models.TargetAll, cosmetic); len(fresh) != 0 {
		t.Fatalf("second instance new = %d, want 0", len(fresh))
	}
}

func TestFilterNewDuplicateInBatch(t *testing.T) {
	s, _ := newStore(t)
	n := NewNovelty(s, false)

	first := record("Acme GmbH", "Germany", "Retail")
	first.Description = "first occurrence"
	second := record("ACME  GmbH", "Germany", "Retail")
	second.Description = "second occurrence"

	fresh, err := n.FilterNew(context.Background(), models.TargetAll, []models.Record{first, second})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	if len(fresh) != 1 {
		t.Fatalf("new = %d, want 1", len(fresh))
	}
	if fresh[0].Description != "first occurrence" {
		t.Fatalf("expected first occurrence to win, got %q", fresh[0].Description)
	}
}

func TestFilterNewTargetsAreIndependent(t *testing.T) {
	s, _ := newStore(t)
	n := NewNovelty(s, false)
	ctx := context.Background()
	page := []models.Record{record("Acme", "United Kingdom", "Retail")}

	if fresh, _ := n.FilterNew(ctx, models.TargetUK, page); len(fresh) != 1 {
		t.Fatalf("uk new = %d, want 1", len(fresh))
	}
	if fresh, _ := n.FilterNew(ctx, models.TargetAll, page); len(fresh) != 1 {
		t.Fatalf("all new = %d, want 1", len(fresh))
	}
}

func TestFilterNewMirrorsToAggregate(t *testing.T) {
	s, _ := newStore(t)
	n := NewNovelty(s, true)
	ctx := context.Background()
	page := []models.Record{record("Acme", "United Kingdom", "Retail")}

	if fresh, _ := n.FilterNew(ctx, models.TargetUK, page); len(fresh) != 1 {
		t.Fatalf("uk new = %d, want 1", len(fresh))
	}
	if fresh, _ := n.FilterNew(ctx, models.TargetAll, page); len(fresh) != 0 {
		t.Fatalf("mirrored record reported new for all")
	}
}

func TestFilterNewStoreFailures(t *testing.T) {
	s, _ := newStore(t)
	lost := record("Lost", "Germany", "Retail")
	unsaved := record("Unsaved", "Germany", "Retail")
	fine := record("Fine", "Germany", "Retail")

	flaky := &flakyStore{
		Store:        s,
		failIsMember: map[string]bool{"lost|germany|retail": true},
		failInsert:   map[string]bool{"unsaved|germany|retail": true},
	}
	fresh, err := NewNovelty(flaky, false).FilterNew(context.Background(), models.TargetAll, []models.Record{lost, unsaved, fine})

	var storeErr *store.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected joined StoreError, got %v", err)
	}
	if len(fresh) != 2 || fresh[0].Name != "Unsaved" || fresh[1].Name != "Fine" {
		t.Fatalf("fresh = %+v", fresh)
	}

	// The record whose check failed was not inserted and is found later.
	again, err := NewNovelty(s, false).FilterNew(context.Background(), models.TargetAll, []models.Record{lost})
	if err != nil || len(again) != 1 {
		t.Fatalf("lost record not rediscovered: %v %v", again, err)
	}
}

func TestNoveltyReset(t *testing.T) {
	s, _ := newStore(t)
	n := NewNovelty(s, false)
	ctx := context.Background()
	page := []models.Record{record("Acme", "Germany", "Retail")}

	n.FilterNew(ctx, models.TargetAll, page)
	if err := n.Reset(ctx, models.TargetAll); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if fresh, _ := n.FilterNew(ctx, models.TargetAll, page); len(fresh) != 1 {
		t.Fatalf("record not new after reset")
	}
}

func TestScanStates(t *testing.T) {
	s, mr := newStore(t)
	states := NewScanStates(s)
	ctx := context.Background()

	state, err := states.Get(ctx, models.TargetUK)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !state.LastFullScanAt.IsZero() || !state.LastIncrementalAt.IsZero() {
		t.Fatalf("expected unset state, got %+v", state)
	}

	at := time.UnixMilli(1_700_000_000_123)
	if err := states.MarkChecked(ctx, models.TargetUK, at); err != nil {
		t.Fatalf("mark checked: %v", err)
	}
	if err := states.MarkFullScan(ctx, models.TargetUK, at); err != nil {
		t.Fatalf("mark full: %v", err)
	}
	if got, _ := mr.Get("last_full_scan:uk"); got != "1700000000123" {
		t.Fatalf("stored value = %q", got)
	}

	state, err = states.Get(ctx, models.TargetUK)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !state.LastFullScanAt.Equal(at) || !state.LastIncrementalAt.Equal(at) {
		t.Fatalf("state = %+v", state)
	}
}

func TestScanStatesCorruptValue(t *testing.T) {
	s, mr := newStore(t)
	mr.Set("last_full_scan:all", "yesterday")

	state, err := NewScanStates(s).Get(context.Background(), models.TargetAll)
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if !state.LastFullScanAt.IsZero() {
		t.Fatalf("corrupt value should read as unset")
	}
}

func TestHistoryBoundedAndMerged(t *testing.T) {
	s, mr := newStore(t)
	h := NewHistory(s)
	ctx := context.Background()

	clock := time.UnixMilli(1_000)
	h.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	for i := 0; i < MaxHistory+20; i++ {
		h.RecordSuccess(ctx, models.TargetAll, i+1, 12, 1)
	}
	h.RecordError(ctx, models.TargetUK, 3, errors.New("timeout"))
	h.RecordError(ctx, models.TargetDACH, 2, errors.New("forbidden"))

	if items, _ := mr.List("history:all"); len(items) != MaxHistory {
		t.Fatalf("history:all length = %d, want %d", len(items), MaxHistory)
	}

	recent, err := h.Recent(ctx, []models.TargetID{models.TargetAll, models.TargetUK}, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 5 {
		t.Fatalf("recent = %d, want 5", len(recent))
	}
	if recent[0].Status != models.StatusError || recent[0].Target != models.TargetUK {
		t.Fatalf("newest entry = %+v, want uk error", recent[0])
	}
	for _, entry := range recent {
		if entry.Target == models.TargetDACH {
			t.Fatalf("dach error leaked into filtered history")
		}
	}
	if recent[1].Page != MaxHistory+20 {
		t.Fatalf("second entry page = %d, want %d", recent[1].Page, MaxHistory+20)
	}
}

type brokenPushStore struct {
	store.Store
	calls int
}

func (b *brokenPushStore) PushBounded(ctx context.Context, listKey, entry string, maxLen int) error {
	b.calls++
	return &store.StoreError{Op: "lpush", Key: listKey, Err: errors.New("unavailable")}
}

func TestHistorySwallowsStoreFailure(t *testing.T) {
	s, _ := newStore(t)
	broken := &brokenPushStore{Store: s}

	h := NewHistory(broken)
	h.RecordSuccess(context.Background(), models.TargetAll, 1, 1, 1)
	h.RecordError(context.Background(), models.TargetAll, 1, errors.New("boom"))

	if broken.calls != 2 {
		t.Fatalf("push calls = %d, want 2", broken.calls)
	}
}

func TestFilterNewConcurrentJobsLoseNothing(t *testing.T) {
	s, mr := newStore(t)
	n := NewNovelty(s, false)
	ctx := context.Background()

	var page []models.Record
	for i := 0; i < 50; i++ {
		page = append(page, record(fmt.Sprintf("Company %d", i), "Germany", "Retail"))
	}

	var (
		mu       sync.Mutex
		reported = make(map[string]int)
		wg       sync.WaitGroup
	)
	for job := 0; job < 2; job++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fresh, err := n.FilterNew(ctx, models.TargetDACH, page)
			if err != nil {
				t.Errorf("FilterNew() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range fresh {
				reported[parser.Fingerprint(r)]++
			}
		}()
	}
	wg.Wait()

	members, err := mr.SMembers(store.SeenKey(models.TargetDACH))
	if err != nil {
		t.Fatalf("SMembers() error = %v", err)
	}
	if len(members) != len(page) {
		t.Fatalf("seen set has %d members, want %d", len(members), len(page))
	}
	for _, r := range page {
		fp := parser.Fingerprint(r)
		if reported[fp] < 1 || reported[fp] > 2 {
			t.Fatalf("%q reported %d times, want 1 or 2", fp, reported[fp])
		}
	}

	again, err := n.FilterNew(ctx, models.TargetDACH, page)
	if err != nil || len(again) != 0 {
		t.Fatalf("third FilterNew() = %d new, %v; want 0", len(again), err)
	}
}
