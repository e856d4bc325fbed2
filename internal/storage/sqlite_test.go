package storage

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testItem(id, ownerID string) Item {
	now := time.Now().UTC().Truncate(time.Second)
	return Item{
		ID:               id,
		OwnerID:          ownerID,
		ListID:           "list-1",
		Name:             "Widget",
		Price:            PlaceholderPrice,
		Link:             "https://shop.example/widget",
		EnrichmentStatus: EnrichPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("applied migrations = %v, want [1]", versions)
	}
}

func TestSaveGetItem(t *testing.T) {
	s := openTestStore(t)
	item := testItem("item-1", "alice")
	if err := s.SaveItem(item); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	got, err := s.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Name != "Widget" || got.Price != PlaceholderPrice || got.EnrichmentStatus != EnrichPending {
		t.Errorf("got %+v, want placeholder widget", got)
	}
	if got.Claimed() {
		t.Error("new item should not be claimed")
	}
	if !got.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, item.CreatedAt)
	}
}

func TestGetItem_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetItem("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetItem(missing) = %v, want ErrNotFound", err)
	}
}

func TestListItems_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		item := testItem(fmt.Sprintf("item-%d", i), "alice")
		item.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		item.UpdatedAt = item.CreatedAt
		if err := s.SaveItem(item); err != nil {
			t.Fatalf("SaveItem %d: %v", i, err)
		}
	}
	// An item belonging to someone else must not leak in.
	other := testItem("item-bob", "bob")
	if err := s.SaveItem(other); err != nil {
		t.Fatalf("SaveItem bob: %v", err)
	}

	items, err := s.ListItems("alice")
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].ID != "item-2" || items[2].ID != "item-0" {
		t.Errorf("order = [%s %s %s], want newest first", items[0].ID, items[1].ID, items[2].ID)
	}
}

func TestUpdateItemFields_OwnerGuard(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	edit := Item{Name: "Better Widget", Price: "25", Image: "", Link: "https://shop.example/widget"}
	if err := s.UpdateItemFields("item-1", "mallory", edit); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner edit = %v, want ErrNotFound", err)
	}

	if err := s.UpdateItemFields("item-1", "alice", edit); err != nil {
		t.Fatalf("owner edit: %v", err)
	}
	got, err := s.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Name != "Better Widget" || got.Price != "25" {
		t.Errorf("after edit: name=%q price=%q", got.Name, got.Price)
	}
}

func TestDeleteItem_OwnerGuard(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	if err := s.DeleteItem("item-1", "mallory"); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-owner delete = %v, want ErrNotFound", err)
	}
	if err := s.DeleteItem("item-1", "alice"); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := s.GetItem("item-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("item still present after delete: %v", err)
	}
}

func TestClaimItem_FirstWins(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	first, err := s.ClaimItem("item-1", "bob")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.ClaimedBy != "bob" || first.ClaimedAt.IsZero() {
		t.Errorf("first claim: claimed_by=%q claimed_at=%v", first.ClaimedBy, first.ClaimedAt)
	}

	second, err := s.ClaimItem("item-1", "carol")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claim = %v, want ErrAlreadyClaimed", err)
	}
	// The loser learns who holds the claim.
	if second.ClaimedBy != "bob" {
		t.Errorf("conflict item claimed_by = %q, want bob", second.ClaimedBy)
	}
}

func TestClaimItem_SameClaimerLosesToo(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}
	if _, err := s.ClaimItem("item-1", "bob"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := s.ClaimItem("item-1", "bob"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("repeat claim = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimItem_NotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.ClaimItem("missing", "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ClaimItem(missing) = %v, want ErrNotFound", err)
	}
}

func TestClaimItem_ConcurrentSingleWinner(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	const claimers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ClaimItem("item-1", fmt.Sprintf("user-%d", i))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrAlreadyClaimed) {
				t.Errorf("claim %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("%d claims succeeded, want exactly 1", wins)
	}
}

func TestCompleteEnrichment(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	if err := s.CompleteEnrichment("item-1", "Cool Widget", "19.99", "https://img.example/w.png"); err != nil {
		t.Fatalf("CompleteEnrichment: %v", err)
	}
	got, err := s.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if got.Name != "Cool Widget" || got.Price != "19.99" || got.Image != "https://img.example/w.png" {
		t.Errorf("after write-back: %+v", got)
	}
	if got.EnrichmentStatus != EnrichEnriched {
		t.Errorf("status = %q, want enriched", got.EnrichmentStatus)
	}

	// The placeholder is replaced at most once.
	err = s.CompleteEnrichment("item-1", "Other", "1", "")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second write-back = %v, want ErrNotFound", err)
	}
	got, _ = s.GetItem("item-1")
	if got.Name != "Cool Widget" {
		t.Errorf("second write-back changed the item: name=%q", got.Name)
	}
}

func TestCompleteEnrichment_KeepsOwnerName(t *testing.T) {
	s := openTestStore(t)
	item := testItem("item-1", "alice")
	item.Name = "Birthday idea"
	if err := s.SaveItem(item); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	if err := s.CompleteEnrichment("item-1", "", "19.99", ""); err != nil {
		t.Fatalf("CompleteEnrichment: %v", err)
	}
	got, _ := s.GetItem("item-1")
	if got.Name != "Birthday idea" {
		t.Errorf("name = %q, want owner-supplied name kept", got.Name)
	}
	if got.Price != "19.99" {
		t.Errorf("price = %q, want 19.99", got.Price)
	}
}

func TestMarkEnrichmentFailed(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveItem(testItem("item-1", "alice")); err != nil {
		t.Fatalf("SaveItem: %v", err)
	}

	if err := s.MarkEnrichmentFailed("item-1"); err != nil {
		t.Fatalf("MarkEnrichmentFailed: %v", err)
	}
	got, _ := s.GetItem("item-1")
	if got.EnrichmentStatus != EnrichFailed {
		t.Errorf("status = %q, want failed", got.EnrichmentStatus)
	}
	// The placeholder fields stay; the item remains visible.
	if got.Price != PlaceholderPrice {
		t.Errorf("price = %q, want placeholder kept", got.Price)
	}

	// A settled item can't fail again, and can't be enriched either.
	if err := s.MarkEnrichmentFailed("item-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second fail = %v, want ErrNotFound", err)
	}
	if err := s.CompleteEnrichment("item-1", "Late", "9", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("write-back after fail = %v, want ErrNotFound", err)
	}
}

func TestDefaultList_CreatesOnce(t *testing.T) {
	s := openTestStore(t)

	first, err := s.DefaultList("alice")
	if err != nil {
		t.Fatalf("DefaultList: %v", err)
	}
	if first.Name != "My Wishlist" || first.OwnerID != "alice" {
		t.Errorf("default list = %+v", first)
	}

	second, err := s.DefaultList("alice")
	if err != nil {
		t.Fatalf("DefaultList again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second call created a new list: %s != %s", second.ID, first.ID)
	}
}

func TestUpsertProfile(t *testing.T) {
	s := openTestStore(t)
	p := Profile{ID: "alice", Email: "alice@example.com", FirstName: "Alice", Username: "alice_w"}
	if err := s.UpsertProfile(p); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	p.Email = "alice@new.example.com"
	if err := s.UpsertProfile(p); err != nil {
		t.Fatalf("UpsertProfile update: %v", err)
	}

	got, err := s.GetProfile("alice")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got.Email != "alice@new.example.com" || got.Username != "alice_w" {
		t.Errorf("profile = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestFriends(t *testing.T) {
	s := openTestStore(t)
	if err := s.AddFriend("alice", "bob"); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	if err := s.AddFriend("alice", "carol"); err != nil {
		t.Fatalf("AddFriend: %v", err)
	}
	// Duplicate connections are a no-op.
	if err := s.AddFriend("alice", "bob"); err != nil {
		t.Fatalf("AddFriend duplicate: %v", err)
	}

	ids, err := s.ListFriends("alice")
	if err != nil {
		t.Fatalf("ListFriends: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d friends, want 2: %v", len(ids), ids)
	}

	// Friendship is directional.
	bobsFriends, err := s.ListFriends("bob")
	if err != nil {
		t.Fatalf("ListFriends(bob): %v", err)
	}
	if len(bobsFriends) != 0 {
		t.Errorf("bob has %d friends, want 0", len(bobsFriends))
	}
}

func TestJobQueue_ClaimAndComplete(t *testing.T) {
	s := openTestStore(t)
	job := Job{ID: "job-1", Type: "enrich_item", PayloadJSON: `{"itemId":"item-1"}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"enrich_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil || claimed.ID != "job-1" || claimed.Status != "running" {
		t.Fatalf("claimed = %+v", claimed)
	}

	// A claimed job is invisible to other workers.
	again, err := s.ClaimNextJob([]string{"enrich_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob again: %v", err)
	}
	if again != nil {
		t.Errorf("claimed running job %s twice", again.ID)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	got, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != "completed" {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestJobQueue_TypeFilter(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnqueueJob(Job{ID: "job-1", Type: "other_work", PayloadJSON: `{}`}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	claimed, err := s.ClaimNextJob([]string{"enrich_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed job of wrong type: %+v", claimed)
	}
}

func TestFailJob_BackoffThenExhausted(t *testing.T) {
	s := openTestStore(t)
	if err := s.EnqueueJob(Job{ID: "job-1", Type: "enrich_item", PayloadJSON: `{}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if err := s.FailJob("job-1", "boom"); err != nil {
		t.Fatalf("FailJob 1: %v", err)
	}
	got, _ := s.GetJob("job-1")
	if got.Status != "pending" || got.Attempts != 1 {
		t.Errorf("after 1st fail: status=%q attempts=%d, want pending/1", got.Status, got.Attempts)
	}
	if !got.RunAfter.After(time.Now().UTC().Add(500 * time.Millisecond)) {
		t.Errorf("run_after = %v, want backoff in the future", got.RunAfter)
	}

	// Backed-off job is not claimable yet.
	claimed, err := s.ClaimNextJob([]string{"enrich_item"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed != nil {
		t.Errorf("claimed backed-off job %s", claimed.ID)
	}

	if err := s.FailJob("job-1", "boom again"); err != nil {
		t.Fatalf("FailJob 2: %v", err)
	}
	got, _ = s.GetJob("job-1")
	if got.Status != "failed" || got.Attempts != 2 {
		t.Errorf("after 2nd fail: status=%q attempts=%d, want failed/2", got.Status, got.Attempts)
	}
	if got.LastError != "boom again" {
		t.Errorf("last_error = %q", got.LastError)
	}
}
