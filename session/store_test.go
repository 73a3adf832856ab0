package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newSessionStoreTest(t *testing.T, strict bool) (*Store, *redis.Client, *testClock) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := NewStore(rdb, Config{
		Prefix:           "as",
		Lifetime:         30 * 24 * time.Hour,
		RenewalThreshold: 24 * time.Hour,
		StrictGeneration: strict,
		Now:              clock.Now,
	})
	return store, rdb, clock
}

func TestCreateAndGet(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "curl/8.0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == "" {
		t.Fatal("expected session id")
	}
	if want := clock.Now().Add(30 * 24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", sess.ExpiresAt, want)
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != sess.ID || got.UserID != "u-1" || got.UserAgent != "curl/8.0" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.CreatedAt.Equal(sess.CreatedAt) || !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("times differ: got %+v want %+v", got, sess)
	}
}

func TestGetMissing(t *testing.T) {
	store, _, _ := newSessionStoreTest(t, false)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsExpiredSession(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(31 * 24 * time.Hour)

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Expired(clock.Now()) {
		t.Fatal("expected session to report expired")
	}
}

func TestRenewIfNeeded(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	renewed, err := store.RenewIfNeeded(ctx, sess)
	if err != nil {
		t.Fatalf("RenewIfNeeded: %v", err)
	}
	if renewed {
		t.Fatal("fresh session must not renew")
	}

	clock.Advance(29*24*time.Hour + time.Hour)
	renewed, err = store.RenewIfNeeded(ctx, sess)
	if err != nil {
		t.Fatalf("RenewIfNeeded: %v", err)
	}
	if !renewed {
		t.Fatal("expected renewal inside threshold")
	}
	if want := clock.Now().Add(30 * 24 * time.Hour); !sess.ExpiresAt.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", sess.ExpiresAt, want)
	}
	if sess.Generation != 1 {
		t.Fatalf("generation = %d, want 1", sess.Generation)
	}

	stored, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !stored.ExpiresAt.Equal(sess.ExpiresAt) || stored.Generation != 1 {
		t.Fatalf("stored session not updated: %+v", stored)
	}
	if stored.UserID != "u-1" {
		t.Fatalf("user id corrupted by renewal: %q", stored.UserID)
	}
}

func TestRenewIfNeededThresholdBoundary(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// 24h+1ms remaining: still outside the window.
	clock.Advance(29*24*time.Hour - time.Millisecond)
	renewed, err := store.RenewIfNeeded(ctx, sess)
	if err != nil {
		t.Fatalf("RenewIfNeeded: %v", err)
	}
	if renewed {
		t.Fatal("session with threshold+1ms remaining must not renew")
	}

	// Exactly 24h remaining: renews.
	clock.Advance(time.Millisecond)
	renewed, err = store.RenewIfNeeded(ctx, sess)
	if err != nil {
		t.Fatalf("RenewIfNeeded: %v", err)
	}
	if !renewed {
		t.Fatal("session with exactly threshold remaining must renew")
	}
	first := sess.ExpiresAt
	if want := clock.Now().Add(30 * 24 * time.Hour); !first.Equal(want) {
		t.Fatalf("expiresAt = %v, want %v", first, want)
	}

	renewed, err = store.RenewIfNeeded(ctx, sess)
	if err != nil {
		t.Fatalf("RenewIfNeeded: %v", err)
	}
	if renewed {
		t.Fatal("second call right after renewal must not renew")
	}
	if sess.ExpiresAt.Before(first) {
		t.Fatalf("expiresAt moved back: %v < %v", sess.ExpiresAt, first)
	}
	if sess.Generation != 1 {
		t.Fatalf("generation = %d, want 1", sess.Generation)
	}
}

func TestCreateTruncatesUserAgentOnRuneBoundary(t *testing.T) {
	store, _, _ := newSessionStoreTest(t, false)
	ctx := context.Background()

	ua := "xy" + strings.Repeat("€", maxUserAgentBytes/3+10)
	sess, err := store.Create(ctx, "u-1", ua)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !utf8.ValidString(sess.UserAgent) || len(sess.UserAgent) > maxUserAgentBytes {
		t.Fatalf("bad truncated user agent: len=%d valid=%v", len(sess.UserAgent), utf8.ValidString(sess.UserAgent))
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserAgent != sess.UserAgent {
		t.Fatal("stored user agent differs from returned session")
	}
}

func TestRenewIfNeededExpiredAndMissing(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(30 * 24 * time.Hour)
	if _, err := store.RenewIfNeeded(ctx, sess); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	if _, err := store.RenewIfNeeded(ctx, &Session{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRenewIfNeededConcurrentSingleWinner(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(29*24*time.Hour + time.Hour)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		renewed int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := &Session{ID: sess.ID}
			ok, err := store.RenewIfNeeded(ctx, local)
			if err != nil {
				t.Errorf("RenewIfNeeded: %v", err)
				return
			}
			if ok {
				mu.Lock()
				renewed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if renewed != 1 {
		t.Fatalf("expected exactly one renewal, got %d", renewed)
	}
}

func TestRenewIfNeededStrictGeneration(t *testing.T) {
	store, _, clock := newSessionStoreTest(t, true)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	stale := *sess

	clock.Advance(29*24*time.Hour + time.Hour)
	if ok, err := store.RenewIfNeeded(ctx, sess); err != nil || !ok {
		t.Fatalf("first renewal: ok=%v err=%v", ok, err)
	}
	if _, err := store.RenewIfNeeded(ctx, &stale); !errors.Is(err, ErrStaleGeneration) {
		t.Fatalf("expected ErrStaleGeneration, got %v", err)
	}
}

func TestDeleteOwned(t *testing.T) {
	store, _, _ := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "owner", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.DeleteOwned(ctx, "intruder", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); err != nil {
		t.Fatalf("session must survive foreign delete: %v", err)
	}

	if err := store.DeleteOwned(ctx, "owner", sess.ID); err != nil {
		t.Fatalf("DeleteOwned: %v", err)
	}
	if _, err := store.Get(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteOwned(ctx, "owner", sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestDeleteByIDIdempotentAndIndex(t *testing.T) {
	store, rdb, _ := newSessionStoreTest(t, false)
	ctx := context.Background()

	sess, err := store.Create(ctx, "u-1", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.DeleteByID(ctx, sess.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.DeleteByID(ctx, sess.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	members, err := rdb.ZRange(ctx, store.userKey("u-1"), 0, -1).Result()
	if err != nil {
		t.Fatalf("zrange: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty index, got %v", members)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	store, _, _ := newSessionStoreTest(t, false)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		sess, err := store.Create(ctx, "u-1", "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, sess.ID)
	}
	other, err := store.Create(ctx, "u-2", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := store.DeleteAllForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("DeleteAllForUser: %v", err)
	}
	if n != 3 {
		t.Fatalf("deleted %d, want 3", n)
	}
	for _, id := range ids {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session %s still present: %v", id, err)
		}
	}
	if _, err := store.Get(ctx, other.ID); err != nil {
		t.Fatalf("other user's session removed: %v", err)
	}

	n, err = store.DeleteAllForUser(ctx, "u-1")
	if err != nil || n != 0 {
		t.Fatalf("second DeleteAllForUser = %d, %v", n, err)
	}
}

func TestListActiveForUser(t *testing.T) {
	store, rdb, clock := newSessionStoreTest(t, false)
	ctx := context.Background()

	first, err := store.Create(ctx, "u-1", "first")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := store.Create(ctx, "u-1", "second")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(time.Minute)
	gone, err := store.Create(ctx, "u-1", "gone")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := rdb.Del(ctx, store.key(gone.ID)).Err(); err != nil {
		t.Fatalf("del: %v", err)
	}

	list, err := store.ListActiveForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListActiveForUser: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}

	members, err := rdb.ZRange(ctx, store.userKey("u-1"), 0, -1).Result()
	if err != nil {
		t.Fatalf("zrange: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("dangling member not pruned: %v", members)
	}

	clock.Advance(31 * 24 * time.Hour)
	list, err = store.ListActiveForUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("ListActiveForUser: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no active sessions after expiry, got %d", len(list))
	}
}
