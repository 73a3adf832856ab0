package authcore

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authcore/identity"
	"github.com/MrEthical07/authcore/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

const testPassword = "correct-password-123"

type mockUserStore struct {
	mu      sync.Mutex
	seq     int
	users   map[string]*identity.User
	byEmail map[string]string
	now     func() time.Time
}

func newMockUserStore(now func() time.Time) *mockUserStore {
	return &mockUserStore{
		users:   make(map[string]*identity.User),
		byEmail: make(map[string]string),
		now:     now,
	}
}

func (s *mockUserStore) Create(_ context.Context, u identity.NewUser) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[u.Email]; exists {
		return nil, identity.ErrEmailTaken
	}
	s.seq++
	id := "u" + strconv.Itoa(s.seq)
	now := s.now()
	user := &identity.User{
		ID:           id,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[id] = user
	s.byEmail[u.Email] = id

	cp := *user
	return &cp, nil
}

func (s *mockUserStore) get(id string) (*identity.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, identity.ErrNotFound
	}
	return user, nil
}

func (s *mockUserStore) ByID(_ context.Context, id string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err := s.get(id)
	if err != nil {
		return nil, err
	}
	cp := *user
	return &cp, nil
}

func (s *mockUserStore) ByEmail(_ context.Context, email string) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, identity.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *mockUserStore) update(id string, fn func(*identity.User)) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, err := s.get(id)
	if err != nil {
		return nil, err
	}
	fn(user)
	user.UpdatedAt = s.now()
	cp := *user
	return &cp, nil
}

func (s *mockUserStore) MarkEmailVerified(_ context.Context, id string) (*identity.User, error) {
	return s.update(id, func(u *identity.User) { u.EmailVerified = true })
}

func (s *mockUserStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	_, err := s.update(id, func(u *identity.User) { u.PasswordHash = hash })
	return err
}

func (s *mockUserStore) SetTOTPSecret(_ context.Context, id, secret string) error {
	_, err := s.update(id, func(u *identity.User) { u.Preferences.TOTPSecret = secret })
	return err
}

func (s *mockUserStore) EnableMFA(_ context.Context, id string) error {
	_, err := s.update(id, func(u *identity.User) { u.Preferences.EnableMFA = true })
	return err
}

func (s *mockUserStore) DisableMFA(_ context.Context, id string) error {
	_, err := s.update(id, func(u *identity.User) {
		u.Preferences.EnableMFA = false
		u.Preferences.TOTPSecret = ""
	})
	return err
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *captureNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		t.Fatal("expected a notification")
	}
	return n.msgs[len(n.msgs)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

// testClock is a settable clock shared by the engine and the test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	users    *mockUserStore
	notifier *captureNotifier
	clock    *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessSecret = "access-secret-for-tests-0123456789"
	cfg.Tokens.RefreshSecret = "refresh-secret-for-tests-0123456789"
	cfg.Password.Algorithm = "bcrypt"
	cfg.Password.BcryptCost = 4
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t testing.TB, mutate func(*Config)) *testEnv {
	t.Helper()
	return newTestEnvWithSink(t, mutate, nil)
}

func newTestEnvWithSink(t testing.TB, mutate func(*Config), sink AuditSink) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := newTestClock()
	users := newMockUserStore(clock.Now)
	notifier := &captureNotifier{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithNotifier(notifier).
		WithClock(clock.Now).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		rdb.Close()
		mr.Close()
	})

	return &testEnv{
		engine:   engine,
		mr:       mr,
		rdb:      rdb,
		users:    users,
		notifier: notifier,
		clock:    clock,
	}
}

// register creates a user and returns it with the confirmation code that
// was sent.
func (env *testEnv) register(t *testing.T, email string) (*User, string) {
	t.Helper()
	user, err := env.engine.Register(context.Background(), RegisterInput{
		Name:     "Alice",
		Email:    email,
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return user, linkCode(t, env.notifier.last(t).Link)
}

func (env *testEnv) login(t *testing.T, email string) *LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), email, testPassword, "test-agent")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if res.Tokens == nil {
		t.Fatal("expected tokens from login")
	}
	return res
}

func linkCode(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link %q: %v", link, err)
	}
	code := u.Query().Get("code")
	if code == "" {
		t.Fatalf("link %q carries no code", link)
	}
	return code
}
