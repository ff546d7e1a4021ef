package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeClock is a controllable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

// newTestStore builds a Store over a temp credential file with a 100 s skew
// buffer and the given clock.
func newTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()

	store, err := OpenStore(StoreConfig{
		Path:       filepath.Join(t.TempDir(), "credentials.json"),
		SkewBuffer: 100 * time.Second,
		Logger:     slog.New(slog.DiscardHandler),
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}

	return store
}

// fakeAuth is a scriptable Authenticator that counts calls.
type fakeAuth struct {
	mu           sync.Mutex
	signInCalls  int
	renewCalls   int
	signOutCalls int

	signInFn   func(principal, secret string) (*Grant, error)
	renewFn    func(renewal string) (*Grant, error)
	signOutErr error
}

func (f *fakeAuth) SignIn(_ context.Context, principal, secret string) (*Grant, error) {
	f.mu.Lock()
	f.signInCalls++
	fn := f.signInFn
	f.mu.Unlock()

	if fn == nil {
		return &Grant{Access: "access-1", Renewal: "renewal-1", TTL: time.Hour}, nil
	}

	return fn(principal, secret)
}

func (f *fakeAuth) Renew(_ context.Context, renewal string) (*Grant, error) {
	f.mu.Lock()
	f.renewCalls++
	fn := f.renewFn
	f.mu.Unlock()

	if fn == nil {
		return &Grant{Access: "renewed-access", TTL: time.Hour}, nil
	}

	return fn(renewal)
}

func (f *fakeAuth) SignOut(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signOutCalls++

	return f.signOutErr
}

func (f *fakeAuth) counts() (signIn, renew, signOut int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.signInCalls, f.renewCalls, f.signOutCalls
}

// recordingSink captures events for assertions.
type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Record(_ context.Context, event, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)
}

func (r *recordingSink) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

// recordingNavigator counts terminal sign-in redirects.
type recordingNavigator struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingNavigator) ToSignIn() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++
}

func (r *recordingNavigator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

// mustSave seeds the store with a credential pair.
func mustSave(t *testing.T, store *Store, access, renewal string, ttl time.Duration) {
	t.Helper()

	if err := store.Save(access, renewal, ttl, json.RawMessage(`{"username":"alice"}`)); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
}
