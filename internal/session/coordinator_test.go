package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// newTestCoordinator wires a coordinator over a seeded store. A negative
// coalescing window makes tickets clear deterministically unless a test
// exercises the window itself.
func newTestCoordinator(t *testing.T, auth *fakeAuth, coalesce time.Duration) (*Coordinator, *Store) {
	t.Helper()

	clock := newFakeClock()
	store := newTestStore(t, clock)
	mustSave(t, store, "old-access", "renewal-1", time.Hour)

	coord := NewCoordinator(CoordinatorConfig{
		Store:          store,
		Auth:           auth,
		CoalesceWindow: coalesce,
		Logger:         slog.New(slog.DiscardHandler),
	})

	return coord, store
}

func TestCoordinator_RenewSuccessPersists(t *testing.T) {
	auth := &fakeAuth{renewFn: func(renewal string) (*Grant, error) {
		assert.Equal(t, "renewal-1", renewal)
		return &Grant{Access: "new-access", Renewal: "renewal-2", TTL: time.Hour}, nil
	}}

	coord, store := newTestCoordinator(t, auth, -1)

	access, err := coord.Renew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	assert.Equal(t, "new-access", store.Access())
	assert.Equal(t, "renewal-2", store.Renewal())
}

func TestCoordinator_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	auth := &fakeAuth{renewFn: func(string) (*Grant, error) {
		<-release
		return &Grant{Access: "new-access", TTL: time.Hour}, nil
	}}

	coord, _ := newTestCoordinator(t, auth, -1)

	const callers = 10

	var (
		g       errgroup.Group
		started sync.WaitGroup
	)

	started.Add(callers)

	for range callers {
		g.Go(func() error {
			started.Done()

			access, err := coord.Renew(context.Background())
			if err != nil {
				return err
			}

			if access != "new-access" {
				return fmt.Errorf("unexpected access credential %q", access)
			}

			return nil
		})
	}

	// Let every caller reach the coordinator before the remote call returns.
	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, g.Wait())

	_, renews, _ := auth.counts()
	assert.Equal(t, 1, renews, "exactly one remote renewal for N concurrent callers")
}

func TestCoordinator_FailureDrainsAllWaiters(t *testing.T) {
	release := make(chan struct{})
	auth := &fakeAuth{renewFn: func(string) (*Grant, error) {
		<-release
		return nil, fmt.Errorf("%w: invalid renewal credential", ErrRenewalRejected)
	}}

	coord, store := newTestCoordinator(t, auth, -1)

	const callers = 5

	var (
		g       errgroup.Group
		started sync.WaitGroup
	)

	started.Add(callers)

	for range callers {
		g.Go(func() error {
			started.Done()

			_, err := coord.Renew(context.Background())
			if err == nil {
				return fmt.Errorf("expected renewal failure")
			}

			return nil
		})
	}

	started.Wait()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, g.Wait())

	_, renews, _ := auth.counts()
	assert.Equal(t, 1, renews)

	// Renewal failure is a full sign-out.
	assert.Empty(t, store.Access())
	assert.Empty(t, store.Renewal())
}

func TestCoordinator_NoRenewalCredential(t *testing.T) {
	auth := &fakeAuth{}

	clock := newFakeClock()
	store := newTestStore(t, clock)

	coord := NewCoordinator(CoordinatorConfig{
		Store:          store,
		Auth:           auth,
		CoalesceWindow: -1,
		Logger:         slog.New(slog.DiscardHandler),
	})

	_, err := coord.Renew(context.Background())
	assert.ErrorIs(t, err, ErrNoRenewalCredential)

	// Fails fast: no remote call is attempted.
	_, renews, _ := auth.counts()
	assert.Zero(t, renews)
}

func TestCoordinator_CoalescingWindow(t *testing.T) {
	auth := &fakeAuth{}
	coord, _ := newTestCoordinator(t, auth, 200*time.Millisecond)

	_, err := coord.Renew(context.Background())
	require.NoError(t, err)

	// Inside the window: late arrivals join the settled outcome.
	access, err := coord.Renew(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "renewed-access", access)
	assert.True(t, coord.Active())

	_, renews, _ := auth.counts()
	assert.Equal(t, 1, renews)

	// After the window the ticket clears and a fresh renewal is allowed.
	require.Eventually(t, func() bool { return !coord.Active() },
		2*time.Second, 10*time.Millisecond)

	_, err = coord.Renew(context.Background())
	require.NoError(t, err)

	_, renews, _ = auth.counts()
	assert.Equal(t, 2, renews)
}

func TestCoordinator_WaiterContextCancellation(t *testing.T) {
	release := make(chan struct{})
	auth := &fakeAuth{renewFn: func(string) (*Grant, error) {
		<-release
		return &Grant{Access: "new-access", TTL: time.Hour}, nil
	}}

	coord, _ := newTestCoordinator(t, auth, -1)

	leaderDone := make(chan error, 1)

	go func() {
		_, err := coord.Renew(context.Background())
		leaderDone <- err
	}()

	require.Eventually(t, coord.Active, time.Second, 5*time.Millisecond)

	// A waiter whose context dies stops waiting, but the ticket still
	// settles and the leader still succeeds.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Renew(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.NoError(t, <-leaderDone)
}

func TestCoordinator_TicketClearsImmediatelyWithoutWindow(t *testing.T) {
	auth := &fakeAuth{}
	coord, _ := newTestCoordinator(t, auth, -1)

	_, err := coord.Renew(context.Background())
	require.NoError(t, err)
	assert.False(t, coord.Active())

	_, err = coord.Renew(context.Background())
	require.NoError(t, err)

	_, renews, _ := auth.counts()
	assert.Equal(t, 2, renews)
}
