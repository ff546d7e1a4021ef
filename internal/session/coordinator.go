package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultCoalesceWindow is how long a settled renewal ticket lingers before
// it is cleared. Callers arriving inside the window join the just-settled
// outcome instead of starting another renewal. Under bursty failure-retry
// traffic this trades a few seconds of staleness for far fewer duplicate
// renewal calls.
const DefaultCoalesceWindow = 5 * time.Second

// outcome is a settled renewal result delivered to suspended callers.
type outcome struct {
	access string
	err    error
}

// ticket is the single in-flight renewal shared by all callers. At most one
// exists at a time. Waiters that arrive while the remote call is in flight
// queue here and are drained exactly once, in arrival order, when the
// ticket settles.
type ticket struct {
	waiters []chan outcome

	settled bool
	access  string
	err     error
}

// Coordinator is the single-flight renewal engine. Renew issues at most one
// outstanding remote renewal call process-wide; concurrent callers share the
// in-flight result through the ticket.
type Coordinator struct {
	mu     sync.Mutex
	ticket *ticket

	store    *Store
	auth     Authenticator
	sink     EventSink
	coalesce time.Duration
	logger   *slog.Logger
}

// CoordinatorConfig configures a Coordinator.
type CoordinatorConfig struct {
	Store *Store
	Auth  Authenticator

	// CoalesceWindow overrides DefaultCoalesceWindow; negative disables the
	// window entirely (the ticket clears as soon as the queue is drained).
	CoalesceWindow time.Duration

	// Sink receives renewal audit events; nil means none.
	Sink EventSink

	Logger *slog.Logger
}

// NewCoordinator creates a renewal coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{
		store:    cfg.Store,
		auth:     cfg.Auth,
		sink:     cfg.Sink,
		coalesce: cfg.CoalesceWindow,
		logger:   cfg.Logger,
	}

	if c.coalesce == 0 {
		c.coalesce = DefaultCoalesceWindow
	}

	if c.sink == nil {
		c.sink = nopSink{}
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// Active reports whether a renewal ticket currently exists, in flight or
// lingering in its coalescing window. The gate consults this before firing
// a proactive background renewal.
func (c *Coordinator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ticket != nil
}

// Renew obtains a fresh access credential. If a renewal is already in
// flight, the caller suspends on the shared ticket instead of issuing a
// second remote call. On success the new pair is persisted and every
// suspended caller receives the same access credential; on failure the
// store is cleared and every suspended caller receives the same error.
//
// ctx bounds only this caller's wait: a canceled waiter stops waiting, but
// the ticket still settles every queued continuation exactly once.
func (c *Coordinator) Renew(ctx context.Context) (string, error) {
	// Check-then-create must be one critical section: two callers racing
	// here must never both create a ticket.
	c.mu.Lock()

	if t := c.ticket; t != nil {
		if t.settled {
			// Coalescing window: reuse the just-settled outcome.
			access, err := t.access, t.err
			c.mu.Unlock()

			c.logger.Debug("renewal joined settled ticket")

			return access, err
		}

		ch := make(chan outcome, 1)
		t.waiters = append(t.waiters, ch)
		queued := len(t.waiters)
		c.mu.Unlock()

		c.logger.Debug("renewal already in flight, suspending caller",
			slog.Int("queued", queued),
		)

		select {
		case o := <-ch:
			return o.access, o.err
		case <-ctx.Done():
			return "", fmt.Errorf("session: waiting for renewal: %w", ctx.Err())
		}
	}

	renewal := c.store.Renewal()
	if renewal == "" {
		c.mu.Unlock()

		// Treated identically to a remote rejection: the session is dead.
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("clearing store after missing renewal credential",
				slog.String("error", err.Error()),
			)
		}

		return "", ErrNoRenewalCredential
	}

	t := &ticket{}
	c.ticket = t
	c.mu.Unlock()

	c.logger.Info("starting credential renewal")

	access, err := c.doRenew(ctx, renewal)
	c.settle(t, access, err)

	return access, err
}

// doRenew performs the remote call and the resulting store mutation.
// Only the ticket-holding caller runs this.
func (c *Coordinator) doRenew(ctx context.Context, renewal string) (string, error) {
	grant, err := c.auth.Renew(ctx, renewal)
	if err != nil {
		// Full sign-out: a credential that failed to renew must never be
		// attached to another request.
		if clearErr := c.store.Clear(); clearErr != nil {
			c.logger.Warn("clearing store after failed renewal",
				slog.String("error", clearErr.Error()),
			)
		}

		c.logger.Warn("credential renewal failed", slog.String("error", err.Error()))
		c.sink.Record(ctx, EventRenewFailed, err.Error())

		return "", err
	}

	if saveErr := c.store.Save(grant.Access, grant.Renewal, grant.TTL, grant.UserInfo); saveErr != nil {
		c.logger.Warn("persisting renewed credentials failed",
			slog.String("error", saveErr.Error()),
		)

		return "", saveErr
	}

	c.logger.Info("credential renewal succeeded",
		slog.Time("expiry", c.store.Expiry()),
	)
	c.sink.Record(ctx, EventRenewed, "")

	return grant.Access, nil
}

// settle records the outcome on the ticket, drains the suspended-caller
// queue in FIFO order, and schedules the ticket clear. The clear happens
// after the drain: a caller arriving mid-drain joins the settled outcome
// rather than starting a redundant second renewal.
func (c *Coordinator) settle(t *ticket, access string, err error) {
	c.mu.Lock()
	t.settled = true
	t.access = access
	t.err = err
	waiters := t.waiters
	t.waiters = nil
	c.mu.Unlock()

	if len(waiters) > 0 {
		c.logger.Debug("draining suspended callers", slog.Int("count", len(waiters)))
	}

	for _, ch := range waiters {
		ch <- outcome{access: access, err: err}
	}

	if c.coalesce < 0 {
		c.clearTicket(t)
		return
	}

	time.AfterFunc(c.coalesce, func() {
		c.clearTicket(t)
	})
}

// clearTicket removes t if it is still the current ticket. A newer ticket
// created after the window closed is left alone.
func (c *Coordinator) clearTicket(t *ticket) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ticket == t {
		c.ticket = nil
	}
}
