package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// Gate is the interceptor pair wrapped around the business request
// pipeline, implemented as an http.RoundTripper.
//
// Outbound: the latest known access credential is attached optimistically;
// the outbound path never blocks on validity. When the credential is close
// to expiry and no renewal is active, a background renewal is spawned and
// detached; the current request proceeds immediately.
//
// Inbound: an authorization rejection (HTTP 401) suspends the call on the
// renewal coordinator, then replays it exactly once with the new
// credential. A second rejection, or a failed renewal, clears the session
// and hands control to the Navigator.
//
// Requests whose context is marked via WithAuthEndpoint bypass the gate
// entirely; renewing in response to the renewal call's own rejection would
// recurse forever.
type Gate struct {
	base   http.RoundTripper
	store  *Store
	coord  *Coordinator
	nav    Navigator
	logger *slog.Logger
}

// GateConfig configures a Gate.
type GateConfig struct {
	// Base is the underlying transport; nil means http.DefaultTransport.
	Base http.RoundTripper

	Store       *Store
	Coordinator *Coordinator

	// Navigator receives the terminal go-to-sign-in action; nil means none.
	Navigator Navigator

	Logger *slog.Logger
}

// NewGate creates a request gate.
func NewGate(cfg GateConfig) *Gate {
	g := &Gate{
		base:   cfg.Base,
		store:  cfg.Store,
		coord:  cfg.Coordinator,
		nav:    cfg.Navigator,
		logger: cfg.Logger,
	}

	if g.base == nil {
		g.base = http.DefaultTransport
	}

	if g.nav == nil {
		g.nav = nopNavigator{}
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}

	return g
}

// RoundTrip implements http.RoundTripper.
func (g *Gate) RoundTrip(req *http.Request) (*http.Response, error) {
	if IsAuthEndpoint(req.Context()) {
		return g.base.RoundTrip(req)
	}

	callID := uuid.NewString()

	// Proactive stage: fire-and-forget, never awaited by this request.
	if g.store.ExpiringSoon() && !g.coord.Active() {
		go g.backgroundRenew(callID)
	}

	out := req.Clone(req.Context())
	g.attach(out, g.store.Access())

	resp, err := g.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		// Every other status passes through untouched.
		return resp, nil
	}

	return g.handleRejected(req, resp, callID)
}

// handleRejected is the inbound error stage: renew (joining any active
// ticket), then replay the original call once with the new credential.
func (g *Gate) handleRejected(req *http.Request, rejected *http.Response, callID string) (*http.Response, error) {
	discard(rejected)

	if !replayable(req) {
		g.logger.Warn("authorization rejected but request body is not replayable",
			slog.String("call_id", callID),
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()),
		)

		return nil, fmt.Errorf("session: request not replayable after rejection: %w", ErrRetryExhausted)
	}

	g.logger.Info("authorization rejected, renewing credential",
		slog.String("call_id", callID),
		slog.String("method", req.Method),
		slog.String("url", req.URL.String()),
	)

	access, err := g.coord.Renew(req.Context())
	if err != nil {
		// The coordinator already cleared the store; the renewal error (not
		// the original rejection) is what the caller sees.
		g.nav.ToSignIn()

		return nil, err
	}

	retry, err := rebuild(req)
	if err != nil {
		return nil, err
	}

	g.attach(retry, access)

	resp, err := g.base.RoundTrip(retry)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		// Renewed credential still rejected: cap reached, session is dead.
		discard(resp)

		if clearErr := g.store.Clear(); clearErr != nil {
			g.logger.Warn("clearing store after exhausted retry",
				slog.String("error", clearErr.Error()),
			)
		}

		g.logger.Warn("request rejected again after renewal, signing out",
			slog.String("call_id", callID),
			slog.String("url", req.URL.String()),
		)

		g.nav.ToSignIn()

		return nil, fmt.Errorf("session: %s %s rejected twice: %w",
			req.Method, req.URL.Path, ErrRetryExhausted)
	}

	g.logger.Info("replayed request succeeded",
		slog.String("call_id", callID),
		slog.Int("status", resp.StatusCode),
	)

	return resp, nil
}

// backgroundRenew runs the detached proactive renewal. Its failure is only
// logged, never thrown into an unrelated call's stack. The store has
// already been cleared by the coordinator on failure, so the next business
// call surfaces the signed-out state through the reactive path.
func (g *Gate) backgroundRenew(callID string) {
	g.logger.Debug("credential expiring soon, renewing in background",
		slog.String("call_id", callID),
	)

	if _, err := g.coord.Renew(context.Background()); err != nil {
		g.logger.Warn("background renewal failed",
			slog.String("call_id", callID),
			slog.String("error", err.Error()),
		)
	}
}

// attach sets the Authorization header. An absent credential attaches
// nothing: the server's rejection then drives the reactive path.
func (g *Gate) attach(req *http.Request, access string) {
	if access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
}

// replayable reports whether req can be issued a second time. Bodyless
// requests always can; bodied requests need GetBody (set automatically by
// http.NewRequest for common body types).
func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// rebuild clones req with a fresh body for the replay.
func rebuild(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())

	if req.Body == nil || req.Body == http.NoBody || req.GetBody == nil {
		return out, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("session: rebuilding request body: %w", err)
	}

	out.Body = body

	return out, nil
}

// discard drains and closes a response body so the underlying connection
// can be reused.
func discard(resp *http.Response) {
	if resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}
