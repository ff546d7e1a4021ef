package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/oauth2"

	"github.com/webapp-security/sso-client-go/internal/credfile"
)

// Default lifecycle constants. All three are tunable through StoreConfig;
// the defaults match the server deployment this client was written against.
const (
	// DefaultTTL is assumed when the server does not report a credential
	// lifetime, or reports a malformed one.
	DefaultTTL = 30 * time.Minute

	// DefaultSkewBuffer is subtracted from the server-reported lifetime at
	// save time to absorb clock drift and network latency.
	DefaultSkewBuffer = 100 * time.Second

	// DefaultRenewAhead is how long before expiry the gate starts renewing
	// proactively in the background.
	DefaultRenewAhead = 2 * time.Minute
)

// StoreConfig configures a Store. Zero-value durations fall back to the
// package defaults above.
type StoreConfig struct {
	// Path is the credential file location.
	Path string

	SkewBuffer time.Duration
	DefaultTTL time.Duration
	RenewAhead time.Duration

	Logger *slog.Logger

	// Now overrides the clock. Tests use this; nil means time.Now.
	Now func() time.Time
}

// Store holds the process-wide credential pair, expiry instant, and
// user-info blob, persisted through the credential file. The in-memory copy
// is authoritative within the process; Save and Clear are the only writers.
type Store struct {
	mu       sync.Mutex
	tok      *oauth2.Token
	userInfo json.RawMessage
	subs     []func()

	path       string
	skew       time.Duration
	defaultTTL time.Duration
	renewAhead time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// OpenStore creates a Store, loading any previously persisted credentials.
// A missing credential file is not an error, it is the signed-out state.
func OpenStore(cfg StoreConfig) (*Store, error) {
	s := &Store{
		path:       cfg.Path,
		skew:       cfg.SkewBuffer,
		defaultTTL: cfg.DefaultTTL,
		renewAhead: cfg.RenewAhead,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}

	if s.skew <= 0 {
		s.skew = DefaultSkewBuffer
	}

	if s.defaultTTL <= 0 {
		s.defaultTTL = DefaultTTL
	}

	if s.renewAhead <= 0 {
		s.renewAhead = DefaultRenewAhead
	}

	if s.now == nil {
		s.now = time.Now
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	tok, info, err := credfile.Load(cfg.Path)
	if err != nil {
		return nil, err
	}

	s.tok = tok
	s.userInfo = info

	if tok != nil {
		s.logger.Debug("loaded saved credentials",
			slog.String("path", cfg.Path),
			slog.Time("expiry", tok.Expiry),
		)
	}

	return s, nil
}

// Save persists a new credential pair. The expiry instant is computed as
// now + max(0, ttl − skewBuffer); a non-positive ttl falls back to the
// default lifetime rather than erroring, so session durability never
// depends on a well-formed server response. An empty renewal credential
// retains the previous one (the endpoint may rotate only the access
// credential); a nil userInfo retains the previous blob.
func (s *Store) Save(access, renewal string, ttl time.Duration, userInfo json.RawMessage) error {
	s.mu.Lock()

	if ttl <= 0 {
		s.logger.Debug("no usable credential lifetime reported, using default",
			slog.Duration("default", s.defaultTTL),
		)

		ttl = s.defaultTTL
	}

	lifetime := ttl - s.skew
	if lifetime < 0 {
		lifetime = 0
	}

	tok := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: renewal,
		TokenType:    "Bearer",
		Expiry:       s.now().Add(lifetime),
	}

	if tok.RefreshToken == "" && s.tok != nil {
		tok.RefreshToken = s.tok.RefreshToken
	}

	if userInfo == nil {
		userInfo = s.userInfo
	}

	if err := credfile.Save(s.path, tok, userInfo); err != nil {
		s.mu.Unlock()
		return err
	}

	s.tok = tok
	s.userInfo = userInfo

	s.logger.Info("credentials saved",
		slog.Time("expiry", tok.Expiry),
		slog.Duration("lifetime", lifetime),
	)

	s.notifyLocked()

	return nil
}

// Clear removes all credentials, durably and in memory. Clearing an already
// empty store is a no-op that still succeeds.
func (s *Store) Clear() error {
	s.mu.Lock()

	if err := credfile.Remove(s.path); err != nil {
		s.mu.Unlock()
		return err
	}

	s.tok = nil
	s.userInfo = nil

	s.logger.Info("credentials cleared", slog.String("path", s.path))

	s.notifyLocked()

	return nil
}

// Access returns the latest known access credential regardless of expiry.
// The gate attaches this optimistically; validity is enforced reactively.
func (s *Store) Access() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return ""
	}

	return s.tok.AccessToken
}

// ValidAccess returns the access credential only when it is not expired.
// Callers that must never send a credential known to be stale use this.
func (s *Store) ValidAccess() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil || Expired(s.tok.Expiry, s.now()) {
		return ""
	}

	return s.tok.AccessToken
}

// Renewal returns the renewal credential, or "" when absent.
func (s *Store) Renewal() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return ""
	}

	return s.tok.RefreshToken
}

// UserInfo returns the stored user-info blob, or nil when absent.
func (s *Store) UserInfo() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.userInfo
}

// Expiry returns the stored expiry instant; zero when no session exists.
func (s *Store) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return time.Time{}
	}

	return s.tok.Expiry
}

// Authenticated reports whether both credentials are present and the access
// credential is not expired. Expired-but-present is the recoverable state:
// not authenticated, but renewable.
func (s *Store) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tok != nil &&
		s.tok.AccessToken != "" &&
		s.tok.RefreshToken != "" &&
		!Expired(s.tok.Expiry, s.now())
}

// ExpiringSoon reports whether the access credential expires within the
// proactive-renewal lead time. No session reads as expiring (fail safe),
// but the coordinator will then fail fast on the missing renewal credential.
func (s *Store) ExpiringSoon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tok == nil {
		return true
	}

	return ExpiringSoon(s.tok.Expiry, s.now(), s.renewAhead)
}

// Subscribe registers a credential-changed callback, fired after every Save
// and Clear. The excluded authorization layer uses this to invalidate any
// decisions cached against the previous credential. Callbacks run
// synchronously; keep them short.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = append(s.subs, fn)
}

// notifyLocked fires all subscribers. Called with s.mu held; unlocks before
// invoking callbacks so a subscriber may read the store.
func (s *Store) notifyLocked() {
	subs := make([]func(), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// Watch reloads the store when another process rewrites or removes the
// credential file (a concurrent sign-in or sign-out), firing the same
// credential-changed notification as a local Save. Blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("session: creating credential watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic saves replace the file by
	// rename, which would silently drop a file-level watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("session: watching %s: %w", filepath.Dir(s.path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}

			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) != 0 {
				s.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("credential watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload re-reads the credential file after an external change.
func (s *Store) reload() {
	tok, info, err := credfile.Load(s.path)
	if err != nil {
		s.logger.Warn("reloading externally changed credentials failed",
			slog.String("error", err.Error()),
		)

		return
	}

	s.mu.Lock()
	s.tok = tok
	s.userInfo = info

	s.logger.Info("credentials reloaded after external change",
		slog.Bool("present", tok != nil),
	)

	s.notifyLocked()
}
