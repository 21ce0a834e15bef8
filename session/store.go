package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/MrEthical07/minidrive/tokenstore"
	"github.com/MrEthical07/minidrive/transport"
)

const (
	pathLogin  = "/api/auth/login"
	pathSignup = "/api/auth/signup"
	pathMe     = "/api/auth/me"
)

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
	// OnEvent, when set, receives every lifecycle event synchronously.
	OnEvent func(ctx context.Context, e Event)
}

// Store owns the current session. It is safe for concurrent use.
type Store struct {
	transport *transport.Client
	persisted tokenstore.Store
	logger    *slog.Logger
	onEvent   func(context.Context, Event)

	mu      sync.RWMutex
	user    *User
	token   string
	loading bool
	// gen advances on every mutation so an in-flight rehydration can tell
	// whether its result is still current.
	gen uint64

	watchMu  sync.Mutex
	watchers map[uint64]func(Session)
	watchID  uint64

	initOnce    sync.Once
	ready       chan struct{}
	unsubscribe func()
}

// New builds a Store and subscribes it to the transport's auth-failure
// signal for its whole lifetime. The session starts empty with Loading set
// until Initialize completes.
func New(tc *transport.Client, persisted tokenstore.Store, opts Options) (*Store, error) {
	if tc == nil {
		return nil, ErrNilTransport
	}
	if persisted == nil {
		return nil, ErrNilTokenStore
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Store{
		transport: tc,
		persisted: persisted,
		logger:    logger,
		onEvent:   opts.OnEvent,
		loading:   true,
		watchers:  make(map[uint64]func(Session)),
		ready:     make(chan struct{}),
	}
	s.unsubscribe = tc.Subscribe(s.invalidate)
	return s, nil
}

// Close detaches the store from the transport's auth-failure signal. The
// session and the persisted token are left as they are. Safe to call more
// than once.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	out := Session{Token: s.token, Loading: s.loading}
	if s.user != nil {
		u := *s.user
		out.User = &u
	}
	return out
}

// User returns the current user, if any.
func (s *Store) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Token returns the in-memory bearer token, or "" when logged out.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Loading reports whether Initialize is still resolving. It starts true
// and, once false, never becomes true again.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Authenticated reports whether both a user and a token are held. See
// [Session.Authenticated].
func (s *Store) Authenticated() bool {
	return s.Snapshot().Authenticated()
}

// Ready is closed once Initialize has resolved.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Watch registers fn to receive a snapshot after every state change.
// Watchers run synchronously on the goroutine that changed the session and
// must not call back into mutating methods. The returned func stops
// delivery and may be called more than once. A nil fn is ignored.
func (s *Store) Watch(fn func(Session)) func() {
	if fn == nil {
		return func() {}
	}
	s.watchMu.Lock()
	s.watchID++
	id := s.watchID
	s.watchers[id] = fn
	s.watchMu.Unlock()

	return func() {
		s.watchMu.Lock()
		delete(s.watchers, id)
		s.watchMu.Unlock()
	}
}

// Initialize rehydrates the session from the persisted token. It runs once;
// later calls wait for the first run. Failures are never returned: an
// unverifiable token leaves the store logged out with the persisted token
// removed.
func (s *Store) Initialize(ctx context.Context) {
	s.initOnce.Do(func() {
		defer close(s.ready)
		s.rehydrate(ctx)
	})
	<-s.ready
}

func (s *Store) rehydrate(ctx context.Context) {
	token, ok, err := s.persisted.Load(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "read persisted token failed", "error", err)
		s.failRehydrate(ctx, s.currentGen(), err)
		return
	}
	if !ok {
		s.mutate(func() { s.loading = false })
		return
	}

	gen := s.mutate(func() { s.token = token })

	user, err := s.fetchMe(ctx, token)
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by the caller: the token was never judged, so it stays
			// persisted for the next start.
			s.logger.InfoContext(ctx, "session rehydrate cancelled", "error", err)
			s.abandonRehydrate(ctx, gen, err)
			return
		}
		s.logger.InfoContext(ctx, "session rehydrate failed", "error", err)
		s.failRehydrate(ctx, gen, err)
		return
	}

	applied := false
	s.mutate(func() {
		s.loading = false
		if s.gen == gen {
			s.user = &user
			applied = true
		}
	})
	if applied {
		s.emit(ctx, Event{Type: EventRehydrated, UserID: user.ID, Email: user.Email})
	}
}

func (s *Store) fetchMe(ctx context.Context, token string) (User, error) {
	resp, err := s.transport.DoPublic(ctx, transport.Request{Path: pathMe, Token: token})
	if err != nil {
		return User{}, err
	}
	if !transport.OK(resp) {
		transport.Discard(resp)
		return User{}, fmt.Errorf("who am i: status %d", resp.StatusCode)
	}
	var body meResponse
	if err := transport.DecodeJSON(resp, &body); err != nil {
		return User{}, err
	}
	if body.User == nil {
		return User{}, ErrMalformedResponse
	}
	return *body.User, nil
}

// failRehydrate clears everything unless another writer has already moved
// the session on since gen was taken.
func (s *Store) failRehydrate(ctx context.Context, gen uint64, cause error) {
	if s.dropRehydrated(gen) {
		return
	}
	if err := s.persisted.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "clear persisted token failed", "error", err)
	}
	s.emit(ctx, Event{Type: EventRehydrateFailed, Err: cause})
}

// abandonRehydrate logs the store out in memory but leaves the persisted
// token alone.
func (s *Store) abandonRehydrate(ctx context.Context, gen uint64, cause error) {
	if s.dropRehydrated(gen) {
		return
	}
	s.emit(ctx, Event{Type: EventRehydrateFailed, Err: cause})
}

// dropRehydrated ends loading and forgets the rehydrating token. It reports
// true when the session moved on since gen, in which case nothing else
// was touched.
func (s *Store) dropRehydrated(gen uint64) (stale bool) {
	s.mutate(func() {
		s.loading = false
		if s.gen != gen {
			stale = true
			return
		}
		s.user = nil
		s.token = ""
	})
	return stale
}

// LoginOption adjusts a login call.
type LoginOption func(*loginOptions)

type loginOptions struct {
	adminOnly bool
}

// AdminOnly rejects accounts without the admin role before any state is
// changed.
func AdminOnly() LoginOption {
	return func(o *loginOptions) { o.adminOnly = true }
}

// Login authenticates with email and password. On success the token and
// user are stored and the token is persisted. Errors are returned as is:
// *AuthError for API rejections, ErrAdminRequired for the admin gate,
// wrapped transport errors otherwise.
func (s *Store) Login(ctx context.Context, email, password string, opts ...LoginOption) (User, error) {
	var o loginOptions
	for _, opt := range opts {
		opt(&o)
	}

	auth, err := s.authenticate(ctx, "login", pathLogin, email, password, "Login failed", false)
	if err != nil {
		s.emit(ctx, Event{Type: EventLoginFailure, Email: email, Err: err})
		return User{}, err
	}
	if o.adminOnly && !auth.User.IsAdmin() {
		s.emit(ctx, Event{Type: EventLoginFailure, UserID: auth.User.ID, Email: email, Err: ErrAdminRequired})
		return User{}, ErrAdminRequired
	}

	s.establish(ctx, auth.Token, *auth.User)
	s.emit(ctx, Event{Type: EventLoginSuccess, UserID: auth.User.ID, Email: auth.User.Email})
	return *auth.User, nil
}

// Signup registers a new account and logs it in. Field validation errors
// are joined with ", " into a single *AuthError message.
func (s *Store) Signup(ctx context.Context, email, password string) (User, error) {
	auth, err := s.authenticate(ctx, "signup", pathSignup, email, password, "Signup failed", true)
	if err != nil {
		s.emit(ctx, Event{Type: EventSignupFailure, Email: email, Err: err})
		return User{}, err
	}

	s.establish(ctx, auth.Token, *auth.User)
	s.emit(ctx, Event{Type: EventSignupSuccess, UserID: auth.User.ID, Email: auth.User.Email})
	return *auth.User, nil
}

func (s *Store) authenticate(ctx context.Context, op, path, email, password, fallback string, fieldErrors bool) (authResponse, error) {
	resp, err := s.transport.DoPublic(ctx, transport.Request{
		Method: http.MethodPost,
		Path:   path,
		JSON:   map[string]string{"email": email, "password": password},
	})
	if err != nil {
		return authResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if !transport.OK(resp) {
		return authResponse{}, &AuthError{
			Op:      op,
			Status:  resp.StatusCode,
			Message: failureMessage(resp, fallback, fieldErrors),
		}
	}

	var auth authResponse
	if err := transport.DecodeJSON(resp, &auth); err != nil {
		return authResponse{}, fmt.Errorf("%s: %w", op, err)
	}
	if auth.Token == "" || auth.User == nil {
		return authResponse{}, fmt.Errorf("%s: %w", op, ErrMalformedResponse)
	}
	return auth, nil
}

// failureMessage prefers structured JSON, then raw text, then fallback.
func failureMessage(resp *http.Response, fallback string, fieldErrors bool) string {
	body, raw, ok := transport.ReadErrorBody(resp)
	if !ok {
		if raw != "" {
			return raw
		}
		return fallback
	}
	if fieldErrors {
		if joined := body.JoinedErrors(); joined != "" {
			return joined
		}
	}
	if body.Message != "" {
		return body.Message
	}
	return fallback
}

func (s *Store) establish(ctx context.Context, token string, user User) {
	s.mutate(func() {
		s.token = token
		s.user = &user
		s.loading = false
	})
	if err := s.persisted.Save(ctx, token); err != nil {
		s.logger.WarnContext(ctx, "persist token failed", "error", err)
	}
}

// UpdateUser replaces the current user without touching the token.
func (s *Store) UpdateUser(ctx context.Context, user User) error {
	var err error
	s.mutate(func() {
		if s.token == "" {
			err = ErrNotAuthenticated
			return
		}
		u := user
		s.user = &u
	})
	if err != nil {
		return err
	}
	s.emit(ctx, Event{Type: EventUserUpdated, UserID: user.ID, Email: user.Email})
	return nil
}

// Logout clears the session and the persisted token. Calling it while
// logged out is a no-op.
func (s *Store) Logout(ctx context.Context) {
	s.teardown(ctx, EventLogout)
}

func (s *Store) invalidate(ctx context.Context) {
	s.teardown(ctx, EventSessionInvalidated)
}

func (s *Store) teardown(ctx context.Context, kind EventType) {
	var prev *User
	var had bool
	s.mutate(func() {
		prev = s.user
		had = s.token != "" || s.user != nil
		s.user = nil
		s.token = ""
	})
	if err := s.persisted.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "clear persisted token failed", "error", err)
	}
	if !had {
		return
	}
	e := Event{Type: kind}
	if prev != nil {
		e.UserID, e.Email = prev.ID, prev.Email
	}
	s.emit(ctx, e)
}

func (s *Store) currentGen() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// mutate applies fn under the lock, advances gen when the session changed
// and notifies watchers. It returns the resulting generation.
func (s *Store) mutate(fn func()) uint64 {
	s.mu.Lock()
	before := s.snapshotLocked()
	fn()
	changed := !sameSession(before, s.snapshotLocked())
	if changed {
		s.gen++
	}
	snap := s.snapshotLocked()
	gen := s.gen
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return gen
}

func sameSession(a, b Session) bool {
	if a.Token != b.Token || a.Loading != b.Loading {
		return false
	}
	if (a.User == nil) != (b.User == nil) {
		return false
	}
	return a.User == nil || *a.User == *b.User
}

func (s *Store) notify(snap Session) {
	s.watchMu.Lock()
	fns := make([]func(Session), 0, len(s.watchers))
	for _, fn := range s.watchers {
		fns = append(fns, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) emit(ctx context.Context, e Event) {
	if s.onEvent != nil {
		s.onEvent(ctx, e)
	}
}

// IsAuthError reports whether err is an API rejection of credentials.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
