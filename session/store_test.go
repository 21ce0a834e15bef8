package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/minidrive/internal/fakeapi"
	"github.com/MrEthical07/minidrive/tokenstore"
	"github.com/MrEthical07/minidrive/transport"
)

type harness struct {
	api       *fakeapi.Server
	store     *Store
	transport *transport.Client
	persisted *tokenstore.MemoryStore

	mu     sync.Mutex
	events []Event
}

func (h *harness) record(_ context.Context, e Event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *harness) eventTypes() []EventType {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]EventType, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func (h *harness) persistedToken(t *testing.T) (string, bool) {
	t.Helper()
	token, ok, err := h.persisted.Load(context.Background())
	require.NoError(t, err)
	return token, ok
}

func newHarness(t *testing.T, handler http.Handler) *harness {
	t.Helper()
	h := &harness{persisted: tokenstore.NewMemoryStore()}
	if handler == nil {
		h.api = fakeapi.New()
		handler = h.api.Handler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tc, err := transport.New(transport.Options{
		BaseURL:    srv.URL,
		Tokens:     tokenstore.Provider(h.persisted),
		ClearToken: h.persisted.Clear,
	})
	require.NoError(t, err)
	h.transport = tc

	store, err := New(tc, h.persisted, Options{OnEvent: h.record})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	h.store = store
	return h
}

func TestNewRequiresCollaborators(t *testing.T) {
	tc, err := transport.New(transport.Options{BaseURL: "http://localhost:5000"})
	require.NoError(t, err)

	_, err = New(nil, tokenstore.NewMemoryStore(), Options{})
	assert.ErrorIs(t, err, ErrNilTransport)
	_, err = New(tc, nil, Options{})
	assert.ErrorIs(t, err, ErrNilTokenStore)
}

func TestLoginLogoutReturnsToEmptySession(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("a@x.com", "secret1", "user")
	ctx := context.Background()
	h.store.Initialize(ctx)
	initial := h.store.Snapshot()

	for i := 0; i < 3; i++ {
		_, err := h.store.Login(ctx, "a@x.com", "secret1")
		require.NoError(t, err)
		require.True(t, h.store.Authenticated())
		h.store.Logout(ctx)
	}

	assert.Equal(t, initial, h.store.Snapshot())
	_, ok := h.persistedToken(t)
	assert.False(t, ok)
}

func TestLoginStoresTokenAndUser(t *testing.T) {
	srv := http.NewServeMux()
	srv.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"T1","user":{"id":"1","email":"a@x.com","role":"user"}}`))
	})
	h := newHarness(t, srv)
	ctx := context.Background()

	u, err := h.store.Login(ctx, "a@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, u.Role)

	snap := h.store.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, User{ID: "1", Email: "a@x.com", Role: RoleUser}, *snap.User)
	assert.Equal(t, "T1", snap.Token)
	assert.False(t, snap.Loading)
	token, ok := h.persistedToken(t)
	assert.True(t, ok)
	assert.Equal(t, "T1", token)

	require.NoError(t, h.store.UpdateUser(ctx, User{ID: "1", Email: "a@x.com", Role: RoleAdmin}))
	current, _ := h.store.User()
	assert.Equal(t, RoleAdmin, current.Role)
	assert.Equal(t, "T1", h.store.Token())
	token, _ = h.persistedToken(t)
	assert.Equal(t, "T1", token)

	assert.Equal(t, []EventType{EventLoginSuccess, EventUserUpdated}, h.eventTypes())
}

func TestAdminOnlyLoginLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("admin@x.com", "secret1", "admin")
	h.api.MustAddUser("user@x.com", "secret1", "user")
	ctx := context.Background()

	_, err := h.store.Login(ctx, "admin@x.com", "secret1")
	require.NoError(t, err)
	before := h.store.Snapshot()
	beforeToken, _ := h.persistedToken(t)

	_, err = h.store.Login(ctx, "user@x.com", "secret1", AdminOnly())
	require.ErrorIs(t, err, ErrAdminRequired)

	assert.Equal(t, before, h.store.Snapshot())
	afterToken, _ := h.persistedToken(t)
	assert.Equal(t, beforeToken, afterToken)

	u, err := h.store.Login(ctx, "admin@x.com", "secret1", AdminOnly())
	require.NoError(t, err)
	assert.True(t, u.IsAdmin())
}

func TestAdminOnlyLoginFromLoggedOut(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("user@x.com", "secret1", "user")
	ctx := context.Background()
	h.store.Initialize(ctx)

	_, err := h.store.Login(ctx, "user@x.com", "secret1", AdminOnly())
	require.ErrorIs(t, err, ErrAdminRequired)
	assert.False(t, h.store.Authenticated())
	_, ok := h.persistedToken(t)
	assert.False(t, ok)
}

func TestLoginErrorMessages(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{name: "json message", status: 400, body: `{"message":"Invalid credentials"}`, want: "Invalid credentials"},
		{name: "json without message", status: 400, body: `{"error":"x"}`, want: "Login failed"},
		{name: "raw text", status: 502, body: "upstream unavailable", want: "upstream unavailable"},
		{name: "empty body", status: 500, body: "", want: "Login failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			h := newHarness(t, mux)

			_, err := h.store.Login(context.Background(), "a@x.com", "pw")
			var ae *AuthError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.want, ae.Message)
			assert.Equal(t, tc.status, ae.Status)
			assert.True(t, IsAuthError(err))
			assert.False(t, h.store.Authenticated())
		})
	}
}

func TestLoginWithWrongPasswordDoesNotBroadcast(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Invalid credentials"}`, http.StatusUnauthorized)
	})
	h := newHarness(t, mux)
	require.NoError(t, h.persisted.Save(context.Background(), "keep"))

	_, err := h.store.Login(context.Background(), "a@x.com", "wrong")
	require.Error(t, err)
	assert.NotErrorIs(t, err, transport.ErrUnauthorized)
	token, ok := h.persistedToken(t)
	assert.True(t, ok)
	assert.Equal(t, "keep", token)
}

func TestSignupJoinsFieldErrors(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("taken@x.com", "secret1", "user")

	_, err := h.store.Signup(context.Background(), "taken@x.com", "pw")
	require.Error(t, err)
	assert.Equal(t, "Email taken, Password too short", err.Error())
	assert.Equal(t, []EventType{EventSignupFailure}, h.eventTypes())
}

func TestSignupLogsIn(t *testing.T) {
	h := newHarness(t, nil)
	u, err := h.store.Signup(context.Background(), "new@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, u.Role)
	assert.True(t, h.store.Authenticated())
	token, ok := h.persistedToken(t)
	assert.True(t, ok)
	assert.Equal(t, h.store.Token(), token)
}

func TestInitializeWithoutToken(t *testing.T) {
	h := newHarness(t, nil)
	assert.True(t, h.store.Loading())

	h.store.Initialize(context.Background())
	snap := h.store.Snapshot()
	assert.False(t, snap.Loading)
	assert.False(t, snap.Authenticated())
	assert.Zero(t, h.api.Hits("GET /api/auth/me"))
}

func TestInitializeRehydratesValidToken(t *testing.T) {
	h := newHarness(t, nil)
	id := h.api.MustAddUser("a@x.com", "secret1", "user")
	token, err := h.api.IssueToken(id)
	require.NoError(t, err)
	require.NoError(t, h.persisted.Save(context.Background(), token))

	var mu sync.Mutex
	var loadingSeen []bool
	h.store.Watch(func(s Session) {
		mu.Lock()
		loadingSeen = append(loadingSeen, s.Loading)
		mu.Unlock()
	})

	h.store.Initialize(context.Background())
	<-h.store.Ready()

	snap := h.store.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, id, snap.User.ID)
	assert.Equal(t, token, snap.Token)
	assert.False(t, snap.Loading)

	mu.Lock()
	defer mu.Unlock()
	// token set while loading, then user + loading=false; never back to true.
	require.Equal(t, []bool{true, false}, loadingSeen)

	h.store.Initialize(context.Background())
	assert.Equal(t, int64(1), h.api.Hits("GET /api/auth/me"))
}

func TestInitializeClearsRejectedToken(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.persisted.Save(context.Background(), "forged"))

	var signals int
	h.transport.Subscribe(func(context.Context) { signals++ })

	h.store.Initialize(context.Background())
	snap := h.store.Snapshot()
	assert.False(t, snap.Loading)
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Token)
	_, ok := h.persistedToken(t)
	assert.False(t, ok)
	assert.Zero(t, signals)
	assert.Equal(t, []EventType{EventRehydrateFailed}, h.eventTypes())
}

func TestInitializeTreatsNetworkFailureAsLoggedOut(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	persisted := tokenstore.NewMemoryStore()
	require.NoError(t, persisted.Save(context.Background(), "T1"))
	tc, err := transport.New(transport.Options{BaseURL: base})
	require.NoError(t, err)
	store, err := New(tc, persisted, Options{})
	require.NoError(t, err)

	store.Initialize(context.Background())
	assert.False(t, store.Authenticated())
	assert.False(t, store.Loading())
	_, ok, _ := persisted.Load(context.Background())
	assert.False(t, ok)
}

func TestInitializeRejectsMalformedMe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"profile":{}}`))
	})
	h := newHarness(t, mux)
	require.NoError(t, h.persisted.Save(context.Background(), "T1"))

	h.store.Initialize(context.Background())
	assert.False(t, h.store.Authenticated())
	_, ok := h.persistedToken(t)
	assert.False(t, ok)
}

func TestAuthFailureSignalTearsDownSession(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("a@x.com", "secret1", "user")
	ctx := context.Background()
	_, err := h.store.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	h.api.RevokeAll()
	_, err = h.transport.Do(ctx, transport.Request{Path: "/api/files/my-files"})
	require.ErrorIs(t, err, transport.ErrUnauthorized)

	snap := h.store.Snapshot()
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Token)
	_, ok := h.persistedToken(t)
	assert.False(t, ok)
	assert.Equal(t, []EventType{EventLoginSuccess, EventSessionInvalidated}, h.eventTypes())
}

func TestCloseStopsListening(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("a@x.com", "secret1", "user")
	ctx := context.Background()
	_, err := h.store.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	h.store.Close()
	h.api.RevokeAll()
	_, err = h.transport.Do(ctx, transport.Request{Path: "/api/files/my-files"})
	require.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.True(t, h.store.Authenticated(), "closed store keeps its in-memory state")
}

func TestLogoutIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	h.store.Logout(ctx)
	h.store.Logout(ctx)
	assert.Empty(t, h.eventTypes())
	assert.False(t, h.store.Authenticated())
}

func TestUpdateUserRequiresSession(t *testing.T) {
	h := newHarness(t, nil)
	err := h.store.UpdateUser(context.Background(), User{ID: "1", Role: RoleAdmin})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, ok := h.store.User()
	assert.False(t, ok)
}

func TestLoginTransportErrorIsReturned(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tc, err := transport.New(transport.Options{BaseURL: base})
	require.NoError(t, err)
	store, err := New(tc, tokenstore.NewMemoryStore(), Options{})
	require.NoError(t, err)

	_, err = store.Login(context.Background(), "a@x.com", "pw")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrAdminRequired))
	assert.False(t, IsAuthError(err))
}

func TestLoginRejectsResponseWithoutToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"user":{"id":"1","email":"a@x.com","role":"user"}}`))
	})
	h := newHarness(t, mux)

	_, err := h.store.Login(context.Background(), "a@x.com", "pw")
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.False(t, h.store.Authenticated())
}

// blockingMe serves /api/auth/me only when a status is sent on release.
// entered receives once per request as it arrives.
type blockingMe struct {
	entered chan struct{}
	release chan int
}

func newBlockingMe(mux *http.ServeMux) *blockingMe {
	b := &blockingMe{entered: make(chan struct{}, 1), release: make(chan int, 1)}
	mux.HandleFunc("GET /api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.entered <- struct{}{}
		select {
		case status := <-b.release:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status == http.StatusOK {
				_, _ = w.Write([]byte(`{"user":{"id":"1","email":"old@x.com","role":"user"}}`))
			}
		case <-r.Context().Done():
		}
	})
	return b
}

func initializeAsync(ctx context.Context, s *Store) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		s.Initialize(ctx)
		close(done)
	}()
	return done
}

func TestLoginDuringRehydrateSurvivesFailedMe(t *testing.T) {
	mux := http.NewServeMux()
	me := newBlockingMe(mux)
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"T2","user":{"id":"2","email":"new@x.com","role":"user"}}`))
	})
	h := newHarness(t, mux)
	ctx := context.Background()
	require.NoError(t, h.persisted.Save(ctx, "T1"))

	done := initializeAsync(ctx, h.store)
	<-me.entered

	_, err := h.store.Login(ctx, "new@x.com", "pw")
	require.NoError(t, err)

	me.release <- http.StatusInternalServerError
	<-done

	snap := h.store.Snapshot()
	require.NotNil(t, snap.User)
	assert.Equal(t, "new@x.com", snap.User.Email)
	assert.Equal(t, "T2", snap.Token)
	assert.False(t, snap.Loading)
	token, ok := h.persistedToken(t)
	assert.True(t, ok)
	assert.Equal(t, "T2", token)
	assert.Equal(t, []EventType{EventLoginSuccess}, h.eventTypes())
}

func TestAuthFailureDuringRehydrateWinsOverLateMe(t *testing.T) {
	mux := http.NewServeMux()
	me := newBlockingMe(mux)
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	h := newHarness(t, mux)
	ctx := context.Background()
	require.NoError(t, h.persisted.Save(ctx, "T1"))

	done := initializeAsync(ctx, h.store)
	<-me.entered

	_, err := h.transport.Do(ctx, transport.Request{Path: "/api/files/my-files"})
	require.ErrorIs(t, err, transport.ErrUnauthorized)

	me.release <- http.StatusOK
	<-done

	snap := h.store.Snapshot()
	assert.Nil(t, snap.User)
	assert.Empty(t, snap.Token)
	assert.False(t, h.store.Loading())
	_, ok := h.persistedToken(t)
	assert.False(t, ok)
	assert.Equal(t, []EventType{EventSessionInvalidated}, h.eventTypes())
}

func TestCancelledRehydrateKeepsPersistedToken(t *testing.T) {
	mux := http.NewServeMux()
	me := newBlockingMe(mux)
	h := newHarness(t, mux)
	require.NoError(t, h.persisted.Save(context.Background(), "T1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := initializeAsync(ctx, h.store)
	<-me.entered
	cancel()
	<-done

	assert.False(t, h.store.Authenticated())
	assert.False(t, h.store.Loading())
	token, ok := h.persistedToken(t)
	assert.True(t, ok)
	assert.Equal(t, "T1", token)
	assert.Equal(t, []EventType{EventRehydrateFailed}, h.eventTypes())
}

func TestWatchIgnoresNil(t *testing.T) {
	h := newHarness(t, nil)
	h.api.MustAddUser("a@x.com", "secret1", "user")

	stop := h.store.Watch(nil)
	stop()
	stop()

	_, err := h.store.Login(context.Background(), "a@x.com", "secret1")
	require.NoError(t, err)
}
