package drive

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/minidrive/internal/fakeapi"
	"github.com/MrEthical07/minidrive/session"
	"github.com/MrEthical07/minidrive/tokenstore"
	"github.com/MrEthical07/minidrive/transport"
)

type fixture struct {
	api       *fakeapi.Server
	tokens    *tokenstore.MemoryStore
	transport *transport.Client
	svc       *Service
}

func newFixture(t *testing.T, handler http.Handler, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{tokens: tokenstore.NewMemoryStore()}
	if handler == nil {
		f.api = fakeapi.New()
		handler = f.api.Handler()
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tc, err := transport.New(transport.Options{
		BaseURL:    srv.URL,
		Tokens:     tokenstore.Provider(f.tokens),
		ClearToken: f.tokens.Clear,
	})
	require.NoError(t, err)
	f.transport = tc

	svc, err := New(tc, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

// as makes subsequent calls authenticate as the given user.
func (f *fixture) as(t *testing.T, userID string) {
	t.Helper()
	token, err := f.api.IssueToken(userID)
	require.NoError(t, err)
	require.NoError(t, f.tokens.Save(context.Background(), token))
}

func requireAPIError(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, status, ae.Status)
	assert.Equal(t, msg, ae.Message)
	assert.Equal(t, msg, err.Error())
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilTransport)
}

func TestUploadListDownloadDelete(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.api.MustAddUser("owner@x.com", "secret1", "user")
	f.as(t, owner)
	ctx := context.Background()

	item, err := f.svc.Upload(ctx, "notes.txt", strings.NewReader("hello drive"))
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.Equal(t, "notes.txt", item.OriginalName)
	assert.Equal(t, int64(len("hello drive")), item.Size)
	assert.True(t, strings.HasPrefix(item.ContentType, "text/plain"))
	assert.False(t, item.UploadDate.IsZero())
	assert.Nil(t, item.UserPermission)

	lists, err := f.svc.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, lists.Owned, 1)
	assert.Empty(t, lists.Shared)
	assert.Equal(t, item.ID, lists.Owned[0].ID)
	require.NotNil(t, lists.Owned[0].Owner)
	assert.Equal(t, "owner@x.com", lists.Owned[0].Owner.Email)

	d, err := f.svc.Download(ctx, item.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(d.Body)
	require.NoError(t, err)
	require.NoError(t, d.Body.Close())
	assert.Equal(t, "hello drive", string(body))
	assert.Equal(t, "notes.txt", d.Filename)
	assert.Equal(t, int64(len(body)), d.Size)

	require.NoError(t, f.svc.Delete(ctx, item.ID))
	lists, err = f.svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, lists.Owned)
}

func TestUploadFileUsesBaseName(t *testing.T) {
	f := newFixture(t, nil)
	f.as(t, f.api.MustAddUser("owner@x.com", "secret1", "user"))

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ok":true}`), 0o600))

	item, err := f.svc.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "report.json", item.OriginalName)
	assert.Equal(t, "application/json", item.ContentType)

	_, err = f.svc.UploadFile(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestUploadFailureUsesServerMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/upload", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = w.Write([]byte(`{"message":"File too large"}`))
	})
	f := newFixture(t, mux)

	_, err := f.svc.Upload(context.Background(), "big.bin", strings.NewReader("xx"))
	requireAPIError(t, err, http.StatusRequestEntityTooLarge, "File too large")
}

func TestShareByEmailGrantsAccess(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.api.MustAddUser("owner@x.com", "secret1", "user")
	friend := f.api.MustAddUser("friend@x.com", "secret1", "user")
	fileID := f.api.AddFile(owner, "plan.md", []byte("# plan"))
	ctx := context.Background()

	f.as(t, owner)
	require.NoError(t, f.svc.ShareByEmail(ctx, fileID, "friend@x.com", PermissionEdit))

	f.as(t, friend)
	lists, err := f.svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, lists.Owned)
	require.Len(t, lists.Shared, 1)
	require.NotNil(t, lists.Shared[0].UserPermission)
	assert.Equal(t, PermissionEdit, *lists.Shared[0].UserPermission)

	data, err := f.svc.DownloadBytes(ctx, fileID)
	require.NoError(t, err)
	assert.Equal(t, "# plan", string(data))
}

func TestShareByEmailUnknownUser(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.api.MustAddUser("owner@x.com", "secret1", "user")
	fileID := f.api.AddFile(owner, "plan.md", nil)
	f.as(t, owner)

	err := f.svc.ShareByEmail(context.Background(), fileID, "ghost@x.com", PermissionView)
	requireAPIError(t, err, http.StatusNotFound, "No user with that email")
	assert.True(t, IsNotFound(err))
	assert.Zero(t, f.api.Hits("POST /api/files/{id}/share"))
}

func TestShareRejectsBadInputBeforeSending(t *testing.T) {
	f := newFixture(t, nil)
	f.as(t, f.api.MustAddUser("owner@x.com", "secret1", "user"))
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.Share(ctx, "f1", "u1", Permission("owner")), ErrInvalidPermission)
	assert.ErrorIs(t, f.svc.ShareByEmail(ctx, "f1", "a@x.com", ""), ErrInvalidPermission)
	assert.ErrorIs(t, f.svc.Share(ctx, "", "u1", PermissionView), ErrEmptyID)
	assert.ErrorIs(t, f.svc.Share(ctx, "f1", " ", PermissionView), ErrEmptyID)
	assert.ErrorIs(t, f.svc.ApproveAccess(ctx, "r1", "admin"), ErrInvalidPermission)

	assert.Zero(t, f.api.Hits("POST /api/files/{id}/share"))
	assert.Zero(t, f.api.Hits("POST /api/users/find"))
	assert.Zero(t, f.api.Hits("POST /api/files/access-requests/{id}/approve"))
}

func TestShareByNonOwnerUsesFixedMessage(t *testing.T) {
	f := newFixture(t, nil)
	owner := f.api.MustAddUser("owner@x.com", "secret1", "user")
	other := f.api.MustAddUser("other@x.com", "secret1", "user")
	fileID := f.api.AddFile(owner, "plan.md", nil)
	f.as(t, other)

	err := f.svc.Share(context.Background(), fileID, owner, PermissionView)
	requireAPIError(t, err, http.StatusForbidden, "Failed to share file")
	assert.True(t, IsForbidden(err))
}

func TestPublicLinkAndAccessRequestFlow(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.api.MustAddUser("admin@x.com", "secret1", "admin")
	owner := f.api.MustAddUser("owner@x.com", "secret1", "user")
	visitor := f.api.MustAddUser("visitor@x.com", "secret1", "user")
	fileID := f.api.AddFile(owner, "slides.pdf", []byte("%PDF"))
	ctx := context.Background()

	f.as(t, owner)
	link, err := f.svc.GenerateLink(ctx, fileID)
	require.NoError(t, err)
	require.NotEmpty(t, link.Token)
	assert.True(t, strings.HasSuffix(link.Link, "/shared/"+link.Token))

	require.NoError(t, f.tokens.Clear(ctx))
	item, err := f.svc.PublicFile(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, fileID, item.ID)
	assert.Equal(t, "slides.pdf", item.OriginalName)

	f.as(t, visitor)
	require.NoError(t, f.svc.RequestAccess(ctx, item.ID))
	err = f.svc.RequestAccess(ctx, item.ID)
	requireAPIError(t, err, http.StatusConflict, "Failed to request access")

	f.as(t, admin)
	reqs, err := f.svc.AccessRequests(ctx)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, AccessPending, reqs[0].Status)
	assert.Equal(t, visitor, reqs[0].UserID)
	assert.Equal(t, fileID, reqs[0].FileID)
	require.NoError(t, f.svc.ApproveAccess(ctx, reqs[0].ID, PermissionView))

	reqs, err = f.svc.AccessRequests(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccessApproved, reqs[0].Status)

	f.as(t, visitor)
	lists, err := f.svc.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, lists.Shared, 1)
	assert.Equal(t, PermissionView, *lists.Shared[0].UserPermission)
}

func TestPublicFileSendsNoCredentials(t *testing.T) {
	var authHeaders atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/public/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			authHeaders.Add(1)
		}
		if r.PathValue("token") == "gone" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"_id":"f1","filename":"x","originalName":"a.txt","size":3,"uploadDate":"2024-05-01T10:00:00.000Z"}`))
	})
	f := newFixture(t, mux, WithToken(func() string { return "live" }))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "persisted"))

	var signals int
	f.transport.Subscribe(func(context.Context) { signals++ })

	item, err := f.svc.PublicFile(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", item.OriginalName)
	assert.Equal(t, 2024, item.UploadDate.Year())

	_, err = f.svc.PublicFile(ctx, "gone")
	requireAPIError(t, err, http.StatusUnauthorized, "Failed to load shared file")
	assert.NotErrorIs(t, err, transport.ErrUnauthorized)

	assert.Zero(t, authHeaders.Load())
	assert.Zero(t, signals)
	token, ok, err := f.tokens.Load(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", token)

	_, err = f.svc.PublicFile(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestUnauthorizedClearsTokenAndSignalsOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.as(t, f.api.MustAddUser("owner@x.com", "secret1", "user"))
	ctx := context.Background()

	var signals int
	f.transport.Subscribe(func(context.Context) { signals++ })

	f.api.RevokeAll()
	_, err := f.svc.ListFiles(ctx)
	require.ErrorIs(t, err, transport.ErrUnauthorized)
	assert.Equal(t, 1, signals)

	_, ok, err := f.tokens.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAdminOperations(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.api.MustAddUser("admin@x.com", "secret1", "admin")
	bob := f.api.MustAddUser("bob@x.com", "secret1", "user")
	f.api.AddFile(bob, "b.txt", []byte("b"))
	f.api.AddFile(admin, "a.txt", []byte("a"))
	ctx := context.Background()

	f.as(t, bob)
	_, err := f.svc.ListAllFiles(ctx)
	requireAPIError(t, err, http.StatusForbidden, "Failed to fetch all files")
	_, err = f.svc.Users(ctx)
	requireAPIError(t, err, http.StatusForbidden, "Failed to fetch users")
	_, err = f.svc.PromoteUser(ctx, bob)
	requireAPIError(t, err, http.StatusForbidden, "Admin access required")

	f.as(t, admin)
	all, err := f.svc.ListAllFiles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	users, err := f.svc.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "admin@x.com", users[0].Email)
	assert.Equal(t, session.RoleAdmin, users[0].Role)

	files, err := f.svc.UserFiles(ctx, bob)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "b.txt", files[0].OriginalName)

	promoted, err := f.svc.PromoteUser(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, bob, promoted.ID)
	assert.True(t, promoted.IsAdmin())

	_, err = f.svc.PromoteUser(ctx, "nobody")
	requireAPIError(t, err, http.StatusNotFound, "User not found")
}

func TestUserFilesAcceptsBothShapes(t *testing.T) {
	const item = `{"_id":"f1","filename":"x","originalName":"a.txt","size":1,"uploadDate":"2024-05-01T10:00:00Z"}`
	cases := map[string]struct {
		body string
		want int
	}{
		"bare array":    {body: "[" + item + "]", want: 1},
		"wrapped":       {body: `{"files":[` + item + `,` + item + `]}`, want: 2},
		"wrapped empty": {body: `{}`, want: 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/users/{id}/files", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			f := newFixture(t, mux)

			files, err := f.svc.UserFiles(context.Background(), "u1")
			require.NoError(t, err)
			assert.NotNil(t, files)
			assert.Len(t, files, tc.want)
		})
	}
}

func TestUpdateMetadata(t *testing.T) {
	f := newFixture(t, nil)
	admin := f.api.MustAddUser("admin@x.com", "secret1", "admin")
	owner := f.api.MustAddUser("owner@x.com", "secret1", "user")
	fileID := f.api.AddFile(owner, "old.txt", []byte("x"))
	ctx := context.Background()

	f.as(t, owner)
	name := "new.txt"
	item, err := f.svc.UpdateMetadata(ctx, fileID, MetadataUpdate{OriginalName: &name})
	require.NoError(t, err)
	assert.Equal(t, "new.txt", item.OriginalName)

	_, err = f.svc.UpdateMetadata(ctx, fileID, MetadataUpdate{OwnerID: &admin})
	requireAPIError(t, err, http.StatusForbidden, "Only admins can change ownership")

	f.as(t, admin)
	item, err = f.svc.UpdateMetadata(ctx, fileID, MetadataUpdate{OwnerID: &admin})
	require.NoError(t, err)
	assert.Equal(t, admin, item.UserID)
}

func TestFixedMessagesIgnoreServerText(t *testing.T) {
	mux := http.NewServeMux()
	fail := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"database exploded"}`))
	}
	mux.HandleFunc("GET /api/files/my-files", fail)
	mux.HandleFunc("DELETE /api/files/{id}", fail)
	mux.HandleFunc("GET /api/files/download/{id}", fail)
	mux.HandleFunc("GET /api/files/access-requests", fail)
	f := newFixture(t, mux)
	ctx := context.Background()

	_, err := f.svc.ListFiles(ctx)
	requireAPIError(t, err, 500, "Failed to fetch files")
	err = f.svc.Delete(ctx, "f1")
	requireAPIError(t, err, 500, "Failed to delete file")
	_, err = f.svc.DownloadBytes(ctx, "f1")
	requireAPIError(t, err, 500, "Failed to download file")
	_, err = f.svc.AccessRequests(ctx)
	requireAPIError(t, err, 500, "Failed to get access requests")
}

func TestStructuredMessageFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/files/{id}/generate-link", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	})
	f := newFixture(t, mux)

	_, err := f.svc.GenerateLink(context.Background(), "f1")
	requireAPIError(t, err, http.StatusBadGateway, "Failed to generate share link")
}

func TestWithTokenOverridesPersisted(t *testing.T) {
	var seen atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files/my-files", func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"owned":[],"shared":[]}`))
	})
	live := "live"
	f := newFixture(t, mux, WithToken(func() string { return live }))
	ctx := context.Background()
	require.NoError(t, f.tokens.Save(ctx, "persisted"))

	_, err := f.svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer live", seen.Load())

	live = ""
	_, err = f.svc.ListFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bearer persisted", seen.Load())
}

func TestPathSegmentsAreEscaped(t *testing.T) {
	var got atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.PathValue("id"))
	})
	f := newFixture(t, mux)

	require.NoError(t, f.svc.Delete(context.Background(), "a/b c"))
	assert.Equal(t, "a/b c", got.Load())
}

func TestParsePermission(t *testing.T) {
	p, err := ParsePermission("view")
	require.NoError(t, err)
	assert.Equal(t, PermissionView, p)

	_, err = ParsePermission("VIEW")
	assert.ErrorIs(t, err, ErrInvalidPermission)
}

func TestAPIErrorString(t *testing.T) {
	e := &APIError{Op: "delete", Status: 404, Message: "Failed to delete file"}
	assert.Equal(t, "delete: 404 Not Found: Failed to delete file", e.String())
}
