package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type user struct {
	ID           string
	Email        string
	Role         string
	PasswordHash []byte
}

type file struct {
	ID           string
	Filename     string
	OriginalName string
	ContentType  string
	Size         int64
	UploadDate   time.Time
	OwnerID      string
	Data         []byte
	LinkToken    string
	// shares maps user id to permission.
	shares map[string]string
}

type accessRequest struct {
	ID     string
	FileID string
	UserID string
	Status string
}

// Server is safe for concurrent use.
type Server struct {
	mu       sync.Mutex
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	baseURL  string

	users    map[string]*user
	byEmail  map[string]string
	files    map[string]*file
	links    map[string]string
	requests map[string]*accessRequest
	// generation is embedded in every token; RevokeAll advances it.
	generation int64

	hits sync.Map // "METHOD path-pattern" -> *atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithBaseURL sets the prefix used in generated share links.
func WithBaseURL(u string) Option {
	return func(s *Server) { s.baseURL = strings.TrimRight(u, "/") }
}

func New(opts ...Option) *Server {
	s := &Server{
		secret:   []byte(uuid.NewString()),
		tokenTTL: time.Hour,
		now:      time.Now,
		baseURL:  "http://localhost:8080",
		users:    make(map[string]*user),
		byEmail:  make(map[string]string),
		files:    make(map[string]*file),
		links:    make(map[string]string),
		requests: make(map[string]*accessRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser creates an account directly and returns its id.
func (s *Server) AddUser(email, password, role string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(email)
	if _, exists := s.byEmail[key]; exists {
		return "", fmt.Errorf("email %q already registered", email)
	}
	u := &user{ID: uuid.NewString(), Email: email, Role: role, PasswordHash: hash}
	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	return u.ID, nil
}

// MustAddUser is AddUser for test setup.
func (s *Server) MustAddUser(email, password, role string) string {
	id, err := s.AddUser(email, password, role)
	if err != nil {
		panic(err)
	}
	return id
}

// AddFile stores content owned by ownerID and returns the file id.
func (s *Server) AddFile(ownerID, name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &file{
		ID:           uuid.NewString(),
		Filename:     uuid.NewString() + "-" + name,
		OriginalName: name,
		ContentType:  "application/octet-stream",
		Size:         int64(len(data)),
		UploadDate:   s.now().UTC(),
		OwnerID:      ownerID,
		Data:         append([]byte(nil), data...),
		shares:       make(map[string]string),
	}
	s.files[f.ID] = f
	return f.ID
}

type tokenClaims struct {
	Generation int64  `json:"gen"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken mints a token for userID as a successful login would.
func (s *Server) IssueToken(userID string) (string, error) {
	s.mu.Lock()
	u, ok := s.users[userID]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("unknown user %q", userID)
	}
	claims := tokenClaims{
		Generation: s.generation,
		Role:       u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(s.now().Add(s.tokenTTL)),
		},
	}
	s.mu.Unlock()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// RevokeAll invalidates every token issued so far.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	s.generation++
	s.mu.Unlock()
}

// Hits returns how many times a route pattern such as
// "GET /api/auth/me" was served.
func (s *Server) Hits(pattern string) int64 {
	v, ok := s.hits.Load(pattern)
	if !ok {
		return 0
	}
	return v.(*atomic.Int64).Load()
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		counter := &atomic.Int64{}
		s.hits.Store(pattern, counter)
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			counter.Add(1)
			h(w, r)
		})
	}

	route("POST /api/auth/login", s.login)
	route("POST /api/auth/signup", s.signup)
	route("GET /api/auth/me", s.authed(s.me))

	route("GET /api/files/my-files", s.authed(s.myFiles))
	route("GET /api/files/all", s.admin(s.allFiles))
	route("POST /api/files/upload", s.authed(s.upload))
	route("GET /api/files/download/{id}", s.authed(s.download))
	route("DELETE /api/files/{id}", s.authed(s.deleteFile))
	route("PATCH /api/files/{id}", s.authed(s.updateFile))
	route("POST /api/files/{id}/share", s.authed(s.share))
	route("POST /api/files/{id}/generate-link", s.authed(s.generateLink))
	route("GET /api/files/public/{token}", s.publicFile)
	route("POST /api/files/{id}/request-access", s.authed(s.requestAccess))
	route("GET /api/files/access-requests", s.admin(s.listRequests))
	route("POST /api/files/access-requests/{id}/approve", s.admin(s.approve))

	route("POST /api/users/find", s.authed(s.findUser))
	route("GET /api/users", s.admin(s.listUsers))
	route("GET /api/users/{id}/files", s.admin(s.userFiles))
	route("POST /api/users/{id}/promote", s.admin(s.promote))
	return mux
}

type authedHandler func(w http.ResponseWriter, r *http.Request, u *user)

func (s *Server) authed(h authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.authenticate(r)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		h(w, r, u)
	}
}

func (s *Server) admin(h authedHandler) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u *user) {
		if u.Role != "admin" {
			writeMessage(w, http.StatusForbidden, "Admin access required")
			return
		}
		h(w, r, u)
	})
}

var errNoToken = errors.New("No token provided")

func (s *Server) authenticate(r *http.Request) (*user, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, errNoToken
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, errors.New("Invalid token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if claims.Generation != s.generation {
		return nil, errors.New("Token revoked")
	}
	u, ok := s.users[claims.Subject]
	if !ok {
		return nil, errors.New("User no longer exists")
	}
	cp := *u
	return &cp, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
