package minidrive

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrEthical07/minidrive/drive"
	"github.com/MrEthical07/minidrive/internal/audit"
	"github.com/MrEthical07/minidrive/jwt"
	"github.com/MrEthical07/minidrive/session"
	"github.com/MrEthical07/minidrive/tokenstore"
	"github.com/MrEthical07/minidrive/transport"
)

// Client is the assembled MiniDrive client. Its methods are safe for
// concurrent use.
type Client struct {
	cfg         Config
	logger      *slog.Logger
	tokens      tokenstore.Store
	closeTokens func() error
	transport   *transport.Client
	session     *session.Store
	drive       *drive.Service
	metrics     *Metrics
	audit       *audit.Dispatcher
	now         func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Start rehydrates the session from the persisted token and returns the
// resulting state. Only the first call talks to the API.
func (c *Client) Start(ctx context.Context) session.Session {
	c.session.Initialize(ctx)
	return c.session.Snapshot()
}

// Session returns the session store. See [session.Store].
func (c *Client) Session() *session.Store {
	return c.session
}

// Drive returns the file, sharing and admin operations.
func (c *Client) Drive() *drive.Service {
	return c.drive
}

// Transport returns the authorized HTTP client. Subscribe on it to observe
// auth failures.
func (c *Client) Transport() *transport.Client {
	return c.transport
}

// Tokens returns the persisted-token store.
func (c *Client) Tokens() tokenstore.Store {
	return c.tokens
}

// Config returns a copy of the configuration the client was built with.
func (c *Client) Config() Config {
	return c.cfg
}

// MetricsSnapshot returns the current counters. See [Metrics.Snapshot].
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// TokenInfo decodes the current session token's claims without verifying
// them. It returns ErrNotAuthenticated when no token is held.
func (c *Client) TokenInfo() (jwt.Claims, error) {
	tok := c.session.Token()
	if tok == "" {
		return jwt.Claims{}, ErrNotAuthenticated
	}
	return jwt.Inspect(tok)
}

// PromoteAndRefresh grants userID the admin role. When userID is the
// logged-in user, the session's user is replaced with the returned record
// and the token is left as is.
func (c *Client) PromoteAndRefresh(ctx context.Context, userID string) (session.User, error) {
	u, err := c.drive.PromoteUser(ctx, userID)
	if err != nil {
		return session.User{}, err
	}
	if cur, ok := c.session.User(); ok && cur.ID == u.ID {
		if err := c.session.UpdateUser(ctx, u); err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
			return u, err
		}
	}
	return u, nil
}

// Close detaches the session, flushes audit events and releases the token
// store backend. The persisted token is kept.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.session.Close()
		c.audit.Close()
		c.closeErr = c.closeTokens()
	})
	return c.closeErr
}
