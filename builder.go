package minidrive

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/minidrive/drive"
	"github.com/MrEthical07/minidrive/internal/audit"
	"github.com/MrEthical07/minidrive/internal/logging"
	"github.com/MrEthical07/minidrive/session"
	"github.com/MrEthical07/minidrive/tokenstore"
	"github.com/MrEthical07/minidrive/transport"
)

// Builder assembles a Client. A Builder is single use.
type Builder struct {
	config     Config
	tokens     tokenstore.Store
	httpClient *http.Client
	logger     *slog.Logger
	auditSink  AuditSink
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration. It is validated by
// [Builder.Build], not here. Later WithX calls adjust the new value.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithBaseURL overrides API.BaseURL.
func (b *Builder) WithBaseURL(u string) *Builder {
	b.config.API.BaseURL = u
	return b
}

// WithTokenStore supplies the persisted-token store, taking precedence over
// the TokenStore config section. The caller keeps ownership of it.
func (b *Builder) WithTokenStore(s tokenstore.Store) *Builder {
	b.tokens = s
	return b
}

// WithHTTPClient replaces the default client built from the HTTP section.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithLogger sets the logger handed to every layer. Without it Build
// creates one from the Log config section.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source used for audit timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled overrides Metrics.Enabled. A disabled client records
// nothing and [Client.MetricsSnapshot] returns empty maps.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms overrides Metrics.EnableLatencyHistograms. It has
// no effect while metrics are disabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client. On error nothing
// is left running.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}
	b.built = true

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := b.logger
	if logger == nil {
		logger = logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}

	tokens := b.tokens
	closeTokens := func() error { return nil }
	if tokens == nil {
		var err error
		tokens, closeTokens, err = tokenstore.Open(cfg.TokenStore)
		if err != nil {
			return nil, fmt.Errorf("open token store: %w", err)
		}
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTP.Timeout}
	}

	metrics := NewMetrics(cfg.Metrics)
	tc, err := transport.New(transport.Options{
		BaseURL:    cfg.API.BaseURL,
		HTTPClient: httpClient,
		Tokens:     tokenstore.Provider(tokens),
		ClearToken: tokens.Clear,
		Logger:     logging.WithComponent(logger, "transport"),
		Recorder:   metrics,
		Tracing:    cfg.HTTP.Tracing,
		UserAgent:  cfg.HTTP.UserAgent,
	})
	if err != nil {
		_ = closeTokens()
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	c := &Client{
		cfg:         cfg,
		logger:      logger,
		tokens:      tokens,
		closeTokens: closeTokens,
		transport:   tc,
		metrics:     metrics,
		now:         now,
	}

	sess, err := session.New(tc, tokens, session.Options{
		Logger:  logging.WithComponent(logger, "session"),
		OnEvent: c.onSessionEvent,
	})
	if err != nil {
		_ = closeTokens()
		return nil, err
	}
	c.session = sess

	svc, err := drive.New(tc, drive.WithToken(sess.Token))
	if err != nil {
		sess.Close()
		_ = closeTokens()
		return nil, err
	}
	c.drive = svc

	// Started last so a failed Build leaves no goroutine behind.
	c.audit = audit.NewDispatcher(cfg.Audit, b.auditSink)
	return c, nil
}
