// Package gateway provides the HTTP API over the tenant stores: public
// health, metrics, and dashboard endpoints, plus the authenticated /v1
// episode routes. Every /v1 request is scoped to the tenant its API key
// maps to.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/agentmem/internal/audit"
	"github.com/flemzord/agentmem/internal/config"
	"github.com/flemzord/agentmem/internal/tenant"
)

// Gateway is the HTTP server over a tenant set. It owns the router,
// the metrics registry, and the event hub; the tenant set and audit
// sink are shared with the rest of the process.
type Gateway struct {
	cfg          config.ServerConfig
	logger       *slog.Logger
	server       *http.Server
	metrics      *Metrics
	tenants      *tenant.Set
	audit        audit.Sink
	auditBackend string
	events       *EventHub
	limiter      *rateLimiter
	startedAt    time.Time
}

// Options wires the gateway's collaborators. Tenants and Logger are
// required; a nil Audit falls back to the no-op sink.
type Options struct {
	Config       config.ServerConfig
	Tenants      *tenant.Set
	Audit        audit.Sink
	AuditBackend string
	Logger       *slog.Logger
}

// New assembles a gateway. Call Start to begin serving.
func New(opts Options) *Gateway {
	g := &Gateway{
		cfg:          opts.Config,
		logger:       opts.Logger,
		tenants:      opts.Tenants,
		audit:        opts.Audit,
		auditBackend: opts.AuditBackend,
		events:       NewEventHub(opts.Logger),
	}
	if g.audit == nil {
		g.audit = audit.NopSink{}
	}
	if g.auditBackend == "" {
		g.auditBackend = audit.BackendNone
	}
	g.metrics = NewMetrics(opts.Tenants.Len)
	if opts.Config.RateLimit.Enabled() {
		g.limiter = newRateLimiter(opts.Config.RateLimit.Requests, opts.Config.RateLimit.ParsedWindow())
	}
	return g
}

// Events exposes the event hub so the maintenance jobs can publish
// scheduled checkpoint and prune activity to stream subscribers.
func (g *Gateway) Events() *EventHub { return g.events }

// Start binds the listen address and serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.cfg.Listen,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.cfg.ParsedReadTimeout(),
		WriteTimeout: g.cfg.ParsedWriteTimeout(),
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.cfg.Listen)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.cfg.Listen)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop drains in-flight requests, disconnects event subscribers, and
// shuts the server down within the configured grace period.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.cfg.ParsedShutdownTimeout())
	defer cancel()

	g.logger.Info("gateway shutting down")
	g.events.Close()
	return g.server.Shutdown(shutdownCtx)
}
