package gateway

import (
	"fmt"
	"html/template"
	"net/http"
	"time"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Agent Memory DB</title>
  <style>
    :root { font-family: system-ui, -apple-system, sans-serif; font-size: 16px; }
    body { max-width: 640px; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
    h1 { font-size: 1.5rem; font-weight: 600; margin-bottom: 1.5rem; }
    section { margin-bottom: 1.5rem; }
    h2 { font-size: 0.875rem; font-weight: 600; text-transform: uppercase; letter-spacing: 0.05em; color: #666; margin-bottom: 0.5rem; }
    .metric { display: flex; justify-content: space-between; padding: 0.5rem 0; border-bottom: 1px solid #eee; }
    .metric span:last-child { font-variant-numeric: tabular-nums; font-weight: 500; }
    .status { color: #0a0; font-weight: 500; }
    a { color: #0066cc; text-decoration: none; }
    a:hover { text-decoration: underline; }
  </style>
</head>
<body>
  <h1>Agent Memory DB</h1>

  <section>
    <h2>Health</h2>
    <div class="metric"><span>Status</span><span class="status">ok</span></div>
    <div class="metric"><span>Uptime</span><span>{{.Uptime}}</span></div>
    <div class="metric"><span><a href="/health">/health</a></span><span></span></div>
    <div class="metric"><span><a href="/metrics">/metrics</a></span><span>Prometheus</span></div>
  </section>

  <section>
    <h2>Usage</h2>
    <div class="metric"><span>API requests</span><span>{{.Requests}}</span></div>
    <div class="metric"><span>Episodes stored</span><span>{{.Episodes}}</span></div>
    <div class="metric"><span>Queries</span><span>{{.Queries}}</span></div>
    <div class="metric"><span>Active tenants</span><span>{{.Tenants}}</span></div>
  </section>

  <section>
    <h2>Config</h2>
    <div class="metric"><span>Embedding dim</span><span>{{.Dim}}</span></div>
    <div class="metric"><span>API keys</span><span>{{.Keys}}</span></div>
    <div class="metric"><span>Rate limit</span><span>{{.RateLimit}}</span></div>
    <div class="metric"><span>Audit log</span><span>{{.Audit}}</span></div>
    <div class="metric"><span>Storage</span><span>{{.Storage}}</span></div>
  </section>
</body>
</html>
`))

type dashboardData struct {
	Uptime    string
	Requests  int64
	Episodes  int64
	Queries   int64
	Tenants   int
	Dim       int
	Keys      int
	RateLimit string
	Audit     string
	Storage   string
}

// handleDashboard renders a small human-readable status page.
func (g *Gateway) handleDashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := g.metrics.Snapshot()
		data := dashboardData{
			Uptime:    time.Since(g.startedAt).Truncate(time.Second).String(),
			Requests:  snap.Requests,
			Episodes:  snap.Episodes,
			Queries:   snap.Queries,
			Tenants:   g.tenants.Len(),
			Dim:       g.tenants.Dim(),
			Keys:      len(g.cfg.Keys),
			RateLimit: "disabled",
			Audit:     g.auditBackend,
			Storage:   "in-memory",
		}
		if g.cfg.RateLimit.Enabled() {
			data.RateLimit = fmt.Sprintf("%d req / %s", g.cfg.RateLimit.Requests, g.cfg.RateLimit.ParsedWindow())
		}
		if dir := g.tenants.DataDir(); dir != "" {
			data.Storage = dir
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := dashboardTmpl.Execute(w, data); err != nil {
			g.logger.Error("dashboard render failed", "error", err)
		}
	}
}
