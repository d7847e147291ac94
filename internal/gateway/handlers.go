package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/flemzord/agentmem/internal/audit"
	"github.com/flemzord/agentmem/internal/tenant"
	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

// defaultTopK is used when a query omits top_k.
const defaultTopK = 5

type storeEpisodeRequest struct {
	TaskID    string          `json:"task_id"`
	Embedding []float32       `json:"state_embedding"`
	Reward    float32         `json:"reward"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Steps     []episode.Step  `json:"steps,omitempty"`
	Timestamp *int64          `json:"timestamp,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Source    string          `json:"source,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
}

// episode converts the request body into the engine's record type.
func (req storeEpisodeRequest) episode() episode.Episode {
	return episode.Episode{
		TaskID:    req.TaskID,
		Embedding: req.Embedding,
		Reward:    req.Reward,
		Metadata:  req.Metadata,
		Steps:     req.Steps,
		Timestamp: req.Timestamp,
		Tags:      req.Tags,
		Source:    req.Source,
		UserID:    req.UserID,
	}
}

type storeEpisodeResponse struct {
	ID string `json:"id"`
}

type storeEpisodesRequest struct {
	Episodes []storeEpisodeRequest `json:"episodes"`
}

type storeEpisodesResponse struct {
	IDs []string `json:"ids"`
}

type queryRequest struct {
	Embedding    []float32 `json:"query_embedding"`
	MinReward    float32   `json:"min_reward"`
	TopK         *int      `json:"top_k"`
	TagsAny      []string  `json:"tags_any"`
	TagsAll      []string  `json:"tags_all"`
	TaskIDPrefix string    `json:"task_id_prefix"`
	TimeAfter    *int64    `json:"time_after"`
	TimeBefore   *int64    `json:"time_before"`
	Source       string    `json:"source"`
	UserID       string    `json:"user_id"`
}

type queryResponse struct {
	Episodes []episode.Episode `json:"episodes"`
}

type pathRequest struct {
	Path string `json:"path"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type pruneOlderThanRequest struct {
	TimestampCutoffMs int64 `json:"timestamp_cutoff_ms"`
}

type pruneKeepRequest struct {
	N int `json:"n"`
}

type pruneResponse struct {
	Removed int `json:"removed"`
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": ...} body every non-2xx response uses.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// decodeBody decodes the request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// requireTenant resolves the request's tenant to a live backend, or
// writes the 404 the API promises for tenants with nothing stored.
func (g *Gateway) requireTenant(w http.ResponseWriter, r *http.Request) (string, tenant.Backend, bool) {
	id := tenantID(r.Context())
	backend, ok := g.tenants.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "No episodes stored for this tenant yet")
		return id, nil, false
	}
	return id, backend, true
}

// recordOp writes an audit entry, logging instead of failing the
// request when the sink is unhealthy.
func (g *Gateway) recordOp(r *http.Request, e audit.Entry) {
	if err := g.audit.Record(r.Context(), e); err != nil {
		g.logger.Warn("audit record failed", "op", e.Op, "error", err)
	}
}

// handleStoreEpisode stores one episode for the tenant, creating the
// tenant's store on first use.
func (g *Gateway) handleStoreEpisode() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storeEpisodeRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id := tenantID(r.Context())
		backend, err := g.tenants.GetOrCreate(id)
		if err != nil {
			g.logger.Error("tenant store create failed", "tenant", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		epID, err := backend.Store(req.episode())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		g.metrics.RecordEpisodes(1)
		g.recordOp(r, audit.Entry{TenantID: id, Op: audit.OpStoreEpisode, TaskID: req.TaskID, EpisodeCount: audit.Count(1)})
		g.events.Publish(Event{TenantID: id, Op: audit.OpStoreEpisode, Count: 1})
		writeJSON(w, http.StatusOK, storeEpisodeResponse{ID: epID})
	}
}

// handleStoreEpisodes stores a batch of episodes in insertion order.
func (g *Gateway) handleStoreEpisodes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req storeEpisodesRequest
		if !decodeBody(w, r, &req) {
			return
		}

		eps := make([]episode.Episode, 0, len(req.Episodes))
		for _, e := range req.Episodes {
			eps = append(eps, e.episode())
		}

		id := tenantID(r.Context())
		backend, err := g.tenants.GetOrCreate(id)
		if err != nil {
			g.logger.Error("tenant store create failed", "tenant", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		ids, err := backend.StoreBatch(eps)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		g.metrics.RecordEpisodes(len(ids))
		g.recordOp(r, audit.Entry{TenantID: id, Op: audit.OpStoreEpisodes, EpisodeCount: audit.Count(len(ids))})
		g.events.Publish(Event{TenantID: id, Op: audit.OpStoreEpisodes, Count: len(ids)})
		writeJSON(w, http.StatusOK, storeEpisodesResponse{IDs: ids})
	}
}

// handleQuery runs a filtered similarity query. Unlike the other tenant
// routes it reopens a disk-backed tenant left by an earlier process, so
// reads work right after a restart.
func (g *Gateway) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id := tenantID(r.Context())
		backend, ok, err := g.tenants.Resolve(id)
		if err != nil {
			g.logger.Error("tenant store reopen failed", "tenant", id, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeError(w, http.StatusNotFound, "No episodes stored for this tenant yet")
			return
		}

		topK := defaultTopK
		if req.TopK != nil {
			topK = *req.TopK
		}
		got, err := backend.Query(req.Embedding, memdb.QueryOptions{
			MinReward:    req.MinReward,
			TopK:         topK,
			TagsAny:      req.TagsAny,
			TagsAll:      req.TagsAll,
			TaskIDPrefix: req.TaskIDPrefix,
			TimeAfter:    req.TimeAfter,
			TimeBefore:   req.TimeBefore,
			Source:       req.Source,
			UserID:       req.UserID,
		})
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if got == nil {
			got = []episode.Episode{}
		}

		g.metrics.RecordQuery()
		g.recordOp(r, audit.Entry{TenantID: id, Op: audit.OpQuery})
		writeJSON(w, http.StatusOK, queryResponse{Episodes: got})
	}
}

// handleSave snapshots an in-memory tenant to a JSON file. For
// disk-backed tenants the data is already on disk, so this succeeds
// without writing anything.
func (g *Gateway) handleSave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pathRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id, backend, ok := g.requireTenant(w, r)
		if !ok {
			return
		}

		path := req.Path
		if dir := g.tenants.DataDir(); dir != "" {
			path = filepath.Join(dir, req.Path)
		}
		if err := backend.SaveFile(path); err != nil {
			writeError(w, http.StatusInternalServerError, "Save failed: "+err.Error())
			return
		}

		g.recordOp(r, audit.Entry{TenantID: id, Op: audit.OpSave, Path: req.Path})
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

// handleLoad replaces the tenant's in-memory store with one loaded from
// a snapshot file. Refused in disk-backed mode, where the directory is
// the source of truth.
func (g *Gateway) handleLoad() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pathRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if g.tenants.DataDir() != "" {
			writeError(w, http.StatusBadRequest, "Load not supported when using disk-backed storage (store.data_dir)")
			return
		}

		db, err := memdb.LoadFile(req.Path, "")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Load failed: "+err.Error())
			return
		}

		id := tenantID(r.Context())
		g.tenants.Replace(id, tenant.Memory(db))

		g.recordOp(r, audit.Entry{TenantID: id, Op: audit.OpLoad, Path: req.Path})
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}

// handlePruneOlderThan evicts episodes with a timestamp before the
// cutoff. Episodes without a timestamp are kept.
func (g *Gateway) handlePruneOlderThan() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pruneOlderThanRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id, backend, ok := g.requireTenant(w, r)
		if !ok {
			return
		}

		removed, err := backend.PruneOlderThan(req.TimestampCutoffMs)
		if err != nil {
			writeError(w, pruneErrStatus(err), err.Error())
			return
		}

		g.finishPrune(w, r, id, audit.OpPruneOlderThan, removed)
	}
}

// handlePruneKeepNewest keeps the n newest episodes and evicts the rest.
func (g *Gateway) handlePruneKeepNewest() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pruneKeepRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id, backend, ok := g.requireTenant(w, r)
		if !ok {
			return
		}

		removed, err := backend.PruneKeepNewest(req.N)
		if err != nil {
			writeError(w, pruneErrStatus(err), err.Error())
			return
		}

		g.finishPrune(w, r, id, audit.OpPruneKeepNewest, removed)
	}
}

// handlePruneKeepHighestReward keeps the n highest-reward episodes and
// evicts the rest.
func (g *Gateway) handlePruneKeepHighestReward() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req pruneKeepRequest
		if !decodeBody(w, r, &req) {
			return
		}

		id, backend, ok := g.requireTenant(w, r)
		if !ok {
			return
		}

		removed, err := backend.PruneKeepHighestReward(req.N)
		if err != nil {
			writeError(w, pruneErrStatus(err), err.Error())
			return
		}

		g.finishPrune(w, r, id, audit.OpPruneKeepHighestReward, removed)
	}
}

// finishPrune records metrics, audit, and events shared by the three
// prune endpoints and writes the response.
func (g *Gateway) finishPrune(w http.ResponseWriter, r *http.Request, id, op string, removed int) {
	g.recordOp(r, audit.Entry{TenantID: id, Op: op, EpisodeCount: audit.Count(removed)})
	g.events.Publish(Event{TenantID: id, Op: op, Count: removed})
	writeJSON(w, http.StatusOK, pruneResponse{Removed: removed})
}

// pruneErrStatus maps prune failures to a status: caller mistakes are
// 400, store faults are 500.
func pruneErrStatus(err error) int {
	if errors.Is(err, memdb.ErrInvalidArgument) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// handleCheckpoint writes the tenant's exact-index checkpoint so the
// next open can skip log replay. In-memory tenants have no log, so this
// succeeds without doing anything. Takes no request body.
func (g *Gateway) handleCheckpoint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, backend, ok := g.requireTenant(w, r)
		if !ok {
			return
		}

		if err := backend.Checkpoint(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		g.recordOp(r, audit.Entry{TenantID: id, Op: audit.OpCheckpoint})
		g.events.Publish(Event{TenantID: id, Op: audit.OpCheckpoint})
		writeJSON(w, http.StatusOK, okResponse{OK: true})
	}
}
