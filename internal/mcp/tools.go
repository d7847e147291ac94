package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

// defaultTopK matches the HTTP API's query default.
const defaultTopK = 5

func storeTool() mcp.Tool {
	return mcp.NewTool("memory_store",
		mcp.WithDescription("Store one episode: a state embedding with its reward, task label, and optional metadata."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Caller-defined task label. Not unique; prefix-filterable on query."),
		),
		mcp.WithArray("embedding",
			mcp.Required(),
			mcp.Description("State embedding. Length must equal the store dimension."),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithNumber("reward",
			mcp.Description("Scalar outcome of the episode."),
		),
		mcp.WithObject("metadata",
			mcp.Description("Arbitrary JSON stored with the episode and returned as-is."),
		),
		mcp.WithArray("tags",
			mcp.Description("Tags for filtered retrieval."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("source",
			mcp.Description("Producer of the episode, e.g. \"planner\"."),
		),
		mcp.WithString("user_id",
			mcp.Description("User the episode belongs to."),
		),
		mcp.WithNumber("timestamp",
			mcp.Description("Unix milliseconds. Omit to store without a timestamp."),
		),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("memory_query",
		mcp.WithDescription("Retrieve the episodes most similar to an embedding, optionally filtered."),
		mcp.WithArray("embedding",
			mcp.Required(),
			mcp.Description("Query embedding. Length must equal the store dimension."),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithNumber("top_k",
			mcp.Description("Maximum results to return."),
			mcp.DefaultNumber(defaultTopK),
		),
		mcp.WithNumber("min_reward",
			mcp.Description("Drop episodes with a lower reward."),
		),
		mcp.WithArray("tags_any",
			mcp.Description("Keep episodes carrying at least one of these tags."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithArray("tags_all",
			mcp.Description("Keep episodes carrying every one of these tags."),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("task_id_prefix",
			mcp.Description("Keep episodes whose task id starts with this prefix."),
		),
		mcp.WithNumber("time_after",
			mcp.Description("Keep episodes recorded at or after this unix-millisecond time."),
		),
		mcp.WithNumber("time_before",
			mcp.Description("Keep episodes recorded at or before this unix-millisecond time."),
		),
		mcp.WithString("source",
			mcp.Description("Keep episodes whose source matches exactly."),
		),
		mcp.WithString("user_id",
			mcp.Description("Keep episodes whose user id matches exactly."),
		),
	)
}

func pruneTool() mcp.Tool {
	return mcp.NewTool("memory_prune",
		mcp.WithDescription("Remove episodes by age, count, or reward rank."),
		mcp.WithString("strategy",
			mcp.Required(),
			mcp.Description("Pruning strategy."),
			mcp.Enum("older_than", "keep_newest", "keep_highest_reward"),
		),
		mcp.WithNumber("cutoff_ms",
			mcp.Description("older_than: remove episodes recorded before this unix-millisecond time."),
		),
		mcp.WithNumber("n",
			mcp.Description("keep_newest / keep_highest_reward: number of episodes to keep."),
		),
	)
}

func statsTool() mcp.Tool {
	return mcp.NewTool("memory_stats",
		mcp.WithDescription("Report episode count, embedding dimension, and index kind."),
	)
}

type storeArgs struct {
	TaskID    string          `json:"task_id"`
	Embedding []float32       `json:"embedding"`
	Reward    float32         `json:"reward"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	Tags      []string        `json:"tags,omitempty"`
	Source    string          `json:"source,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp *int64          `json:"timestamp,omitempty"`
}

type queryArgs struct {
	Embedding    []float32 `json:"embedding"`
	TopK         *int      `json:"top_k,omitempty"`
	MinReward    float32   `json:"min_reward,omitempty"`
	TagsAny      []string  `json:"tags_any,omitempty"`
	TagsAll      []string  `json:"tags_all,omitempty"`
	TaskIDPrefix string    `json:"task_id_prefix,omitempty"`
	TimeAfter    *int64    `json:"time_after,omitempty"`
	TimeBefore   *int64    `json:"time_before,omitempty"`
	Source       string    `json:"source,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
}

type pruneArgs struct {
	Strategy string `json:"strategy"`
	CutoffMs int64  `json:"cutoff_ms,omitempty"`
	N        int    `json:"n,omitempty"`
}

type storeResult struct {
	ID string `json:"id"`
}

type pruneResult struct {
	Removed int `json:"removed"`
}

type statsResult struct {
	Episodes int    `json:"episodes"`
	Dim      int    `json:"dim"`
	Index    string `json:"index"`
}

// resultJSON renders v as a JSON text result. Tool output is text by
// protocol; JSON keeps it machine-readable for the calling agent.
func resultJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleStore(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args storeArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	id, err := s.store.Store(episode.Episode{
		TaskID:    args.TaskID,
		Embedding: args.Embedding,
		Reward:    args.Reward,
		Metadata:  args.Metadata,
		Tags:      args.Tags,
		Source:    args.Source,
		UserID:    args.UserID,
		Timestamp: args.Timestamp,
	})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("store failed", err), nil
	}

	s.logger.Debug("mcp: episode stored", "id", id, "task_id", args.TaskID)
	return resultJSON(storeResult{ID: id})
}

func (s *Server) handleQuery(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args queryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	topK := defaultTopK
	if args.TopK != nil {
		topK = *args.TopK
	}

	eps, err := s.store.Query(args.Embedding, memdb.QueryOptions{
		MinReward:    args.MinReward,
		TopK:         topK,
		TagsAny:      args.TagsAny,
		TagsAll:      args.TagsAll,
		TaskIDPrefix: args.TaskIDPrefix,
		TimeAfter:    args.TimeAfter,
		TimeBefore:   args.TimeBefore,
		Source:       args.Source,
		UserID:       args.UserID,
	})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("query failed", err), nil
	}
	if eps == nil {
		eps = []episode.Episode{}
	}

	s.logger.Debug("mcp: query served", "results", len(eps))
	return resultJSON(eps)
}

func (s *Server) handlePrune(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args pruneArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid arguments", err), nil
	}

	var removed int
	var err error
	switch args.Strategy {
	case "older_than":
		removed, err = s.store.PruneOlderThan(args.CutoffMs)
	case "keep_newest":
		removed, err = s.store.PruneKeepNewest(args.N)
	case "keep_highest_reward":
		removed, err = s.store.PruneKeepHighestReward(args.N)
	default:
		return mcp.NewToolResultError(fmt.Sprintf(
			"unknown strategy %q: want older_than, keep_newest, or keep_highest_reward", args.Strategy)), nil
	}
	if err != nil {
		return mcp.NewToolResultErrorFromErr("prune failed", err), nil
	}

	s.logger.Debug("mcp: pruned episodes", "strategy", args.Strategy, "removed", removed)
	return resultJSON(pruneResult{Removed: removed})
}

func (s *Server) handleStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return resultJSON(statsResult{
		Episodes: s.store.Len(),
		Dim:      s.store.Dim(),
		Index:    string(s.store.Kind()),
	})
}
