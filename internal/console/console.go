// Package console provides an interactive terminal client over a local
// episode store: remember short notes, recall the most similar ones,
// prune old ones, and inspect store stats without running the gateway.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/flemzord/agentmem/pkg/episode"
	"github.com/flemzord/agentmem/pkg/memdb"
)

const (
	defaultDim = 16
	recallTopK = 3
)

// Console drives a form-based store/recall loop over one local store.
type Console struct {
	db     *memdb.DB
	path   string
	dim    int
	out    io.Writer
	logger *slog.Logger
}

// Options configures a Console.
type Options struct {
	// Path is the JSON snapshot loaded at start and rewritten after
	// every change. Empty keeps the store in memory only.
	Path string
	// Dim is the embedding dimension for a fresh store. An existing
	// snapshot dictates its own. Defaults to 16.
	Dim int
	// Out receives responses. Defaults to os.Stdout.
	Out    io.Writer
	Logger *slog.Logger
}

// New opens the snapshot at opts.Path, or starts a fresh store.
func New(opts Options) (*Console, error) {
	dim := opts.Dim
	if dim <= 0 {
		dim = defaultDim
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := openStore(opts.Path, dim)
	if err != nil {
		return nil, err
	}
	return &Console{db: db, path: opts.Path, dim: db.Dim(), out: out, logger: logger}, nil
}

func openStore(path string, dim int) (*memdb.DB, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			db, err := memdb.LoadFile(path, "")
			if err != nil {
				return nil, fmt.Errorf("console: load %s: %w", path, err)
			}
			return db, nil
		}
	}
	db, err := memdb.New(dim)
	if err != nil {
		return nil, fmt.Errorf("console: new store: %w", err)
	}
	return db, nil
}

// Run loops on an action form until the user quits or ctx is cancelled.
// The store is saved on quit and after every change.
func (c *Console) Run(ctx context.Context) error {
	fmt.Fprintf(c.out, "agentmem console: %d notes stored\n", c.db.Len())

	for {
		if ctx.Err() != nil {
			return c.save()
		}

		var action string
		form := huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("What next?").
				Options(
					huh.NewOption("Remember a note", "remember"),
					huh.NewOption("Recall similar notes", "recall"),
					huh.NewOption("Show stats", "stats"),
					huh.NewOption("Prune to newest", "prune"),
					huh.NewOption("Quit", "quit"),
				).
				Value(&action),
		))
		if err := form.RunWithContext(ctx); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				return c.save()
			}
			return fmt.Errorf("console: form: %w", err)
		}

		switch action {
		case "remember":
			if err := c.runRemember(ctx); err != nil {
				return err
			}
		case "recall":
			if err := c.runRecall(ctx); err != nil {
				return err
			}
		case "stats":
			fmt.Fprintln(c.out, c.stats())
		case "prune":
			if err := c.runPrune(ctx); err != nil {
				return err
			}
		case "quit":
			if err := c.save(); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Goodbye.")
			return nil
		}
	}
}

func (c *Console) runRemember(ctx context.Context) error {
	var text string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("What should I remember?").
			Placeholder("I prefer dark mode").
			Validate(notEmpty).
			Value(&text),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("console: form: %w", err)
	}

	if _, err := c.remember(text); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Remembered.")
	return nil
}

func (c *Console) runRecall(ctx context.Context) error {
	var question string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("What are you looking for?").
			Validate(notEmpty).
			Value(&question),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("console: form: %w", err)
	}

	answers, err := c.recall(question)
	if err != nil {
		return err
	}
	switch {
	case len(answers) == 0 && c.db.Len() == 0:
		fmt.Fprintln(c.out, "No notes stored yet. Share something!")
	case len(answers) == 0:
		fmt.Fprintln(c.out, "I don't have relevant notes for that.")
	default:
		if len(answers) > 2 {
			answers = answers[:2]
		}
		fmt.Fprintf(c.out, "Based on what you've told me: %s\n", strings.Join(answers, "; "))
	}
	return nil
}

func (c *Console) runPrune(ctx context.Context) error {
	var raw string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Keep how many newest notes?").
			Placeholder("30").
			Validate(func(s string) error {
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil || n < 0 {
					return errors.New("enter a non-negative number")
				}
				return nil
			}).
			Value(&raw),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil
		}
		return fmt.Errorf("console: form: %w", err)
	}

	n, _ := strconv.Atoi(strings.TrimSpace(raw))
	removed, err := c.prune(n)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Kept %d most recent. Removed %d.\n", n, removed)
	return nil
}

// remember stores text as an episode and saves the snapshot.
func (c *Console) remember(text string) (string, error) {
	ep := episode.New(taskLabel(text), embed(text, c.dim), 1.0)
	meta, err := json.Marshal(map[string]string{"text": text, "type": "preference"})
	if err != nil {
		return "", fmt.Errorf("console: encode metadata: %w", err)
	}
	ep.Metadata = meta
	ep.SetTimestamp(time.Now().UnixMilli())

	id, err := c.db.Store(ep)
	if err != nil {
		return "", fmt.Errorf("console: store: %w", err)
	}
	c.logger.Debug("console: note stored", "id", id)
	return id, c.save()
}

// recall returns the texts of the notes most similar to question.
func (c *Console) recall(question string) ([]string, error) {
	eps, err := c.db.Query(embed(question, c.dim), memdb.QueryOptions{TopK: recallTopK})
	if err != nil {
		return nil, fmt.Errorf("console: query: %w", err)
	}

	var answers []string
	for _, ep := range eps {
		var meta struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(ep.Metadata, &meta); err == nil && meta.Text != "" {
			answers = append(answers, meta.Text)
		}
	}
	return answers, nil
}

func (c *Console) stats() string {
	return fmt.Sprintf("Notes: %d stored (dim %d, %s index)", c.db.Len(), c.db.Dim(), c.db.Kind())
}

// prune keeps the n newest notes and saves the snapshot.
func (c *Console) prune(n int) (int, error) {
	removed, err := c.db.PruneKeepNewest(n)
	if err != nil {
		return 0, fmt.Errorf("console: prune: %w", err)
	}
	return removed, c.save()
}

func (c *Console) save() error {
	if c.path == "" {
		return nil
	}
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("console: create %s: %w", dir, err)
		}
	}
	if err := c.db.SaveFile(c.path); err != nil {
		return fmt.Errorf("console: save %s: %w", c.path, err)
	}
	return nil
}

// taskLabel derives a stable pref_* task id from the note text.
func taskLabel(text string) string {
	h := fnv.New32a()
	h.Write([]byte(text))
	return fmt.Sprintf("pref_%05d", h.Sum32()%100_000)
}

func notEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("enter some text")
	}
	return nil
}
