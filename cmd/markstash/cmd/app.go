package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/markstash/markstash/internal/chunk"
	"github.com/markstash/markstash/internal/config"
	"github.com/markstash/markstash/internal/embed"
	mserrors "github.com/markstash/markstash/internal/errors"
	"github.com/markstash/markstash/internal/extract"
	"github.com/markstash/markstash/internal/pipeline"
	"github.com/markstash/markstash/internal/queue"
	"github.com/markstash/markstash/internal/search"
	"github.com/markstash/markstash/internal/store"
)

// app bundles the stores and services a command needs, opened from config.
type app struct {
	cfg      *config.Config
	store    *store.MetadataStore
	queue    *queue.Queue
	vectors  *store.VectorStore
	lexical  *store.LexicalIndex
	embedder embed.Embedder
}

// appOptions selects which optional dependencies to open.
type appOptions struct {
	// Indexes opens the vector and lexical indexes. Commands that only
	// touch metadata and the queue skip them.
	Indexes bool

	// Embedder constructs the configured embedding provider.
	Embedder bool
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.Load()
}

// openApp opens the metadata store and job queue, plus whatever opts asks
// for. Callers must Close the returned app.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ms, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: ms}

	a.queue, err = queue.New(ms.DB(), cfg.Pipeline.MaxAttempts, mserrors.DefaultRetryConfig())
	if err != nil {
		a.Close()
		return nil, err
	}

	if opts.Embedder {
		a.embedder, err = embed.NewFromConfig(cfg.Embeddings)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.Indexes {
		if err := a.openIndexes(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	return a, nil
}

// openIndexes opens the lexical index and loads the vector snapshot,
// rebuilding both from the metadata store when the snapshot is missing or
// unreadable.
func (a *app) openIndexes(ctx context.Context) error {
	var err error
	a.lexical, err = store.NewLexicalIndex(a.cfg.LexicalIndexPath())
	if err != nil {
		return err
	}

	// The provider knows its output dimension better than the config
	// default does. Zero means the provider detects it on first use, and
	// the store then pins itself to the first inserted vector.
	dims := a.cfg.Embeddings.Dimensions
	if a.embedder != nil {
		if d := a.embedder.Dimensions(); d > 0 {
			dims = d
		}
	}

	a.vectors, err = store.NewVectorStore(store.VectorStoreConfig{
		Dimensions: dims,
	})
	if err != nil {
		return err
	}

	snapshot := a.cfg.VectorIndexPath()
	if _, statErr := os.Stat(snapshot); statErr == nil {
		loadErr := a.vectors.Load(snapshot)
		if loadErr == nil {
			return nil
		}
		slog.Warn("vector_snapshot_load_failed",
			slog.String("path", snapshot),
			slog.String("error", loadErr.Error()))
	}

	n, err := a.newPipeline().Rebuild(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("indexes_rebuilt", slog.Int("chunks", n))
	}
	return nil
}

// newPipeline wires a pipeline over the app's stores. The embedder may be
// nil for commands that never reach the embedding stage (delete, rebuild).
func (a *app) newPipeline() *pipeline.Pipeline {
	return pipeline.New(pipeline.Deps{
		Store:     a.store,
		Vectors:   a.vectors,
		Lexical:   a.lexical,
		Queue:     a.queue,
		Extractor: extract.NewDispatcher(&http.Client{Timeout: a.cfg.Pipeline.FetchTimeout}, os.Getenv("GITHUB_TOKEN")),
		Chunker: chunk.New(chunk.Options{
			MaxChars:     a.cfg.Chunking.MaxChars,
			OverlapChars: a.cfg.Chunking.OverlapChars,
		}),
		Embedder: a.embedder,
		Config:   a.cfg.Pipeline,
	})
}

// newEngine wires a search engine over the app's stores.
func (a *app) newEngine() *search.Engine {
	return search.NewEngine(a.store, a.vectors, a.lexical, a.embedder, a.cfg.Search, nil)
}

// saveVectors persists the vector index snapshot.
func (a *app) saveVectors() error {
	if a.vectors == nil {
		return nil
	}
	return a.vectors.Save(a.cfg.VectorIndexPath())
}

// Close releases everything the app opened.
func (a *app) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.vectors != nil {
		_ = a.vectors.Close()
	}
	if a.lexical != nil {
		_ = a.lexical.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// currentUser resolves the acting user: the MARKSTASH_USER environment
// variable if set, otherwise a per-installation identity persisted next to
// the data.
func currentUser(cfg *config.Config) (uuid.UUID, error) {
	if raw := strings.TrimSpace(os.Getenv("MARKSTASH_USER")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, fmt.Errorf("MARKSTASH_USER is not a valid UUID: %w", err)
		}
		return id, nil
	}

	path := cfg.UserIDPath()
	if data, err := os.ReadFile(path); err == nil {
		id, err := uuid.Parse(strings.TrimSpace(string(data)))
		if err == nil {
			return id, nil
		}
	}

	id := uuid.New()
	if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
		return uuid.Nil, err
	}
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}
