package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"go.uber.org/zap"

	"ragflow/internal/chunker"
	"ragflow/internal/config"
	"ragflow/internal/corpus"
	"ragflow/internal/embedding"
	"ragflow/internal/llm"
	"ragflow/internal/metrics"
	"ragflow/internal/retrieval"
	"ragflow/internal/service"
	"ragflow/internal/vectorstore/chromem"
	"ragflow/internal/vectorstore/qdrant"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.AppConfig
	log     *zap.Logger
	metrics *metrics.Metrics
	svc     *service.Service
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loggerFunc builds the process logger from the logging section.
type loggerFunc func(config.LoggingConfig) (*zap.Logger, error)

func newApp(ctx context.Context, obs service.Observer, newLogger loggerFunc) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	emb, err := embedding.New(cfg.Embedder, provider.Embedder)
	if err != nil {
		return nil, err
	}
	emb = embedding.WithQueryCache(emb, time.Duration(cfg.Embedder.CacheTTLSecs)*time.Second)
	store, err := buildStore(ctx, cfg, emb, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	svc, err := service.New(
		llm.NewClientFromConfig(provider, cfg.LLM),
		retrieval.NewClient(store, cfg.Retriever.TopK, time.Duration(cfg.Retriever.TimeoutSecs)*time.Second),
		service.WithObserver(obs),
		service.WithLogger(log),
		service.WithRecorder(m),
	)
	if err != nil {
		return nil, err
	}
	log.Info("ready",
		zap.String("backend", string(provider.Backend)),
		zap.String("retriever", cfg.Retriever.Type))
	return &app{cfg: cfg, log: log, metrics: m, svc: svc}, nil
}

// close flushes the logger and writes the metrics file when one was requested.
func (a *app) close() {
	if metricsFile != "" {
		if err := a.metrics.WriteTextfile(metricsFile); err != nil {
			a.log.Warn("writing metrics file", zap.String("path", metricsFile), zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func buildStore(ctx context.Context, cfg *config.AppConfig, emb embeddings.Embedder, log *zap.Logger) (retrieval.Searcher, error) {
	docs := corpus.Sample()
	if len(cfg.Retriever.Corpus) > 0 {
		ch := chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
		extra, err := corpus.LoadFiles(cfg.Retriever.Corpus, ch)
		if err != nil {
			return nil, fmt.Errorf("loading corpus: %w", err)
		}
		docs = append(docs, extra...)
	}
	if err := embedding.Prepare(emb, corpus.Texts(docs)); err != nil {
		return nil, fmt.Errorf("preparing embedder: %w", err)
	}

	switch cfg.Retriever.Type {
	case "qdrant":
		q := cfg.Retriever.Qdrant
		store, err := qdrant.New(qdrant.Config{URL: q.URL, APIKey: q.APIKey, Collection: q.Collection}, emb)
		if err != nil {
			return nil, err
		}
		if q.Seed {
			if _, err := store.AddDocuments(ctx, docs); err != nil {
				return nil, fmt.Errorf("seeding qdrant: %w", err)
			}
			log.Info("seeded qdrant collection", zap.String("collection", q.Collection), zap.Int("documents", len(docs)))
		}
		return store, nil
	default:
		store, err := chromem.New(cfg.Retriever.Collection, emb)
		if err != nil {
			return nil, err
		}
		if _, err := store.AddDocuments(ctx, docs); err != nil {
			return nil, fmt.Errorf("indexing corpus: %w", err)
		}
		log.Debug("indexed corpus", zap.Int("documents", store.Count()))
		return store, nil
	}
}
