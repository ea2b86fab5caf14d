package container

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/jinford/retriever/internal/core/corpus"
	"github.com/jinford/retriever/internal/core/embedding"
	"github.com/jinford/retriever/internal/core/vecindex"
	"github.com/jinford/retriever/internal/infra/git"
	"github.com/jinford/retriever/internal/infra/localfs"
	"github.com/jinford/retriever/internal/infra/matching"
	"github.com/jinford/retriever/internal/infra/openai"
	"github.com/jinford/retriever/internal/infra/pgvector"
	"github.com/jinford/retriever/internal/infra/s3"
	"github.com/jinford/retriever/pkg/config"
)

// Container は依存関係を解決済みのコンポーネント群を保持する
type Container struct {
	Client   *vecindex.Client
	Embedder embedding.Embedder
	Source   corpus.Source

	logger *slog.Logger
}

type containerOptions struct {
	logger   *slog.Logger
	embedder embedding.Embedder
	source   corpus.Source
	backend  vecindex.Backend
	store    embedding.ObjectStore
}

// Option は Container 構築時のオプション
type Option func(*containerOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithEmbedder はカスタム Embedder を注入する
func WithEmbedder(embedder embedding.Embedder) Option {
	return func(o *containerOptions) {
		o.embedder = embedder
	}
}

// WithSource はコーパスソースを差し替える
func WithSource(source corpus.Source) Option {
	return func(o *containerOptions) {
		o.source = source
	}
}

// WithBackend はベクトル検索バックエンドを差し替える
func WithBackend(backend vecindex.Backend) Option {
	return func(o *containerOptions) {
		o.backend = backend
	}
}

// WithObjectStore はステージングの転送先を差し替える
func WithObjectStore(store embedding.ObjectStore) Option {
	return func(o *containerOptions) {
		o.store = store
	}
}

// New は設定からコンテナを生成する
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗しました: %w", err)
	}

	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		embedder = openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
	}

	// コーパスソース
	source := options.source
	if source == nil {
		var err error
		source, err = buildSource(cfg)
		if err != nil {
			return nil, err
		}
	}

	// バックエンドとステージング転送先
	backend := options.backend
	store := options.store
	if backend == nil {
		var err error
		backend, store, err = buildBackend(ctx, cfg, store, options.logger)
		if err != nil {
			return nil, err
		}
	}
	if store == nil {
		var err error
		store, err = localfs.NewStore(cfg.Storage.StagingDir)
		if err != nil {
			return nil, err
		}
	}

	sink := embedding.NewFileSink(
		filepath.Join(cfg.Storage.StagingDir, cfg.Storage.ObjectKey),
		cfg.OpenAI.EmbeddingDimension,
	)

	client, err := vecindex.NewClient(
		vecindex.ClientConfig{
			ModelName:       cfg.OpenAI.EmbeddingModel,
			Dimension:       cfg.OpenAI.EmbeddingDimension,
			Metric:          vecindex.MetricDotProduct,
			MachineType:     cfg.Vector.MachineType,
			MinReplicaCount: cfg.Vector.MinReplicaCount,
			MaxReplicaCount: cfg.Vector.MaxReplicaCount,
			BatchSize:       cfg.OpenAI.BatchSize,
			StagingKey:      cfg.Storage.ObjectKey,
		},
		backend,
		embedder,
		source,
		sink,
		store,
		vecindex.WithLogger(options.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("クライアントの構築に失敗しました: %w", err)
	}

	return &Container{
		Client:   client,
		Embedder: embedder,
		Source:   source,
		logger:   options.logger,
	}, nil
}

func buildSource(cfg *config.Config) (corpus.Source, error) {
	if cfg.Corpus.GitURL != "" {
		ref := cfg.Corpus.GitRef
		if ref == "" {
			ref = cfg.Git.DefaultBranch
		}
		return git.NewSource(cfg.Corpus.GitURL, ref, cfg.Git.CloneDir), nil
	}

	var opts []corpus.FileSourceOption
	if cfg.Corpus.MaxTokens > 0 {
		clipper, err := corpus.NewClipper(cfg.Corpus.TokenEncoding, cfg.Corpus.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("コーパスクリッパーの構築に失敗しました: %w", err)
		}
		opts = append(opts, corpus.WithClipper(clipper))
	}
	return corpus.NewFileSource(cfg.Corpus.Path, opts...), nil
}

func buildBackend(ctx context.Context, cfg *config.Config, store embedding.ObjectStore, logger *slog.Logger) (vecindex.Backend, embedding.ObjectStore, error) {
	switch cfg.Vector.Backend {
	case config.BackendMatching:
		var clientOpts []matching.ClientOption
		if cfg.Vector.Endpoint != "" {
			clientOpts = append(clientOpts, matching.WithBaseURL(cfg.Vector.Endpoint))
		}
		clientOpts = append(clientOpts, matching.WithClientLogger(logger))
		backend := matching.NewClient(cfg.Vector.ProjectID, cfg.Vector.Region, clientOpts...)

		if store == nil {
			s3Store, err := s3.NewStore(ctx, cfg.Storage.Bucket)
			if err != nil {
				return nil, nil, fmt.Errorf("オブジェクトストアの構築に失敗しました: %w", err)
			}
			store = s3Store
		}
		return backend, store, nil

	case config.BackendPgvector:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
			cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode,
		)
		backend, err := pgvector.NewStore(ctx, dsn, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("pgvectorバックエンドの構築に失敗しました: %w", err)
		}

		if store == nil {
			localStore, err := localfs.NewStore(cfg.Storage.StagingDir)
			if err != nil {
				return nil, nil, err
			}
			store = localStore
		}
		return backend, store, nil

	default:
		return nil, nil, fmt.Errorf("未知のバックエンドです: %q", cfg.Vector.Backend)
	}
}
