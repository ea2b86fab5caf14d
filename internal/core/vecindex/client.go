package vecindex

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jinford/retriever/internal/core/corpus"
	"github.com/jinford/retriever/internal/core/embedding"
)

const (
	// DefaultMachineType はサービングマシンタイプのデフォルト値
	DefaultMachineType = "e2-standard-16"
	// DefaultStagingKey はステージングオブジェクトの固定キー
	DefaultStagingKey = "embeddings.json"
)

// ClientConfig はClientの構築時設定
// グローバル定数ではなく明示的な設定値として渡す
type ClientConfig struct {
	// ModelName はEmbeddingモデルの識別子（リソース名の導出元）
	ModelName string
	// Dimension はインデックスの次元数
	Dimension int
	// Metric は距離尺度（省略時は内積距離）
	Metric DistanceMetric
	// MachineType はサービングマシンタイプ
	MachineType string
	// MinReplicaCount / MaxReplicaCount はレプリカ数（省略時は1/1、オートスケールなし）
	MinReplicaCount int
	MaxReplicaCount int
	// BatchSize はエンコードバッチサイズ
	BatchSize int
	// StagingKey はバケット内のステージングオブジェクト名
	StagingKey string
}

func (c *ClientConfig) applyDefaults() {
	if c.Metric == "" {
		c.Metric = MetricDotProduct
	}
	if c.MachineType == "" {
		c.MachineType = DefaultMachineType
	}
	if c.MinReplicaCount <= 0 {
		c.MinReplicaCount = 1
	}
	if c.MaxReplicaCount <= 0 {
		c.MaxReplicaCount = 1
	}
	if c.StagingKey == "" {
		c.StagingKey = DefaultStagingKey
	}
}

// Client はマネージドベクトル検索の薄いクライアント
// インデックスとエンドポイントのハンドルは初回利用時に遅延束縛され、
// インスタンスの生存期間中メモ化される
type Client struct {
	cfg      ClientConfig
	backend  Backend
	embedder embedding.Embedder
	source   corpus.Source
	sink     *embedding.FileSink
	store    embedding.ObjectStore
	logger   *slog.Logger

	// mu は遅延プロビジョニングとDocMap構築を直列化する
	// リモート側の名前競合までは防げない（同名リソースの二重作成は起こりうる）
	mu            sync.Mutex
	indexState    State
	index         *IndexHandle
	endpointState State
	endpoint      *EndpointHandle
	docs          corpus.DocMap
}

type clientOptions struct {
	logger *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithLogger はロガーを差し替える
func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(
	cfg ClientConfig,
	backend Backend,
	embedder embedding.Embedder,
	source corpus.Source,
	sink *embedding.FileSink,
	store embedding.ObjectStore,
	opts ...ClientOption,
) (*Client, error) {
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive")
	}
	cfg.applyDefaults()

	options := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Client{
		cfg:      cfg,
		backend:  backend,
		embedder: embedder,
		source:   source,
		sink:     sink,
		store:    store,
		logger:   options.logger,
	}, nil
}

// IndexState は現在のインデックスプロビジョニング状態を返す
func (c *Client) IndexState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexState
}

// EndpointState は現在のエンドポイントプロビジョニング状態を返す
func (c *Client) EndpointState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpointState
}

// LoadIndex はインデックスハンドルを確保する
// 既に束縛済みなら何もしない。リモートに同名インデックスがあれば束縛のみ行い、
// なければ作成してコーパス全体のエンコード・ステージング・バルク取り込みを実行する
func (c *Client) LoadIndex(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadIndexLocked(ctx)
}

func (c *Client) loadIndexLocked(ctx context.Context) error {
	if c.indexState == StateReady {
		return nil
	}

	displayName := IndexDisplayName(c.cfg.ModelName)

	handle, err := c.backend.FindIndex(ctx, displayName)
	if err != nil {
		return fmt.Errorf("failed to check index existence: %w", err)
	}
	if handle != nil {
		// 表示名の一致のみで束縛する。次元数やコーパス内容の検証は行わない
		c.index = handle
		c.indexState = StateReady
		c.logger.Info("既存のインデックスに束縛",
			"displayName", handle.DisplayName,
			"resourceName", handle.ResourceName,
		)
		return nil
	}

	if err := c.createIndexLocked(ctx, displayName); err != nil {
		c.indexState = StateUnchecked
		return err
	}
	return nil
}

// createIndexLocked は空のインデックスを作成し、コーパスを投入する
func (c *Client) createIndexLocked(ctx context.Context, displayName string) error {
	c.indexState = StateCreating
	c.logger.Info("インデックスを作成", "displayName", displayName)

	handle, err := c.backend.CreateIndex(ctx, IndexSpec{
		DisplayName:  displayName,
		Dimension:    c.cfg.Dimension,
		Metric:       c.cfg.Metric,
		ShardSize:    ShardSizeSmall,
		UpdateMethod: UpdateMethodStream,
	})
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	c.logger.Info("インデックスを作成完了",
		"displayName", handle.DisplayName,
		"resourceName", handle.ResourceName,
	)

	passages, err := c.loadCorpusLocked(ctx)
	if err != nil {
		return err
	}

	// 前回のロードの残骸が混入しないようステージングを空にしてから書き出す
	if err := c.sink.Reset(); err != nil {
		return fmt.Errorf("failed to reset staging file: %w", err)
	}

	batcher := embedding.NewBatcher(c.embedder, c.cfg.BatchSize, c.logger)
	total, err := batcher.EncodeAll(ctx, passages, c.sink)
	if err != nil {
		return fmt.Errorf("failed to encode corpus: %w", err)
	}

	c.logger.Info("ステージングファイルをアップロード",
		"key", c.cfg.StagingKey,
		"destination", c.store.BaseURI(),
		"records", total,
	)
	if err := c.sink.Upload(ctx, c.store, c.cfg.StagingKey); err != nil {
		return err
	}

	if err := c.backend.UpdateEmbeddings(ctx, handle, c.store.BaseURI()); err != nil {
		return fmt.Errorf("failed to bulk-update index contents: %w", err)
	}

	c.index = handle
	c.indexState = StateReady
	return nil
}

// LoadEndpoint はエンドポイントハンドルを確保する
// インデックスが未束縛なら先にLoadIndex相当の処理を行う
func (c *Client) LoadEndpoint(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadEndpointLocked(ctx)
}

func (c *Client) loadEndpointLocked(ctx context.Context) error {
	if c.endpointState == StateReady {
		return nil
	}

	if err := c.loadIndexLocked(ctx); err != nil {
		return err
	}

	displayName := EndpointDisplayName(c.cfg.ModelName)

	handle, err := c.backend.FindEndpoint(ctx, displayName)
	if err != nil {
		return fmt.Errorf("failed to check endpoint existence: %w", err)
	}
	if handle != nil {
		c.endpoint = handle
		c.endpointState = StateReady
		c.logger.Info("既存のエンドポイントに束縛",
			"displayName", handle.DisplayName,
			"resourceName", handle.ResourceName,
		)
		return nil
	}

	c.endpointState = StateCreating
	c.logger.Info("インデックスをエンドポイントへ配備",
		"index", c.index.DisplayName,
		"endpoint", displayName,
	)

	// 配備は長時間実行オペレーション。完了待ちはバックエンド実装に委ねる
	handle, err = c.backend.DeployIndex(ctx, c.index, displayName, DeploySpec{
		DeployedIndexID: c.index.DisplayName,
		MachineType:     c.cfg.MachineType,
		MinReplicaCount: c.cfg.MinReplicaCount,
		MaxReplicaCount: c.cfg.MaxReplicaCount,
	})
	if err != nil {
		c.endpointState = StateUnchecked
		return fmt.Errorf("failed to deploy index: %w", err)
	}

	c.endpoint = handle
	c.endpointState = StateReady
	c.logger.Info("配備完了",
		"index", c.index.DisplayName,
		"endpoint", handle.DisplayName,
	)
	return nil
}

// Search は先頭クエリの上位topk件に対応するパッセージをランク順で返す
// エンドポイントが未束縛なら先にLoadEndpoint相当の処理を行う
func (c *Client) Search(ctx context.Context, queryEmbeddings [][]float32, topk int) ([]*corpus.Passage, error) {
	if len(queryEmbeddings) == 0 {
		return nil, fmt.Errorf("at least one query embedding is required")
	}
	if topk <= 0 {
		return nil, fmt.Errorf("topk must be positive")
	}

	c.mu.Lock()
	if err := c.loadEndpointLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if err := c.ensureDocMapLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	endpoint := c.endpoint
	deployedIndexID := c.index.DisplayName
	docs := c.docs
	c.mu.Unlock()

	neighbors, err := c.backend.Match(ctx, endpoint, deployedIndexID, queryEmbeddings, topk)
	if err != nil {
		return nil, fmt.Errorf("match request failed: %w", err)
	}
	if len(neighbors) == 0 {
		return nil, nil
	}

	ranked := rankNeighbors(c.cfg.Metric, neighbors[0])

	passages := make([]*corpus.Passage, 0, len(ranked))
	for _, n := range ranked {
		p, err := docs.Resolve(n.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve neighbor id %q: %w", n.ID, err)
		}
		passages = append(passages, p)
	}
	return passages, nil
}

// ensureDocMapLocked はDocMapを必要になった時点で構築する
// インデックスが既存でコーパス投入をスキップした場合でも検索時のID解決を可能にする
func (c *Client) ensureDocMapLocked(ctx context.Context) error {
	if c.docs != nil {
		return nil
	}
	if _, err := c.loadCorpusLocked(ctx); err != nil {
		return err
	}
	return nil
}

// loadCorpusLocked はコーパスを読み込み、DocMapを作り直す
func (c *Client) loadCorpusLocked(ctx context.Context) ([]*corpus.Passage, error) {
	passages, err := c.source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus %s: %w", c.source.Name(), err)
	}
	c.docs = corpus.BuildDocMap(passages)
	c.logger.Info("コーパスを読み込み", "source", c.source.Name(), "passages", len(passages))
	return passages, nil
}

// rankNeighbors は距離尺度の規約に従って候補を並べ替えた複製を返す
// 内積距離は値が大きいほど類似のため降順、それ以外は昇順
func rankNeighbors(metric DistanceMetric, neighbors []Neighbor) []Neighbor {
	ranked := make([]Neighbor, len(neighbors))
	copy(ranked, neighbors)

	if metric.HigherIsCloser() {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Distance > ranked[j].Distance
		})
	} else {
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].Distance < ranked[j].Distance
		})
	}
	return ranked
}
