package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/jinford/retriever/internal/core/vecindex"
)

const (
	// defaultPollInterval はオペレーション完了待ちの初期間隔
	defaultPollInterval = 1 * time.Second
	// defaultPollCap はバックオフ間隔の上限
	defaultPollCap = 30 * time.Second
	// defaultPollTimeout はオペレーション完了待ちの総時間上限
	// インデックス作成と配備はどちらも数十分かかりうる
	defaultPollTimeout = 90 * time.Minute
)

// Client はマネージドベクトル検索サービスのREST APIクライアント
// vecindex.Backend を実装する
type Client struct {
	httpClient   *http.Client
	baseURL      string
	parent       string
	token        string
	logger       *slog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type clientOptions struct {
	httpClient   *http.Client
	baseURL      string
	token        string
	logger       *slog.Logger
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// ClientOption は Client のオプション設定
type ClientOption func(*clientOptions)

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *clientOptions) {
		o.httpClient = c
	}
}

// WithBaseURL はAPIエンドポイントを上書きする（テスト用途含む）
func WithBaseURL(baseURL string) ClientOption {
	return func(o *clientOptions) {
		o.baseURL = baseURL
	}
}

// WithToken はBearerトークンを設定する
func WithToken(token string) ClientOption {
	return func(o *clientOptions) {
		o.token = token
	}
}

// WithClientLogger はロガーを差し替える
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

// WithPollInterval はオペレーション完了待ちの初期間隔を上書きする
func WithPollInterval(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.pollInterval = d
	}
}

// WithPollTimeout はオペレーション完了待ちの総時間上限を上書きする
func WithPollTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.pollTimeout = d
	}
}

// NewClient は新しい Client を作成する
func NewClient(projectID, region string, opts ...ClientOption) *Client {
	options := clientOptions{
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		logger:       slog.Default(),
		pollInterval: defaultPollInterval,
		pollTimeout:  defaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.baseURL == "" {
		options.baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1", region)
	}

	return &Client{
		httpClient:   options.httpClient,
		baseURL:      options.baseURL,
		parent:       fmt.Sprintf("projects/%s/locations/%s", projectID, region),
		token:        options.token,
		logger:       options.logger,
		pollInterval: options.pollInterval,
		pollTimeout:  options.pollTimeout,
	}
}

// FindIndex は表示名が完全一致するインデックスを探す
func (c *Client) FindIndex(ctx context.Context, displayName string) (*vecindex.IndexHandle, error) {
	query := url.Values{}
	query.Set("filter", fmt.Sprintf("display_name=%q", displayName))

	var resp indexListResponse
	path := fmt.Sprintf("%s/indexes?%s", c.parent, query.Encode())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list indexes: %w", err)
	}

	for _, idx := range resp.Indexes {
		if idx.DisplayName == displayName {
			return &vecindex.IndexHandle{
				ResourceName: idx.Name,
				DisplayName:  idx.DisplayName,
			}, nil
		}
	}
	return nil, nil
}

// CreateIndex は空のインデックスを作成し、オペレーション完了まで待機する
func (c *Client) CreateIndex(ctx context.Context, spec vecindex.IndexSpec) (*vecindex.IndexHandle, error) {
	req := indexResource{
		DisplayName: spec.DisplayName,
		Metadata: &indexMetadata{
			Config: &indexConfig{
				Dimensions:          spec.Dimension,
				DistanceMeasureType: string(spec.Metric),
				ShardSize:           spec.ShardSize,
			},
		},
		IndexUpdateMethod: spec.UpdateMethod,
	}

	var op operation
	path := fmt.Sprintf("%s/indexes", c.parent)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &op); err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	result, err := c.awaitOperation(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("index creation did not complete: %w", err)
	}

	var created indexResource
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created index: %w", err)
	}

	return &vecindex.IndexHandle{
		ResourceName: created.Name,
		DisplayName:  spec.DisplayName,
	}, nil
}

// UpdateEmbeddings はステージング先URIからのバルク取り込みを実行する
func (c *Client) UpdateEmbeddings(ctx context.Context, index *vecindex.IndexHandle, contentsURI string) error {
	req := updateEmbeddingsRequest{ContentsDeltaURI: contentsURI}

	var op operation
	path := fmt.Sprintf("%s:updateEmbeddings", index.ResourceName)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &op); err != nil {
		return fmt.Errorf("failed to request embeddings update: %w", err)
	}

	if _, err := c.awaitOperation(ctx, op); err != nil {
		return fmt.Errorf("embeddings update did not complete: %w", err)
	}
	return nil
}

// FindEndpoint は表示名が完全一致するエンドポイントを探す
func (c *Client) FindEndpoint(ctx context.Context, displayName string) (*vecindex.EndpointHandle, error) {
	query := url.Values{}
	query.Set("filter", fmt.Sprintf("display_name=%q", displayName))

	var resp endpointListResponse
	path := fmt.Sprintf("%s/indexEndpoints?%s", c.parent, query.Encode())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}

	for _, ep := range resp.IndexEndpoints {
		if ep.DisplayName == displayName {
			return &vecindex.EndpointHandle{
				ResourceName: ep.Name,
				DisplayName:  ep.DisplayName,
			}, nil
		}
	}
	return nil, nil
}

// DeployIndex はエンドポイントを作成し、インデックスを配備する
// どちらも長時間実行オペレーションで、完了まで待機する
func (c *Client) DeployIndex(ctx context.Context, index *vecindex.IndexHandle, displayName string, spec vecindex.DeploySpec) (*vecindex.EndpointHandle, error) {
	var createOp operation
	path := fmt.Sprintf("%s/indexEndpoints", c.parent)
	if err := c.doJSON(ctx, http.MethodPost, path, endpointResource{DisplayName: displayName}, &createOp); err != nil {
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}

	result, err := c.awaitOperation(ctx, createOp)
	if err != nil {
		return nil, fmt.Errorf("endpoint creation did not complete: %w", err)
	}

	var created endpointResource
	if err := json.Unmarshal(result, &created); err != nil {
		return nil, fmt.Errorf("failed to parse created endpoint: %w", err)
	}

	deployReq := deployIndexRequest{
		DeployedIndex: deployedIndex{
			ID:          spec.DeployedIndexID,
			Index:       index.ResourceName,
			DisplayName: spec.DeployedIndexID,
			DedicatedResources: &dedicatedResources{
				MachineSpec:     machineSpec{MachineType: spec.MachineType},
				MinReplicaCount: spec.MinReplicaCount,
				MaxReplicaCount: spec.MaxReplicaCount,
			},
		},
	}

	var deployOp operation
	path = fmt.Sprintf("%s:deployIndex", created.Name)
	if err := c.doJSON(ctx, http.MethodPost, path, deployReq, &deployOp); err != nil {
		return nil, fmt.Errorf("failed to deploy index: %w", err)
	}

	if _, err := c.awaitOperation(ctx, deployOp); err != nil {
		return nil, fmt.Errorf("index deployment did not complete: %w", err)
	}

	return &vecindex.EndpointHandle{
		ResourceName: created.Name,
		DisplayName:  displayName,
	}, nil
}

// Match はクエリベクトルごとに上位k件の近傍候補を返す
func (c *Client) Match(ctx context.Context, endpoint *vecindex.EndpointHandle, deployedIndexID string, queries [][]float32, k int) ([][]vecindex.Neighbor, error) {
	req := findNeighborsRequest{
		DeployedIndexID: deployedIndexID,
		Queries:         make([]neighborQuery, len(queries)),
	}
	for i, q := range queries {
		req.Queries[i] = neighborQuery{
			Datapoint:     datapoint{FeatureVector: q},
			NeighborCount: k,
		}
	}

	var resp findNeighborsResponse
	path := fmt.Sprintf("%s:findNeighbors", endpoint.ResourceName)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("failed to find neighbors: %w", err)
	}

	results := make([][]vecindex.Neighbor, len(resp.NearestNeighbors))
	for i, nn := range resp.NearestNeighbors {
		neighbors := make([]vecindex.Neighbor, len(nn.Neighbors))
		for j, n := range nn.Neighbors {
			neighbors[j] = vecindex.Neighbor{
				ID:       n.Datapoint.DatapointID,
				Distance: n.Distance,
			}
		}
		results[i] = neighbors
	}
	return results, nil
}

// errOperationPending はオペレーションが未完了であることを示す内部エラー
var errOperationPending = fmt.Errorf("operation still running")

// awaitOperation はオペレーションが完了するまでFibonacciバックオフでポーリングする
// 完了時はresponseフィールドを返す。オペレーション自体の失敗は即時に返す
func (c *Client) awaitOperation(ctx context.Context, op operation) (json.RawMessage, error) {
	if op.Done {
		return c.operationResult(op)
	}

	c.logger.Info("オペレーションの完了を待機", "operation", op.Name)

	var latest operation
	backoff := retry.NewFibonacci(c.pollInterval)
	backoff = retry.WithCappedDuration(defaultPollCap, backoff)
	backoff = retry.WithMaxDuration(c.pollTimeout, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		latest = operation{}
		if err := c.doJSON(ctx, http.MethodGet, op.Name, nil, &latest); err != nil {
			// ポーリング中の一時的な失敗はリトライ対象
			return retry.RetryableError(err)
		}
		if !latest.Done {
			return retry.RetryableError(errOperationPending)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return c.operationResult(latest)
}

func (c *Client) operationResult(op operation) (json.RawMessage, error) {
	if op.Error != nil {
		return nil, fmt.Errorf("operation %s failed: %s (code %d)", op.Name, op.Error.Message, op.Error.Code)
	}
	return op.Response, nil
}

// doJSON はJSONリクエストを送り、JSONレスポンスをoutへデコードする
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// インターフェース実装の確認
var _ vecindex.Backend = (*Client)(nil)
