package pgvector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/jinford/retriever/internal/core/embedding"
	"github.com/jinford/retriever/internal/core/vecindex"
)

// Store はPostgres + pgvectorを使ったローカルのvecindex.Backend実装
// マネージドサービスなしで開発・結合検証を行うための代替バックエンド
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore は接続プールを作成し、スキーマを初期化する
func NewStore(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	s := NewStoreWithPool(pool, logger)
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool は既存の接続プールから Store を作成する
func NewStoreWithPool(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Close は接続プールを閉じる
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS vector_indexes (
			resource_name TEXT PRIMARY KEY,
			display_name  TEXT NOT NULL UNIQUE,
			dimension     INT  NOT NULL,
			metric        TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS vector_endpoints (
			resource_name  TEXT PRIMARY KEY,
			display_name   TEXT NOT NULL UNIQUE,
			deployed_index TEXT NOT NULL REFERENCES vector_indexes(resource_name),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS vector_datapoints (
			index_name   TEXT NOT NULL REFERENCES vector_indexes(resource_name),
			datapoint_id TEXT NOT NULL,
			embedding    VECTOR NOT NULL,
			PRIMARY KEY (index_name, datapoint_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// FindIndex は表示名が完全一致するインデックスを探す
func (s *Store) FindIndex(ctx context.Context, displayName string) (*vecindex.IndexHandle, error) {
	var handle vecindex.IndexHandle
	err := s.pool.QueryRow(ctx,
		`SELECT resource_name, display_name FROM vector_indexes WHERE display_name = $1`,
		displayName,
	).Scan(&handle.ResourceName, &handle.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find index: %w", err)
	}
	return &handle, nil
}

// CreateIndex はインデックスのメタデータ行を作成する
// 表示名単位のアドバイザリロックで並行作成を直列化する
func (s *Store) CreateIndex(ctx context.Context, spec vecindex.IndexSpec) (*vecindex.IndexHandle, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := acquireProvisionLock(ctx, tx, "index", spec.DisplayName); err != nil {
		return nil, err
	}

	// ロック取得までの間に他プロセスが作成済みの可能性があるため再確認する
	var existing vecindex.IndexHandle
	err = tx.QueryRow(ctx,
		`SELECT resource_name, display_name FROM vector_indexes WHERE display_name = $1`,
		spec.DisplayName,
	).Scan(&existing.ResourceName, &existing.DisplayName)
	if err == nil {
		return &existing, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check index existence: %w", err)
	}

	resourceName := "local/indexes/" + uuid.NewString()
	_, err = tx.Exec(ctx,
		`INSERT INTO vector_indexes (resource_name, display_name, dimension, metric) VALUES ($1, $2, $3, $4)`,
		resourceName, spec.DisplayName, spec.Dimension, string(spec.Metric),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &vecindex.IndexHandle{
		ResourceName: resourceName,
		DisplayName:  spec.DisplayName,
	}, nil
}

// UpdateEmbeddings はステージングディレクトリのレコードを一括投入する
// 既存のデータポイントは入れ替える
func (s *Store) UpdateEmbeddings(ctx context.Context, index *vecindex.IndexHandle, contentsURI string) error {
	dir := strings.TrimPrefix(contentsURI, "file://")

	records, err := readStagedRecords(dir)
	if err != nil {
		return err
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		vector, err := r.Vector()
		if err != nil {
			return err
		}
		rows = append(rows, []any{index.ResourceName, r.ID, pgvec.NewVector(vector)})
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM vector_datapoints WHERE index_name = $1`, index.ResourceName); err != nil {
		return fmt.Errorf("failed to clear datapoints: %w", err)
	}

	inserted, err := tx.CopyFrom(ctx,
		pgx.Identifier{"vector_datapoints"},
		[]string{"index_name", "datapoint_id", "embedding"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy datapoints: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("データポイントを投入", "index", index.DisplayName, "count", inserted)
	return nil
}

// FindEndpoint は表示名が完全一致するエンドポイントを探す
func (s *Store) FindEndpoint(ctx context.Context, displayName string) (*vecindex.EndpointHandle, error) {
	var handle vecindex.EndpointHandle
	err := s.pool.QueryRow(ctx,
		`SELECT resource_name, display_name FROM vector_endpoints WHERE display_name = $1`,
		displayName,
	).Scan(&handle.ResourceName, &handle.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find endpoint: %w", err)
	}
	return &handle, nil
}

// DeployIndex はエンドポイント行を作成してインデックスに紐付ける
// ローカルバックエンドのためマシンタイプとレプリカ数は記録しない
func (s *Store) DeployIndex(ctx context.Context, index *vecindex.IndexHandle, displayName string, spec vecindex.DeploySpec) (*vecindex.EndpointHandle, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := acquireProvisionLock(ctx, tx, "endpoint", displayName); err != nil {
		return nil, err
	}

	var existing vecindex.EndpointHandle
	err = tx.QueryRow(ctx,
		`SELECT resource_name, display_name FROM vector_endpoints WHERE display_name = $1`,
		displayName,
	).Scan(&existing.ResourceName, &existing.DisplayName)
	if err == nil {
		return &existing, tx.Commit(ctx)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to check endpoint existence: %w", err)
	}

	resourceName := "local/indexEndpoints/" + uuid.NewString()
	_, err = tx.Exec(ctx,
		`INSERT INTO vector_endpoints (resource_name, display_name, deployed_index) VALUES ($1, $2, $3)`,
		resourceName, displayName, index.ResourceName,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy index: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &vecindex.EndpointHandle{
		ResourceName: resourceName,
		DisplayName:  displayName,
	}, nil
}

// Match はpgvectorの距離演算子で上位k件を検索する
func (s *Store) Match(ctx context.Context, endpoint *vecindex.EndpointHandle, deployedIndexID string, queries [][]float32, k int) ([][]vecindex.Neighbor, error) {
	var indexName, metric string
	err := s.pool.QueryRow(ctx,
		`SELECT i.resource_name, i.metric
		 FROM vector_endpoints e
		 JOIN vector_indexes i ON e.deployed_index = i.resource_name
		 WHERE e.resource_name = $1`,
		endpoint.ResourceName,
	).Scan(&indexName, &metric)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deployed index: %w", err)
	}

	operator, negate := distanceOperator(vecindex.DistanceMetric(metric))

	results := make([][]vecindex.Neighbor, len(queries))
	for i, q := range queries {
		query := fmt.Sprintf(
			`SELECT datapoint_id, embedding %s $1 AS dist
			 FROM vector_datapoints
			 WHERE index_name = $2
			 ORDER BY dist
			 LIMIT $3`,
			operator,
		)

		rows, err := s.pool.Query(ctx, query, pgvec.NewVector(q), indexName, k)
		if err != nil {
			return nil, fmt.Errorf("failed to query neighbors: %w", err)
		}

		var neighbors []vecindex.Neighbor
		for rows.Next() {
			var n vecindex.Neighbor
			if err := rows.Scan(&n.ID, &n.Distance); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan neighbor: %w", err)
			}
			if negate {
				// <#> は負の内積を返すため、報告値は内積そのものに直す
				n.Distance = -n.Distance
			}
			neighbors = append(neighbors, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read neighbors: %w", err)
		}

		results[i] = neighbors
	}
	return results, nil
}

// distanceOperator は距離尺度に対応するpgvectorの演算子を返す
// 戻り値negateは演算子の出力を符号反転して報告すべきかどうか
func distanceOperator(metric vecindex.DistanceMetric) (operator string, negate bool) {
	switch metric {
	case vecindex.MetricDotProduct:
		return "<#>", true
	case vecindex.MetricCosine:
		return "<=>", false
	default:
		return "<->", false
	}
}

// readStagedRecords はディレクトリ内の全ステージングファイルをパースする
func readStagedRecords(dir string) ([]embedding.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging dir: %w", err)
	}

	var records []embedding.Record
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to open staged file: %w", err)
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			r, err := embedding.ParseRecord(line)
			if err != nil {
				f.Close()
				return nil, err
			}
			records = append(records, r)
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read staged file: %w", err)
		}
		f.Close()
	}
	return records, nil
}

// インターフェース実装の確認
var _ vecindex.Backend = (*Store)(nil)
