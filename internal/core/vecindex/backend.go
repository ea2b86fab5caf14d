package vecindex

import "context"

// IndexBackend はインデックスリソースに対する操作を抽象化するインターフェース
// テスト時にはスタブ実装に差し替える
type IndexBackend interface {
	// FindIndex は表示名が完全一致するインデックスを探す
	// 存在しない場合は (nil, nil) を返す
	FindIndex(ctx context.Context, displayName string) (*IndexHandle, error)

	// CreateIndex は空のインデックスリソースを作成する
	// 長時間実行オペレーションの完了まで待機する
	CreateIndex(ctx context.Context, spec IndexSpec) (*IndexHandle, error)

	// UpdateEmbeddings はステージング済みレコードのバルク取り込みを実行する
	// contentsURIはアップロード先のベースURI
	UpdateEmbeddings(ctx context.Context, index *IndexHandle, contentsURI string) error
}

// EndpointBackend はエンドポイントリソースに対する操作を抽象化するインターフェース
type EndpointBackend interface {
	// FindEndpoint は表示名が完全一致するエンドポイントを探す
	// 存在しない場合は (nil, nil) を返す
	FindEndpoint(ctx context.Context, displayName string) (*EndpointHandle, error)

	// DeployIndex はインデックスをサービングインフラへ配備し、エンドポイントを返す
	// 長時間実行オペレーションの完了まで待機する
	DeployIndex(ctx context.Context, index *IndexHandle, displayName string, spec DeploySpec) (*EndpointHandle, error)
}

// Matcher は配備済みエンドポイントへの近傍検索を抽象化するインターフェース
type Matcher interface {
	// Match はクエリベクトルごとに上位k件の近傍候補を返す
	// 戻り値の外側スライスはクエリと同じ順序
	Match(ctx context.Context, endpoint *EndpointHandle, deployedIndexID string, queries [][]float32, k int) ([][]Neighbor, error)
}

// Backend はベクトル検索バックエンドの全機能をまとめたインターフェース
type Backend interface {
	IndexBackend
	EndpointBackend
	Matcher
}
