package vecindex

// State はリソースハンドルの遅延プロビジョニング状態
type State int

const (
	// StateUnchecked はリモートの存在確認前の初期状態
	StateUnchecked State = iota
	// StateCreating はリモートリソースの作成・投入中の状態
	StateCreating
	// StateReady はハンドルが束縛され利用可能な状態
	StateReady
)

// String は状態の文字列表現を返す
func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StateCreating:
		return "creating"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// DistanceMetric はインデックスの距離尺度
type DistanceMetric string

const (
	// MetricDotProduct は内積距離（値が大きいほど類似）
	MetricDotProduct DistanceMetric = "DOT_PRODUCT_DISTANCE"
	// MetricSquaredL2 は二乗ユークリッド距離（値が小さいほど類似）
	MetricSquaredL2 DistanceMetric = "SQUARED_L2_DISTANCE"
	// MetricCosine はコサイン距離（値が小さいほど類似）
	MetricCosine DistanceMetric = "COSINE_DISTANCE"
)

// HigherIsCloser は距離値が大きいほど類似とみなす尺度かどうかを返す
// 内積距離は類似度をそのまま報告するため降順、真の距離尺度は昇順でランク付けする
func (m DistanceMetric) HigherIsCloser() bool {
	return m == MetricDotProduct
}

const (
	// ShardSizeSmall は小規模シャード構成
	ShardSizeSmall = "SHARD_SIZE_SMALL"
	// UpdateMethodStream はストリーミング更新モード
	UpdateMethodStream = "STREAM_UPDATE"
)

// IndexSpec は空のANNインデックスリソースの作成仕様
type IndexSpec struct {
	DisplayName  string
	Dimension    int
	Metric       DistanceMetric
	ShardSize    string
	UpdateMethod string
}

// DeploySpec はインデックスのサービングインフラへの配備仕様
type DeploySpec struct {
	DeployedIndexID string
	MachineType     string
	MinReplicaCount int
	MaxReplicaCount int
}

// IndexHandle はリモートに存在するインデックスリソースへの束縛
type IndexHandle struct {
	// ResourceName はサービス側で採番される完全修飾リソース名
	ResourceName string
	// DisplayName は表示名（存在確認のキー）
	DisplayName string
}

// EndpointHandle はリモートに存在するエンドポイントリソースへの束縛
type EndpointHandle struct {
	ResourceName string
	DisplayName  string
}

// Neighbor は近傍検索の1候補
type Neighbor struct {
	// ID はデータポイントID（パッセージの通し番号の10進文字列）
	ID string
	// Distance はバックエンドが報告する距離値（尺度の規約はMetricに依存）
	Distance float64
}
