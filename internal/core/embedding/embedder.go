package embedding

import (
	"context"

	"github.com/jinford/retriever/internal/core/corpus"
)

// Embedder はテキストをベクトル表現に変換するインターフェース
type Embedder interface {
	// BatchEmbed は複数テキストのEmbeddingをまとめて生成する
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension はEmbeddingベクトルの次元数を返す
	Dimension() int

	// ModelName はモデル名を返す
	ModelName() string

	// MaxBatchSize は1回のAPI呼び出しで処理できる最大件数を返す
	MaxBatchSize() int
}

// CorpusEncoder はコーパス専用のエンコード手段を持つEmbedderが実装する任意インターフェース
// 実装がある場合、Batcherは汎用のBatchEmbedより優先して使用する
type CorpusEncoder interface {
	// EncodeCorpus はパッセージ一式をコーパス向けの前処理込みでエンコードする
	EncodeCorpus(ctx context.Context, passages []*corpus.Passage) ([][]float32, error)
}
