package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jinford/retriever/internal/core/corpus"
)

const (
	// DefaultBatchSize はバッチサイズ未指定時のデフォルト値
	DefaultBatchSize = 100
	// progressLogInterval は進捗ログを出力するバッチ間隔
	progressLogInterval = 500
)

// RecordWriter はエンコード済みレコードの書き込み先
type RecordWriter interface {
	WriteRecords(records []Record) error
}

// Batcher はコーパスを固定サイズのバッチでエンコードし、通し番号付きレコードを書き出す
// バッチiはpassages[i*B:(i+1)*B]を担当し、IDはバッチ境界をまたいで連続する
type Batcher struct {
	embedder  Embedder
	batchSize int
	logger    *slog.Logger
}

// NewBatcher は新しい Batcher を作成する
func NewBatcher(embedder Embedder, batchSize int, logger *slog.Logger) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	// バッチサイズをEmbedderの最大値でクリップ
	if max := embedder.MaxBatchSize(); max > 0 && batchSize > max {
		logger.Info("バッチサイズをEmbedderの最大値でクリップ", "configured", batchSize, "max", max)
		batchSize = max
	}
	return &Batcher{
		embedder:  embedder,
		batchSize: batchSize,
		logger:    logger,
	}
}

// NumBatches はN件のパッセージに対するバッチ数 ceil(N/B) を返す
func (b *Batcher) NumBatches(n int) int {
	return (n + b.batchSize - 1) / b.batchSize
}

// EncodeAll は全パッセージをバッチ単位でエンコードし、writerに書き出す
// Embedderの失敗はロード全体の失敗として伝播する
// 戻り値はエンコードされたパッセージの総数
func (b *Batcher) EncodeAll(ctx context.Context, passages []*corpus.Passage, writer RecordWriter) (int, error) {
	nBatch := b.NumBatches(len(passages))
	total := 0

	for i := 0; i < nBatch; i++ {
		start := i * b.batchSize
		end := start + b.batchSize
		if end > len(passages) {
			end = len(passages)
		}
		batch := passages[start:end]

		vectors, err := b.encodeBatch(ctx, batch)
		if err != nil {
			return total, fmt.Errorf("failed to encode batch %d: %w", i, err)
		}
		if len(vectors) != len(batch) {
			return total, fmt.Errorf("encoder returned %d vectors for batch %d, want %d", len(vectors), i, len(batch))
		}

		records := make([]Record, len(vectors))
		for j, vector := range vectors {
			records[j] = NewRecord(start+j, vector)
		}
		if err := writer.WriteRecords(records); err != nil {
			return total, fmt.Errorf("failed to stage batch %d: %w", i, err)
		}

		total += len(batch)
		if i%progressLogInterval == 0 && i > 0 {
			b.logger.Info("パッセージをエンコード中", "encoded", total, "batches", i)
		}
	}

	b.logger.Info("パッセージのエンコードが完了", "encoded", total, "batches", nBatch)
	return total, nil
}

// encodeBatch はコーパス専用エンコーダがあれば優先し、なければ汎用BatchEmbedを使う
func (b *Batcher) encodeBatch(ctx context.Context, batch []*corpus.Passage) ([][]float32, error) {
	if encoder, ok := b.embedder.(CorpusEncoder); ok {
		return encoder.EncodeCorpus(ctx, batch)
	}

	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.Text
	}
	return b.embedder.BatchEmbed(ctx, texts)
}
