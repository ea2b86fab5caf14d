package embedding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/retriever/internal/core/corpus"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubEmbedder はテキストごとに決め打ちの1次元ベクトルを返す
type stubEmbedder struct {
	batchSizes []int
	failAt     int // 何回目の呼び出しで失敗するか（0で無効）
	calls      int
}

func (e *stubEmbedder) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.failAt > 0 && e.calls == e.failAt {
		return nil, fmt.Errorf("encoder exploded")
	}
	e.batchSizes = append(e.batchSizes, len(texts))
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{float32(len(texts[i]))}
	}
	return vectors, nil
}

func (e *stubEmbedder) Dimension() int    { return 1 }
func (e *stubEmbedder) ModelName() string { return "stub-model" }
func (e *stubEmbedder) MaxBatchSize() int { return 0 }

// corpusStubEmbedder はEncodeCorpusを持つstubEmbedder
type corpusStubEmbedder struct {
	stubEmbedder
	corpusCalls int
}

func (e *corpusStubEmbedder) EncodeCorpus(ctx context.Context, passages []*corpus.Passage) ([][]float32, error) {
	e.corpusCalls++
	e.batchSizes = append(e.batchSizes, len(passages))
	vectors := make([][]float32, len(passages))
	for i := range passages {
		vectors[i] = []float32{1}
	}
	return vectors, nil
}

// memoryWriter はレコードをメモリに貯めるRecordWriter
type memoryWriter struct {
	records []Record
}

func (w *memoryWriter) WriteRecords(records []Record) error {
	w.records = append(w.records, records...)
	return nil
}

func makePassages(n int) []*corpus.Passage {
	passages := make([]*corpus.Passage, n)
	for i := range passages {
		passages[i] = &corpus.Passage{ID: i, Text: "passage"}
	}
	return passages
}

func TestBatcher_BatchSizesAndContiguousIDs(t *testing.T) {
	embedder := &stubEmbedder{}
	writer := &memoryWriter{}
	batcher := NewBatcher(embedder, 4, discardLogger())

	// 10件をバッチサイズ4で処理 → [4,4,2]
	total, err := batcher.EncodeAll(context.Background(), makePassages(10), writer)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, []int{4, 4, 2}, embedder.batchSizes)
	assert.Equal(t, 3, batcher.NumBatches(10))

	// IDは[0,10)の連番でバッチ境界をまたいで連続する
	require.Len(t, writer.records, 10)
	for i, r := range writer.records {
		assert.Equal(t, strconv.Itoa(i), r.ID)
	}
}

func TestBatcher_ExactMultipleOfBatchSize(t *testing.T) {
	embedder := &stubEmbedder{}
	writer := &memoryWriter{}
	batcher := NewBatcher(embedder, 5, discardLogger())

	total, err := batcher.EncodeAll(context.Background(), makePassages(10), writer)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	assert.Equal(t, []int{5, 5}, embedder.batchSizes)
}

func TestBatcher_PrefersCorpusEncoder(t *testing.T) {
	embedder := &corpusStubEmbedder{}
	writer := &memoryWriter{}
	batcher := NewBatcher(embedder, 3, discardLogger())

	_, err := batcher.EncodeAll(context.Background(), makePassages(6), writer)
	require.NoError(t, err)

	assert.Equal(t, 2, embedder.corpusCalls)
	assert.Equal(t, 0, embedder.calls, "汎用BatchEmbedは呼ばれない")
}

func TestBatcher_EncoderFailureAborts(t *testing.T) {
	embedder := &stubEmbedder{failAt: 2}
	writer := &memoryWriter{}
	batcher := NewBatcher(embedder, 2, discardLogger())

	_, err := batcher.EncodeAll(context.Background(), makePassages(6), writer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch 1")

	// 失敗バッチ以降は書き込まれない
	assert.Len(t, writer.records, 2)
}

func TestBatcher_EmptyCorpus(t *testing.T) {
	embedder := &stubEmbedder{}
	writer := &memoryWriter{}
	batcher := NewBatcher(embedder, 4, discardLogger())

	total, err := batcher.EncodeAll(context.Background(), nil, writer)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, writer.records)
}

// cappedEmbedder はMaxBatchSizeが設定よりも小さいEmbedder
type cappedEmbedder struct {
	stubEmbedder
}

func (e *cappedEmbedder) MaxBatchSize() int { return 2 }

func TestBatcher_ClipsBatchSizeToEmbedderMax(t *testing.T) {
	embedder := &cappedEmbedder{}
	writer := &memoryWriter{}
	batcher := NewBatcher(embedder, 100, discardLogger())

	_, err := batcher.EncodeAll(context.Background(), makePassages(5), writer)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, embedder.batchSizes)
}
