package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_RoundTrip(t *testing.T) {
	original := []float32{0.1, -1.5, float32(math.Pi), 1e-7, 0}

	record := NewRecord(42, original)
	assert.Equal(t, "42", record.ID)
	require.Len(t, record.Embedding, len(original))

	// 最短ラウンドトリップ表現なので復元値はビット単位で一致する
	restored, err := record.Vector()
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestRecord_MarshalLineFormat(t *testing.T) {
	record := NewRecord(0, []float32{1, 2})

	line, err := record.MarshalLine()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"0","embedding":["1","2"]}`, string(line))
}

func TestParseRecord(t *testing.T) {
	record, err := ParseRecord([]byte(`{"id":"7","embedding":["0.5","-0.25"]}`))
	require.NoError(t, err)
	assert.Equal(t, "7", record.ID)

	vector, err := record.Vector()
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.25}, vector)
}

func TestParseRecord_InvalidComponent(t *testing.T) {
	record, err := ParseRecord([]byte(`{"id":"7","embedding":["abc"]}`))
	require.NoError(t, err)

	_, err = record.Vector()
	require.Error(t, err)
}
