package embedding

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record はステージングファイル上の1レコードを表す
// 各成分はサービス間の浮動小数点表現の揺れを避けるため10進文字列で保持する
type Record struct {
	ID        string   `json:"id"`
	Embedding []string `json:"embedding"`
}

// NewRecord は通し番号とベクトルからレコードを作成する
// 成分はstrconvの最短ラウンドトリップ表現（'g', 精度-1）で文字列化される
func NewRecord(id int, vector []float32) Record {
	components := make([]string, len(vector))
	for i, v := range vector {
		components[i] = strconv.FormatFloat(float64(v), 'g', -1, 32)
	}
	return Record{
		ID:        strconv.Itoa(id),
		Embedding: components,
	}
}

// Vector はレコードの成分文字列をfloat32ベクトルに復元する
func (r Record) Vector() ([]float32, error) {
	vector := make([]float32, len(r.Embedding))
	for i, s := range r.Embedding {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("failed to parse embedding component %d of record %s: %w", i, r.ID, err)
		}
		vector[i] = float32(v)
	}
	return vector, nil
}

// MarshalLine はレコードを1行分のJSONに変換する（末尾改行なし）
func (r Record) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record %s: %w", r.ID, err)
	}
	return data, nil
}

// ParseRecord は1行分のJSONをレコードに復元する
func ParseRecord(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, fmt.Errorf("failed to parse record line: %w", err)
	}
	return r, nil
}
