package corpus

import (
	"context"
	"errors"
	"strconv"
)

// ErrPassageNotFound は検索結果のIDがDocMapに存在しない場合のエラー
var ErrPassageNotFound = errors.New("passage not found in doc map")

// Passage は検索対象となるパッセージ（文書単位）を表す
// IDは読み込み時に入力順で採番される0始まりの通し番号
type Passage struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Source はコーパスの読み込み元を抽象化するインターフェース
// JSONLファイル、Gitリポジトリなど複数のソースタイプに対応するための拡張ポイント
type Source interface {
	// Name はソースの識別名を返す
	Name() string

	// Load はパッセージ一覧を入力順で返す
	// IDは0始まりの連番で採番済みであること
	Load(ctx context.Context) ([]*Passage, error)
}

// DocMap は通し番号（10進文字列）からパッセージへの対応表
// コーパスを読み込むたびに作り直す（マージはしない）
type DocMap map[string]*Passage

// BuildDocMap はパッセージ一覧からDocMapを構築する
func BuildDocMap(passages []*Passage) DocMap {
	m := make(DocMap, len(passages))
	for _, p := range passages {
		m[strconv.Itoa(p.ID)] = p
	}
	return m
}

// Resolve はIDに対応するパッセージを返す
func (m DocMap) Resolve(id string) (*Passage, error) {
	p, ok := m[id]
	if !ok {
		return nil, ErrPassageNotFound
	}
	return p, nil
}
