package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jinford/retriever/internal/core/embedding"
)

// Store はステージングファイルをローカルディレクトリへ複製するObjectStore実装
// pgvectorバックエンドのバルク取り込み元として使う
type Store struct {
	dir string
}

// NewStore は新しい Store を作成する
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Upload はオブジェクトを指定キーで書き込む（同名ファイルは上書き）
func (s *Store) Upload(ctx context.Context, key string, body io.Reader) error {
	path := filepath.Join(s.dir, filepath.Base(key))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create staging object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return fmt.Errorf("failed to write staging object: %w", err)
	}
	return nil
}

// BaseURI はバルク取り込み元ディレクトリのURIを返す
func (s *Store) BaseURI() string {
	return "file://" + s.dir
}

// インターフェース実装の確認
var _ embedding.ObjectStore = (*Store)(nil)
