package embedding

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrDimensionMismatch はレコードの次元数が設定と一致しない場合のエラー
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ObjectStore はステージングファイルのアップロード先を抽象化するインターフェース
type ObjectStore interface {
	// Upload はオブジェクトを指定キーでアップロードする（同名オブジェクトは上書き）
	Upload(ctx context.Context, key string, body io.Reader) error

	// BaseURI はバルク取り込み元として指定するベースURIを返す
	BaseURI() string
}

// FileSink は(id, embedding)レコードをローカルのステージングファイルに追記する
// 1回のロード中に追記を重ねる前提であり、途中で切り詰めることはない
// 別のロードを始める場合は呼び出し側がResetすること
type FileSink struct {
	path      string
	dimension int

	file *os.File
	w    *bufio.Writer
}

// NewFileSink は新しい FileSink を作成する
// dimensionは全レコードに要求されるベクトル次元数
func NewFileSink(path string, dimension int) *FileSink {
	return &FileSink{
		path:      path,
		dimension: dimension,
	}
}

// Path はステージングファイルのパスを返す
func (s *FileSink) Path() string {
	return s.path
}

// Reset はステージングファイルを空に戻す
// 開いているハンドルがあれば閉じてから切り詰める
func (s *FileSink) Reset() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Truncate(s.path, 0); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to truncate staging file: %w", err)
	}
	return nil
}

// WriteRecords はレコードを1行1レコードで追記する
// 次元数が一致しないレコードが1件でもあれば書き込まずにエラーを返す
func (s *FileSink) WriteRecords(records []Record) error {
	for _, r := range records {
		if len(r.Embedding) != s.dimension {
			return fmt.Errorf("record %s has %d components, want %d: %w",
				r.ID, len(r.Embedding), s.dimension, ErrDimensionMismatch)
		}
	}

	if err := s.open(); err != nil {
		return err
	}

	for _, r := range records {
		line, err := r.MarshalLine()
		if err != nil {
			return err
		}
		if _, err := s.w.Write(line); err != nil {
			return fmt.Errorf("failed to write staging record: %w", err)
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write staging record: %w", err)
		}
	}

	return nil
}

// Upload はステージングファイル全体をオブジェクトストアへ転送する
// 書き込み途中のバッファはフラッシュされる
func (s *FileSink) Upload(ctx context.Context, store ObjectStore, key string) error {
	if err := s.Close(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open staging file: %w", err)
	}
	defer f.Close()

	if err := store.Upload(ctx, key, f); err != nil {
		return fmt.Errorf("failed to upload staging file: %w", err)
	}
	return nil
}

// Close はバッファをフラッシュしてファイルを閉じる
func (s *FileSink) Close() error {
	if s.file == nil {
		return nil
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush staging file: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}
	s.file = nil
	s.w = nil
	return nil
}

func (s *FileSink) open() error {
	if s.file != nil {
		return nil
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open staging file: %w", err)
	}
	s.file = f
	s.w = bufio.NewWriter(f)
	return nil
}
