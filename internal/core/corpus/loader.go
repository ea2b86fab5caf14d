package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxLineBytes は1行あたりの最大バイト数（長文パッセージ対応）
const maxLineBytes = 4 * 1024 * 1024

// passageLine はJSONLコーパスファイルの1行を表す
// ファイル内のidフィールドは無視し、行順で採番し直す
type passageLine struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// FileSource はJSONLコーパスファイルからパッセージを読み込むSource実装
type FileSource struct {
	path    string
	clipper *Clipper
}

type fileSourceOptions struct {
	clipper *Clipper
}

// FileSourceOption は FileSource のオプション設定
type FileSourceOption func(*fileSourceOptions)

// WithClipper はパッセージ本文のトークン上限クリッピングを有効にする
func WithClipper(clipper *Clipper) FileSourceOption {
	return func(o *fileSourceOptions) {
		o.clipper = clipper
	}
}

// NewFileSource は新しい FileSource を作成する
func NewFileSource(path string, opts ...FileSourceOption) *FileSource {
	options := fileSourceOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	return &FileSource{
		path:    path,
		clipper: options.clipper,
	}
}

// Name はコーパスファイル名を返す
func (s *FileSource) Name() string {
	return filepath.Base(s.path)
}

// Load はJSONLファイルを読み込み、行順に0始まりのIDを採番したパッセージ一覧を返す
func (s *FileSource) Load(ctx context.Context) ([]*Passage, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus file: %w", err)
	}
	defer f.Close()

	var passages []*Passage

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	// lineNoはファイル上の物理行番号、ordinalは採番するID
	// 空行の読み飛ばしで両者はずれる
	lineNo := 0
	ordinal := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var pl passageLine
		if err := json.Unmarshal(line, &pl); err != nil {
			return nil, fmt.Errorf("failed to parse corpus line %d: %w", lineNo, err)
		}

		text := pl.Text
		if s.clipper != nil {
			text = s.clipper.Clip(text)
		}

		passages = append(passages, &Passage{
			ID:    ordinal,
			Title: pl.Title,
			Text:  text,
		})
		ordinal++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read corpus file: %w", err)
	}

	return passages, nil
}

var _ Source = (*FileSource)(nil)
