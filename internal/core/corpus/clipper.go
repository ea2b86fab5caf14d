package corpus

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCodec は本文とトークン列の相互変換を抽象化する
// tiktoken.Tiktokenが実装する
type tokenCodec interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Clipper はEmbeddingモデルのトークン上限に合わせてパッセージ本文を切り詰める
type Clipper struct {
	codec     tokenCodec
	maxTokens int
}

// NewClipper は新しい Clipper を作成する
// encodingNameはtiktokenのエンコーディング名（例: cl100k_base）
func NewClipper(encodingName string, maxTokens int) (*Clipper, error) {
	encoding, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding %q: %w", encodingName, err)
	}
	return newClipper(encoding, maxTokens)
}

func newClipper(codec tokenCodec, maxTokens int) (*Clipper, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("maxTokens must be positive")
	}
	return &Clipper{
		codec:     codec,
		maxTokens: maxTokens,
	}, nil
}

// Clip はトークン上限を超える本文をトークン境界で切り詰めて返す
// 上限以内の本文はそのまま返す
func (c *Clipper) Clip(text string) string {
	tokens := c.codec.Encode(text, nil, nil)
	if len(tokens) <= c.maxTokens {
		return text
	}
	return c.codec.Decode(tokens[:c.maxTokens])
}

// CountTokens は本文のトークン数を返す
func (c *Clipper) CountTokens(text string) int {
	return len(c.codec.Encode(text, nil, nil))
}
