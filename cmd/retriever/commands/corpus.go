package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/retriever/internal/core/corpus"
)

// CorpusStatsAction はコーパスを読み込み、件数などの統計を表示する
// トークン上限が設定されている場合はトークン数の統計も表示する
func CorpusStatsAction(ctx context.Context, cmd *cli.Command) error {
	c, cfg, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	passages, err := c.Source.Load(ctx)
	if err != nil {
		return fmt.Errorf("コーパスの読み込みに失敗しました: %w", err)
	}

	totalChars := 0
	for _, p := range passages {
		totalChars += len(p.Text)
	}

	fmt.Printf("source: %s\n", c.Source.Name())
	fmt.Printf("passages: %d\n", len(passages))
	if len(passages) > 0 {
		fmt.Printf("avg length (bytes): %d\n", totalChars/len(passages))
	}

	if cfg.Corpus.MaxTokens > 0 && len(passages) > 0 {
		clipper, err := corpus.NewClipper(cfg.Corpus.TokenEncoding, cfg.Corpus.MaxTokens)
		if err != nil {
			return fmt.Errorf("トークンカウンタの構築に失敗しました: %w", err)
		}

		totalTokens := 0
		maxTokens := 0
		for _, p := range passages {
			n := clipper.CountTokens(p.Text)
			totalTokens += n
			if n > maxTokens {
				maxTokens = n
			}
		}
		fmt.Printf("tokens: %d\n", totalTokens)
		fmt.Printf("avg tokens: %d\n", totalTokens/len(passages))
		fmt.Printf("max tokens per passage: %d\n", maxTokens)
	}
	return nil
}
