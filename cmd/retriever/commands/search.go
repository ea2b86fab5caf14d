package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// searchOutput は検索結果の出力形式
type searchOutput struct {
	Rank  int    `json:"rank"`
	ID    int    `json:"id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// SearchAction はクエリをエンコードして近傍検索を実行し、結果をJSONで出力する
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	c, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	query := cmd.String("query")
	topk := int(cmd.Int("topk"))

	vectors, err := c.Embedder.BatchEmbed(ctx, []string{query})
	if err != nil {
		return fmt.Errorf("クエリのエンコードに失敗しました: %w", err)
	}

	passages, err := c.Client.Search(ctx, vectors, topk)
	if err != nil {
		return fmt.Errorf("検索に失敗しました: %w", err)
	}

	results := make([]searchOutput, len(passages))
	for i, p := range passages {
		results[i] = searchOutput{
			Rank:  i + 1,
			ID:    p.ID,
			Title: p.Title,
			Text:  p.Text,
		}
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}
