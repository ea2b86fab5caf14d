package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// IndexEnsureAction はインデックスを確保する
// 既存の同名インデックスがあれば束縛のみ、なければ作成してコーパスを投入する
func IndexEnsureAction(ctx context.Context, cmd *cli.Command) error {
	c, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	if err := c.Client.LoadIndex(ctx); err != nil {
		return fmt.Errorf("インデックスの確保に失敗しました: %w", err)
	}

	fmt.Printf("index state: %s\n", c.Client.IndexState())
	return nil
}
