package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// EndpointEnsureAction はエンドポイントを確保する
// 既存の同名エンドポイントがあれば束縛のみ、なければインデックスを配備する
func EndpointEnsureAction(ctx context.Context, cmd *cli.Command) error {
	c, _, err := setup(ctx, cmd)
	if err != nil {
		return err
	}

	if err := c.Client.LoadEndpoint(ctx); err != nil {
		return fmt.Errorf("エンドポイントの確保に失敗しました: %w", err)
	}

	fmt.Printf("endpoint state: %s\n", c.Client.EndpointState())
	return nil
}
