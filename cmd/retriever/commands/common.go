package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/jinford/retriever/internal/platform/container"
	"github.com/jinford/retriever/internal/platform/logger"
	"github.com/jinford/retriever/pkg/config"
)

// setup は設定を読み込み、ロガーとコンテナを初期化する
func setup(ctx context.Context, cmd *cli.Command) (*container.Container, *config.Config, error) {
	cfg, err := config.Load(cmd.String("env"))
	if err != nil {
		return nil, nil, fmt.Errorf("設定の読み込みに失敗しました: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	c, err := container.New(ctx, cfg, container.WithLogger(log))
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}
