package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/retriever/cmd/retriever/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "retriever",
		Usage: "マネージドベクトル検索を使ったパッセージ検索クライアント",
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "インデックス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "ensure",
						Usage: "インデックスを確保（なければ作成してコーパスを投入）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.IndexEnsureAction,
					},
				},
			},
			{
				Name:  "endpoint",
				Usage: "エンドポイント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "ensure",
						Usage: "エンドポイントを確保（なければインデックスを配備）",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.EndpointEnsureAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "配備済みエンドポイントに対して近傍検索を実行",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "env",
						Usage: "環境変数ファイルパス",
						Value: ".env",
					},
					&cli.StringFlag{
						Name:     "query",
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "topk",
						Usage: "取得する近傍パッセージ数",
						Value: 1,
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "corpus",
				Usage: "コーパス管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "stats",
						Usage: "コーパスの統計情報を表示",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "env",
								Usage: "環境変数ファイルパス",
								Value: ".env",
							},
						},
						Action: commands.CorpusStatsAction,
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
