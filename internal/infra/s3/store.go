package s3

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/jinford/retriever/internal/core/embedding"
)

// Store はステージングファイルをS3バケットへアップロードするObjectStore実装
type Store struct {
	uploader *manager.Uploader
	bucket   string
}

// NewStore は新しい Store を作成する
// AWS認証情報はホスト環境の標準的な設定解決に従う
func NewStore(ctx context.Context, bucket string) (*Store, error) {
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(sdkConfig)
	return &Store{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}, nil
}

// NewStoreWithUploader は構築済みのアップローダを使う Store を作成する（テスト用途含む）
func NewStoreWithUploader(uploader *manager.Uploader, bucket string) *Store {
	return &Store{
		uploader: uploader,
		bucket:   bucket,
	}
}

// Upload はオブジェクトを指定キーでアップロードする
// 同名オブジェクトが存在する場合は上書きされる
func (s *Store) Upload(ctx context.Context, key string, body io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to bucket %s: %w", key, s.bucket, err)
	}
	return nil
}

// BaseURI はバルク取り込み元として指定するバケットURIを返す
func (s *Store) BaseURI() string {
	return "s3://" + s.bucket
}

// インターフェース実装の確認
var _ embedding.ObjectStore = (*Store)(nil)
