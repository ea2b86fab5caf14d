package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Backend はベクトル検索バックエンドの種別
type Backend string

const (
	// BackendMatching はマネージドベクトル検索サービスを利用する
	BackendMatching Backend = "matching"
	// BackendPgvector はローカルのPostgres + pgvectorを利用する
	BackendPgvector Backend = "pgvector"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Vector検索バックエンド設定
	Vector VectorConfig

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// ステージング用オブジェクトストレージ設定
	Storage StorageConfig

	// コーパス設定
	Corpus CorpusConfig

	// Database設定（pgvectorバックエンド用）
	Database DatabaseConfig

	// Git設定（Gitコーパスソース用）
	Git GitConfig

	// ログ設定
	Log LogConfig
}

// VectorConfig はマネージドベクトル検索サービスの設定
type VectorConfig struct {
	Backend         Backend
	ProjectID       string
	Region          string
	Endpoint        string // APIエンドポイント（省略時はリージョンから導出）
	MachineType     string
	MinReplicaCount int
	MaxReplicaCount int
}

// OpenAIConfig はOpenAI API設定（Embeddings用）
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	BatchSize          int
}

// StorageConfig はステージングファイルのアップロード先設定
type StorageConfig struct {
	Bucket     string
	ObjectKey  string
	StagingDir string
}

// CorpusConfig はコーパス読み込み設定
// GitURLが設定されている場合はGitリポジトリをソースとして使う
type CorpusConfig struct {
	Path          string
	GitURL        string
	GitRef        string
	MaxTokens     int    // 1パッセージあたりのトークン上限（0で無制限）
	TokenEncoding string // tiktokenのエンコーディング名
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// GitConfig はGitコーパスソースの設定
type GitConfig struct {
	CloneDir      string
	DefaultBranch string
}

// LogConfig はログ出力の設定
type LogConfig struct {
	Level  string // debug / info / warn / error
	Format string // json / text
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Vector: VectorConfig{
			Backend:         Backend(getEnv("VECTOR_BACKEND", string(BackendMatching))),
			ProjectID:       getEnv("VECTOR_PROJECT_ID", ""),
			Region:          getEnv("VECTOR_REGION", "us-central1"),
			Endpoint:        getEnv("VECTOR_API_ENDPOINT", ""),
			MachineType:     getEnv("VECTOR_MACHINE_TYPE", "e2-standard-16"),
			MinReplicaCount: getEnvAsInt("VECTOR_MIN_REPLICA_COUNT", 1),
			MaxReplicaCount: getEnvAsInt("VECTOR_MAX_REPLICA_COUNT", 1),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			BatchSize:          getEnvAsInt("OPENAI_EMBEDDING_BATCH_SIZE", 100),
		},
		Storage: StorageConfig{
			Bucket:     getEnv("STAGING_BUCKET", ""),
			ObjectKey:  getEnv("STAGING_OBJECT_KEY", "embeddings.json"),
			StagingDir: getEnv("STAGING_DIR", os.TempDir()),
		},
		Corpus: CorpusConfig{
			Path:          getEnv("CORPUS_PATH", "corpus.jsonl"),
			GitURL:        getEnv("CORPUS_GIT_URL", ""),
			GitRef:        getEnv("CORPUS_GIT_REF", ""),
			MaxTokens:     getEnvAsInt("CORPUS_MAX_TOKENS", 0),
			TokenEncoding: getEnv("CORPUS_TOKEN_ENCODING", "cl100k_base"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "retriever"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "retriever"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Git: GitConfig{
			CloneDir:      getEnv("GIT_CLONE_DIR", "/var/lib/retriever/repos"),
			DefaultBranch: getEnv("GIT_DEFAULT_BRANCH", "main"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate は必須項目と値の整合性を検証します
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case BackendMatching:
		if c.Vector.ProjectID == "" {
			return fmt.Errorf("VECTOR_PROJECT_ID is required for matching backend")
		}
		if c.Storage.Bucket == "" {
			return fmt.Errorf("STAGING_BUCKET is required for matching backend")
		}
	case BackendPgvector:
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required for pgvector backend")
		}
	default:
		return fmt.Errorf("unknown vector backend: %q", c.Vector.Backend)
	}

	if c.OpenAI.EmbeddingDimension <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSION must be positive")
	}
	if c.OpenAI.BatchSize <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_BATCH_SIZE must be positive")
	}
	if c.Vector.MinReplicaCount > c.Vector.MaxReplicaCount {
		return fmt.Errorf("VECTOR_MIN_REPLICA_COUNT must not exceed VECTOR_MAX_REPLICA_COUNT")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
