package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendMatching, cfg.Vector.Backend)
	assert.Equal(t, "us-central1", cfg.Vector.Region)
	assert.Equal(t, "e2-standard-16", cfg.Vector.MachineType)
	assert.Equal(t, 1, cfg.Vector.MinReplicaCount)
	assert.Equal(t, 1, cfg.Vector.MaxReplicaCount)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 1536, cfg.OpenAI.EmbeddingDimension)
	assert.Equal(t, 100, cfg.OpenAI.BatchSize)
	assert.Equal(t, "embeddings.json", cfg.Storage.ObjectKey)
	assert.Equal(t, "cl100k_base", cfg.Corpus.TokenEncoding)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "main", cfg.Git.DefaultBranch)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "pgvector")
	t.Setenv("VECTOR_MAX_REPLICA_COUNT", "3")
	t.Setenv("OPENAI_EMBEDDING_DIMENSION", "768")
	t.Setenv("CORPUS_GIT_URL", "https://github.com/user/docs.git")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendPgvector, cfg.Vector.Backend)
	assert.Equal(t, 3, cfg.Vector.MaxReplicaCount)
	assert.Equal(t, 768, cfg.OpenAI.EmbeddingDimension)
	assert.Equal(t, "https://github.com/user/docs.git", cfg.Corpus.GitURL)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Vector.ProjectID = "proj"
		cfg.Storage.Bucket = "bucket"
		return cfg
	}

	t.Run("有効な設定", func(t *testing.T) {
		require.NoError(t, base().Validate())
	})

	t.Run("matchingはプロジェクトID必須", func(t *testing.T) {
		cfg := base()
		cfg.Vector.ProjectID = ""
		assert.ErrorContains(t, cfg.Validate(), "VECTOR_PROJECT_ID")
	})

	t.Run("matchingはバケット必須", func(t *testing.T) {
		cfg := base()
		cfg.Storage.Bucket = ""
		assert.ErrorContains(t, cfg.Validate(), "STAGING_BUCKET")
	})

	t.Run("pgvectorはホスト必須", func(t *testing.T) {
		cfg := base()
		cfg.Vector.Backend = BackendPgvector
		cfg.Database.Host = ""
		assert.ErrorContains(t, cfg.Validate(), "DB_HOST")
	})

	t.Run("未知のバックエンド", func(t *testing.T) {
		cfg := base()
		cfg.Vector.Backend = "bogus"
		assert.ErrorContains(t, cfg.Validate(), "unknown vector backend")
	})

	t.Run("次元数は正", func(t *testing.T) {
		cfg := base()
		cfg.OpenAI.EmbeddingDimension = 0
		assert.ErrorContains(t, cfg.Validate(), "OPENAI_EMBEDDING_DIMENSION")
	})

	t.Run("レプリカ数の整合性", func(t *testing.T) {
		cfg := base()
		cfg.Vector.MinReplicaCount = 2
		cfg.Vector.MaxReplicaCount = 1
		assert.ErrorContains(t, cfg.Validate(), "VECTOR_MIN_REPLICA_COUNT")
	})
}
