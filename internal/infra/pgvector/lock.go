package pgvector

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// provisionLockID はリソース種別と表示名からアドバイザリロックのIDを導出する
func provisionLockID(parts ...string) int64 {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	hash := h.Sum(nil)

	var id int64
	for i := range 8 {
		id = (id << 8) | int64(hash[i])
	}
	return id
}

// acquireProvisionLock は表示名単位のトランザクションスコープロックを取得する
// 同名リソースの並行プロビジョニングを直列化し、二重作成を防ぐ
// pg_advisory_xact_lockのためトランザクション終了時に自動解放される
func acquireProvisionLock(ctx context.Context, tx pgx.Tx, kind, displayName string) error {
	_, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", provisionLockID(kind, displayName))
	if err != nil {
		return fmt.Errorf("failed to acquire provisioning lock: %w", err)
	}
	return nil
}
