package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/deprenotify/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用したアプリ内通知リポジトリ。
type PostgresNotificationRepo struct {
	db DBTX
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
// 通常はNotificationTx経由で*sql.Txに束縛して使用する。
func NewPostgresNotificationRepo(db DBTX) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// Create は通知レコードを作成し、採番されたIDをrecordに設定する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, record *model.NotificationRecord) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, resource_id, message, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		record.UserID, record.ResourceID, record.Message, string(record.Status), record.CreatedAt.UTC(),
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
