// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/deprenotify/internal/model"
)

// DBTX はクエリ実行を抽象化するインターフェース。
// *sql.DB、*sql.Conn、*sql.Tx のいずれも受け付けることができる。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// UserRepository はユーザーデータの読み取りインターフェース。
type UserRepository interface {
	// ListAll は全ユーザーを取得する。
	ListAll(ctx context.Context) ([]*model.User, error)
}

// ResourceRepository は廃止予定リソースの読み取りインターフェース。
type ResourceRepository interface {
	// ListUpcoming は指定ユーザーのリソースのうち、廃止予定日が
	// [today, today+horizonDays] に含まれるものを取得する。
	// 各行には同一リソース・同一ユーザーに対する直近の通知日時（UTC）が付与される。
	// JOINの結果として同一リソースが複数行返る可能性がある。
	ListUpcoming(ctx context.Context, userID int64, today time.Time, horizonDays int) ([]model.UpcomingResource, error)
}

// NotificationRepository はアプリ内通知レコードの書き込みインターフェース。
type NotificationRepository interface {
	// Create は通知レコードを作成し、採番されたIDをrecordに設定する。
	Create(ctx context.Context, record *model.NotificationRecord) error
}

// NotificationTx は通知レコード書き込み用のトランザクション。
type NotificationTx interface {
	// Notifications はトランザクションに束縛されたNotificationRepositoryを返す。
	Notifications() NotificationRepository
	Commit() error
	Rollback() error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginNotificationTx(ctx context.Context) (NotificationTx, error)
}

// Session は1回の実行が占有するストア接続。
// 実行終了時に必ずCloseする。
type Session interface {
	TxBeginner
	Users() UserRepository
	Resources() ResourceRepository
	Close() error
}

// Store は実行ごとのSessionを払い出す。
type Store interface {
	OpenSession(ctx context.Context) (Session, error)
}
