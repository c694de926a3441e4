package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore はPostgreSQLを使用したStore実装。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenSession はコネクションプールから専用の接続を1本確保する。
func (s *PostgresStore) OpenSession(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database connection: %w", err)
	}
	return &postgresSession{conn: conn}, nil
}

// postgresSession は*sql.Connに束縛されたSession。
type postgresSession struct {
	conn *sql.Conn
}

func (s *postgresSession) Users() UserRepository {
	return NewPostgresUserRepo(s.conn)
}

func (s *postgresSession) Resources() ResourceRepository {
	return NewPostgresResourceRepo(s.conn)
}

// BeginNotificationTx は同一接続上でトランザクションを開始する。
func (s *postgresSession) BeginNotificationTx(ctx context.Context) (NotificationTx, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &postgresNotificationTx{tx: tx}, nil
}

// Close は接続をプールに返却する。
func (s *postgresSession) Close() error {
	return s.conn.Close()
}

// postgresNotificationTx は*sql.Txを包むNotificationTx。
type postgresNotificationTx struct {
	tx *sql.Tx
}

func (t *postgresNotificationTx) Notifications() NotificationRepository {
	return NewPostgresNotificationRepo(t.tx)
}

func (t *postgresNotificationTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *postgresNotificationTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ Store          = (*PostgresStore)(nil)
	_ Session        = (*postgresSession)(nil)
	_ NotificationTx = (*postgresNotificationTx)(nil)
)
