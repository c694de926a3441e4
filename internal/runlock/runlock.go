// Package runlock は通知ジョブの多重実行を防ぐロックを提供する。
// 複数のワーカーを同時に動かす構成でのみRedisLockerを使用する。
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked は他の実行がロックを保持していることを表す。
var ErrLocked = errors.New("run lock is held by another worker")

// ReleaseFunc は取得したロックを解放する。
type ReleaseFunc func(ctx context.Context) error

// Locker は実行ロックのインターフェース。
type Locker interface {
	// Acquire はロックを取得する。取得できない場合はErrLockedを返す。
	Acquire(ctx context.Context) (ReleaseFunc, error)
}

// NopLocker は常にロックを取得できるLocker。
type NopLocker struct{}

// Acquire は何もせずに成功する。
func (NopLocker) Acquire(context.Context) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// redisClient はRedisLockerが使用するコマンド。
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript は自分のトークンが設定されている場合だけキーを削除する。
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

// DefaultKey はロックに使用するRedisキー。
const DefaultKey = "deprenotify:run-lock"

// RedisLocker はRedisのSET NXによる実行ロック。
// TTLを過ぎたロックは自動的に失効する。
type RedisLocker struct {
	client redisClient
	key    string
	ttl    time.Duration
}

// NewRedisLocker はRedisLockerを生成する。
func NewRedisLocker(client redisClient, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = DefaultKey
	}
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// NewRedisClient はredis://形式のURLからクライアントを生成する。
func NewRedisClient(rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Acquire はロックを取得する。
func (l *RedisLocker) Acquire(ctx context.Context) (ReleaseFunc, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		if err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release run lock: %w", err)
		}
		return nil
	}, nil
}

var (
	_ Locker = NopLocker{}
	_ Locker = (*RedisLocker)(nil)
)
