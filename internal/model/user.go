// Package model はドメインモデルを定義する。
package model

// User は通知対象のユーザーを表す。
// ユーザー情報はポータル側が管理しており、このジョブからは読み取り専用。
type User struct {
	ID             int64
	Email          string
	SubscriptionID string
}
