// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ErrorKind はジョブ内で発生したエラーの分類。
type ErrorKind string

// 定義済みエラー分類
const (
	ErrKindDataAccess ErrorKind = "DATA_ACCESS" // ストアの接続・クエリ・書き込み失敗
	ErrKindDispatch   ErrorKind = "DISPATCH"    // メール送信の失敗
	ErrKindConfig     ErrorKind = "CONFIG"      // 設定値の不足・不正
	ErrKindUnexpected ErrorKind = "UNEXPECTED"  // 上記以外
)

// JobError はエラー分類と失敗した操作名を保持するエラー。
type JobError struct {
	Kind ErrorKind
	Op   string // 失敗した操作（例: "list users"）
	Err  error
}

// Error はerrorインターフェースを実装する。
func (e *JobError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap は元のエラーを返す。
func (e *JobError) Unwrap() error {
	return e.Err
}

// NewDataAccessError はストアアクセス失敗のエラーを生成する。
func NewDataAccessError(op string, err error) *JobError {
	return &JobError{Kind: ErrKindDataAccess, Op: op, Err: err}
}

// NewDispatchError はメール送信失敗のエラーを生成する。
func NewDispatchError(op string, err error) *JobError {
	return &JobError{Kind: ErrKindDispatch, Op: op, Err: err}
}

// NewConfigError は設定不備のエラーを生成する。
func NewConfigError(op string, err error) *JobError {
	return &JobError{Kind: ErrKindConfig, Op: op, Err: err}
}

// NewUnexpectedError は分類外のエラーを生成する。
func NewUnexpectedError(op string, err error) *JobError {
	return &JobError{Kind: ErrKindUnexpected, Op: op, Err: err}
}

// KindOf はエラーチェーン中のJobErrorの分類を返す。
// JobErrorを含まないエラーはErrKindUnexpectedとして扱う。
func KindOf(err error) ErrorKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return ErrKindUnexpected
}
