package email

import (
	"context"
	"net/http"
	"time"
)

// sendResult は送信APIのHTTPステータスの分類。
type sendResult int

const (
	// sendAccepted は送信要求が受理された（200/202）。
	sendAccepted sendResult = iota
	// sendRetry は時間をおいて再送すべきステータス（408/429/5xx）。
	sendRetry
	// sendReject は再送しても成功しないステータス（その他の4xxなど）。
	sendReject
)

const (
	// maxSendAttempts は送信要求の最大試行回数。
	maxSendAttempts = 3
	// initialBackoff は再送までの初回待機時間。
	initialBackoff = time.Second
	// maxBackoff は再送までの最大待機時間。
	maxBackoff = 30 * time.Second
)

// classifyStatus はHTTPステータスコードを送信結果に分類する。
func classifyStatus(statusCode int) sendResult {
	switch {
	case statusCode == http.StatusOK || statusCode == http.StatusAccepted:
		return sendAccepted
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusTooManyRequests:
		return sendRetry
	case statusCode >= 500:
		return sendRetry
	default:
		return sendReject
	}
}

// calculateBackoff は試行回数に基づいて指数バックオフの待機時間を計算する。
// 初回1秒、2倍ずつ増加、最大30秒。
func calculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// sleepContext はdだけ待機する。コンテキストがキャンセルされた場合はそのエラーを返す。
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
