package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// healthTimeout はDB疎通確認の上限時間。
const healthTimeout = 3 * time.Second

// HealthChecker はDB疎通確認のインターフェース。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はワーカーの死活監視エンドポイント。
type HealthHandler struct {
	checker HealthChecker
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Health はDBに疎通できれば200、できなければ503を返す。
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK
	if err := h.checker.PingContext(ctx); err != nil {
		resp = healthResponse{Status: "unavailable", Database: "unreachable"}
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
