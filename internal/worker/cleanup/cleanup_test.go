package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/hitoshi/deprenotify/internal/metrics"
)

type fakeResult struct {
	rowsAffected int64
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

// Executor インターフェースに対するモック実装
type mockExecutor struct {
	execCalled bool
	query      string
	args       []interface{}
	result     sql.Result
	err        error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.execCalled = true
	m.query = query
	m.args = args
	return m.result, m.err
}

type mockMetrics struct {
	metrics.NopCollector
	purged int64
}

func (m *mockMetrics) RecordNotificationsPurged(n int64) { m.purged += n }

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの各行から指定キーの値を探す。
func findLogField(buf *bytes.Buffer, key string) (interface{}, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestNewCleanupJob_RetentionDays(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	mock := &mockExecutor{result: &fakeResult{}}

	tests := []struct {
		in, want int
	}{
		{DefaultRetentionDays, 180},
		{365, 365},
		{30, 30},
		{7, 30}, // 下限に切り上げ
		{0, 30},
	}
	for _, tt := range tests {
		job := NewCleanupJob(mock, metrics.NopCollector{}, logger, tt.in)
		if job.RetentionDays() != tt.want {
			t.Errorf("RetentionDays(%d) = %d, want %d", tt.in, job.RetentionDays(), tt.want)
		}
	}
}

func TestCleanupJob_Run_ExecutesDeleteQuery(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	job := NewCleanupJob(mock, metrics.NopCollector{}, newTestLogger(&buf), DefaultRetentionDays)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if !mock.execCalled {
		t.Fatal("ExecContext が呼び出されなかった")
	}
	if !strings.Contains(mock.query, "DELETE FROM notifications") {
		t.Errorf("クエリに 'DELETE FROM notifications' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "created_at") {
		t.Errorf("クエリに 'created_at' 条件が含まれていない: %s", mock.query)
	}
	if len(mock.args) != 1 || mock.args[0] != "180 days" {
		t.Errorf("interval引数 = %v, want [180 days]", mock.args)
	}
}

func TestCleanupJob_Run_LogsAndRecordsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	m := &mockMetrics{}
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 42}}
	job := NewCleanupJob(mock, m, newTestLogger(&buf), 90)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(42) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if v, ok := findLogField(&buf, "retention_days"); !ok || v != float64(90) {
		t.Errorf("ログに retention_days=90 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
	if m.purged != 42 {
		t.Errorf("purged metric = %d, want 42", m.purged)
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	job := NewCleanupJob(mock, metrics.NopCollector{}, newTestLogger(&buf), DefaultRetentionDays)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewCleanupJob(mock, metrics.NopCollector{}, newTestLogger(&buf), DefaultRetentionDays)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}
