package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("%s%v metric not found", name, labels)
	return nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRun は実行結果のカウンタと最終成功時刻が記録されることを検証する。
func TestRecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRun(true, 3*time.Second)
	c.RecordRun(true, time.Second)
	c.RecordRun(false, time.Second)

	if v := findMetric(t, reg, "deprenotify_runs_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("runs_total{success} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "deprenotify_runs_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("runs_total{failure} = %v, want 1", v)
	}
	if n := findMetric(t, reg, "deprenotify_run_duration_seconds", nil).GetHistogram().GetSampleCount(); n != 3 {
		t.Errorf("run_duration sample count = %d, want 3", n)
	}
	if v := findMetric(t, reg, "deprenotify_last_success_timestamp_seconds", nil).GetGauge().GetValue(); v <= 0 {
		t.Errorf("last_success_timestamp = %v, want > 0", v)
	}
}

// TestRecordUserOutcome はユーザー単位の結果がラベル別に集計されることを検証する。
func TestRecordUserOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUserOutcome(OutcomeNotified)
	c.RecordUserOutcome(OutcomeFailed)
	c.RecordUserOutcome(OutcomeFailed)

	if v := findMetric(t, reg, "deprenotify_user_outcomes_total", map[string]string{"outcome": OutcomeFailed}).GetCounter().GetValue(); v != 2 {
		t.Errorf("user_outcomes_total{failed} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "deprenotify_user_outcomes_total", map[string]string{"outcome": OutcomeNotified}).GetCounter().GetValue(); v != 1 {
		t.Errorf("user_outcomes_total{notified} = %v, want 1", v)
	}
}

// TestRecordEmailAndNotifications はメール送信と通知レコードのカウンタを検証する。
func TestRecordEmailAndNotifications(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCandidates("critical", 2)
	c.RecordCandidates("critical", 1)
	c.RecordEmailSent(200 * time.Millisecond)
	c.RecordEmailFailed()
	c.RecordNotificationsStored(3)
	c.RecordNotificationsPurged(7)

	cases := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"deprenotify_candidates_total", map[string]string{"tier": "critical"}, 3},
		{"deprenotify_emails_sent_total", nil, 1},
		{"deprenotify_emails_failed_total", nil, 1},
		{"deprenotify_notifications_stored_total", nil, 3},
		{"deprenotify_notifications_purged_total", nil, 7},
	}
	for _, tc := range cases {
		if v := findMetric(t, reg, tc.name, tc.labels).GetCounter().GetValue(); v != tc.want {
			t.Errorf("%s = %v, want %v", tc.name, v, tc.want)
		}
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
