package cadence

import (
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

func daysAgo(k int) *time.Time {
	t := fixedNow.Add(-time.Duration(k) * 24 * time.Hour)
	return &t
}

func TestShouldNotify_NoHistory_AlwaysTrue(t *testing.T) {
	for _, days := range []int{-5, 0, 1, 14, 15, 30, 31, 90, 91, 365} {
		if !ShouldNotify(nil, days, fixedNow) {
			t.Errorf("ShouldNotify(nil, %d) = false, want true", days)
		}
	}
}

func TestIntervalDays_Bands(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{0, 1},
		{14, 1},
		{15, 7},
		{30, 7},
		{31, 14},
		{90, 14},
		{91, 30},
		{400, 30},
	}
	for _, tt := range tests {
		if got := IntervalDays(tt.days); got != tt.want {
			t.Errorf("IntervalDays(%d) = %d, want %d", tt.days, got, tt.want)
		}
	}
}

// TestShouldNotify_Boundaries は各区切りの境界値で経過日数の閾値を検証する。
func TestShouldNotify_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		days      int
		threshold int
	}{
		{"14日以内_下限", 0, 1},
		{"14日ちょうど", 14, 1},
		{"15日", 15, 7},
		{"30日ちょうど", 30, 7},
		{"31日", 31, 14},
		{"90日ちょうど", 90, 14},
		{"91日", 91, 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k := 0; k <= 35; k++ {
				want := k >= tt.threshold
				if got := ShouldNotify(daysAgo(k), tt.days, fixedNow); got != want {
					t.Errorf("days=%d k=%d: ShouldNotify = %v, want %v", tt.days, k, got, want)
				}
			}
		})
	}
}

func TestShouldNotify_PartialDayIsTruncated(t *testing.T) {
	// 23時間59分前はまだ0日経過
	last := fixedNow.Add(-(24*time.Hour - time.Minute))
	if ShouldNotify(&last, 3, fixedNow) {
		t.Error("24時間未満の経過では毎日通知の閾値に達してはならない")
	}

	last = fixedNow.Add(-24 * time.Hour)
	if !ShouldNotify(&last, 3, fixedNow) {
		t.Error("ちょうど24時間経過で毎日通知の閾値に達するべき")
	}
}

func TestShouldNotify_FutureTimestamp_NotDue(t *testing.T) {
	last := fixedNow.Add(2 * time.Hour)
	if ShouldNotify(&last, 1, fixedNow) {
		t.Error("未来の通知日時に対してはfalseを返すべき")
	}
}

func TestShouldNotify_OffsetTimestampComparedInstant(t *testing.T) {
	// 同一時刻を別タイムゾーンで表しても結果は変わらない
	jst := time.FixedZone("JST", 9*60*60)
	last := daysAgo(7).In(jst)
	if !ShouldNotify(&last, 20, fixedNow) {
		t.Error("7日経過・残20日ではtrueを返すべき")
	}
}

func TestElapsedDays_Negative(t *testing.T) {
	if got := ElapsedDays(fixedNow.Add(time.Hour), fixedNow); got != -1 {
		t.Errorf("ElapsedDays = %d, want -1", got)
	}
}

// 通知履歴あり・残40日・5日前に通知済み（閾値14日）は対象外。
func TestShouldNotify_RecentlyNotified_NotYetDue(t *testing.T) {
	if ShouldNotify(daysAgo(5), 40, fixedNow) {
		t.Error("残40日で5日前に通知済みの場合はfalseを返すべき")
	}
}
