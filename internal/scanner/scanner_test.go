package scanner

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/deprenotify/internal/model"
)

// mockResourceRepo はResourceRepositoryのモック実装。
type mockResourceRepo struct {
	rows        []model.UpcomingResource
	err         error
	gotUserID   int64
	gotToday    time.Time
	gotHorizon  int
	calledCount int
}

func (m *mockResourceRepo) ListUpcoming(ctx context.Context, userID int64, today time.Time, horizonDays int) ([]model.UpcomingResource, error) {
	m.calledCount++
	m.gotUserID = userID
	m.gotToday = today
	m.gotHorizon = horizonDays
	return m.rows, m.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

var testNow = time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

func upcoming(id int64, name string, daysAhead int, lastNotified *time.Time) model.UpcomingResource {
	return model.UpcomingResource{
		TrackedResource: model.TrackedResource{
			ID:              id,
			Name:            name,
			Type:            "virtualMachines",
			Provider:        "Microsoft.Compute",
			DeprecationDate: Today(testNow).AddDate(0, 0, daysAhead),
		},
		LastNotifiedAt: lastNotified,
	}
}

func ago(days int) *time.Time {
	t := testNow.Add(-time.Duration(days) * 24 * time.Hour)
	return &t
}

func TestScan_PassesTodayAndHorizon(t *testing.T) {
	repo := &mockResourceRepo{}
	s := NewScanner(repo, newTestLogger())

	late := time.Date(2025, 3, 1, 23, 59, 0, 0, time.FixedZone("PST", -8*60*60))
	if _, err := s.Scan(context.Background(), 42, late); err != nil {
		t.Fatalf("Scan がエラーを返した: %v", err)
	}

	if repo.gotUserID != 42 {
		t.Errorf("userID = %d, want 42", repo.gotUserID)
	}
	// PSTの3/1 23:59はUTCでは3/2
	want := time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)
	if !repo.gotToday.Equal(want) {
		t.Errorf("today = %v, want %v", repo.gotToday, want)
	}
	if repo.gotHorizon != HorizonDays {
		t.Errorf("horizon = %d, want %d", repo.gotHorizon, HorizonDays)
	}
}

// 新規リソース・履歴なし・残10日は候補に含まれる。
func TestScan_NewResourceWithoutHistory_Included(t *testing.T) {
	repo := &mockResourceRepo{rows: []model.UpcomingResource{upcoming(1, "R1", 10, nil)}}
	s := NewScanner(repo, newTestLogger())

	got, err := s.Scan(context.Background(), 1, testNow)
	if err != nil {
		t.Fatalf("Scan がエラーを返した: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("候補数 = %d, want 1", len(got))
	}
	c := got[0]
	if c.ResourceID != 1 || c.Name != "R1" {
		t.Errorf("candidate = %+v", c)
	}
	if c.DaysUntilDeprecation != 10 {
		t.Errorf("DaysUntilDeprecation = %d, want 10", c.DaysUntilDeprecation)
	}
	if c.Type != "Microsoft.Compute/virtualMachines" {
		t.Errorf("Type = %q, want %q", c.Type, "Microsoft.Compute/virtualMachines")
	}
}

// 残40日・5日前に通知済み（閾値14日）は候補から除外される。
func TestScan_RecentlyNotified_Excluded(t *testing.T) {
	repo := &mockResourceRepo{rows: []model.UpcomingResource{upcoming(2, "R2", 40, ago(5))}}
	s := NewScanner(repo, newTestLogger())

	got, err := s.Scan(context.Background(), 1, testNow)
	if err != nil {
		t.Fatalf("Scan がエラーを返した: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("候補数 = %d, want 0", len(got))
	}
}

func TestScan_DeduplicatesByResourceID(t *testing.T) {
	repo := &mockResourceRepo{rows: []model.UpcomingResource{
		upcoming(7, "dup", 3, nil),
		upcoming(8, "other", 20, nil),
		upcoming(7, "dup", 3, nil),
	}}
	s := NewScanner(repo, newTestLogger())

	got, err := s.Scan(context.Background(), 1, testNow)
	if err != nil {
		t.Fatalf("Scan がエラーを返した: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("候補数 = %d, want 2", len(got))
	}
	if got[0].ResourceID != 7 || got[1].ResourceID != 8 {
		t.Errorf("順序 = [%d %d], want [7 8]", got[0].ResourceID, got[1].ResourceID)
	}
}

// 重複行は最初の行の通知履歴で判定する。
func TestScan_DuplicateKeepsFirstRow(t *testing.T) {
	repo := &mockResourceRepo{rows: []model.UpcomingResource{
		upcoming(7, "dup", 40, ago(2)),
		upcoming(7, "dup", 40, nil),
	}}
	s := NewScanner(repo, newTestLogger())

	got, _ := s.Scan(context.Background(), 1, testNow)
	if len(got) != 0 {
		t.Errorf("候補数 = %d, want 0", len(got))
	}
}

func TestScan_OutsideHorizonIgnored(t *testing.T) {
	repo := &mockResourceRepo{rows: []model.UpcomingResource{
		upcoming(1, "past", -1, nil),
		upcoming(2, "today", 0, nil),
		upcoming(3, "edge", 90, nil),
		upcoming(4, "far", 91, nil),
	}}
	s := NewScanner(repo, newTestLogger())

	got, _ := s.Scan(context.Background(), 1, testNow)
	if len(got) != 2 {
		t.Fatalf("候補数 = %d, want 2", len(got))
	}
	if got[0].ResourceID != 2 || got[1].ResourceID != 3 {
		t.Errorf("IDs = [%d %d], want [2 3]", got[0].ResourceID, got[1].ResourceID)
	}
}

func TestScan_EmptyHorizon_ReturnsEmpty(t *testing.T) {
	s := NewScanner(&mockResourceRepo{}, newTestLogger())

	got, err := s.Scan(context.Background(), 1, testNow)
	if err != nil {
		t.Fatalf("Scan がエラーを返した: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("候補数 = %d, want 0", len(got))
	}
}

func TestScan_RepositoryError_IsDataAccessError(t *testing.T) {
	repo := &mockResourceRepo{err: errors.New("connection reset")}
	s := NewScanner(repo, newTestLogger())

	_, err := s.Scan(context.Background(), 1, testNow)
	if err == nil {
		t.Fatal("リポジトリのエラーは呼び出し元に返すべき")
	}
	if model.KindOf(err) != model.ErrKindDataAccess {
		t.Errorf("KindOf = %s, want %s", model.KindOf(err), model.ErrKindDataAccess)
	}
}

func TestDaysUntil(t *testing.T) {
	today := time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		date time.Time
		want int
	}{
		{time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), 3},
		{time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), -1},
		{time.Date(2026, 3, 30, 0, 0, 0, 0, time.UTC), 90},
	}
	for _, tt := range tests {
		if got := DaysUntil(tt.date, today); got != tt.want {
			t.Errorf("DaysUntil(%s) = %d, want %d", tt.date.Format("2006-01-02"), got, tt.want)
		}
	}
}
