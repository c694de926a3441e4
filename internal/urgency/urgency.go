// Package urgency は通知候補を廃止までの残日数で緊急度ティアに分類する。
package urgency

import "github.com/hitoshi/deprenotify/internal/model"

// Tier は緊急度ティア。
type Tier string

const (
	// TierCritical は残り14日以内。
	TierCritical Tier = "critical"
	// TierUrgent は残り15〜30日。
	TierUrgent Tier = "urgent"
	// TierWarning は残り31日以上（先読み期間の90日まで）。
	TierWarning Tier = "warning"
)

// TierOrder は表示順。mapの反復順には依存しないこと。
var TierOrder = []Tier{TierCritical, TierUrgent, TierWarning}

// Tiers はティアごとの候補一覧。各スライスは入力時の相対順序を保持する。
type Tiers map[Tier][]model.NotificationCandidate

// Count は全ティアの候補数の合計を返す。
func (t Tiers) Count() int {
	n := 0
	for _, cs := range t {
		n += len(cs)
	}
	return n
}

// NonEmpty はTierOrderの順で候補を持つティアだけを返す。
func (t Tiers) NonEmpty() []Tier {
	var out []Tier
	for _, tier := range TierOrder {
		if len(t[tier]) > 0 {
			out = append(out, tier)
		}
	}
	return out
}

// TierFor は残日数に対応するティアを返す。
func TierFor(daysUntilDeprecation int) Tier {
	switch {
	case daysUntilDeprecation <= 14:
		return TierCritical
	case daysUntilDeprecation <= 30:
		return TierUrgent
	default:
		return TierWarning
	}
}

// Classify は候補をティアに分割する。各候補はちょうど1つのティアに属する。
func Classify(candidates []model.NotificationCandidate) Tiers {
	tiers := make(Tiers, len(TierOrder))
	for _, c := range candidates {
		tier := TierFor(c.DaysUntilDeprecation)
		tiers[tier] = append(tiers[tier], c)
	}
	return tiers
}
