package digest

import (
	"fmt"

	"github.com/hitoshi/deprenotify/internal/model"
)

// TextCleaner はリソースメタデータをプレーンテキスト化するインターフェース。
type TextCleaner interface {
	PlainText(raw string) string
}

// MessageBuilder はアプリ内通知の文面を生成する。
type MessageBuilder struct {
	cleaner TextCleaner
}

// NewMessageBuilder はMessageBuilderを生成する。
func NewMessageBuilder(cleaner TextCleaner) *MessageBuilder {
	return &MessageBuilder{cleaner: cleaner}
}

// Message は候補1件分のアプリ内通知文面を返す。
// 例: Resource 'vm-01' (Microsoft.Compute/virtualMachines) will be deprecated in 10 days. Recommended replacement: N/A
func (b *MessageBuilder) Message(c model.NotificationCandidate) string {
	replacement := NotAvailable
	if c.ReplacementService != nil {
		if cleaned := b.cleaner.PlainText(*c.ReplacementService); cleaned != "" {
			replacement = cleaned
		}
	}

	return fmt.Sprintf(
		"Resource '%s' (%s) will be deprecated in %d days. Recommended replacement: %s",
		b.cleaner.PlainText(c.Name),
		b.cleaner.PlainText(c.Type),
		c.DaysUntilDeprecation,
		replacement,
	)
}
