// Package email はダイジェストメールの送信トランスポートを提供する。
// ACS（Azure Communication Services）、SMTP、Amazon SESの3種類を切り替えて使用する。
package email

import (
	"context"
	"errors"
)

// Message は送信するメール1通分の内容。
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string // multipart/alternative用のプレーンテキスト版
}

// Sender はメール送信トランスポートのインターフェース。
// Sendは送信が受理されるまでブロックし、受理されなかった場合はエラーを返す。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// validate は送信前の最低限の入力チェックを行う。
func (m Message) validate() error {
	if m.From == "" {
		return errors.New("sender address is required")
	}
	if m.To == "" {
		return errors.New("recipient address is required")
	}
	if m.HTML == "" && m.Text == "" {
		return errors.New("message body is empty")
	}
	return nil
}
