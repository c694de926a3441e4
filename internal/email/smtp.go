package email

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// sendMailFunc はsmtp.SendMailと同じシグネチャの送信関数。
type sendMailFunc func(addr string, a sasl.Client, from string, to []string, r io.Reader) error

// SMTPConfig はSMTPSenderの接続設定。
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// SMTPSender はSMTPサブミッションでメールを送信する。
// サーバーがSTARTTLSを提供する場合は自動的にTLSへ切り替える。
type SMTPSender struct {
	addr     string
	auth     sasl.Client
	sendMail sendMailFunc
	now      func() time.Time
}

// NewSMTPSender はSMTPSenderを生成する。ユーザー名が空の場合は認証しない。
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	var auth sasl.Client
	if cfg.Username != "" {
		auth = sasl.NewPlainClient("", cfg.Username, cfg.Password)
	}

	return &SMTPSender{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		auth:     auth,
		sendMail: smtp.SendMail,
		now:      time.Now,
	}
}

// Send はmultipart/alternativeのメッセージを組み立てて送信する。
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	raw, err := BuildMIME(msg, s.now())
	if err != nil {
		return err
	}

	// smtp.SendMailはcontextを受け取らないため、開始前にキャンセルを確認する
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.sendMail(s.addr, s.auth, msg.From, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("smtp send to %s failed: %w", s.addr, err)
	}
	return nil
}

// BuildMIME はテキスト版とHTML版を持つメールメッセージを生成する。
func BuildMIME(msg Message, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline writer: %w", err)
	}

	parts := []struct {
		contentType string
		body        string
	}{
		{"text/plain", msg.Text},
		{"text/html", msg.HTML},
	}
	for _, p := range parts {
		if p.body == "" {
			continue
		}
		var ph mail.InlineHeader
		ph.SetContentType(p.contentType, map[string]string{"charset": "utf-8"})
		w, err := tw.CreatePart(ph)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s part: %w", p.contentType, err)
		}
		if _, err := io.WriteString(w, p.body); err != nil {
			return nil, fmt.Errorf("failed to write %s part: %w", p.contentType, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("failed to close %s part: %w", p.contentType, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close inline writer: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close mail writer: %w", err)
	}

	return buf.Bytes(), nil
}
