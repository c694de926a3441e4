package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
)

type sentMail struct {
	addr string
	auth sasl.Client
	from string
	to   []string
	data []byte
}

func TestBuildMIME_MultipartAlternative(t *testing.T) {
	date := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	raw, err := BuildMIME(testMessage(), date)
	if err != nil {
		t.Fatalf("BuildMIME がエラーを返した: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("生成したメッセージの読み取りに失敗: %v", err)
	}

	subject, _ := mr.Header.Subject()
	if subject != testMessage().Subject {
		t.Errorf("Subject = %q", subject)
	}
	to, _ := mr.Header.AddressList("To")
	if len(to) != 1 || to[0].Address != "owner@example.com" {
		t.Errorf("To = %v", to)
	}
	if got, _ := mr.Header.Date(); !got.Equal(date) {
		t.Errorf("Date = %v, want %v", got, date)
	}

	bodies := map[string]string{}
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("パートの読み取りに失敗: %v", err)
		}
		if h, ok := p.Header.(*mail.InlineHeader); ok {
			ct, _, _ := h.ContentType()
			b, _ := io.ReadAll(p.Body)
			bodies[ct] = string(b)
		}
	}

	if bodies["text/plain"] != "hello" {
		t.Errorf("text/plain = %q", bodies["text/plain"])
	}
	if bodies["text/html"] != "<p>hello</p>" {
		t.Errorf("text/html = %q", bodies["text/html"])
	}
}

func TestSMTPSender_Send(t *testing.T) {
	var got sentMail
	s := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "user", Password: "pass"})
	s.sendMail = func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		data, _ := io.ReadAll(r)
		got = sentMail{addr: addr, auth: a, from: from, to: to, data: data}
		return nil
	}

	if err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}

	if got.addr != "smtp.example.com:587" {
		t.Errorf("addr = %q", got.addr)
	}
	if got.auth == nil {
		t.Error("ユーザー名がある場合は認証を使用するべき")
	}
	if got.from != "DoNotReply@example.com" || len(got.to) != 1 || got.to[0] != "owner@example.com" {
		t.Errorf("エンベロープが不正: from=%q to=%v", got.from, got.to)
	}
	if !strings.Contains(string(got.data), "multipart/alternative") {
		t.Error("multipart/alternativeのメッセージを送信するべき")
	}
}

func TestSMTPSender_NoAuthWithoutUsername(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25})
	called := false
	s.sendMail = func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		called = true
		if a != nil {
			t.Error("ユーザー名がない場合は認証しないべき")
		}
		return nil
	}

	if err := s.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("Send がエラーを返した: %v", err)
	}
	if !called {
		t.Error("sendMail が呼ばれるべき")
	}
}

func TestSMTPSender_SendError(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25})
	sendErr := errors.New("554 rejected")
	s.sendMail = func(string, sasl.Client, string, []string, io.Reader) error { return sendErr }

	err := s.Send(context.Background(), testMessage())
	if !errors.Is(err, sendErr) {
		t.Errorf("err = %v, want wrapped %v", err, sendErr)
	}
}

func TestSMTPSender_CanceledContext(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{Host: "localhost", Port: 25})
	s.sendMail = func(string, sasl.Client, string, []string, io.Reader) error {
		t.Error("キャンセル済みのcontextで送信してはならない")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, testMessage()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
