package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
)

const charsetUTF8 = "UTF-8"

// sesAPI はSESSenderが使用するSESクライアントのメソッド。
type sesAPI interface {
	SendEmailWithContext(ctx aws.Context, input *ses.SendEmailInput, opts ...request.Option) (*ses.SendEmailOutput, error)
}

// SESConfig はSESSenderの接続設定。
// アクセスキーが空の場合はSDKのデフォルト認証情報チェーンを使用する。
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // ローカル検証用のエンドポイント（任意）
}

// SESSender はAmazon SESでメールを送信する。
type SESSender struct {
	client sesAPI
}

// NewSESSender はAWSセッションを作成してSESSenderを生成する。
func NewSESSender(cfg SESConfig) (*SESSender, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &SESSender{client: ses.New(sess)}, nil
}

// Send はSES SendEmail APIでメールを送信する。
func (s *SESSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	body := &ses.Body{}
	if msg.HTML != "" {
		body.Html = &ses.Content{Charset: aws.String(charsetUTF8), Data: aws.String(msg.HTML)}
	}
	if msg.Text != "" {
		body.Text = &ses.Content{Charset: aws.String(charsetUTF8), Data: aws.String(msg.Text)}
	}

	_, err := s.client.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source:      aws.String(msg.From),
		Destination: &ses.Destination{ToAddresses: []*string{aws.String(msg.To)}},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charsetUTF8), Data: aws.String(msg.Subject)},
			Body:    body,
		},
	})
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}
	return nil
}
