package email

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// acsAPIVersion はEmail送信APIのバージョン。
	acsAPIVersion = "2023-03-31"
	// defaultPollInterval は送信結果のポーリング間隔。
	defaultPollInterval = 2 * time.Second
	// defaultSendTimeout は送信受理からポーリング完了までの上限。
	defaultSendTimeout = 2 * time.Minute
	// maxErrorBody はエラー時にログへ含めるレスポンスボディの上限。
	maxErrorBody = 4096
)

// ACS送信オペレーションの状態。
const (
	acsStatusNotStarted = "NotStarted"
	acsStatusRunning    = "Running"
	acsStatusSucceeded  = "Succeeded"
	acsStatusFailed     = "Failed"
	acsStatusCanceled   = "Canceled"
)

// ACSOptions はACSSenderのポーリング設定。
type ACSOptions struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

// ACSSender はAzure Communication ServicesのEmail REST APIでメールを送信する。
// 送信要求後にOperation-Locationをポーリングし、Succeededになるまで待機する。
type ACSSender struct {
	endpoint     *url.URL
	accessKey    []byte
	httpClient   *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
	timeout      time.Duration
	now          func() time.Time        // テスト用に差し替え可能
	backoff      func(int) time.Duration // テスト用に差し替え可能
}

// NewACSSender は接続文字列からACSSenderを生成する。
// httpClientにはEndpointGuard.NewSafeClientで生成したクライアントを渡す。
func NewACSSender(connectionString string, httpClient *http.Client, logger *slog.Logger, opts ACSOptions) (*ACSSender, error) {
	endpoint, key, err := ParseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSendTimeout
	}

	return &ACSSender{
		endpoint:     endpoint,
		accessKey:    key,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: opts.PollInterval,
		timeout:      opts.Timeout,
		now:          time.Now,
		backoff:      calculateBackoff,
	}, nil
}

// ParseConnectionString は "endpoint=https://...;accesskey=..." 形式の接続文字列を解析する。
func ParseConnectionString(s string) (*url.URL, []byte, error) {
	var rawEndpoint, rawKey string
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "endpoint":
			rawEndpoint = v
		case "accesskey":
			rawKey = v
		}
	}

	if rawEndpoint == "" || rawKey == "" {
		return nil, nil, errors.New("connection string must contain endpoint and accesskey")
	}

	endpoint, err := url.Parse(rawEndpoint)
	if err != nil || endpoint.Host == "" {
		return nil, nil, fmt.Errorf("invalid endpoint in connection string: %q", rawEndpoint)
	}
	endpoint.Path = strings.TrimSuffix(endpoint.Path, "/")

	key, err := base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return nil, nil, fmt.Errorf("access key is not valid base64: %w", err)
	}

	return endpoint, key, nil
}

type acsAddress struct {
	Address string `json:"address"`
}

type acsRequest struct {
	SenderAddress string `json:"senderAddress"`
	Recipients    struct {
		To []acsAddress `json:"to"`
	} `json:"recipients"`
	Content struct {
		Subject   string `json:"subject"`
		HTML      string `json:"html,omitempty"`
		PlainText string `json:"plainText,omitempty"`
	} `json:"content"`
}

type acsOperation struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Send はメールを送信し、ACSのオペレーションが完了するまで待機する。
func (s *ACSSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var reqBody acsRequest
	reqBody.SenderAddress = msg.From
	reqBody.Recipients.To = []acsAddress{{Address: msg.To}}
	reqBody.Content.Subject = msg.Subject
	reqBody.Content.HTML = msg.HTML
	reqBody.Content.PlainText = msg.Text

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to encode email request: %w", err)
	}

	sendURL := *s.endpoint
	sendURL.Path += "/emails:send"
	sendURL.RawQuery = url.Values{"api-version": {acsAPIVersion}}.Encode()

	// 再送時に重複送信されないよう、全試行で同じrepeatabilityヘッダーを付与する
	headers := http.Header{}
	headers.Set("repeatability-request-id", uuid.NewString())
	headers.Set("repeatability-first-sent", s.now().UTC().Format(http.TimeFormat))

	var resp *http.Response
	for attempt := 0; ; attempt++ {
		resp, err = s.do(ctx, http.MethodPost, &sendURL, payload, headers)
		if err != nil {
			return fmt.Errorf("email send request failed: %w", err)
		}

		result := classifyStatus(resp.StatusCode)
		if result == sendAccepted {
			break
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		wait := retryAfter(resp.Header, s.backoff(attempt))
		resp.Body.Close()

		sendErr := fmt.Errorf("email send request failed with status %d: %s", resp.StatusCode, string(body))
		if result == sendReject || attempt+1 >= maxSendAttempts {
			return sendErr
		}

		s.logger.Warn("email send request will be retried",
			slog.Int("status", resp.StatusCode),
			slog.Int("attempt", attempt+1),
			slog.Duration("wait", wait),
		)
		if err := sleepContext(ctx, wait); err != nil {
			return fmt.Errorf("%w (retry aborted: %v)", sendErr, err)
		}
	}
	defer resp.Body.Close()

	var op acsOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return fmt.Errorf("failed to parse email send response: %w", err)
	}

	location := resp.Header.Get("Operation-Location")
	if location == "" {
		if op.Status == acsStatusSucceeded {
			return nil
		}
		return fmt.Errorf("email send response has no Operation-Location (status %q)", op.Status)
	}

	pollURL, err := url.Parse(location)
	if err != nil {
		return fmt.Errorf("invalid Operation-Location %q: %w", location, err)
	}

	s.logger.Debug("email accepted, polling operation",
		slog.String("operation_id", op.ID),
	)

	return s.poll(ctx, pollURL, retryAfter(resp.Header, s.pollInterval))
}

// poll はオペレーションが終端状態になるまでOperation-Locationを問い合わせる。
func (s *ACSSender) poll(ctx context.Context, pollURL *url.URL, wait time.Duration) error {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("email send did not complete: %w", ctx.Err())
		case <-timer.C:
		}

		resp, err := s.do(ctx, http.MethodGet, pollURL, nil, nil)
		if err != nil {
			return fmt.Errorf("email status request failed: %w", err)
		}

		var op acsOperation
		decodeErr := json.NewDecoder(resp.Body).Decode(&op)
		status := resp.StatusCode
		next := retryAfter(resp.Header, s.pollInterval)
		resp.Body.Close()

		if status != http.StatusOK {
			return fmt.Errorf("email status request failed with status %d", status)
		}
		if decodeErr != nil {
			return fmt.Errorf("failed to parse email status response: %w", decodeErr)
		}

		switch op.Status {
		case acsStatusSucceeded:
			return nil
		case acsStatusFailed, acsStatusCanceled:
			if op.Error != nil {
				return fmt.Errorf("email operation %s %s: %s: %s", op.ID, strings.ToLower(op.Status), op.Error.Code, op.Error.Message)
			}
			return fmt.Errorf("email operation %s %s", op.ID, strings.ToLower(op.Status))
		case acsStatusNotStarted, acsStatusRunning:
			timer.Reset(next)
		default:
			return fmt.Errorf("email operation %s returned unknown status %q", op.ID, op.Status)
		}
	}
}

// do は署名付きリクエストを送信する。headersは署名対象外の追加ヘッダー。
func (s *ACSSender) do(ctx context.Context, method string, u *url.URL, body []byte, headers http.Header) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	s.sign(req, body)

	return s.httpClient.Do(req)
}

// sign はHMAC-SHA256の認証ヘッダーを付与する。
// 署名対象は "METHOD\npath?query\ndate;host;content-hash"。
func (s *ACSSender) sign(req *http.Request, body []byte) {
	sum := sha256.Sum256(body)
	contentHash := base64.StdEncoding.EncodeToString(sum[:])
	date := s.now().UTC().Format(http.TimeFormat)

	stringToSign := req.Method + "\n" + req.URL.RequestURI() + "\n" + date + ";" + req.URL.Host + ";" + contentHash

	mac := hmac.New(sha256.New, s.accessKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("x-ms-date", date)
	req.Header.Set("x-ms-content-sha256", contentHash)
	req.Header.Set("Authorization", "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature="+signature)
}

// retryAfter はretry-afterヘッダー（秒）を解釈する。未指定の場合はfallbackを返す。
func retryAfter(h http.Header, fallback time.Duration) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return fallback
	}
	sec, err := strconv.Atoi(v)
	if err != nil || sec < 0 {
		return fallback
	}
	return time.Duration(sec) * time.Second
}
