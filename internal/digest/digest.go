// Package digest は通知候補からメール本文とアプリ内通知の文面を生成する。
// 生成処理はすべてメモリ上で完結し、送信前に完全な本文を確定させる。
package digest

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"time"

	"github.com/hitoshi/deprenotify/internal/urgency"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// NotAvailable は代替サービスが未設定の場合の表示。
const NotAvailable = "N/A"

const dateLayout = "2006-01-02"

// Digest はユーザー1人分の通知メール。
type Digest struct {
	Subject string
	HTML    string
	Text    string // HTMLから生成したプレーンテキスト版
	Count   int    // 掲載したリソース数
}

// TierStyle はティアごとの固定文言と配色。
type TierStyle struct {
	Title      string
	Note       string
	Color      template.CSS
	Background template.CSS
}

// tierStyles はティアごとの見出しと説明文。
var tierStyles = map[urgency.Tier]TierStyle{
	urgency.TierCritical: {
		Title:      "Critical: Action Required Within 2 Weeks",
		Note:       "These resources will be deprecated within 2 weeks. Immediate action is required.",
		Color:      "#dc3545",
		Background: "#fff5f5",
	},
	urgency.TierUrgent: {
		Title:      "Urgent: Action Required Within 1 Month",
		Note:       "These resources will be deprecated within 1 month. Please plan migration soon.",
		Color:      "#ff9800",
		Background: "#fff8e1",
	},
	urgency.TierWarning: {
		Title:      "Warning: Action Required Within 3 Months",
		Note:       "These resources will be deprecated within 3 months. Please begin planning their migration.",
		Color:      "#0288d1",
		Background: "#e1f5fe",
	},
}

// StyleFor はティアの固定文言を返す。
func StyleFor(tier urgency.Tier) TierStyle {
	return tierStyles[tier]
}

// Options はメールの製品名などの差し替え可能な文言。
type Options struct {
	Title      string // メール見出しと件名の接頭辞
	PortalName string // フッターに表示するポータル名
}

// DefaultOptions はデフォルトの文言を返す。
func DefaultOptions() Options {
	return Options{
		Title:      "Cloud Resources Deprecation Alert",
		PortalName: "Multicloud Deprecation Tracker",
	}
}

type row struct {
	Name            string
	Type            string
	DeprecationDate string
	DaysRemaining   int
	Replacement     string
}

type section struct {
	Style TierStyle
	Rows  []row
}

type templateData struct {
	Title      string
	PortalName string
	Sections   []section
}

// Renderer はティア分けされた候補からDigestを生成する。
type Renderer struct {
	tmpl *template.Template
	opts Options
}

// NewRenderer はテンプレートを読み込んでRendererを生成する。
func NewRenderer(opts Options) (*Renderer, error) {
	defaults := DefaultOptions()
	if opts.Title == "" {
		opts.Title = defaults.Title
	}
	if opts.PortalName == "" {
		opts.PortalName = defaults.PortalName
	}

	tmpl, err := template.New("digest.html.tmpl").
		Funcs(template.FuncMap{"even": func(i int) bool { return i%2 == 0 }}).
		ParseFS(templatesFS, "templates/digest.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to parse digest template: %w", err)
	}

	return &Renderer{tmpl: tmpl, opts: opts}, nil
}

// Render はティアごとのセクションをcritical、urgent、warningの順に並べたDigestを返す。
// 候補のないティアは出力しない。入力は変更しない。
func (r *Renderer) Render(tiers urgency.Tiers) (*Digest, error) {
	data := templateData{
		Title:      r.opts.Title,
		PortalName: r.opts.PortalName,
	}

	for _, tier := range tiers.NonEmpty() {
		sec := section{Style: StyleFor(tier)}
		for _, c := range tiers[tier] {
			sec.Rows = append(sec.Rows, row{
				Name:            c.Name,
				Type:            c.Type,
				DeprecationDate: FormatDate(c.DeprecationDate),
				DaysRemaining:   c.DaysUntilDeprecation,
				Replacement:     c.Replacement(NotAvailable),
			})
		}
		data.Sections = append(data.Sections, sec)
	}

	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render digest: %w", err)
	}

	body := buf.String()
	text, err := PlainText(body)
	if err != nil {
		return nil, fmt.Errorf("failed to build plain text digest: %w", err)
	}

	count := tiers.Count()
	return &Digest{
		Subject: fmt.Sprintf("%s - %d Resources Requiring Action", r.opts.Title, count),
		HTML:    body,
		Text:    text,
		Count:   count,
	}, nil
}

// FormatDate は廃止予定日の表示形式（YYYY-MM-DD）を返す。
func FormatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}
