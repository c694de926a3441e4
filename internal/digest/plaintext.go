package digest

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// blockElements は終了時に改行を挿入する要素。
var blockElements = map[string]bool{
	"div": true, "p": true, "h1": true, "h2": true, "h3": true,
	"tr": true, "table": true, "br": true,
}

// PlainText はダイジェストHTMLからmultipart/alternative用のテキスト版を生成する。
// 表のセルはタブ区切り、ブロック要素は改行区切りにし、空行は1行に畳む。
func PlainText(body string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(body))

	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", err
			}
			return collapseBlankLines(b.String()), nil
		case html.TextToken:
			text := strings.Join(strings.Fields(string(z.Text())), " ")
			if text != "" {
				b.WriteString(text)
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "td", "th":
				b.WriteString("\t")
			case "br":
				b.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if blockElements[string(name)] {
				b.WriteString("\n")
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
