package security

import "testing"

func TestPlainText(t *testing.T) {
	s := NewTextSanitizer()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"空文字列", "", ""},
		{"プレーンテキスト", "vm-prod-01", "vm-prod-01"},
		{"タグ除去", "<b>vm</b>-01", "vm-01"},
		{"scriptは中身ごと除去", "db<script>alert(1)</script>", "db"},
		{"引用符は復元", "Bob's VM & \"cache\"", "Bob's VM & \"cache\""},
		{"前後の空白", "  Azure SQL  ", "Azure SQL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.PlainText(tt.in); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPlainText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	in := "<i>Basic</i> Load Balancer"

	first := s.PlainText(in)
	if second := s.PlainText(first); second != first {
		t.Errorf("2回目の結果が異なる: %q != %q", second, first)
	}
}
