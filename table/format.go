package table

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// USD 美元金额，固定两位小数，带千分位
func USD(v float64) string {
	if v < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -v)
	}
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Count 带千分位的整数
func Count(n int64) string { return humanize.Comma(n) }

// Date 日期，零值为空串
func Date(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}

// Ago 相对时间，如 "3 minutes ago"
func Ago(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}

// Truncate 按字符截断，超出部分以 "…" 代替
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Bytes 文件大小，如 "1.2 kB"
func Bytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}
