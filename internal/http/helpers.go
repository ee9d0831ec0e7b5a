package http

import (
	"html/template"
	"strings"
	"time"

	"expensetracker/internal/core"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var templateFuncs = template.FuncMap{
	"amount":    formatAmount,
	"monthName": monthName,
	"bytes":     func(n int64) string { return humanize.IBytes(uint64(n)) },
	"ago":       humanize.Time,
	"stamp":     func(t time.Time) string { return t.Local().Format("2006-01-02 15:04") },
	"prevYear":  func(y int) int { return y - 1 },
	"nextYear":  func(y int) int { return y + 1 },
}

// formatAmount renders an amount with two decimals and a thousands separator.
func formatAmount(d decimal.Decimal) string {
	s := core.FormatAmount(d)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

func monthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return time.Month(m).String()
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, then trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// barWidth scales v against peak into a rounded percentage, keeping tiny
// non-zero values visible.
func barWidth(v, peak decimal.Decimal) int {
	if !peak.IsPositive() || !v.IsPositive() {
		return 0
	}
	w := int(v.Mul(decimal.NewFromInt(100)).Div(peak).Round(0).IntPart())
	if w < 2 {
		w = 2
	}
	if w > 100 {
		w = 100
	}
	return w
}
