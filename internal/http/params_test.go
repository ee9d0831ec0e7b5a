package http

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"expensetracker/internal/core"

	"github.com/shopspring/decimal"
)

func TestMonthParams(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	tests := []struct {
		name      string
		query     string
		wantYear  int
		wantMonth int
	}{
		{"both given", "year=2024&month=12", 2024, 12},
		{"year only", "year=2023", 2023, 3},
		{"empty", "", 2025, 3},
		{"month 13", "month=13", 2025, 3},
		{"garbage", "year=abc&month=x", 2025, 3},
		{"two digit year", "year=20", 2025, 3},
		{"padded", "year=+2022+&month=+7", 2022, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			y, m := monthParams(q, today)
			if y != tt.wantYear || m != tt.wantMonth {
				t.Errorf("monthParams(%q) = %d-%d, want %d-%d", tt.query, y, m, tt.wantYear, tt.wantMonth)
			}
		})
	}
}

func TestReadFields(t *testing.T) {
	tests := []struct {
		name  string
		ctype string
		body  string
		key   string
		want  string
	}{
		{"form", "application/x-www-form-urlencoded", "title=form+test&amount=100", "title", "form test"},
		{"json string trimmed", "application/json", `{"api_key": "  sk-123 "}`, "api_key", "sk-123"},
		{"json bool", "application/json", `{"online": true}`, "online", "true"},
		{"json number kept exact", "", `{"amount": 12.10}`, "amount", "12.10"},
		{"control characters", "", "title=a%00b%07c", "title", "abc"},
		{"empty body", "", "", "missing", ""},
		{"empty json body", "application/json; charset=utf-8", "", "missing", ""},
		{"nested values ignored", "application/json", `{"x": {"y": 1}}`, "x", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/expenses", strings.NewReader(tt.body))
			if tt.ctype != "" {
				req.Header.Set("Content-Type", tt.ctype)
			}
			f, err := ReadFields(req)
			if err != nil {
				t.Fatalf("ReadFields: %v", err)
			}
			if got := f.Get(tt.key); got != tt.want {
				t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestReadFields_BadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api-key", strings.NewReader(`{"a":`))
	if _, err := ReadFields(req); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestFormatAmount(t *testing.T) {
	tests := map[string]string{
		"0":          "0.00",
		"12.5":       "12.50",
		"999.99":     "999.99",
		"1000":       "1,000.00",
		"-2500.5":    "-2,500.50",
		"1234567.89": "1,234,567.89",
	}
	for in, want := range tests {
		if got := formatAmount(decimal.RequireFromString(in)); got != want {
			t.Errorf("formatAmount(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  hi\x00\tthere\n "); got != "hi\tthere" {
		t.Errorf("sanitizeInput = %q", got)
	}
}
