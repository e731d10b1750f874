package middleware

import (
	"net/url"
	"strings"
	"testing"
)

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		wantKept []string
		wantGone []string
	}{
		{
			name:     "redacts app key",
			rawQuery: "orgId=abc&appKey=sb_secret_value",
			wantKept: []string{"orgId=abc"},
			wantGone: []string{"sb_secret_value"},
		},
		{
			name:     "redacts mixed case",
			rawQuery: "APPKEY=topsecret&page=2",
			wantKept: []string{"page=2"},
			wantGone: []string{"topsecret"},
		},
		{
			name:     "passes through benign params",
			rawQuery: "orgId=abc&limit=10",
			wantKept: []string{"orgId=abc", "limit=10"},
		},
		{
			name:     "empty query",
			rawQuery: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactQueryString(tt.rawQuery)
			for _, kept := range tt.wantKept {
				if !strings.Contains(got, kept) {
					t.Errorf("redacted query %q lost %q", got, kept)
				}
			}
			for _, gone := range tt.wantGone {
				if strings.Contains(got, gone) {
					t.Errorf("redacted query %q still contains secret %q", got, gone)
				}
			}
		})
	}
}

func TestRedactQueryStringMarksRedactedValues(t *testing.T) {
	got := redactQueryString("secret=hunter2")
	params, err := url.ParseQuery(got)
	if err != nil {
		t.Fatalf("parse redacted query: %v", err)
	}
	if params.Get("secret") != "[REDACTED]" {
		t.Errorf("secret = %q, want [REDACTED]", params.Get("secret"))
	}
}
