package logger

import (
	"strings"
	"testing"
)

func TestSanitizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "/api/orders", "/api/orders"},
		{"control chars", "/api/\x00orders\x1b", "/api/orders"},
		{"invalid utf8", "/api/\xffx", "/api/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := SanitizePath(tt.in); got != tt.want {
				t.Errorf("SanitizePath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	long := "/" + strings.Repeat("a", MaxPathLength+10)
	if got := SanitizePath(long); len(got) != MaxPathLength+3 {
		t.Errorf("SanitizePath(long) len = %d, want %d", len(got), MaxPathLength+3)
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"", "****"},
		{"short", "****"},
		{"12345678", "****"},
		{"abcd-secret-wxyz", "abcd****wxyz"},
	}
	for _, tt := range tests {
		if got := MaskSecret(tt.in); got != tt.want {
			t.Errorf("MaskSecret(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeClientID(t *testing.T) {
	t.Parallel()
	if got := SanitizeClientID("apikey:abcd-secret-wxyz"); got != "apikey:abcd****wxyz" {
		t.Errorf("SanitizeClientID(apikey) = %q", got)
	}
	if got := SanitizeClientID("ip:10.0.0.1"); got != "ip:10.0.0.1" {
		t.Errorf("SanitizeClientID(ip) = %q", got)
	}
	if got := SanitizeClientID("custom:a\nb"); got != "custom:a\nb" {
		t.Errorf("SanitizeClientID(custom) = %q", got)
	}
}
