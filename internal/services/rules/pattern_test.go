package rules

import "testing"

func TestMatchPattern(t *testing.T) {
	t.Parallel()
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/api/orders", "/api/orders", true},
		{"/api/orders", "/api/orders/", true},
		{"/api/orders", "/api/orders/1", false},
		{"/api/*", "/api/orders", true},
		{"/api/*", "/api/orders/1", false},
		{"/api/*/items", "/api/7/items", true},
		{"/api/**", "/api", true},
		{"/api/**", "/api/a/b/c", true},
		{"/api/**/export", "/api/a/b/export", true},
		{"/api/**/export", "/api/export", true},
		{"/api/**/export", "/api/a/b/import", false},
		{"/api/v*/users", "/api/v2/users", true},
		{"/api/v*/users", "/api/beta/users", false},
		{"/api/v?/users", "/api/v1/users", true},
		{"/api/v?/users", "/api/v10/users", false},
		{"/**", "/anything/at/all", true},
		{"/**/**/x", "/a/x", true},
		{"/login", "/logout", false},
		{"/", "/", true},
		{"/", "/a", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.path, func(t *testing.T) {
			t.Parallel()
			if got := MatchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("MatchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}
