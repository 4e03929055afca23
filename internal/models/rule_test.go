package models

import (
	"errors"
	"testing"
	"time"
)

func TestParseClientType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    ClientType
		wantErr bool
	}{
		{"IP", ClientTypeIP, false},
		{"api_key", ClientTypeAPIKey, false},
		{"api-key", ClientTypeAPIKey, false},
		{" USER_ID ", ClientTypeUserID, false},
		{"custom", ClientTypeCustom, false},
		{"", ClientTypeIP, false},
		{"session", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseClientType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClientType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClientType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRateLimitRule_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rule    RateLimitRule
		wantErr bool
	}{
		{"valid", NewDefaultRule(100, 60), false},
		{"zero limit", RateLimitRule{Limit: 0, WindowSeconds: 60, ClientType: ClientTypeIP}, true},
		{"negative window", RateLimitRule{Limit: 5, WindowSeconds: -1, ClientType: ClientTypeIP}, true},
		{"bad client type", RateLimitRule{Limit: 5, WindowSeconds: 1, ClientType: "COOKIE"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRuleConfig) {
				t.Errorf("Validate() error = %v, want wrapped ErrInvalidRuleConfig", err)
			}
		})
	}
}

func TestRuleConstructors(t *testing.T) {
	t.Parallel()

	o := NewOverrideRule(5, 10, "", "")
	if o.Source != RuleSourceOverride || o.Priority != OverridePriority || o.ClientType != ClientTypeIP {
		t.Errorf("NewOverrideRule() = %+v", o)
	}
	if o.Window() != 10*time.Second {
		t.Errorf("Window() = %v, want 10s", o.Window())
	}

	key := "X-Tenant"
	desc := "tenant quota"
	rec := &RuleRecord{EndpointPattern: "/api/**", LimitCount: 7, WindowSeconds: 30, ClientType: ClientTypeCustom, CustomKey: &key, Priority: 42, Description: &desc}
	r := rec.ToRule()
	if r.Source != RuleSourceDynamic || r.Priority != 42 || r.CustomKeyName != "X-Tenant" || r.Limit != 7 {
		t.Errorf("ToRule() = %+v", r)
	}
}

func TestRequestToken_Key(t *testing.T) {
	t.Parallel()
	tok := RequestToken{ClientID: "ip:1.2.3.4", EndpointKey: "/api/orders", Limit: 10, WindowSeconds: 60}
	if got, want := tok.Key("rate_limit"), "rate_limit:ip:1.2.3.4:/api/orders"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestRateLimitDecision_Remaining(t *testing.T) {
	t.Parallel()

	reset := time.Now()
	tests := []struct {
		name string
		d    RateLimitDecision
		want int64
	}{
		{"under", AllowedDecision(3, 10, reset), 7},
		{"at", AllowedDecision(10, 10, reset), 0},
		{"fallback deny", DeniedDecision(10, 10, reset, time.Minute), 0},
		{"over", DeniedDecision(15, 10, reset, time.Minute), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.d.Remaining(); got != tt.want {
				t.Errorf("Remaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRateLimitDecision_RetryAfterSeconds(t *testing.T) {
	t.Parallel()
	if got := AllowedDecision(1, 10, time.Now()).RetryAfterSeconds(); got != 0 {
		t.Errorf("allowed RetryAfterSeconds() = %d, want 0", got)
	}
	if got := DeniedDecision(10, 10, time.Now(), 42*time.Second).RetryAfterSeconds(); got != 42 {
		t.Errorf("denied RetryAfterSeconds() = %d, want 42", got)
	}
	if got := DeniedDecision(10, 10, time.Now(), 1500*time.Millisecond).RetryAfterSeconds(); got != 2 {
		t.Errorf("fractional RetryAfterSeconds() = %d, want 2", got)
	}
}

func TestClientIdentity_Kind(t *testing.T) {
	t.Parallel()
	if got := ClientIdentity("apikey:abc").Kind(); got != "apikey" {
		t.Errorf("Kind() = %q, want apikey", got)
	}
	if got := ClientIdentity("weird").Kind(); got != "" {
		t.Errorf("Kind() = %q, want empty", got)
	}
}

func TestParseSeverity(t *testing.T) {
	t.Parallel()
	if s, ok := ParseSeverity("high"); !ok || s != SeverityHigh {
		t.Errorf("ParseSeverity(high) = %q, %v", s, ok)
	}
	if _, ok := ParseSeverity("urgent"); ok {
		t.Error("ParseSeverity(urgent) should fail")
	}
}

func TestJWTClaims_Subject(t *testing.T) {
	t.Parallel()
	if got := (&JWTClaims{Sub: "a", UserID: "b"}).Subject(); got != "a" {
		t.Errorf("Subject() = %q, want a", got)
	}
	if got := (&JWTClaims{UserID: "b"}).Subject(); got != "b" {
		t.Errorf("Subject() = %q, want b", got)
	}
	var nilClaims *JWTClaims
	if got := nilClaims.Subject(); got != "" {
		t.Errorf("nil Subject() = %q, want empty", got)
	}
}

func TestRateLimitDecision_Demand(t *testing.T) {
	t.Parallel()
	d := DeniedDecision(10, 10, time.Now(), time.Second)
	if got := d.Demand(); got != 10 {
		t.Errorf("Demand() = %d, want 10", got)
	}
	d.Attempts = 31
	if got := d.Demand(); got != 31 {
		t.Errorf("Demand() = %d, want 31", got)
	}
}
