package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/kusuridheeraj/titan-grid/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("client_type", validateClientType); err != nil {
		panic(fmt.Sprintf("failed to register client_type validator: %v", err))
	}
	if err := Validate.RegisterValidation("endpoint_pattern", validateEndpointPattern); err != nil {
		panic(fmt.Sprintf("failed to register endpoint_pattern validator: %v", err))
	}
}

// validateClientType accepts the canonical ClientType names
func validateClientType(fl validator.FieldLevel) bool {
	switch models.ClientType(fl.Field().String()) {
	case models.ClientTypeIP, models.ClientTypeAPIKey, models.ClientTypeUserID, models.ClientTypeCustom:
		return true
	default:
		return false
	}
}

// validateEndpointPattern requires a rooted path pattern without whitespace
func validateEndpointPattern(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if !strings.HasPrefix(p, "/") {
		return false
	}
	return !strings.ContainsFunc(p, unicode.IsSpace)
}

// ValidateRule validates an effective rule and wraps failures in ErrInvalidRuleConfig.
func ValidateRule(rule models.RateLimitRule) error {
	if err := Validate.Struct(rule); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidRuleConfig, describe(err))
	}
	if rule.ClientType == models.ClientTypeCustom && strings.TrimSpace(rule.CustomKeyName) == "" {
		return fmt.Errorf("%w: custom_key is required for CUSTOM client type", models.ErrInvalidRuleConfig)
	}
	return nil
}

// ValidateRuleRecord validates a dynamic rule row before it is written.
func ValidateRuleRecord(rec *models.RuleRecord) error {
	if rec == nil {
		return fmt.Errorf("%w: rule is required", models.ErrInvalidRuleConfig)
	}
	if err := Validate.Struct(rec); err != nil {
		return fmt.Errorf("%w: %s", models.ErrInvalidRuleConfig, describe(err))
	}
	if rec.ClientType == models.ClientTypeCustom && (rec.CustomKey == nil || strings.TrimSpace(*rec.CustomKey) == "") {
		return fmt.Errorf("%w: custom_key is required for CUSTOM client type", models.ErrInvalidRuleConfig)
	}
	return nil
}

// describe flattens validator errors into "field: tag" pairs
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
