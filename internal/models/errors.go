package models

import "errors"

var (
	// ErrInvalidRuleConfig marks a rule with a non-positive limit or window
	ErrInvalidRuleConfig = errors.New("invalid rate limit rule")
	// ErrStoreUnavailable marks a failed or timed out counting store call
	ErrStoreUnavailable = errors.New("counting store unavailable")
	// ErrMalformedReply marks an unparseable counting store reply
	ErrMalformedReply = errors.New("malformed counting store reply")
	// ErrRuleLookup marks a failed dynamic rule store query
	ErrRuleLookup = errors.New("dynamic rule lookup failed")
	// ErrRuleNotFound is returned when a rule id does not exist
	ErrRuleNotFound = errors.New("rule not found")
)
