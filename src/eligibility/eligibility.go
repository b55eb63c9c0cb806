// Package eligibility decides whether a user may vote in a thread.
package eligibility

import "github.com/stellaria-pact/governance/src/shared/gov"

// DefaultRequiredMessages is the participation bar used when none is configured.
const DefaultRequiredMessages = 3

// IsEligible reports whether the combined message count reaches required.
// A disqualified current record always loses; a disqualified inherited
// record only stops contributing its count.
func IsEligible(current, inherited *gov.UserActivity, required int) bool {
	if current != nil && current.Validation == 0 {
		return false
	}
	return EffectiveCount(current, inherited) >= required
}

// EffectiveCount sums the current count and the inherited one when valid.
func EffectiveCount(current, inherited *gov.UserActivity) int {
	n := 0
	if current != nil {
		n += current.MessageCount
	}
	if inherited != nil && inherited.Validation != 0 {
		n += inherited.MessageCount
	}
	return n
}

// Checker binds the configured threshold.
type Checker struct {
	Required int
}

// New returns a Checker; a non-positive required falls back to the default.
func New(required int) Checker {
	if required <= 0 {
		required = DefaultRequiredMessages
	}
	return Checker{Required: required}
}

// Eligible applies IsEligible with the configured threshold.
func (c Checker) Eligible(current, inherited *gov.UserActivity) bool {
	return IsEligible(current, inherited, c.Required)
}
