package gov

// Accepted range for ballot and announcement durations, in hours.
const (
	MinDurationHours = 4
	MaxDurationHours = 168
)

// Field limits applied to user supplied text.
const (
	MaxTitleLength   = 100
	MaxReasonLength  = 1000
	MaxContentLength = 4000
	MaxOptionLength  = 80
	MaxOptions       = 4
)

// ValidDuration reports whether hours lies in the accepted range.
func ValidDuration(hours int) bool {
	return hours >= MinDurationHours && hours <= MaxDurationHours
}
