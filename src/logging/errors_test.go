package logging

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

func TestIsRateLimit(t *testing.T) {
	rest := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	assert.True(t, IsRateLimit(fmt.Errorf("post: %w", rest)))
	assert.False(t, IsRateLimit(&discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}))
	assert.True(t, IsRateLimit(&discordgo.RateLimitError{RateLimit: &discordgo.RateLimit{TooManyRequests: &discordgo.TooManyRequests{}, URL: "/channels"}}))
	assert.True(t, IsRateLimit(errors.New("rate_limit exceeded")))
	assert.False(t, IsRateLimit(errors.New("boom")))
	assert.False(t, IsRateLimit(nil))
}
