// Package views renders DTOs into gateway payloads. Renderers are pure: they
// never touch storage or the gateway.
package views

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/stellaria-pact/governance/src/shared/text"
)

const (
	ColorInfo         = 0x0099ff
	ColorSuccess      = 0x00ff00
	ColorDanger       = 0xe74c3c
	ColorWarning      = 0xf1c40f
	ColorAnnouncement = 0x9b59b6
	ColorNeutral      = 0x95a5a6
)

const (
	maxThreadName = 100
	maxFieldValue = 1024
	maxVoterLines = 40
)

// Prefixes used when retitling threads.
const (
	PrefixFrozen   = "[Frozen]"
	PrefixRejected = "[Rejected]"
)

var statusPrefix = regexp.MustCompile(`^(\[[A-Za-z]+\]\s*)+`)

// Retitle replaces any leading [Status] markers of name with prefix.
func Retitle(prefix, name string) string {
	base := strings.TrimSpace(statusPrefix.ReplaceAllString(name, ""))
	return text.Truncate(prefix+" "+base, maxThreadName)
}

// StripStatus removes any leading [Status] markers of name.
func StripStatus(name string) string {
	return ThreadName(statusPrefix.ReplaceAllString(name, ""))
}

// ThreadName caps a thread name at the platform limit.
func ThreadName(name string) string {
	return text.Truncate(strings.TrimSpace(name), maxThreadName)
}

func mention(userID string) string {
	if userID == "" {
		return "unknown"
	}
	return "<@" + userID + ">"
}

func channelLink(id string) string {
	return "<#" + id + ">"
}

func relative(t time.Time) string {
	return fmt.Sprintf("<t:%d:R>", t.Unix())
}

func absolute(t time.Time) string {
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

func field(value string) string {
	if value == "" {
		return "-"
	}
	return text.Truncate(value, maxFieldValue)
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
