package views

import (
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/errs"
)

// ErrorReply renders err for the user; internal details never leave the process.
func ErrorReply(err error) gateway.MessagePayload {
	return gateway.MessagePayload{Content: "⚠️ " + errs.UserMessage(err)}
}

// Notice is a plain text reply.
func Notice(msg string) gateway.MessagePayload {
	return gateway.MessagePayload{Content: msg}
}
