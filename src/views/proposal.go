package views

import (
	"fmt"
	"strings"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

var roleTitles = map[string]string{
	config.RoleCouncilModerator:  "Council moderator",
	config.RoleExecutionAuditor: "Execution auditor",
}

func roleTitle(key string) string {
	if t, ok := roleTitles[key]; ok {
		return t
	}
	return key
}

// ConfirmationPanel renders an execution confirmation ticket.
func ConfirmationPanel(c gov.ConfirmationDTO, p gov.ProposalDTO) gateway.MessagePayload {
	var lines []string
	for _, role := range c.RequiredRoles {
		if uid, ok := c.ConfirmedParties[role]; ok {
			lines = append(lines, fmt.Sprintf("✅ %s: %s", roleTitle(role), mention(uid)))
		} else {
			lines = append(lines, fmt.Sprintf("⏳ %s", roleTitle(role)))
		}
	}

	embed := gateway.Embed{
		Title:       "Enter execution: " + p.Title,
		Description: strings.Join(lines, "\n"),
		Color:       ColorInfo,
		Footer:      fmt.Sprintf("Requested by %s", c.InitiatorID),
	}
	switch c.Status {
	case gov.ConfirmationCompleted:
		embed.Color = ColorSuccess
		embed.Fields = []gateway.EmbedField{{Name: "Result", Value: "Confirmed, the proposal is now executing."}}
	case gov.ConfirmationCanceled:
		embed.Color = ColorNeutral
		embed.Fields = []gateway.EmbedField{{Name: "Result", Value: "Canceled by " + mention(c.CancelerID)}}
	}

	out := gateway.MessagePayload{Embeds: []gateway.Embed{embed}}
	if c.Status == gov.ConfirmationPending {
		out.Rows = []gateway.ActionRow{{Buttons: []gateway.Button{
			{Label: "Confirm", CustomID: ConfirmButtonID(ActionConfirm), Style: gateway.ButtonSuccess},
			{Label: "Cancel", CustomID: ConfirmButtonID(ActionCancel), Style: gateway.ButtonDanger},
		}}}
	}
	return out
}

// StatusNotice is posted in a proposal thread after a status change.
func StatusNotice(p gov.ProposalDTO, from gov.ProposalStatus, actorID string) gateway.MessagePayload {
	msg := fmt.Sprintf("Proposal status: **%s** → **%s**", from, p.Status)
	if actorID != "" {
		msg += " by " + mention(actorID)
	}
	return gateway.MessagePayload{Content: msg}
}
