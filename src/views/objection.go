package views

import (
	"fmt"

	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

func objectionHeader(title string) string {
	return "Objection: " + title
}

// SupportPanel renders the support-collection panel. The buttons stay while
// the objection can still gather or lose support.
func SupportPanel(s gov.SupportResultDTO) gateway.MessagePayload {
	embed := gateway.Embed{
		Title:       objectionHeader(s.ProposalTitle),
		Description: field(s.Reason),
		Color:       ColorWarning,
		Fields: []gateway.EmbedField{
			{Name: "Raised by", Value: mention(s.ObjectorID), Inline: true},
			{Name: "Proposal", Value: channelLink(s.ProposalThreadID), Inline: true},
			{Name: "Support", Value: fmt.Sprintf("%d / %d", s.CurrentSupporters, s.RequiredSupporters), Inline: true},
		},
		Footer: fmt.Sprintf("Objection %d", s.ObjectionID),
	}
	if s.EndTime != nil && s.ObjectionStatus == gov.ObjectionCollectingVotes {
		embed.Fields = append(embed.Fields, gateway.EmbedField{Name: "Collection ends", Value: relative(*s.EndTime)})
	}
	if s.ObjectionStatus == gov.ObjectionVoting {
		embed.Color = ColorSuccess
		embed.Fields = append(embed.Fields, gateway.EmbedField{Name: "Status", Value: "Goal reached, a formal vote is being prepared."})
	}

	p := gateway.MessagePayload{Embeds: []gateway.Embed{embed}}
	if s.ObjectionStatus == gov.ObjectionCollectingVotes || s.ObjectionStatus == gov.ObjectionVoting {
		p.Rows = []gateway.ActionRow{{Buttons: []gateway.Button{
			{Label: "Support", CustomID: SupportButtonID(ActionSupport), Style: gateway.ButtonPrimary},
			{Label: "Withdraw", CustomID: SupportButtonID(ActionWithdraw), Style: gateway.ButtonSecondary},
		}}}
	}
	return p
}

// SupportPanelPromoted closes the panel once the objection has its own thread.
func SupportPanelPromoted(o gov.ObjectionDTO, supporters int) gateway.MessagePayload {
	return gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       objectionHeader(o.ProposalTitle),
		Description: field(o.Reason),
		Color:       ColorSuccess,
		Fields: []gateway.EmbedField{
			{Name: "Support", Value: fmt.Sprintf("%d / %d", supporters, o.RequiredVotes), Inline: true},
			{Name: "Formal vote", Value: channelLink(o.ObjectionThreadID), Inline: true},
		},
		Footer: fmt.Sprintf("Objection %d", o.ID),
	}}}
}

// SupportPanelExpired closes the panel when collection ran out.
func SupportPanelExpired(o gov.ObjectionDTO, supporters int) gateway.MessagePayload {
	return gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       objectionHeader(o.ProposalTitle),
		Description: field(o.Reason),
		Color:       ColorNeutral,
		Fields: []gateway.EmbedField{
			{Name: "Support", Value: fmt.Sprintf("%d / %d", supporters, o.RequiredVotes), Inline: true},
			{Name: "Result", Value: "Collection expired without reaching the goal.", Inline: true},
		},
		Footer: fmt.Sprintf("Objection %d", o.ID),
	}}}
}

// SupportReceipt is the clicker's private confirmation.
func SupportReceipt(s gov.SupportResultDTO) gateway.MessagePayload {
	var msg string
	switch s.Outcome {
	case gov.OutcomeSupported:
		msg = "Your support was recorded."
	case gov.OutcomeAlreadySupported:
		msg = "You already support this objection."
	case gov.OutcomeWithdrew:
		msg = "Your support was withdrawn."
	default:
		msg = "You had not supported this objection."
	}
	return gateway.MessagePayload{Content: fmt.Sprintf("%s (%d / %d)", msg, s.CurrentSupporters, s.RequiredSupporters)}
}

// ReviewRequest renders the moderator review thread starter. Decided
// requests keep their embed but lose the buttons.
func ReviewRequest(o gov.ObjectionDTO, decided bool) gateway.MessagePayload {
	p := gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       "Review: " + objectionHeader(o.ProposalTitle),
		Description: field(o.Reason),
		Color:       ColorWarning,
		Fields: []gateway.EmbedField{
			{Name: "Raised by", Value: mention(o.ObjectorID), Inline: true},
			{Name: "Proposal", Value: channelLink(o.ProposalThreadID), Inline: true},
			{Name: "Support needed", Value: fmt.Sprint(o.RequiredVotes), Inline: true},
		},
		Footer: fmt.Sprintf("Objection %d", o.ID),
	}}}
	if !decided {
		p.Rows = []gateway.ActionRow{{Buttons: []gateway.Button{
			{Label: "Approve", CustomID: ReviewButtonID(ActionApprove, o.ID), Style: gateway.ButtonSuccess},
			{Label: "Reject", CustomID: ReviewButtonID(ActionReject, o.ID), Style: gateway.ButtonDanger},
		}}}
	}
	return p
}

// ReviewResult is posted in the review thread after a decision.
func ReviewResult(o gov.ObjectionDTO, approved bool, moderatorID, comment string) gateway.MessagePayload {
	embed := gateway.Embed{
		Title:       "Objection rejected by moderation",
		Description: fmt.Sprintf("Reviewed by %s.", mention(moderatorID)),
		Color:       ColorDanger,
		Footer:      fmt.Sprintf("Objection %d", o.ID),
	}
	if approved {
		embed.Title = "Objection approved for support collection"
		embed.Color = ColorSuccess
	}
	if comment != "" {
		embed.Fields = []gateway.EmbedField{{Name: "Comment", Value: field(comment)}}
	}
	return gateway.MessagePayload{Embeds: []gateway.Embed{embed}}
}

// ObjectionThreadStarter opens the objection's own discussion thread.
func ObjectionThreadStarter(o gov.ObjectionDTO) gateway.MessagePayload {
	return gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       objectionHeader(o.ProposalTitle),
		Description: field(o.Reason),
		Color:       ColorWarning,
		Fields: []gateway.EmbedField{
			{Name: "Raised by", Value: mention(o.ObjectorID), Inline: true},
			{Name: "Proposal", Value: channelLink(o.ProposalThreadID), Inline: true},
		},
		Footer: fmt.Sprintf("Objection %d · the proposal is frozen until the formal vote ends", o.ID),
	}}}
}

// ObjectionThreadName names the objection thread.
func ObjectionThreadName(o gov.ObjectionDTO) string {
	return ThreadName(objectionHeader(o.ProposalTitle))
}

// FrozenNotice is posted in the proposal thread when it freezes.
func FrozenNotice(o gov.ObjectionDTO) gateway.MessagePayload {
	return gateway.MessagePayload{Embeds: []gateway.Embed{{
		Title:       "Proposal frozen",
		Description: fmt.Sprintf("An objection reached its support goal. Discussion continues in %s.", channelLink(o.ObjectionThreadID)),
		Color:       ColorWarning,
	}}}
}

// ObjectionResult is posted in both threads when the formal vote ends.
func ObjectionResult(o gov.ObjectionDTO, v gov.VoteDetailDTO, passed bool) gateway.MessagePayload {
	embed := gateway.Embed{
		Title:       "Objection failed",
		Description: "The proposal returns to discussion.",
		Color:       ColorDanger,
		Fields: []gateway.EmbedField{
			{Name: "Approve", Value: fmt.Sprint(v.TotalApprove), Inline: true},
			{Name: "Reject", Value: fmt.Sprint(v.TotalReject), Inline: true},
		},
		Footer: fmt.Sprintf("Objection %d", o.ID),
	}
	if passed {
		embed.Title = "Objection passed"
		embed.Description = "The proposal is rejected."
		embed.Color = ColorSuccess
	}
	return gateway.MessagePayload{Embeds: []gateway.Embed{embed}}
}

// ObjectionModal is the form behind the raise command.
func ObjectionModal() gateway.Modal {
	return gateway.Modal{
		CustomID: ObjectionModalID(),
		Title:    "Raise an objection",
		Inputs: []gateway.TextInput{{
			CustomID:    "reason",
			Label:       "Why do you object?",
			Placeholder: "Explain what is wrong with this proposal",
			Paragraph:   true,
			Required:    true,
			MinLength:   10,
			MaxLength:   gov.MaxReasonLength,
		}},
	}
}
