package views

import (
	"fmt"
	"strings"

	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

func voteTitle(d gov.VoteDetailDTO) string {
	if d.Title != "" {
		return d.Title
	}
	return "Vote"
}

func tallyLine(o gov.OptionTally) string {
	return fmt.Sprintf("✅ %d · ❌ %d · total %d", o.Approve, o.Reject, o.Total)
}

func choiceLabel(c int8) string {
	if c == gov.ChoiceApprove {
		return "approve"
	}
	return "reject"
}

func voteFields(d gov.VoteDetailDTO) []gateway.EmbedField {
	var fields []gateway.EmbedField
	if d.TotalChoices == 0 {
		fields = append(fields, gateway.EmbedField{Name: "Tally", Value: tallyLine(d.Options[0])})
	} else {
		for _, o := range d.Options {
			fields = append(fields, gateway.EmbedField{
				Name:  fmt.Sprintf("%d. %s", o.ChoiceIndex, o.Text),
				Value: tallyLine(o),
			})
		}
	}
	if len(d.Voters) > 0 {
		fields = append(fields, gateway.EmbedField{Name: "Voters", Value: field(voterList(d))})
	}
	return fields
}

func voterList(d gov.VoteDetailDTO) string {
	var b strings.Builder
	for i, v := range d.Voters {
		if i == maxVoterLines {
			fmt.Fprintf(&b, "… and %d more", len(d.Voters)-i)
			break
		}
		if d.TotalChoices > 0 {
			fmt.Fprintf(&b, "%s %s #%d\n", mention(v.UserID), choiceLabel(v.Choice), v.ChoiceIndex)
		} else {
			fmt.Fprintf(&b, "%s %s\n", mention(v.UserID), choiceLabel(v.Choice))
		}
	}
	return strings.TrimSpace(b.String())
}

// VotePanel renders the public ballot panel. Closed ballots lose their buttons.
func VotePanel(d gov.VoteDetailDTO) gateway.MessagePayload {
	embed := gateway.Embed{
		Title:  voteTitle(d),
		Color:  ColorInfo,
		Fields: voteFields(d),
	}
	if d.IsOpen && !d.Realtime {
		embed.Fields = []gateway.EmbedField{{Name: "Results", Value: "Hidden until voting closes."}}
	}

	var desc []string
	if d.CreatorID != "" {
		desc = append(desc, "Started by "+mention(d.CreatorID))
	}
	switch {
	case d.IsOpen && d.EndTime != nil:
		desc = append(desc, "Ends "+relative(*d.EndTime))
	case !d.IsOpen:
		result := "❌ Not passed"
		embed.Color = ColorDanger
		if d.IsPassed() {
			result = "✅ Passed"
			embed.Color = ColorSuccess
		}
		desc = append(desc, "**Voting closed.** "+result)
	}
	var flags []string
	if d.Anonymous {
		flags = append(flags, "anonymous")
	}
	if d.Realtime {
		flags = append(flags, "live results")
	}
	if len(flags) > 0 {
		desc = append(desc, "_"+strings.Join(flags, ", ")+"_")
	}
	embed.Description = strings.Join(desc, "\n")
	embed.Footer = fmt.Sprintf("Session %d · %s", d.SessionID, pluralize(d.TotalVotes, "vote", "votes"))

	p := gateway.MessagePayload{Embeds: []gateway.Embed{embed}}
	if d.IsOpen {
		p.Rows = voteRows(d)
	}
	return p
}

func voteRows(d gov.VoteDetailDTO) []gateway.ActionRow {
	if d.TotalChoices == 0 {
		return []gateway.ActionRow{{Buttons: ballotButtons(1, "")}}
	}
	rows := make([]gateway.ActionRow, 0, len(d.Options))
	for _, o := range d.Options {
		rows = append(rows, gateway.ActionRow{Buttons: ballotButtons(o.ChoiceIndex, fmt.Sprintf("%d. ", o.ChoiceIndex))})
	}
	return rows
}

func ballotButtons(idx int, prefix string) []gateway.Button {
	return []gateway.Button{
		{Label: prefix + "Approve", CustomID: VoteButtonID(ActionApprove, idx), Style: gateway.ButtonSuccess},
		{Label: prefix + "Reject", CustomID: VoteButtonID(ActionReject, idx), Style: gateway.ButtonDanger},
		{Label: prefix + "Abstain", CustomID: VoteButtonID(ActionAbstain, idx), Style: gateway.ButtonSecondary},
	}
}

// VoteMirror renders the copy posted in the voting channel.
func VoteMirror(d gov.VoteDetailDTO) gateway.MessagePayload {
	p := VotePanel(d)
	p.Rows = nil
	p.Embeds[0].Fields = append(p.Embeds[0].Fields, gateway.EmbedField{
		Name:  "Cast your vote",
		Value: "In " + channelLink(d.ContextThreadID),
	})
	return p
}

// VoteCreatedNotice pings the notifier role about a new ballot.
func VoteCreatedNotice(d gov.VoteDetailDTO, roleIDs []string) gateway.MessagePayload {
	return gateway.MessagePayload{
		Content:      fmt.Sprintf("%s A new vote is open: **%s**", roleMentions(roleIDs), voteTitle(d)),
		MentionRoles: roleIDs,
	}
}

// VoteFinishedNotice announces a closed ballot in its thread.
func VoteFinishedNotice(d gov.VoteDetailDTO, roleIDs []string) gateway.MessagePayload {
	result := "did not pass"
	if d.IsPassed() {
		result = "passed"
	}
	content := fmt.Sprintf("Voting on **%s** has ended and %s (%d approve, %d reject).",
		voteTitle(d), result, d.TotalApprove, d.TotalReject)
	p := gateway.MessagePayload{Content: content}
	if d.Notify && len(roleIDs) > 0 {
		p.Content = roleMentions(roleIDs) + " " + content
		p.MentionRoles = roleIDs
	}
	return p
}

// VoteReceipt is the voter's private confirmation.
func VoteReceipt(d gov.VoteDetailDTO, action string, idx int) gateway.MessagePayload {
	what := "your vote"
	if d.TotalChoices > 0 {
		for _, o := range d.Options {
			if o.ChoiceIndex == idx {
				what = fmt.Sprintf("your vote on **%s**", o.Text)
			}
		}
	}
	var msg string
	switch action {
	case ActionApprove:
		msg = fmt.Sprintf("Recorded %s: approve.", what)
	case ActionReject:
		msg = fmt.Sprintf("Recorded %s: reject.", what)
	default:
		msg = fmt.Sprintf("Removed %s.", what)
	}
	if !d.Realtime {
		msg += " Results are published when the vote ends."
	}
	return gateway.MessagePayload{Content: msg}
}

// VoteSettingsNotice reports a changed ballot setting in the thread.
func VoteSettingsNotice(d gov.VoteDetailDTO, setting, detail, changedBy string) gateway.MessagePayload {
	var what string
	switch setting {
	case "end_time":
		what = fmt.Sprintf("extended the deadline by %s", detail)
		if d.EndTime != nil {
			what += ", now ending " + absolute(*d.EndTime)
		}
	case "reopen":
		what = fmt.Sprintf("reopened the vote for %s", detail)
	default:
		what = fmt.Sprintf("set %s to %s", setting, detail)
	}
	return gateway.MessagePayload{Content: fmt.Sprintf("%s %s on **%s**.", mention(changedBy), what, voteTitle(d))}
}

func roleMentions(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, "<@&"+id+">")
	}
	return strings.Join(parts, " ")
}
