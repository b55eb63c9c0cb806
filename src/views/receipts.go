package views

import (
	"fmt"
	"time"

	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

// Private answers to commands and clicks.

func SlowDown() gateway.MessagePayload {
	return Notice("You're clicking too fast, try again in a moment.")
}

func VoteCreatedReceipt(d gov.VoteDetailDTO) gateway.MessagePayload {
	msg := fmt.Sprintf("Vote **%s** created.", d.Title)
	if d.EndTime != nil {
		msg += " It ends " + relative(*d.EndTime) + "."
	}
	return Notice(msg)
}

func EndTimeReceipt(c gov.EndTimeChange) gateway.MessagePayload {
	return Notice("The vote now ends " + absolute(c.New) + ".")
}

func ReopenReceipt(d gov.VoteDetailDTO) gateway.MessagePayload {
	msg := "The vote is open again."
	if d.EndTime != nil {
		msg = "The vote is open again until " + absolute(*d.EndTime) + "."
	}
	return Notice(msg)
}

func ToggleReceipt(setting string, value bool) gateway.MessagePayload {
	state := "off"
	if value {
		state = "on"
	}
	return Notice(fmt.Sprintf("**%s** is now %s.", setting, state))
}

func ExecutionReceipt(c gov.ConfirmationDTO) gateway.MessagePayload {
	if c.Status == gov.ConfirmationCompleted {
		return Notice("Execution confirmed. The proposal is now executing.")
	}
	return Notice(fmt.Sprintf("Execution requested. Waiting for %s.", pluralize(len(c.RequiredRoles)-len(c.ConfirmedParties), "more confirmation", "more confirmations")))
}

func ConfirmationReceipt(c gov.ConfirmationDTO) gateway.MessagePayload {
	switch c.Status {
	case gov.ConfirmationCompleted:
		return Notice("Confirmed. The proposal is now executing.")
	case gov.ConfirmationCanceled:
		return Notice("Execution request canceled.")
	}
	return Notice("Confirmed. Waiting for the remaining roles.")
}

func TransitionReceipt(p gov.ProposalDTO) gateway.MessagePayload {
	return Notice(fmt.Sprintf("**%s** is now %s.", p.Title, p.Status))
}

func KickReceipt(userID string, removed int64, until *time.Time) gateway.MessagePayload {
	msg := fmt.Sprintf("%s can no longer vote in this thread. Removed %s.", mention(userID), pluralize(int(removed), "vote", "votes"))
	if until != nil {
		msg += " The restriction lifts " + relative(*until) + "."
	}
	return Notice(msg)
}

func RestoreReceipt(userID string) gateway.MessagePayload {
	return Notice(fmt.Sprintf("%s may vote in this thread again.", mention(userID)))
}

func ObjectionReceipt(o gov.ObjectionDTO) gateway.MessagePayload {
	if o.Status == gov.ObjectionPendingReview {
		return Notice("Your objection was sent to the moderators for review.")
	}
	return Notice(fmt.Sprintf("Your objection is open for support. It needs %s.", pluralize(o.RequiredVotes, "supporter", "supporters")))
}

func ReviewReceipt(o gov.ObjectionDTO, approved bool) gateway.MessagePayload {
	if approved {
		return Notice(fmt.Sprintf("Objection #%d approved for support collection.", o.ID))
	}
	return Notice(fmt.Sprintf("Objection #%d rejected.", o.ID))
}

func AnnouncementReceipt(a gov.AnnouncementDTO) gateway.MessagePayload {
	return Notice(fmt.Sprintf("Announcement **%s** is live until %s.", a.Title, absolute(a.EndTime)))
}
