package listeners

import (
	"context"
	"fmt"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/views"
)

func (l *Listeners) onProposalCreated(ctx context.Context, e events.ProposalThreadCreated) error {
	return l.retag(ctx, scheduler.PriorityBackground, e.Proposal.ThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
		return gateway.ThreadEdit{AppliedTags: gateway.Tags(l.Config.ReplaceStatusTag(t.AppliedTags, config.TagDiscussion))}
	})
}

// onProposalStatus follows plain status moves. Freezing and the objection
// outcomes rename and lock the thread and are handled by the objection listeners.
func (l *Listeners) onProposalStatus(ctx context.Context, e events.ProposalStatusChanged) error {
	if e.Proposal.Status == gov.ProposalFrozen {
		return nil
	}
	if _, err := l.post(ctx, scheduler.PriorityFollowUp, e.Proposal.ThreadID, views.StatusNotice(e.Proposal, e.From, e.ActorID)); err != nil && !gone(err) {
		return fmt.Errorf("status notice: %w", err)
	}
	closing := e.Proposal.Status == gov.ProposalAbandoned || e.Proposal.Status == gov.ProposalFinished
	return l.retag(ctx, scheduler.PriorityBackground, e.Proposal.ThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
		edit := gateway.ThreadEdit{AppliedTags: gateway.Tags(l.Config.ReplaceStatusTag(t.AppliedTags, config.ForStatus(e.Proposal.Status)))}
		if closing {
			edit.Archived = gateway.Bool(true)
		}
		return edit
	})
}

func (l *Listeners) onConfirmation(ctx context.Context, e events.ConfirmationUpdated) error {
	c := e.Confirmation
	if !e.Created {
		return l.edit(ctx, scheduler.PriorityEdit, c.ChannelID, c.MessageID, views.ConfirmationPanel(c, e.Proposal))
	}
	id, err := l.post(ctx, scheduler.PriorityEdit, c.ChannelID, views.ConfirmationPanel(c, e.Proposal))
	if err != nil {
		return fmt.Errorf("post confirmation %d: %w", c.ID, err)
	}
	return l.Proposals.BindConfirmationPanel(ctx, c.ID, id)
}
