package listeners

import (
	"context"
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/views"
)

func (l *Listeners) publicityChannel(o gov.ObjectionDTO) string {
	if l.Config.Channels.ObjectionPublicity != "" {
		return l.Config.Channels.ObjectionPublicity
	}
	return o.ProposalThreadID
}

func (l *Listeners) onObjectionCollect(ctx context.Context, e events.ObjectionVoteInitiation) error {
	channelID := l.publicityChannel(e.Objection)
	id, err := l.post(ctx, scheduler.PriorityEdit, channelID, views.SupportPanel(e.Support))
	if err != nil {
		return fmt.Errorf("post support panel for objection %d: %w", e.Objection.ID, err)
	}
	if err := l.Objections.BindSupportPanel(ctx, e.SessionID, channelID, id); err != nil {
		return fmt.Errorf("bind support panel: %w", err)
	}
	if channelID != e.Objection.ProposalThreadID {
		notice := views.Notice(fmt.Sprintf("An objection was raised against this proposal. Support it in <#%s>.", channelID))
		if _, err := l.post(ctx, scheduler.PriorityFollowUp, e.Objection.ProposalThreadID, notice); err != nil && !gone(err) {
			log.Printf("listeners: objection notice in %s: %v", e.Objection.ProposalThreadID, err)
		}
	}
	return nil
}

func (l *Listeners) onObjectionReviewRequest(ctx context.Context, e events.ObjectionAdminReviewInitiation) error {
	if l.Config.Channels.ReviewChannel == "" {
		return fmt.Errorf("objection %d needs review but no review channel is configured", e.Objection.ID)
	}
	t, err := l.createThread(ctx, l.Config.Channels.ReviewChannel,
		views.ThreadName("Review: "+e.Objection.ProposalTitle), views.ReviewRequest(e.Objection, false), nil)
	if err != nil {
		return fmt.Errorf("create review thread for objection %d: %w", e.Objection.ID, err)
	}
	return l.Objections.BindReviewThread(ctx, e.Objection.ID, t.ID)
}

// onObjectionReviewed closes the review thread. Forum starter messages share
// the id of their thread.
func (l *Listeners) onObjectionReviewed(ctx context.Context, e events.ObjectionReviewed) error {
	threadID := e.Objection.ReviewThreadID
	if threadID == "" {
		return nil
	}
	if err := l.edit(ctx, scheduler.PriorityEdit, threadID, threadID, views.ReviewRequest(e.Objection, true)); err != nil {
		return err
	}
	if _, err := l.post(ctx, scheduler.PriorityFollowUp, threadID, views.ReviewResult(e.Objection, e.Approved, e.ModeratorID, e.Comment)); err != nil && !gone(err) {
		return fmt.Errorf("post review result: %w", err)
	}
	return l.editThread(ctx, scheduler.PriorityBackground, threadID, gateway.ThreadEdit{Archived: gateway.Bool(true)})
}

func (l *Listeners) onSupportChanged(ctx context.Context, e events.ObjectionSupportChanged) error {
	return l.edit(ctx, scheduler.PriorityEdit, e.Support.PanelChannelID, e.Support.PanelMessageID, views.SupportPanel(e.Support))
}

// onGoalReached opens the objection thread. A withdrawal may have reverted
// the objection in the meantime, in which case nothing happens.
func (l *Listeners) onGoalReached(ctx context.Context, e events.ObjectionGoalReached) error {
	o, err := l.Objections.BeginFormalPhase(ctx, e.Support.ObjectionID)
	if err != nil {
		return fmt.Errorf("begin formal phase: %w", err)
	}
	if o == nil {
		return nil
	}
	var tags []string
	if id := l.Config.Tags.ID(config.TagDiscussion); id != "" {
		tags = []string{id}
	}
	t, err := l.createThread(ctx, l.Config.Channels.Discussion, views.ObjectionThreadName(*o), views.ObjectionThreadStarter(*o), tags)
	if err != nil {
		return fmt.Errorf("create objection thread for %d: %w", o.ID, err)
	}
	if _, err := l.Objections.BindObjectionThread(ctx, o.ID, t.ID); err != nil {
		if errs.Is(err, errs.KindState) {
			log.Printf("listeners: objection %d changed before thread %s was bound: %v", o.ID, t.ID, err)
			return l.editThread(ctx, scheduler.PriorityBackground, t.ID, gateway.ThreadEdit{Archived: gateway.Bool(true), Locked: gateway.Bool(true)})
		}
		return err
	}
	return nil
}

// onObjectionThread freezes the proposal thread and opens the formal ballot.
func (l *Listeners) onObjectionThread(ctx context.Context, e events.ObjectionThreadCreated) error {
	o := e.Objection
	if _, err := l.post(ctx, scheduler.PriorityFollowUp, o.ProposalThreadID, views.FrozenNotice(o)); err != nil && !gone(err) {
		log.Printf("listeners: frozen notice in %s: %v", o.ProposalThreadID, err)
	}
	if err := l.retag(ctx, scheduler.PriorityEdit, o.ProposalThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
		return gateway.ThreadEdit{
			Name:        gateway.String(views.Retitle(views.PrefixFrozen, t.Name)),
			AppliedTags: gateway.Tags(l.Config.ReplaceStatusTag(t.AppliedTags, config.TagFrozen)),
			Archived:    gateway.Bool(true),
			Locked:      gateway.Bool(true),
		}
	}); err != nil {
		log.Printf("listeners: freeze thread %s: %v", o.ProposalThreadID, err)
	}

	if support, err := l.Objections.SupportSession(ctx, o.ID); err == nil {
		if err := l.edit(ctx, scheduler.PriorityEdit, support.ContextChannelID, support.ContextMessageID, views.SupportPanelPromoted(o, support.TotalApprove)); err != nil {
			log.Printf("listeners: promote support panel of objection %d: %v", o.ID, err)
		}
	}

	if _, err := l.Voting.CreateFormalObjectionVote(ctx, o.ID); err != nil {
		return fmt.Errorf("formal vote for objection %d: %w", o.ID, err)
	}
	return nil
}

func (l *Listeners) onFormalVote(ctx context.Context, e events.ObjectionFormalVoteInitiation) error {
	return l.postBallot(ctx, e.Vote, e.Objection.ObjectionThreadID)
}

// onObjectionFinished applies the formal outcome to both threads. A passed
// objection rejects the proposal for good; a failed one reopens it.
func (l *Listeners) onObjectionFinished(ctx context.Context, e events.ObjectionVoteFinished) error {
	o := e.Objection
	if err := l.refreshBallot(ctx, e.Vote); err != nil {
		log.Printf("listeners: close formal ballot %d: %v", e.Vote.SessionID, err)
	}
	result := views.ObjectionResult(o, e.Vote, e.Passed)

	if e.Passed {
		l.postQuiet(ctx, o.ProposalThreadID, result)
		l.postQuiet(ctx, o.ObjectionThreadID, result)
		if err := l.retag(ctx, scheduler.PriorityEdit, o.ProposalThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
			return gateway.ThreadEdit{
				Name:        gateway.String(views.Retitle(views.PrefixRejected, t.Name)),
				AppliedTags: gateway.Tags(l.Config.ReplaceStatusTag(t.AppliedTags, config.TagRejected)),
				Archived:    gateway.Bool(true),
				Locked:      gateway.Bool(true),
			}
		}); err != nil {
			log.Printf("listeners: reject proposal thread %s: %v", o.ProposalThreadID, err)
		}
		if err := l.editThread(ctx, scheduler.PriorityBackground, o.ObjectionThreadID,
			gateway.ThreadEdit{Archived: gateway.Bool(true), Locked: gateway.Bool(true)}); err != nil && !gone(err) {
			log.Printf("listeners: close objection thread %s: %v", o.ObjectionThreadID, err)
		}
	} else {
		if err := l.retag(ctx, scheduler.PriorityEdit, o.ProposalThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
			return gateway.ThreadEdit{
				Name:        gateway.String(views.StripStatus(t.Name)),
				AppliedTags: gateway.Tags(l.Config.ReplaceStatusTag(t.AppliedTags, config.TagDiscussion)),
				Archived:    gateway.Bool(false),
				Locked:      gateway.Bool(false),
			}
		}); err != nil {
			log.Printf("listeners: reopen proposal thread %s: %v", o.ProposalThreadID, err)
		}
		l.postQuiet(ctx, o.ProposalThreadID, result)
		l.postQuiet(ctx, o.ObjectionThreadID, result)
		if err := l.retag(ctx, scheduler.PriorityBackground, o.ObjectionThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
			return gateway.ThreadEdit{
				Name:        gateway.String(views.Retitle(views.PrefixRejected, t.Name)),
				AppliedTags: gateway.Tags(l.Config.ReplaceStatusTag(t.AppliedTags, config.TagRejected)),
				Archived:    gateway.Bool(true),
				Locked:      gateway.Bool(true),
			}
		}); err != nil {
			log.Printf("listeners: reject objection thread %s: %v", o.ObjectionThreadID, err)
		}
	}

	support, err := l.Objections.SupportSession(ctx, o.ID)
	if err != nil {
		return nil
	}
	return l.edit(ctx, scheduler.PriorityBackground, support.ContextChannelID, support.ContextMessageID, result)
}

func (l *Listeners) onCollectionExpired(ctx context.Context, e events.ObjectionCollectionExpired) error {
	return l.edit(ctx, scheduler.PriorityEdit, e.Vote.ContextChannelID, e.Vote.ContextMessageID,
		views.SupportPanelExpired(e.Objection, e.Vote.TotalApprove))
}

func (l *Listeners) postQuiet(ctx context.Context, channelID string, p gateway.MessagePayload) {
	if channelID == "" {
		return
	}
	if _, err := l.post(ctx, scheduler.PriorityFollowUp, channelID, p); err != nil {
		log.Printf("listeners: post in %s: %v", channelID, err)
	}
}
