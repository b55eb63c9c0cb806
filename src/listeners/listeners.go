// Package listeners turns engine events into chat-platform side effects.
// Every outbound call goes through the scheduler; results that the engines
// need to remember (message and thread ids) are bound back afterwards.
package listeners

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/announcement"
	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/objection"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/voting"
)

// Deps are the collaborators of the listeners.
type Deps struct {
	Config        config.PactConfig
	Gateway       gateway.Gateway
	Scheduler     *scheduler.Scheduler
	Voting        *voting.Engine
	Objections    *objection.Engine
	Proposals     *proposal.Engine
	Announcements *announcement.Engine
}

// Listeners holds the subscribed handlers.
type Listeners struct {
	Deps
}

// Register subscribes every listener on bus.
func Register(bus *events.Bus, d Deps) *Listeners {
	l := &Listeners{Deps: d}

	events.On(bus, "listeners.proposal_created", l.onProposalCreated)
	events.On(bus, "listeners.proposal_status", l.onProposalStatus)
	events.On(bus, "listeners.confirmation", l.onConfirmation)

	events.On(bus, "listeners.objection_collect", l.onObjectionCollect)
	events.On(bus, "listeners.objection_review", l.onObjectionReviewRequest)
	events.On(bus, "listeners.objection_reviewed", l.onObjectionReviewed)
	events.On(bus, "listeners.objection_support", l.onSupportChanged)
	events.On(bus, "listeners.objection_goal", l.onGoalReached)
	events.On(bus, "listeners.objection_thread", l.onObjectionThread)
	events.On(bus, "listeners.objection_ballot", l.onFormalVote)
	events.On(bus, "listeners.objection_finished", l.onObjectionFinished)
	events.On(bus, "listeners.objection_expired", l.onCollectionExpired)

	events.On(bus, "listeners.vote_created", l.onVoteCreated)
	events.On(bus, "listeners.vote_updated", l.onVoteUpdated)
	events.On(bus, "listeners.vote_settings", l.onVoteSettings)
	events.On(bus, "listeners.vote_finished", l.onVoteFinished)

	events.On(bus, "listeners.announcement_created", l.onAnnouncementCreated)
	events.On(bus, "listeners.announcement_expired", l.onAnnouncementExpired)
	events.On(bus, "listeners.announcement_finished", l.onAnnouncementFinished)
	events.On(bus, "listeners.announcement_repost", l.onRepostDue)

	return l
}

// gone reports a target that no longer exists or is out of reach.
func gone(err error) bool {
	return errors.Is(err, gateway.ErrNotFound) || errors.Is(err, gateway.ErrForbidden)
}

func (l *Listeners) post(ctx context.Context, priority int, channelID string, p gateway.MessagePayload) (string, error) {
	return scheduler.Do(ctx, l.Scheduler, priority, "post message", func(ctx context.Context) (string, error) {
		return l.Gateway.PostMessage(ctx, channelID, p)
	})
}

func (l *Listeners) edit(ctx context.Context, priority int, channelID, messageID string, p gateway.MessagePayload) error {
	if channelID == "" || messageID == "" {
		return nil
	}
	err := l.Scheduler.Exec(ctx, priority, "edit message", func(ctx context.Context) error {
		return l.Gateway.EditMessage(ctx, channelID, messageID, p)
	})
	if gone(err) {
		log.Printf("listeners: message %s in %s is gone: %v", messageID, channelID, err)
		return nil
	}
	return err
}

func (l *Listeners) thread(ctx context.Context, threadID string) (*gateway.Thread, error) {
	return scheduler.Do(ctx, l.Scheduler, scheduler.PriorityBackground, "fetch thread", func(ctx context.Context) (*gateway.Thread, error) {
		return l.Gateway.FetchThread(ctx, threadID)
	})
}

func (l *Listeners) editThread(ctx context.Context, priority int, threadID string, e gateway.ThreadEdit) error {
	return l.Scheduler.Exec(ctx, priority, "edit thread", func(ctx context.Context) error {
		return l.Gateway.EditThread(ctx, threadID, e)
	})
}

func (l *Listeners) createThread(ctx context.Context, forumID, name string, p gateway.MessagePayload, tags []string) (*gateway.Thread, error) {
	return scheduler.Do(ctx, l.Scheduler, scheduler.PriorityEdit, "create thread", func(ctx context.Context) (*gateway.Thread, error) {
		return l.Gateway.CreateThread(ctx, forumID, name, p, tags)
	})
}

// retag fetches a thread and rewrites its tags with fn, plus any extra edits.
func (l *Listeners) retag(ctx context.Context, priority int, threadID string, fn func(t *gateway.Thread) gateway.ThreadEdit) error {
	t, err := l.thread(ctx, threadID)
	if gone(err) {
		log.Printf("listeners: thread %s is gone: %v", threadID, err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch thread %s: %w", threadID, err)
	}
	if err := l.editThread(ctx, priority, threadID, fn(t)); err != nil && !gone(err) {
		return fmt.Errorf("edit thread %s: %w", threadID, err)
	}
	return nil
}
