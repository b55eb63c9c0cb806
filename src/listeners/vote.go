package listeners

import (
	"context"
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/views"
)

// postBallot posts the panel of a fresh ballot in channelID, mirrors it into
// the voting channel and binds both messages. A shell whose panel never
// lands is removed by the orphan sweep.
func (l *Listeners) postBallot(ctx context.Context, d gov.VoteDetailDTO, channelID string) error {
	id, err := l.post(ctx, scheduler.PriorityEdit, channelID, views.VotePanel(d))
	if err != nil {
		return fmt.Errorf("post panel of session %d: %w", d.SessionID, err)
	}
	if err := l.Voting.BindPanel(ctx, d.SessionID, channelID, id); err != nil {
		return fmt.Errorf("bind panel of session %d: %w", d.SessionID, err)
	}

	mirrorChannel := l.Config.Channels.VotingChannel
	if mirrorChannel == "" {
		return nil
	}
	mirrorID, err := l.post(ctx, scheduler.PriorityBroadcast, mirrorChannel, views.VoteMirror(d))
	if err != nil {
		log.Printf("listeners: mirror of session %d: %v", d.SessionID, err)
		return nil
	}
	return l.Voting.BindMirror(ctx, d.SessionID, mirrorID)
}

// refreshBallot re-renders the panel and its mirror.
func (l *Listeners) refreshBallot(ctx context.Context, d gov.VoteDetailDTO) error {
	if err := l.edit(ctx, scheduler.PriorityEdit, d.ContextChannelID, d.ContextMessageID, views.VotePanel(d)); err != nil {
		return err
	}
	return l.edit(ctx, scheduler.PriorityBackground, l.Config.Channels.VotingChannel, d.VotingChannelMessageID, views.VoteMirror(d))
}

func (l *Listeners) notifierRoles() []string {
	return l.Config.Roles[config.RoleVoteCreationNotifier]
}

func (l *Listeners) onVoteCreated(ctx context.Context, e events.VoteCreated) error {
	d := e.Vote
	if err := l.postBallot(ctx, d, d.ContextThreadID); err != nil {
		return err
	}
	roles := l.notifierRoles()
	if !d.Notify || len(roles) == 0 || l.Config.Channels.VotingChannel == "" {
		return nil
	}
	if _, err := l.post(ctx, scheduler.PriorityBroadcast, l.Config.Channels.VotingChannel, views.VoteCreatedNotice(d, roles)); err != nil {
		log.Printf("listeners: notify vote %d: %v", d.SessionID, err)
	}
	return nil
}

func (l *Listeners) onVoteUpdated(ctx context.Context, e events.VoteUpdated) error {
	if !e.Vote.Realtime {
		return nil
	}
	return l.refreshBallot(ctx, e.Vote)
}

func (l *Listeners) onVoteSettings(ctx context.Context, e events.VoteSettingsChanged) error {
	if err := l.refreshBallot(ctx, e.Vote); err != nil {
		return err
	}
	l.postQuiet(ctx, e.Vote.ContextThreadID, views.VoteSettingsNotice(e.Vote, e.Setting, e.Detail, e.ChangedBy))
	return nil
}

func (l *Listeners) onVoteFinished(ctx context.Context, e events.VoteFinished) error {
	if err := l.refreshBallot(ctx, e.Vote); err != nil {
		log.Printf("listeners: close panel of session %d: %v", e.Vote.SessionID, err)
	}
	l.postQuiet(ctx, e.Vote.ContextThreadID, views.VoteFinishedNotice(e.Vote, l.notifierRoles()))
	return nil
}
