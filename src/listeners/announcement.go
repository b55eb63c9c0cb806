package listeners

import (
	"context"
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/views"
)

func (l *Listeners) onAnnouncementCreated(ctx context.Context, e events.AnnouncementCreated) error {
	loc := l.Announcements.Location()
	for _, ch := range e.Channels {
		if _, err := l.post(ctx, scheduler.PriorityBroadcast, ch, views.Announcement(e.Announcement, loc, false)); err != nil {
			log.Printf("listeners: broadcast announcement %d to %s: %v", e.Announcement.ID, ch, err)
		}
	}
	return l.retag(ctx, scheduler.PriorityBackground, e.Announcement.ThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
		return gateway.ThreadEdit{AppliedTags: gateway.Tags(l.Config.SwapTag(t.AppliedTags, config.TagAnnouncementFinished, config.TagAnnouncementInProgress))}
	})
}

func (l *Listeners) onAnnouncementExpired(ctx context.Context, e events.AnnouncementExpired) error {
	l.postQuiet(ctx, e.Announcement.ThreadID, views.AnnouncementEnded(e.Announcement))
	return l.retag(ctx, scheduler.PriorityBackground, e.Announcement.ThreadID, func(t *gateway.Thread) gateway.ThreadEdit {
		return gateway.ThreadEdit{AppliedTags: gateway.Tags(l.Config.SwapTag(t.AppliedTags, config.TagAnnouncementInProgress, config.TagAnnouncementFinished))}
	})
}

func (l *Listeners) onAnnouncementFinished(ctx context.Context, e events.AnnouncementFinished) error {
	moved, err := l.Proposals.OnAnnouncementFinished(ctx, e.Announcement.ThreadID)
	if err != nil {
		return fmt.Errorf("advance proposal %s: %w", e.Announcement.ThreadID, err)
	}
	if moved {
		log.Printf("listeners: proposal %s entered execution after announcement %d", e.Announcement.ThreadID, e.Announcement.ID)
	}
	return nil
}

// onRepostDue rebroadcasts one announcement. The monitor is reset only once
// the message is out, so a failed post is retried on the next sweep.
func (l *Listeners) onRepostDue(ctx context.Context, e events.AnnouncementRepostDue) error {
	m := e.Monitor
	if _, err := l.post(ctx, scheduler.PriorityRepost, m.ChannelID, views.Announcement(m.Announcement, l.Announcements.Location(), true)); err != nil {
		return fmt.Errorf("repost announcement %d to %s: %w", m.AnnouncementID, m.ChannelID, err)
	}
	return l.Announcements.MarkReposted(ctx, m.ID)
}
