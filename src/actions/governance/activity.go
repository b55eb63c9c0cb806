package governance

import (
	"context"
	"log"

	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/proposal"
)

// ThreadCreated registers a new discussion forum thread as a proposal.
func (h *Handler) ThreadCreated(ctx context.Context, t gateway.Thread) {
	p, err := h.Proposals.CreateFromThread(ctx, proposal.ThreadQO{
		ThreadID: t.ID,
		ParentID: t.ParentID,
		OwnerID:  t.OwnerID,
		Title:    t.Name,
	})
	if err != nil {
		log.Printf("governance: register thread %s: %v", t.ID, err)
		return
	}
	if p != nil {
		log.Printf("governance: thread %s registered as proposal %d", t.ID, p.ID)
	}
}

// MessageCreated counts a human message towards participation and towards
// the repost threshold of monitored broadcast channels.
func (h *Handler) MessageCreated(ctx context.Context, channelID, userID string) {
	if _, err := h.Voting.TrackActivity(ctx, channelID, userID, 1); err != nil {
		log.Printf("governance: track activity in %s: %v", channelID, err)
	}
	if _, err := h.Announcements.CountMessage(ctx, channelID); err != nil {
		log.Printf("governance: count message in %s: %v", channelID, err)
	}
}

// MessageDeleted takes a deleted message back off the author's count.
func (h *Handler) MessageDeleted(ctx context.Context, channelID, userID string) {
	if _, err := h.Voting.TrackActivity(ctx, channelID, userID, -1); err != nil {
		log.Printf("governance: track activity in %s: %v", channelID, err)
	}
}
