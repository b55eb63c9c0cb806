package loops

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stellaria-pact/governance/src/announcement"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/voting"
	"golang.org/x/time/rate"
)

// Cadences of the governance sweeps.
const (
	VoteCloserInterval         = 2 * time.Minute
	AnnouncementCloserInterval = 2 * time.Minute
	RebroadcastInterval        = time.Minute
	ReconcileInterval          = 2 * time.Minute

	// ReconcileWindow bounds how far back missed forum threads are looked for.
	ReconcileWindow = 72 * time.Hour
	// OrphanShellAge is how long a ballot may wait for its panel message.
	OrphanShellAge = 15 * time.Minute
)

// Deps are the collaborators of the governance sweeps.
type Deps struct {
	DiscussionForumID string
	Gateway           gateway.Gateway
	Scheduler         *scheduler.Scheduler
	Voting            *voting.Engine
	Proposals         *proposal.Engine
	Announcements     *announcement.Engine
	Now               func() time.Time
}

// Tasks returns the standard sweeps.
func Tasks(d Deps) []Task {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return []Task{
		{Name: "vote-closer", Interval: VoteCloserInterval, Run: d.closeVotes},
		{Name: "announcement-closer", Interval: AnnouncementCloserInterval, Run: d.closeAnnouncements},
		{Name: "rebroadcast", Interval: RebroadcastInterval, Run: d.rebroadcast},
		{Name: "reconcile", Interval: ReconcileInterval, Run: d.reconcileSweep()},
	}
}

func (d Deps) closeVotes(ctx context.Context) error {
	n, err := d.Voting.CloseExpired(ctx)
	if n > 0 {
		log.Printf("loops: closed %d expired votes", n)
	}
	return err
}

func (d Deps) closeAnnouncements(ctx context.Context) error {
	n, err := d.Announcements.CloseExpired(ctx)
	if n > 0 {
		log.Printf("loops: finished %d announcements", n)
	}
	return err
}

func (d Deps) rebroadcast(ctx context.Context) error {
	_, err := d.Announcements.PublishDueReposts(ctx)
	return err
}

// reconcileSweep registers forum threads the gateway events missed and drops
// ballot shells whose panel never got posted. The limiter persists across
// runs so the sweep never exceeds one thread per second.
func (d Deps) reconcileSweep() func(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	return func(ctx context.Context) error {
		if d.DiscussionForumID != "" {
			since := d.Now().Add(-ReconcileWindow)
			threads, err := scheduler.Do(ctx, d.Scheduler, scheduler.PriorityReconcile, "list forum threads",
				func(ctx context.Context) ([]gateway.Thread, error) {
					return d.Gateway.ListForumThreads(ctx, d.DiscussionForumID, since)
				})
			if err != nil {
				return fmt.Errorf("list forum threads: %w", err)
			}
			qos := make([]proposal.ThreadQO, 0, len(threads))
			for _, t := range threads {
				qos = append(qos, proposal.ThreadQO{ThreadID: t.ID, ParentID: t.ParentID, OwnerID: t.OwnerID, Title: t.Name})
			}
			n, err := d.Proposals.Reconcile(ctx, qos, limiter)
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
			if n > 0 {
				log.Printf("loops: reconciled %d missed proposal threads", n)
			}
		}

		removed, err := d.Voting.DeleteOrphanShells(ctx, OrphanShellAge)
		if err != nil {
			return fmt.Errorf("orphan shells: %w", err)
		}
		if removed > 0 {
			log.Printf("loops: removed %d orphan vote shells", removed)
		}
		return nil
	}
}
