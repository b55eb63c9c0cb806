package announcement

import (
	"context"
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
)

func (e *Engine) invalidate() {
	e.mu.Lock()
	e.channels = nil
	e.mu.Unlock()
}

// monitored reports whether channelID has a monitor of an active
// announcement, loading the cache on first use.
func (e *Engine) monitored(ctx context.Context, channelID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.channels == nil {
		var ids []string
		err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
			var err error
			ids, err = uow.Monitors().ListMonitoredChannelIDs()
			return err
		})
		if err != nil {
			return false, err
		}
		e.channels = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			e.channels[id] = struct{}{}
		}
	}
	_, ok := e.channels[channelID]
	return ok, nil
}

// CountMessage counts one user message in channelID for every active
// monitor there. It reports whether the channel is monitored.
func (e *Engine) CountMessage(ctx context.Context, channelID string) (bool, error) {
	ok, err := e.monitored(ctx, channelID)
	if err != nil || !ok {
		return false, err
	}
	err = e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		_, err := uow.Monitors().IncrementCount(channelID)
		return err
	})
	return true, err
}

// PublishDueReposts asks for a rebroadcast of every monitor that crossed
// both its message threshold and its interval.
func (e *Engine) PublishDueReposts(ctx context.Context) (int, error) {
	var due []gov.MonitorDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		due, err = uow.Monitors().GetPendingReposts()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("announcement: pending reposts: %w", err)
	}
	for _, m := range due {
		e.bus.Publish(ctx, events.AnnouncementRepostDue{Monitor: m})
	}
	return len(due), nil
}

// MarkReposted resets a monitor after its rebroadcast went out.
func (e *Engine) MarkReposted(ctx context.Context, monitorID uint64) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.Monitors().MarkReposted(monitorID)
	})
}

// CloseExpired finishes every active announcement past its end time, each in
// its own unit of work, and returns how many were closed.
func (e *Engine) CloseExpired(ctx context.Context) (int, error) {
	var expired []gov.Announcement
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		expired, err = uow.Announcements().GetExpired()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("announcement: list expired: %w", err)
	}

	closed := 0
	for _, a := range expired {
		var removed int64
		finished := false
		err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
			var err error
			finished, err = uow.Announcements().MarkFinished(a.ID)
			if err != nil || !finished {
				return err
			}
			removed, err = uow.Monitors().DeleteByAnnouncement(a.ID)
			return err
		})
		if err != nil {
			log.Printf("announcement: close %d: %v", a.ID, err)
			continue
		}
		if !finished {
			continue
		}
		closed++
		if removed > 0 {
			e.invalidate()
		}

		a.Status = gov.AnnouncementFinished
		dto := a.ToDTO()
		log.Printf("announcement: %d finished (%d monitors removed)", a.ID, removed)
		e.bus.Publish(ctx, events.AnnouncementExpired{Announcement: dto})
		if a.AutoExecute {
			e.bus.Publish(ctx, events.AnnouncementFinished{Announcement: dto})
		}
	}
	return closed, nil
}
