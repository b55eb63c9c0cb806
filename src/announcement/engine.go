// Package announcement runs timed notices: creation, channel monitors that
// drive rebroadcasts, and expiry.
package announcement

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/shared/text"
	"github.com/stellaria-pact/governance/src/store"
)

// EndLayout is the wall-clock format accepted for an explicit end time.
const EndLayout = "2006-01-02 15:04"

// Config tunes the engine.
type Config struct {
	Location          *time.Location
	BroadcastChannels []string
	// Defaults for monitors when the announcer gives none.
	RepostThreshold       int
	RepostIntervalMinutes int
}

// Engine is the announcement engine. It also owns the cache of monitored
// channel ids consulted on every incoming message.
type Engine struct {
	store *store.Store
	bus   *events.Bus
	cfg   Config

	mu       sync.Mutex
	channels map[string]struct{}
}

// New builds the engine.
func New(st *store.Store, bus *events.Bus, cfg Config) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RepostThreshold <= 0 {
		cfg.RepostThreshold = 20
	}
	if cfg.RepostIntervalMinutes <= 0 {
		cfg.RepostIntervalMinutes = 60
	}
	return &Engine{store: st, bus: bus, cfg: cfg}
}

// ParseEnd turns the announcer's input into an end time. A bare number is a
// duration in hours; anything else is a wall-clock time in loc.
func ParseEnd(input string, now time.Time, loc *time.Location) (time.Time, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return time.Time{}, errs.Validation("Give an end time as hours or %q.", EndLayout)
	}
	if hours, err := strconv.Atoi(input); err == nil {
		if !gov.ValidDuration(hours) {
			return time.Time{}, errs.Validation("Announcements must run between %d and %d hours.", gov.MinDurationHours, gov.MaxDurationHours)
		}
		return now.Add(time.Duration(hours) * time.Hour).UTC(), nil
	}
	end, err := time.ParseInLocation(EndLayout, input, loc)
	if err != nil {
		return time.Time{}, errs.Validation("Could not read %q, use hours or %q.", input, EndLayout)
	}
	d := end.Sub(now)
	if d < time.Duration(gov.MinDurationHours)*time.Hour || d > time.Duration(gov.MaxDurationHours)*time.Hour {
		return time.Time{}, errs.Validation("Announcements must end between %d and %d hours from now.", gov.MinDurationHours, gov.MaxDurationHours)
	}
	return end.UTC(), nil
}

// CreateQO describes a new announcement.
type CreateQO struct {
	ThreadID    string
	AnnouncerID string
	Title       string
	Content     string
	End         string
	AutoExecute bool
	Repost      bool
	// Threshold and IntervalMinutes override the monitor defaults when positive.
	Threshold       int
	IntervalMinutes int
}

// Create stores the announcement and, with reposting on, one monitor per
// broadcast channel, then asks for the initial broadcast.
func (e *Engine) Create(ctx context.Context, qo CreateQO) (gov.AnnouncementDTO, error) {
	title := text.Sanitize(qo.Title, gov.MaxTitleLength)
	content := text.Sanitize(qo.Content, gov.MaxContentLength)
	if title == "" || content == "" {
		return gov.AnnouncementDTO{}, errs.Validation("An announcement needs a title and content.")
	}
	end, err := ParseEnd(qo.End, e.store.Now(), e.cfg.Location)
	if err != nil {
		return gov.AnnouncementDTO{}, err
	}
	threshold, interval := e.cfg.RepostThreshold, e.cfg.RepostIntervalMinutes
	if qo.Threshold > 0 {
		threshold = qo.Threshold
	}
	if qo.IntervalMinutes > 0 {
		interval = qo.IntervalMinutes
	}

	var dto gov.AnnouncementDTO
	err = e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadID(qo.ThreadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("Announcements can only be made inside a proposal thread.")
		}
		if err != nil {
			return err
		}
		if qo.AutoExecute && p.Status != gov.ProposalDiscussion {
			return errs.State("Auto-execute needs a proposal in discussion; this one is %s.", p.Status)
		}

		a := gov.Announcement{
			ThreadID:    qo.ThreadID,
			AnnouncerID: qo.AnnouncerID,
			Title:       title,
			Content:     content,
			EndTime:     end,
			AutoExecute: qo.AutoExecute,
		}
		err = uow.Announcements().Create(&a)
		if errors.Is(err, store.ErrDuplicate) {
			return errs.State("This thread already has an announcement.")
		}
		if err != nil {
			return err
		}
		if qo.Repost {
			for _, ch := range e.cfg.BroadcastChannels {
				m := gov.AnnouncementChannelMonitor{
					AnnouncementID:      a.ID,
					ChannelID:           ch,
					MessageThreshold:    threshold,
					TimeIntervalMinutes: interval,
				}
				if err := uow.Monitors().Create(&m); err != nil {
					return err
				}
			}
		}
		dto = a.ToDTO()
		return nil
	})
	if err != nil {
		return gov.AnnouncementDTO{}, err
	}
	if qo.Repost {
		e.invalidate()
	}

	log.Printf("announcement: %d created in %s, ends %s", dto.ID, dto.ThreadID, dto.EndTime.In(e.cfg.Location).Format(EndLayout))
	e.bus.Publish(ctx, events.AnnouncementCreated{
		Announcement: dto,
		Channels:     append([]string(nil), e.cfg.BroadcastChannels...),
	})
	return dto, nil
}

// Get returns the announcement of a thread.
func (e *Engine) Get(ctx context.Context, threadID string) (gov.AnnouncementDTO, error) {
	var dto gov.AnnouncementDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		a, err := uow.Announcements().GetByThreadID(threadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("This thread has no announcement.")
		}
		if err != nil {
			return err
		}
		dto = a.ToDTO()
		return nil
	})
	return dto, err
}

// Location returns the display timezone.
func (e *Engine) Location() *time.Location { return e.cfg.Location }
