package voting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
)

// Actor is the user changing a ballot. Privileged actors (stewards) may
// manage any ballot; others only the ones they created. Formal objection
// ballots are managed by stewards alone, the objector included.
type Actor struct {
	UserID     string
	Privileged bool
}

func (a Actor) owns(s *gov.VoteSession) bool {
	if a.Privileged {
		return true
	}
	return s.Kind != gov.VoteKindObjectionFormal && s.CreatorID != "" && s.CreatorID == a.UserID
}

func (e *Engine) manage(ctx context.Context, messageID string, actor Actor, fn func(uow *store.UnitOfWork, s *gov.VoteSession) error) (gov.VoteDetailDTO, error) {
	var detail gov.VoteDetailDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetByContextMessageID(messageID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No vote is attached to this message.")
		}
		if err != nil {
			return err
		}
		if s.Kind == gov.VoteKindObjectionSupport {
			return errs.Validation("Support collection panels cannot be changed.")
		}
		if !actor.owns(s) {
			return errs.Permission("Only the vote creator or a steward can change this vote.")
		}
		if err := fn(uow, s); err != nil {
			return translateSessionErr(err)
		}
		full, err := uow.VoteSessions().GetDetailsByID(s.ID)
		if err != nil {
			return err
		}
		detail = gov.BuildVoteDetail(full)
		return nil
	})
	return detail, err
}

func translateSessionErr(err error) error {
	switch {
	case errors.Is(err, store.ErrSessionClosed):
		return errs.State("This vote has already ended.")
	case errors.Is(err, store.ErrSessionOpen):
		return errs.State("This vote is still open.")
	}
	return err
}

// AdjustEndTime pushes the deadline of an open ballot by hours.
func (e *Engine) AdjustEndTime(ctx context.Context, messageID string, hours int, actor Actor) (gov.EndTimeChange, gov.VoteDetailDTO, error) {
	if hours <= 0 {
		return gov.EndTimeChange{}, gov.VoteDetailDTO{}, errs.Validation("The adjustment must be a positive number of hours.")
	}
	if hours > gov.MaxDurationHours {
		return gov.EndTimeChange{}, gov.VoteDetailDTO{}, errs.Validation("The adjustment cannot exceed %d hours.", gov.MaxDurationHours)
	}
	var change gov.EndTimeChange
	detail, err := e.manage(ctx, messageID, actor, func(uow *store.UnitOfWork, s *gov.VoteSession) error {
		var err error
		change, err = uow.VoteSessions().AdjustEndTime(messageID, hours)
		return err
	})
	if err != nil {
		return gov.EndTimeChange{}, gov.VoteDetailDTO{}, err
	}
	e.bus.Publish(ctx, events.VoteSettingsChanged{
		Vote:      detail,
		Setting:   "end_time",
		Detail:    fmt.Sprintf("+%dh", hours),
		ChangedBy: actor.UserID,
	})
	return change, detail, nil
}

// Toggle flips anonymous, realtime or notify on an open ballot.
func (e *Engine) Toggle(ctx context.Context, messageID, flag string, actor Actor) (bool, gov.VoteDetailDTO, error) {
	switch flag {
	case store.FlagAnonymous, store.FlagRealtime, store.FlagNotify:
	default:
		return false, gov.VoteDetailDTO{}, errs.Validation("Unknown setting %q.", flag)
	}
	var value bool
	detail, err := e.manage(ctx, messageID, actor, func(uow *store.UnitOfWork, s *gov.VoteSession) error {
		var err error
		value, err = uow.VoteSessions().Toggle(messageID, flag)
		return err
	})
	if err != nil {
		return false, gov.VoteDetailDTO{}, err
	}
	e.bus.Publish(ctx, events.VoteSettingsChanged{
		Vote:      detail,
		Setting:   flag,
		Detail:    fmt.Sprintf("%t", value),
		ChangedBy: actor.UserID,
	})
	return value, detail, nil
}

// Reopen reopens a closed ballot for hours. Recorded votes are kept.
func (e *Engine) Reopen(ctx context.Context, messageID string, hours int, actor Actor) (gov.VoteDetailDTO, error) {
	if !gov.ValidDuration(hours) {
		return gov.VoteDetailDTO{}, errs.Validation("Vote duration must be between %d and %d hours.", gov.MinDurationHours, gov.MaxDurationHours)
	}
	detail, err := e.manage(ctx, messageID, actor, func(uow *store.UnitOfWork, s *gov.VoteSession) error {
		if s.Kind == gov.VoteKindObjectionFormal {
			return errs.State("Formal objection votes cannot be reopened.")
		}
		_, err := uow.VoteSessions().Reopen(messageID, e.store.Now().Add(time.Duration(hours)*time.Hour))
		return err
	})
	if err != nil {
		return gov.VoteDetailDTO{}, err
	}
	e.bus.Publish(ctx, events.VoteSettingsChanged{
		Vote:      detail,
		Setting:   "reopen",
		Detail:    fmt.Sprintf("%dh", hours),
		ChangedBy: actor.UserID,
	})
	return detail, nil
}
