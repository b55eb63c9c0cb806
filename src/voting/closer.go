package voting

import (
	"context"
	"fmt"
	"log"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
)

// CloseExpired closes every open ballot past its deadline, each in its own
// unit of work, and publishes the matching outcome event. It returns the
// number of ballots closed.
func (e *Engine) CloseExpired(ctx context.Context) (int, error) {
	var expired []gov.VoteSession
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		expired, err = uow.VoteSessions().ListExpiredOpen()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("voting: list expired: %w", err)
	}

	closed := 0
	for _, s := range expired {
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		ok, err := e.closeOne(ctx, s.ID)
		if err != nil {
			log.Printf("voting: close session %d: %v", s.ID, err)
			continue
		}
		if ok {
			closed++
		}
	}
	return closed, nil
}

func (e *Engine) closeOne(ctx context.Context, sessionID uint64) (bool, error) {
	var (
		ev     events.Event
		closed bool
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		closed, err = uow.VoteSessions().Close(sessionID)
		if err != nil || !closed {
			return err
		}
		s, err := uow.VoteSessions().GetDetailsByID(sessionID)
		if err != nil {
			return err
		}
		detail := gov.BuildVoteDetail(s)

		switch {
		case s.ObjectionID == nil || s.Kind == gov.VoteKindProposal:
			ev = events.VoteFinished{Vote: detail}
		case e.objection == nil:
			return fmt.Errorf("no objection resolver for session %d", sessionID)
		case s.Kind == gov.VoteKindObjectionSupport:
			ev, err = e.objection.CollectionExpired(uow, *s.ObjectionID, detail)
		default:
			ev, err = e.objection.FormalVoteClosed(uow, *s.ObjectionID, detail)
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if ev != nil {
		e.bus.Publish(ctx, ev)
	}
	return closed, nil
}
