package objection

import (
	"context"
	"errors"
	"log"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
)

// SupportQO is one click on a support-collection panel.
type SupportQO struct {
	MessageID string
	UserID    string
	Action    gov.SupportAction
}

// Support applies a support or withdraw click. Crossing the goal moves the
// objection to Voting; a withdrawal that drops below it before the objection
// thread exists moves it back to CollectingVotes. Reaching the goal after the
// proposal has left Discussion and Executing rejects the objection instead.
func (e *Engine) Support(ctx context.Context, qo SupportQO) (gov.SupportResultDTO, error) {
	var (
		res    *gov.SupportResultDTO
		lapsed gov.ProposalStatus
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetByContextMessageID(qo.MessageID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No objection panel is attached to this message.")
		}
		if err != nil {
			return err
		}
		if s.Kind != gov.VoteKindObjectionSupport || s.ObjectionID == nil {
			return errs.State("This panel does not collect objection support.")
		}

		if qo.Action == gov.SupportActionSupport {
			ok, err := e.eligible(uow, qo.UserID, s.ContextThreadID)
			if err != nil {
				return err
			}
			if !ok {
				return errs.Permission("You need at least %d messages in the proposal before you can support an objection.", e.checker.Required)
			}
		}

		res, err = uow.Objections().Support(store.SupportQO{SessionID: s.ID, UserID: qo.UserID, Action: qo.Action})
		switch {
		case errors.Is(err, store.ErrSessionClosed):
			return errs.State("Support collection for this objection has ended.")
		case err != nil:
			return err
		}

		o, err := uow.Objections().GetByID(*s.ObjectionID)
		if err != nil {
			return err
		}
		switch {
		case res.Outcome == gov.OutcomeSupported && res.IsGoalReached && o.Status == gov.ObjectionCollectingVotes && !contestable(o):
			if err := lapse(uow, o); err != nil {
				return err
			}
			res.ObjectionStatus = gov.ObjectionRejected
			lapsed = o.Proposal.Status
		case res.Outcome == gov.OutcomeSupported && res.IsGoalReached && o.Status == gov.ObjectionCollectingVotes:
			if err := uow.Objections().UpdateStatus(o.ID, gov.ObjectionVoting); err != nil {
				return err
			}
			res.ObjectionStatus = gov.ObjectionVoting
			res.GoalReachedNow = true
		case res.Outcome == gov.OutcomeWithdrew && !res.IsGoalReached && o.Status == gov.ObjectionVoting && o.ObjectionThreadID == nil:
			if err := uow.Objections().UpdateStatus(o.ID, gov.ObjectionCollectingVotes); err != nil {
				return err
			}
			res.ObjectionStatus = gov.ObjectionCollectingVotes
			res.Reverted = true
		}
		return nil
	})
	if err != nil {
		return gov.SupportResultDTO{}, err
	}

	if res.Outcome.Effective() {
		e.bus.Publish(ctx, events.ObjectionSupportChanged{Support: *res})
	}
	if lapsed != "" {
		log.Printf("objection: %d rejected at its goal, proposal is %s", res.ObjectionID, lapsed)
		return gov.SupportResultDTO{}, errs.State("The proposal is %s, so this objection has lapsed.", lapsed)
	}
	if res.GoalReachedNow {
		log.Printf("objection: %d reached %d supporters", res.ObjectionID, res.CurrentSupporters)
		e.bus.Publish(ctx, events.ObjectionGoalReached{Support: *res})
	}
	if res.Reverted {
		log.Printf("objection: %d fell back below its goal", res.ObjectionID)
	}
	return *res, nil
}

// BeginFormalPhase returns the objection when it still needs its discussion
// thread, or nil when a withdrawal reverted it or the thread already exists.
func (e *Engine) BeginFormalPhase(ctx context.Context, objectionID uint64) (*gov.ObjectionDTO, error) {
	var out *gov.ObjectionDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		o, err := uow.Objections().GetByID(objectionID)
		if err != nil {
			return err
		}
		if o.Status != gov.ObjectionVoting || o.ObjectionThreadID != nil {
			return nil
		}
		dto := o.ToDTO()
		out = &dto
		return nil
	})
	return out, err
}

// BindObjectionThread records the objection's discussion thread, freezes the
// proposal and closes support collection. When the proposal is no longer in
// Discussion or Executing the objection is rejected and nothing is frozen.
func (e *Engine) BindObjectionThread(ctx context.Context, objectionID uint64, threadID string) (gov.ObjectionDTO, error) {
	var (
		dto    gov.ObjectionDTO
		from   gov.ProposalStatus
		prop   gov.ProposalDTO
		lapsed bool
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		o, err := uow.Objections().GetByID(objectionID)
		if err != nil {
			return err
		}
		if o.Status != gov.ObjectionVoting || o.ObjectionThreadID != nil {
			return errs.State("Objection %d is no longer waiting for a thread.", objectionID)
		}
		from = o.Proposal.Status
		if !contestable(o) {
			lapsed = true
			return lapse(uow, o)
		}
		if err := uow.Objections().UpdateThreadID(o.ID, threadID); err != nil {
			return err
		}
		if err := uow.Proposals().UpdateStatus(o.ProposalID, gov.ProposalFrozen); err != nil {
			return err
		}
		if support, err := uow.VoteSessions().GetByObjection(o.ID, gov.VoteKindObjectionSupport); err == nil {
			if _, err := uow.VoteSessions().Close(support.ID); err != nil {
				return err
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		o, err = uow.Objections().GetByID(o.ID)
		if err != nil {
			return err
		}
		dto = o.ToDTO()
		prop = o.Proposal.ToDTO()
		return nil
	})
	if err != nil {
		return gov.ObjectionDTO{}, err
	}
	if lapsed {
		log.Printf("objection: %d rejected instead of bound, proposal is %s", objectionID, from)
		return gov.ObjectionDTO{}, errs.State("The proposal is %s, so objection %d has lapsed.", from, objectionID)
	}

	log.Printf("objection: %d bound to thread %s, proposal %d frozen", objectionID, threadID, dto.ProposalID)
	e.bus.Publish(ctx, events.ProposalStatusChanged{Proposal: prop, From: from})
	e.bus.Publish(ctx, events.ObjectionThreadCreated{Objection: dto})
	return dto, nil
}

// contestable reports whether the objection's proposal can still be frozen.
func contestable(o *gov.Objection) bool {
	return o.Proposal.Status == gov.ProposalDiscussion || o.Proposal.Status == gov.ProposalExecuting
}

// lapse rejects an objection whose proposal moved on and closes its support
// collection.
func lapse(uow *store.UnitOfWork, o *gov.Objection) error {
	if err := uow.Objections().UpdateStatus(o.ID, gov.ObjectionRejected); err != nil {
		return err
	}
	o.Status = gov.ObjectionRejected
	support, err := uow.VoteSessions().GetByObjection(o.ID, gov.VoteKindObjectionSupport)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = uow.VoteSessions().Close(support.ID)
	return err
}

// CollectionExpired rejects an objection whose support window ran out.
func (e *Engine) CollectionExpired(uow *store.UnitOfWork, objectionID uint64, vote gov.VoteDetailDTO) (events.Event, error) {
	o, err := uow.Objections().GetByID(objectionID)
	if err != nil {
		return nil, err
	}
	if o.Status == gov.ObjectionVoting && o.ObjectionThreadID == nil {
		// Goal reached but the thread was never bound; ask for it again.
		res := e.initiation(o.ToDTO(), vote.SessionID).Support
		res.CurrentSupporters = vote.TotalApprove
		res.IsGoalReached = true
		res.ObjectionStatus = o.Status
		return events.ObjectionGoalReached{Support: res}, nil
	}
	if o.Status != gov.ObjectionCollectingVotes {
		return nil, nil
	}
	if err := uow.Objections().UpdateStatus(o.ID, gov.ObjectionRejected); err != nil {
		return nil, err
	}
	o.Status = gov.ObjectionRejected
	return events.ObjectionCollectionExpired{Objection: o.ToDTO(), Vote: vote}, nil
}

// FormalVoteClosed applies the formal ballot outcome. A pass keeps the
// proposal frozen for good; a failure sends it back to Discussion.
func (e *Engine) FormalVoteClosed(uow *store.UnitOfWork, objectionID uint64, vote gov.VoteDetailDTO) (events.Event, error) {
	o, err := uow.Objections().GetByID(objectionID)
	if err != nil {
		return nil, err
	}
	if o.Status != gov.ObjectionVoting {
		return nil, nil
	}
	passed := vote.IsPassed()
	if passed {
		o.Status = gov.ObjectionPassed
	} else {
		o.Status = gov.ObjectionRejected
		if err := uow.Proposals().UpdateStatus(o.ProposalID, gov.ProposalDiscussion); err != nil {
			return nil, err
		}
		o.Proposal.Status = gov.ProposalDiscussion
	}
	if err := uow.Objections().UpdateStatus(o.ID, o.Status); err != nil {
		return nil, err
	}
	log.Printf("objection: %d formal vote closed (approve=%d reject=%d passed=%t)",
		o.ID, vote.TotalApprove, vote.TotalReject, passed)
	return events.ObjectionVoteFinished{Objection: o.ToDTO(), Vote: vote, Passed: passed}, nil
}
