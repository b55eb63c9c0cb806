package voting

import (
	"context"
	"errors"
	"time"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
)

// VoteQO is one click on a ballot panel.
type VoteQO struct {
	MessageID   string
	UserID      string
	ChoiceIndex int
	Choice      int8
}

// RecordVoteAndGetDetails stores the user's choice and returns the fresh tally.
func (e *Engine) RecordVoteAndGetDetails(ctx context.Context, qo VoteQO) (gov.VoteDetailDTO, error) {
	if qo.Choice != gov.ChoiceApprove && qo.Choice != gov.ChoiceReject {
		return gov.VoteDetailDTO{}, errs.Validation("Unknown choice.")
	}
	return e.mutateVote(ctx, qo, func(uow *store.UnitOfWork, s *gov.VoteSession, idx int) error {
		ok, err := e.eligible(uow, s, qo.UserID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Permission("You need at least %d messages in this discussion before you can vote.", e.checker.Required)
		}
		return uow.UserVotes().Record(store.VoteQO{SessionID: s.ID, UserID: qo.UserID, ChoiceIndex: idx, Choice: qo.Choice})
	})
}

// DeleteVoteAndGetDetails removes the user's choice on one option. Removing a
// vote that does not exist is not an error.
func (e *Engine) DeleteVoteAndGetDetails(ctx context.Context, qo VoteQO) (gov.VoteDetailDTO, error) {
	return e.mutateVote(ctx, qo, func(uow *store.UnitOfWork, s *gov.VoteSession, idx int) error {
		_, err := uow.UserVotes().Delete(store.VoteQO{SessionID: s.ID, UserID: qo.UserID, ChoiceIndex: idx})
		return err
	})
}

func (e *Engine) mutateVote(ctx context.Context, qo VoteQO, apply func(uow *store.UnitOfWork, s *gov.VoteSession, idx int) error) (gov.VoteDetailDTO, error) {
	var detail gov.VoteDetailDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetWithDetails(qo.MessageID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No vote is attached to this message.")
		}
		if err != nil {
			return err
		}
		if s.Kind == gov.VoteKindObjectionSupport {
			return errs.Validation("Use the support buttons on this panel.")
		}
		if s.Status != gov.VoteSessionOpen {
			return errs.State("This vote has ended.")
		}
		idx, err := choiceIndex(s, qo.ChoiceIndex)
		if err != nil {
			return err
		}
		if err := apply(uow, s, idx); err != nil {
			return err
		}

		full, err := uow.VoteSessions().GetDetailsByID(s.ID)
		if err != nil {
			return err
		}
		detail = gov.BuildVoteDetail(full)
		return nil
	})
	if err != nil {
		return gov.VoteDetailDTO{}, err
	}
	if detail.Realtime {
		e.bus.Publish(ctx, events.VoteUpdated{Vote: detail})
	}
	return detail, nil
}

func choiceIndex(s *gov.VoteSession, idx int) (int, error) {
	if s.TotalChoices == 0 {
		if idx > 1 {
			return 0, errs.Validation("This vote has a single option.")
		}
		return 1, nil
	}
	if idx < 1 || idx > s.TotalChoices {
		return 0, errs.Validation("Option %d does not exist.", idx)
	}
	return idx, nil
}

// eligible evaluates the user's activity in the ballot thread, inheriting the
// parent proposal thread for objection ballots.
func (e *Engine) eligible(uow *store.UnitOfWork, s *gov.VoteSession, userID string) (bool, error) {
	current, err := uow.UserActivity().Get(userID, s.ContextThreadID)
	if err != nil {
		return false, err
	}
	var inherited *gov.UserActivity
	if s.ObjectionID != nil {
		parent, err := uow.VoteSessions().GetProposalThreadIDByObjectionID(*s.ObjectionID)
		if err != nil {
			return false, err
		}
		if parent != s.ContextThreadID {
			inherited, err = uow.UserActivity().Get(userID, parent)
			if err != nil {
				return false, err
			}
		}
	}
	return e.checker.Eligible(current, inherited), nil
}

// IsEligible reports whether userID may vote on the session behind messageID.
func (e *Engine) IsEligible(ctx context.Context, messageID, userID string) (bool, error) {
	var ok bool
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetByContextMessageID(messageID)
		if err != nil {
			return err
		}
		ok, err = e.eligible(uow, s, userID)
		return err
	})
	return ok, err
}

// TrackActivity applies a message create (+1) or delete (-1) to the user's
// counter when threadID is a proposal or objection thread. It reports whether
// the thread is governed.
func (e *Engine) TrackActivity(ctx context.Context, threadID, userID string, change int) (bool, error) {
	if change != 1 && change != -1 {
		return false, errs.Validation("activity change must be +1 or -1")
	}
	tracked := false
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		governed, err := isGoverned(uow, threadID)
		if err != nil || !governed {
			return err
		}
		tracked = true
		return uow.UserActivity().IncrementOrInsert(userID, threadID, change)
	})
	return tracked, err
}

func isGoverned(uow *store.UnitOfWork, threadID string) (bool, error) {
	_, err := uow.Proposals().GetByThreadID(threadID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	_, err = uow.Objections().GetByObjectionThreadID(threadID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// KickResult reports what a voter kick removed.
type KickResult struct {
	RemovedVotes int64
	Sessions     []gov.VoteDetailDTO
}

// KickVoter disqualifies userID in threadID, optionally until muteUntil, and
// removes the votes they cast on the thread's open ballots. Closed ballots keep
// their tallies.
func (e *Engine) KickVoter(ctx context.Context, threadID, userID string, muteUntil *time.Time) (KickResult, error) {
	var res KickResult
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		governed, err := isGoverned(uow, threadID)
		if err != nil {
			return err
		}
		if !governed {
			return errs.NotFound("This thread is not a proposal or objection thread.")
		}
		if err := uow.UserActivity().SetValidation(userID, threadID, false, muteUntil); err != nil {
			return err
		}
		ids, err := uow.VoteSessions().ListOpenIDsByThread(threadID)
		if err != nil {
			return err
		}
		res.RemovedVotes, err = uow.UserVotes().DeleteAllUserVotesInThread(userID, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			s, err := uow.VoteSessions().GetDetailsByID(id)
			if err != nil {
				return err
			}
			if s.ContextMessageID != nil {
				res.Sessions = append(res.Sessions, gov.BuildVoteDetail(s))
			}
		}
		return nil
	})
	if err != nil {
		return KickResult{}, err
	}
	if res.RemovedVotes > 0 {
		for _, d := range res.Sessions {
			if d.Realtime {
				e.bus.Publish(ctx, events.VoteUpdated{Vote: d})
			}
		}
	}
	return res, nil
}

// RestoreVoter lifts a disqualification.
func (e *Engine) RestoreVoter(ctx context.Context, threadID, userID string) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		current, err := uow.UserActivity().Get(userID, threadID)
		if err != nil {
			return err
		}
		if current == nil || current.Validation != 0 {
			return errs.State("That user is not disqualified in this thread.")
		}
		return uow.UserActivity().SetValidation(userID, threadID, true, nil)
	})
}
