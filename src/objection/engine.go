// Package objection implements the objection lifecycle: raising, moderator
// review, support collection, promotion to a formal vote and its outcome.
package objection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stellaria-pact/governance/src/eligibility"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/shared/text"
	"github.com/stellaria-pact/governance/src/store"
)

// Support thresholds.
const (
	FirstObjectionVotes = 5
	LaterObjectionVotes = 10
)

// Config tunes the engine.
type Config struct {
	GuildID          string
	RequiredMessages int
	CollectionHours  int
}

// Engine is the objection engine.
type Engine struct {
	store   *store.Store
	bus     *events.Bus
	cfg     Config
	checker eligibility.Checker
}

// New builds the engine.
func New(st *store.Store, bus *events.Bus, cfg Config) *Engine {
	if cfg.CollectionHours <= 0 {
		cfg.CollectionHours = 48
	}
	return &Engine{store: st, bus: bus, cfg: cfg, checker: eligibility.New(cfg.RequiredMessages)}
}

// RequiredVotes returns the support goal for the next objection on a proposal.
func RequiredVotes(existing int64) int {
	if existing == 0 {
		return FirstObjectionVotes
	}
	return LaterObjectionVotes
}

// RaiseQO describes a new objection.
type RaiseQO struct {
	UserID   string
	ThreadID string
	Reason   string
}

// Raise files an objection against the proposal of ThreadID. The first
// objection goes straight to support collection; later ones wait for review.
func (e *Engine) Raise(ctx context.Context, qo RaiseQO) (gov.ObjectionDTO, error) {
	reason := text.Sanitize(qo.Reason, gov.MaxReasonLength)
	if reason == "" {
		return gov.ObjectionDTO{}, errs.Validation("An objection needs a reason.")
	}

	var (
		dto       gov.ObjectionDTO
		sessionID uint64
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadIDForUpdate(qo.ThreadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("Objections can only be raised inside a proposal thread.")
		}
		if err != nil {
			return err
		}
		if p.Status != gov.ProposalDiscussion && p.Status != gov.ProposalExecuting {
			return errs.State("Objections cannot be raised while the proposal is %s.", p.Status)
		}

		ok, err := e.eligible(uow, qo.UserID, p.ThreadID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Permission("You need at least %d messages in this proposal before you can object.", e.checker.Required)
		}

		count, err := uow.Objections().CountByProposalID(p.ID)
		if err != nil {
			return err
		}
		first := count == 0
		status := gov.ObjectionPendingReview
		var end *time.Time
		if first {
			status = gov.ObjectionCollectingVotes
			t := e.store.Now().Add(time.Duration(e.cfg.CollectionHours) * time.Hour)
			end = &t
		}

		oid, sid, err := uow.Objections().CreateObjectionAndVoteSessionShell(store.CreateObjectionQO{
			ProposalID:      p.ID,
			ObjectorID:      qo.UserID,
			Reason:          reason,
			RequiredVotes:   RequiredVotes(count),
			Status:          status,
			GuildID:         e.cfg.GuildID,
			ContextThreadID: p.ThreadID,
			EndTime:         end,
		})
		if err != nil {
			return err
		}
		o, err := uow.Objections().GetByID(oid)
		if err != nil {
			return err
		}
		dto = o.ToDTO()
		sessionID = sid
		return nil
	})
	if err != nil {
		return gov.ObjectionDTO{}, err
	}

	log.Printf("objection: %d raised on thread %s by %s (status=%s, goal=%d)",
		dto.ID, qo.ThreadID, qo.UserID, dto.Status, dto.RequiredVotes)
	if dto.Status == gov.ObjectionCollectingVotes {
		e.bus.Publish(ctx, e.initiation(dto, sessionID))
	} else {
		e.bus.Publish(ctx, events.ObjectionAdminReviewInitiation{Objection: dto})
	}
	return dto, nil
}

func (e *Engine) initiation(o gov.ObjectionDTO, sessionID uint64) events.ObjectionVoteInitiation {
	return events.ObjectionVoteInitiation{
		Objection: o,
		SessionID: sessionID,
		Support: gov.SupportResultDTO{
			SessionID:          sessionID,
			ObjectionID:        o.ID,
			ProposalID:         o.ProposalID,
			ProposalThreadID:   o.ProposalThreadID,
			ProposalTitle:      o.ProposalTitle,
			ObjectorID:         o.ObjectorID,
			Reason:             o.Reason,
			RequiredSupporters: o.RequiredVotes,
			ObjectionStatus:    o.Status,
		},
	}
}

func (e *Engine) eligible(uow *store.UnitOfWork, userID, threadID string) (bool, error) {
	current, err := uow.UserActivity().Get(userID, threadID)
	if err != nil {
		return false, err
	}
	return e.checker.Eligible(current, nil), nil
}

// BindReviewThread records the moderator review thread of an objection.
func (e *Engine) BindReviewThread(ctx context.Context, objectionID uint64, threadID string) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.Objections().UpdateReviewThreadID(objectionID, threadID)
	})
}

// BindSupportPanel records the support-collection panel message.
func (e *Engine) BindSupportPanel(ctx context.Context, sessionID uint64, channelID, messageID string) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.VoteSessions().UpdateContextMessage(sessionID, channelID, messageID)
	})
}

// ReviewQO is a moderator decision on a pending objection.
type ReviewQO struct {
	ObjectionID uint64
	ModeratorID string
	Approve     bool
	Comment     string
}

// Review approves or rejects an objection waiting for moderator review.
func (e *Engine) Review(ctx context.Context, qo ReviewQO) (gov.ObjectionDTO, error) {
	var (
		dto       gov.ObjectionDTO
		sessionID uint64
		lapsed    gov.ProposalStatus
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		o, err := uow.Objections().GetByID(qo.ObjectionID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("Objection %d does not exist.", qo.ObjectionID)
		}
		if err != nil {
			return err
		}
		if o.Status != gov.ObjectionPendingReview {
			return errs.State("This objection has already been reviewed.")
		}
		session, err := uow.VoteSessions().GetByObjection(o.ID, gov.VoteKindObjectionSupport)
		if err != nil {
			return err
		}
		sessionID = session.ID

		if qo.Approve && !contestable(o) {
			lapsed = o.Proposal.Status
			if err := lapse(uow, o); err != nil {
				return err
			}
			dto = o.ToDTO()
			return nil
		}
		if qo.Approve {
			end := e.store.Now().Add(time.Duration(e.cfg.CollectionHours) * time.Hour)
			if err := uow.VoteSessions().SetEndTime(session.ID, &end); err != nil {
				return err
			}
			o.Status = gov.ObjectionCollectingVotes
		} else {
			if _, err := uow.VoteSessions().Close(session.ID); err != nil {
				return err
			}
			o.Status = gov.ObjectionRejected
		}
		if err := uow.Objections().UpdateStatus(o.ID, o.Status); err != nil {
			return err
		}
		dto = o.ToDTO()
		return nil
	})
	if err != nil {
		return gov.ObjectionDTO{}, err
	}
	if lapsed != "" {
		log.Printf("objection: %d rejected on review, proposal is %s", dto.ID, lapsed)
		e.bus.Publish(ctx, events.ObjectionReviewed{
			Objection:   dto,
			ModeratorID: qo.ModeratorID,
			Comment:     fmt.Sprintf("The proposal is %s.", lapsed),
		})
		return gov.ObjectionDTO{}, errs.State("The proposal is %s, so this objection has lapsed.", lapsed)
	}

	log.Printf("objection: %d reviewed by %s (approved=%t)", dto.ID, qo.ModeratorID, qo.Approve)
	e.bus.Publish(ctx, events.ObjectionReviewed{
		Objection:   dto,
		Approved:    qo.Approve,
		ModeratorID: qo.ModeratorID,
		Comment:     text.Sanitize(qo.Comment, gov.MaxReasonLength),
	})
	if qo.Approve {
		e.bus.Publish(ctx, e.initiation(dto, sessionID))
	}
	return dto, nil
}

// Get returns an objection with its proposal fields.
func (e *Engine) Get(ctx context.Context, id uint64) (gov.ObjectionDTO, error) {
	var dto gov.ObjectionDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		o, err := uow.Objections().GetByID(id)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("Objection %d does not exist.", id)
		}
		if err != nil {
			return err
		}
		dto = o.ToDTO()
		return nil
	})
	return dto, err
}

// GetByReviewThread returns the objection reviewed in threadID.
func (e *Engine) GetByReviewThread(ctx context.Context, threadID string) (gov.ObjectionDTO, error) {
	var dto gov.ObjectionDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		o, err := uow.Objections().GetByReviewThreadID(threadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No objection is reviewed in this thread.")
		}
		if err != nil {
			return err
		}
		dto = o.ToDTO()
		return nil
	})
	return dto, err
}

// ListForProposal returns the objections of the proposal bound to threadID.
func (e *Engine) ListForProposal(ctx context.Context, threadID string) ([]gov.ObjectionDTO, error) {
	var out []gov.ObjectionDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadID(threadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No proposal is bound to this thread.")
		}
		if err != nil {
			return err
		}
		list, err := uow.Objections().ListByProposalID(p.ID)
		if err != nil {
			return err
		}
		for i := range list {
			list[i].Proposal = p
			out = append(out, list[i].ToDTO())
		}
		return nil
	})
	return out, err
}

// SupportSession returns the support-collection ballot of an objection.
func (e *Engine) SupportSession(ctx context.Context, objectionID uint64) (gov.VoteDetailDTO, error) {
	var detail gov.VoteDetailDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetByObjection(objectionID, gov.VoteKindObjectionSupport)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("Objection %d has no support panel.", objectionID)
		}
		if err != nil {
			return err
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
