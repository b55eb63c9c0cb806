// Package voting runs ballots: creation, vote recording, deadline changes,
// flag toggles, reopening and closing at expiry.
package voting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/stellaria-pact/governance/src/eligibility"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/shared/text"
	"github.com/stellaria-pact/governance/src/store"
)

// Config tunes the engine.
type Config struct {
	GuildID            string
	RequiredMessages   int
	ObjectionVoteHours int
}

// ObjectionResolver applies objection outcomes when an objection ballot
// closes. It runs inside the closing unit of work and returns the event to
// publish after commit, if any.
type ObjectionResolver interface {
	CollectionExpired(uow *store.UnitOfWork, objectionID uint64, vote gov.VoteDetailDTO) (events.Event, error)
	FormalVoteClosed(uow *store.UnitOfWork, objectionID uint64, vote gov.VoteDetailDTO) (events.Event, error)
}

// Engine is the voting engine.
type Engine struct {
	store     *store.Store
	bus       *events.Bus
	cfg       Config
	checker   eligibility.Checker
	objection ObjectionResolver
}

// New builds the engine.
func New(st *store.Store, bus *events.Bus, cfg Config) *Engine {
	if cfg.ObjectionVoteHours <= 0 {
		cfg.ObjectionVoteHours = 48
	}
	return &Engine{store: st, bus: bus, cfg: cfg, checker: eligibility.New(cfg.RequiredMessages)}
}

// SetObjectionResolver wires the objection engine.
func (e *Engine) SetObjectionResolver(r ObjectionResolver) {
	e.objection = r
}

// RequiredMessages returns the configured participation bar.
func (e *Engine) RequiredMessages() int { return e.checker.Required }

// CreateQO describes a proposal ballot.
type CreateQO struct {
	ThreadID  string
	CreatorID string
	Title     string
	Hours     int
	Options   []string
	Anonymous bool
	Realtime  bool
	Notify    bool
}

// CreateVote inserts the ballot shell and announces it. The panel message is
// bound later through BindPanel.
func (e *Engine) CreateVote(ctx context.Context, qo CreateQO) (gov.VoteDetailDTO, error) {
	title := text.Sanitize(qo.Title, gov.MaxTitleLength)
	if title == "" {
		return gov.VoteDetailDTO{}, errs.Validation("A vote needs a title.")
	}
	if !gov.ValidDuration(qo.Hours) {
		return gov.VoteDetailDTO{}, errs.Validation("Vote duration must be between %d and %d hours.", gov.MinDurationHours, gov.MaxDurationHours)
	}
	options, err := cleanOptions(qo.Options)
	if err != nil {
		return gov.VoteDetailDTO{}, err
	}

	var detail gov.VoteDetailDTO
	err = e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadID(qo.ThreadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("Votes can only be created inside a proposal thread.")
		}
		if err != nil {
			return err
		}
		if p.Status != gov.ProposalDiscussion && p.Status != gov.ProposalExecuting {
			return errs.State("Votes cannot be created while the proposal is %s.", p.Status)
		}

		end := e.store.Now().Add(time.Duration(qo.Hours) * time.Hour)
		s, err := uow.VoteSessions().Create(store.CreateVoteSessionQO{
			GuildID:         e.cfg.GuildID,
			Kind:            gov.VoteKindProposal,
			Title:           title,
			CreatorID:       qo.CreatorID,
			ContextThreadID: qo.ThreadID,
			Anonymous:       qo.Anonymous,
			Realtime:        qo.Realtime,
			Notify:          qo.Notify,
			EndTime:         &end,
			Options:         options,
		})
		if err != nil {
			return err
		}
		detail = gov.BuildVoteDetail(s)
		return nil
	})
	if err != nil {
		return gov.VoteDetailDTO{}, err
	}

	log.Printf("voting: created session %d in thread %s", detail.SessionID, detail.ContextThreadID)
	e.bus.Publish(ctx, events.VoteCreated{Vote: detail})
	return detail, nil
}

func cleanOptions(raw []string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{}, len(raw))
	for _, o := range raw {
		o = text.Sanitize(o, gov.MaxOptionLength)
		if o == "" {
			continue
		}
		key := strings.ToLower(o)
		if _, dup := seen[key]; dup {
			return nil, errs.Validation("Option %q is listed twice.", o)
		}
		seen[key] = struct{}{}
		out = append(out, o)
	}
	if len(out) == 1 {
		return nil, errs.Validation("Give at least two options, or none for a plain approve/reject vote.")
	}
	if len(out) > gov.MaxOptions {
		return nil, errs.Validation("A vote can have at most %d options.", gov.MaxOptions)
	}
	return out, nil
}

// CreateFormalObjectionVote opens the binding ballot of an objection in its
// own thread. Calling it again returns the existing ballot and publishes nothing.
func (e *Engine) CreateFormalObjectionVote(ctx context.Context, objectionID uint64) (gov.VoteDetailDTO, error) {
	var (
		detail  gov.VoteDetailDTO
		dto     gov.ObjectionDTO
		created bool
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		o, err := uow.Objections().GetByID(objectionID)
		if err != nil {
			return err
		}
		if o.Status != gov.ObjectionVoting || o.ObjectionThreadID == nil {
			return errs.State("Objection %d is not ready for a formal vote.", objectionID)
		}
		dto = o.ToDTO()

		existing, err := uow.VoteSessions().GetByObjection(o.ID, gov.VoteKindObjectionFormal)
		if err == nil {
			full, err := uow.VoteSessions().GetDetailsByID(existing.ID)
			if err != nil {
				return err
			}
			detail = gov.BuildVoteDetail(full)
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		end := e.store.Now().Add(time.Duration(e.cfg.ObjectionVoteHours) * time.Hour)
		s, err := uow.VoteSessions().Create(store.CreateVoteSessionQO{
			GuildID:         e.cfg.GuildID,
			Kind:            gov.VoteKindObjectionFormal,
			Title:           fmt.Sprintf("Objection to: %s", o.Proposal.Title),
			CreatorID:       o.ObjectorID,
			ContextThreadID: *o.ObjectionThreadID,
			ObjectionID:     &o.ID,
			Realtime:        true,
			EndTime:         &end,
		})
		if err != nil {
			return err
		}
		detail = gov.BuildVoteDetail(s)
		created = true
		return nil
	})
	if err != nil {
		return gov.VoteDetailDTO{}, err
	}
	if created {
		log.Printf("voting: formal session %d opened for objection %d", detail.SessionID, objectionID)
		e.bus.Publish(ctx, events.ObjectionFormalVoteInitiation{Objection: dto, Vote: detail})
	}
	return detail, nil
}

// BindPanel records the public panel message of a session.
func (e *Engine) BindPanel(ctx context.Context, sessionID uint64, channelID, messageID string) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.VoteSessions().UpdateContextMessage(sessionID, channelID, messageID)
	})
}

// BindMirror records the mirror message posted in the voting channel.
func (e *Engine) BindMirror(ctx context.Context, sessionID uint64, messageID string) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.VoteSessions().UpdateVotingChannelMessageID(sessionID, messageID)
	})
}

// Details returns the current tally of the session behind a panel message.
func (e *Engine) Details(ctx context.Context, messageID string) (gov.VoteDetailDTO, error) {
	var detail gov.VoteDetailDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetWithDetails(messageID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No vote is attached to this message.")
		}
		if err != nil {
			return err
		}
		detail = gov.BuildVoteDetail(s)
		return nil
	})
	return detail, err
}

// DetailsByID returns the current tally of a session.
func (e *Engine) DetailsByID(ctx context.Context, sessionID uint64) (gov.VoteDetailDTO, error) {
	var detail gov.VoteDetailDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		s, err := uow.VoteSessions().GetDetailsByID(sessionID)
		if err != nil {
			return err
		}
		detail = gov.BuildVoteDetail(s)
		return nil
	})
	return detail, err
}

// DeleteOrphanShells removes proposal ballots whose panel never got posted.
func (e *Engine) DeleteOrphanShells(ctx context.Context, age time.Duration) (int64, error) {
	var n int64
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		n, err = uow.VoteSessions().DeleteOrphanShells(e.store.Now().Add(-age))
		return err
	})
	if n > 0 {
		log.Printf("voting: removed %d orphan vote shells", n)
	}
	return n, err
}
