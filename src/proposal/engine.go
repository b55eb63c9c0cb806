// Package proposal tracks proposal threads and their status transitions,
// including the two-role confirmation that moves a proposal into execution.
package proposal

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/shared/text"
	"github.com/stellaria-pact/governance/src/store"
	"golang.org/x/time/rate"
)

// ContextExecution is the confirmation context for entering execution.
const ContextExecution = "proposal_execution"

// ExecutionRoles must both confirm before a proposal enters execution.
var ExecutionRoles = []string{config.RoleCouncilModerator, config.RoleExecutionAuditor}

// Config tunes the engine.
type Config struct {
	// DiscussionForumID is the forum whose threads become proposals.
	DiscussionForumID string
}

// Engine is the proposal engine.
type Engine struct {
	store *store.Store
	bus   *events.Bus
	cfg   Config
	// serviceUser owns the threads this process opens itself.
	serviceUser atomic.Value
}

// New builds the engine.
func New(st *store.Store, bus *events.Bus, cfg Config) *Engine {
	return &Engine{store: st, bus: bus, cfg: cfg}
}

// SetServiceUser records the account the service posts as. Threads it owns
// are objection threads and never become proposals.
func (e *Engine) SetServiceUser(userID string) {
	e.serviceUser.Store(userID)
}

func (e *Engine) ownThread(ownerID string) bool {
	id, _ := e.serviceUser.Load().(string)
	return id != "" && id == ownerID
}

// ThreadQO describes a forum thread seen on the gateway.
type ThreadQO struct {
	ThreadID string
	ParentID string
	OwnerID  string
	Title    string
}

// CreateFromThread registers a new discussion thread as a proposal. Threads
// outside the discussion forum and already known threads yield nil.
func (e *Engine) CreateFromThread(ctx context.Context, qo ThreadQO) (*gov.ProposalDTO, error) {
	if qo.ParentID == "" || qo.ParentID != e.cfg.DiscussionForumID || e.ownThread(qo.OwnerID) {
		return nil, nil
	}
	title := text.Sanitize(qo.Title, 255)
	if title == "" {
		title = "Untitled proposal"
	}

	var dto *gov.ProposalDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		if _, err := uow.Objections().GetByObjectionThreadID(qo.ThreadID); err == nil {
			return nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		var err error
		dto, err = uow.Proposals().Create(qo.ThreadID, qo.OwnerID, title)
		return err
	})
	if err != nil || dto == nil {
		return nil, err
	}
	log.Printf("proposal: thread %s registered as proposal %d", dto.ThreadID, dto.ID)
	e.bus.Publish(ctx, events.ProposalThreadCreated{Proposal: *dto})
	return dto, nil
}

// Reconcile registers threads the gateway events missed. The limiter paces
// the inserts; a nil limiter does not wait.
func (e *Engine) Reconcile(ctx context.Context, threads []ThreadQO, limiter *rate.Limiter) (int, error) {
	var ids []string
	for _, th := range threads {
		if th.ParentID == e.cfg.DiscussionForumID {
			ids = append(ids, th.ThreadID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	var known map[string]struct{}
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		var err error
		known, err = uow.Proposals().ExistingThreadIDs(ids)
		return err
	})
	if err != nil {
		return 0, err
	}

	created := 0
	for _, th := range threads {
		if th.ParentID != e.cfg.DiscussionForumID {
			continue
		}
		if _, ok := known[th.ThreadID]; ok {
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return created, err
			}
		}
		dto, err := e.CreateFromThread(ctx, th)
		if err != nil {
			log.Printf("proposal: reconcile thread %s: %v", th.ThreadID, err)
			continue
		}
		if dto != nil {
			created++
		}
	}
	if created > 0 {
		log.Printf("proposal: reconciliation registered %d missed threads", created)
	}
	return created, nil
}

// Get returns the proposal bound to threadID.
func (e *Engine) Get(ctx context.Context, threadID string) (gov.ProposalDTO, error) {
	var dto gov.ProposalDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := loadProposal(uow, threadID)
		if err != nil {
			return err
		}
		dto = p.ToDTO()
		return nil
	})
	return dto, err
}

func loadProposal(uow *store.UnitOfWork, threadID string) (*gov.Proposal, error) {
	p, err := uow.Proposals().GetByThreadID(threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NotFound("No proposal is bound to this thread.")
	}
	return p, err
}

// Actor is the user acting on a proposal. Stewards may act on any proposal;
// others only on the ones they authored.
type Actor struct {
	UserID  string
	Steward bool
}

// Abandon moves an executing proposal to Abandoned.
func (e *Engine) Abandon(ctx context.Context, threadID string, actor Actor) (gov.ProposalDTO, error) {
	return e.transition(ctx, threadID, actor, gov.ProposalExecuting, gov.ProposalAbandoned)
}

// Finish moves an executing proposal to Finished.
func (e *Engine) Finish(ctx context.Context, threadID string, actor Actor) (gov.ProposalDTO, error) {
	return e.transition(ctx, threadID, actor, gov.ProposalExecuting, gov.ProposalFinished)
}

func (e *Engine) transition(ctx context.Context, threadID string, actor Actor, from, to gov.ProposalStatus) (gov.ProposalDTO, error) {
	var dto gov.ProposalDTO
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadIDForUpdate(threadID)
		if errors.Is(err, store.ErrNotFound) {
			return errs.NotFound("No proposal is bound to this thread.")
		}
		if err != nil {
			return err
		}
		if !actor.Steward && p.ProposerID != actor.UserID {
			return errs.Permission("Only the proposer or a steward can do this.")
		}
		if p.Status != from {
			return errs.State("The proposal is %s, it must be %s.", p.Status, from)
		}
		objections, err := uow.Objections().ListByProposalID(p.ID)
		if err != nil {
			return err
		}
		for _, o := range objections {
			if !o.Status.Final() {
				return errs.State("Objection %d on this proposal is still %s.", o.ID, o.Status)
			}
		}
		if err := uow.Proposals().UpdateStatus(p.ID, to); err != nil {
			return err
		}
		p.Status = to
		dto = p.ToDTO()
		return nil
	})
	if err != nil {
		return gov.ProposalDTO{}, err
	}
	log.Printf("proposal: %d %s -> %s by %s", dto.ID, from, to, actor.UserID)
	e.bus.Publish(ctx, events.ProposalStatusChanged{Proposal: dto, From: from, ActorID: actor.UserID})
	return dto, nil
}

// OnAnnouncementFinished advances the proposal of threadID from Discussion to
// Executing. It reports whether a transition happened.
func (e *Engine) OnAnnouncementFinished(ctx context.Context, threadID string) (bool, error) {
	var (
		dto   gov.ProposalDTO
		moved bool
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := uow.Proposals().GetByThreadIDForUpdate(threadID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if p.Status != gov.ProposalDiscussion {
			log.Printf("proposal: announcement ended on %s but proposal is %s, not advancing", threadID, p.Status)
			return nil
		}
		if err := uow.Proposals().UpdateStatus(p.ID, gov.ProposalExecuting); err != nil {
			return err
		}
		p.Status = gov.ProposalExecuting
		dto = p.ToDTO()
		moved = true
		return nil
	})
	if err != nil || !moved {
		return false, err
	}
	log.Printf("proposal: %d entered execution after its announcement", dto.ID)
	e.bus.Publish(ctx, events.ProposalStatusChanged{Proposal: dto, From: gov.ProposalDiscussion})
	return true, nil
}
