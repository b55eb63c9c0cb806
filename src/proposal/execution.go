package proposal

import (
	"context"
	"errors"
	"log"

	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/store"
)

// ExecutionQO asks to move a proposal into execution.
type ExecutionQO struct {
	ThreadID  string
	ChannelID string
	UserID    string
	// RoleKeys are the role keys the user holds.
	RoleKeys []string
}

// RequestExecution opens the execution confirmation for a proposal in
// Discussion. The initiator fills the first execution role they hold.
func (e *Engine) RequestExecution(ctx context.Context, qo ExecutionQO) (gov.ConfirmationDTO, error) {
	var (
		conf     gov.ConfirmationDTO
		prop     gov.ProposalDTO
		advanced bool
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		p, err := loadProposal(uow, qo.ThreadID)
		if err != nil {
			return err
		}
		if p.Status != gov.ProposalDiscussion {
			return errs.State("Only proposals in discussion can enter execution; this one is %s.", p.Status)
		}
		c, err := uow.Confirmations().Create(store.CreateConfirmationQO{
			Context:        ContextExecution,
			TargetID:       p.ID,
			ChannelID:      qo.ChannelID,
			InitiatorID:    qo.UserID,
			RequiredRoles:  ExecutionRoles,
			InitiatorRoles: qo.RoleKeys,
		})
		switch {
		case errors.Is(err, store.ErrDuplicate):
			return errs.Concurrency("An execution request for this proposal is already in progress.")
		case errors.Is(err, store.ErrNoMatchingRole):
			return errs.Permission("You need the council moderator or execution auditor role.")
		case err != nil:
			return err
		}
		if c.Status == gov.ConfirmationCompleted {
			if err := uow.Proposals().UpdateStatus(p.ID, gov.ProposalExecuting); err != nil {
				return err
			}
			p.Status = gov.ProposalExecuting
			advanced = true
		}
		conf = c.ToDTO()
		prop = p.ToDTO()
		return nil
	})
	if err != nil {
		return gov.ConfirmationDTO{}, err
	}

	log.Printf("proposal: execution confirmation %d opened on %d by %s", conf.ID, prop.ID, qo.UserID)
	e.bus.Publish(ctx, events.ConfirmationUpdated{Confirmation: conf, Proposal: prop, Created: true})
	if advanced {
		e.bus.Publish(ctx, events.ProposalStatusChanged{Proposal: prop, From: gov.ProposalDiscussion, ActorID: qo.UserID})
	}
	return conf, nil
}

// BindConfirmationPanel records the panel message of a confirmation.
func (e *Engine) BindConfirmationPanel(ctx context.Context, confirmationID uint64, messageID string) error {
	return e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		return uow.Confirmations().UpdateMessageID(confirmationID, messageID)
	})
}

// PanelQO is a click on a confirmation panel.
type PanelQO struct {
	MessageID string
	UserID    string
	RoleKeys  []string
}

// Confirm fills the first open role the user holds. The last confirmation
// moves the proposal into execution.
func (e *Engine) Confirm(ctx context.Context, qo PanelQO) (gov.ConfirmationDTO, error) {
	var (
		conf     gov.ConfirmationDTO
		prop     gov.ProposalDTO
		advanced bool
		stale    bool
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		c, err := loadConfirmation(uow, qo.MessageID)
		if err != nil {
			return err
		}
		role := openRole(c, qo.RoleKeys)
		if role == "" {
			return errs.Permission("You do not hold any role this confirmation still needs.")
		}
		p, err := uow.Proposals().GetByID(c.TargetID)
		if err != nil {
			return err
		}
		if p.Status != gov.ProposalDiscussion && c.Status == gov.ConfirmationPending {
			// Release the ticket once the proposal has moved on.
			if c, err = uow.Confirmations().Cancel(c.ID, qo.UserID); err != nil {
				return err
			}
			conf = c.ToDTO()
			prop = p.ToDTO()
			stale = true
			return nil
		}
		c, err = uow.Confirmations().AddConfirmation(c.ID, role, qo.UserID)
		switch {
		case errors.Is(err, store.ErrNotPending):
			return errs.State("This confirmation is no longer pending.")
		case errors.Is(err, store.ErrAlreadyParty):
			return errs.State("You already confirmed; another person must confirm the remaining role.")
		case errors.Is(err, store.ErrRoleNotNeeded):
			return errs.State("That role has already been confirmed.")
		case err != nil:
			return err
		}

		if c.Status == gov.ConfirmationCompleted {
			if err := uow.Proposals().UpdateStatus(p.ID, gov.ProposalExecuting); err != nil {
				return err
			}
			p.Status = gov.ProposalExecuting
			advanced = true
		}
		conf = c.ToDTO()
		prop = p.ToDTO()
		return nil
	})
	if err != nil {
		return gov.ConfirmationDTO{}, err
	}

	e.bus.Publish(ctx, events.ConfirmationUpdated{Confirmation: conf, Proposal: prop})
	if stale {
		log.Printf("proposal: confirmation %d canceled, proposal %d is %s", conf.ID, prop.ID, prop.Status)
		return gov.ConfirmationDTO{}, errs.State("The proposal is %s and can no longer enter execution.", prop.Status)
	}
	if advanced {
		log.Printf("proposal: %d entered execution (confirmation %d)", prop.ID, conf.ID)
		e.bus.Publish(ctx, events.ProposalStatusChanged{Proposal: prop, From: gov.ProposalDiscussion, ActorID: qo.UserID})
	}
	return conf, nil
}

// CancelConfirmation cancels a pending confirmation. The initiator and any
// holder of a required role may cancel.
func (e *Engine) CancelConfirmation(ctx context.Context, qo PanelQO) (gov.ConfirmationDTO, error) {
	var (
		conf gov.ConfirmationDTO
		prop gov.ProposalDTO
	)
	err := e.store.Do(ctx, func(uow *store.UnitOfWork) error {
		c, err := loadConfirmation(uow, qo.MessageID)
		if err != nil {
			return err
		}
		if c.InitiatorID != qo.UserID && !holdsAny(qo.RoleKeys, c.RequiredRoles) {
			return errs.Permission("Only the initiator or a required role holder can cancel.")
		}
		c, err = uow.Confirmations().Cancel(c.ID, qo.UserID)
		if errors.Is(err, store.ErrNotPending) {
			return errs.State("This confirmation is no longer pending.")
		}
		if err != nil {
			return err
		}
		p, err := uow.Proposals().GetByID(c.TargetID)
		if err != nil {
			return err
		}
		conf = c.ToDTO()
		prop = p.ToDTO()
		return nil
	})
	if err != nil {
		return gov.ConfirmationDTO{}, err
	}
	log.Printf("proposal: confirmation %d canceled by %s", conf.ID, qo.UserID)
	e.bus.Publish(ctx, events.ConfirmationUpdated{Confirmation: conf, Proposal: prop})
	return conf, nil
}

func loadConfirmation(uow *store.UnitOfWork, messageID string) (*gov.ConfirmationSession, error) {
	c, err := uow.Confirmations().GetByMessageID(messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NotFound("No confirmation is attached to this message.")
	}
	return c, err
}

func openRole(c *gov.ConfirmationSession, held []string) string {
	parties := c.Parties()
	for _, role := range c.RequiredRoles {
		if _, filled := parties[role]; filled {
			continue
		}
		for _, h := range held {
			if h == role {
				return role
			}
		}
	}
	return ""
}

func holdsAny(held, roles []string) bool {
	for _, h := range held {
		for _, r := range roles {
			if h == r {
				return true
			}
		}
	}
	return false
}
