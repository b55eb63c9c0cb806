// Package governance is the chat-facing entry point of the governance
// service: slash commands, button clicks, modal submissions and the raw
// thread and message events that feed the engines.
package governance

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"github.com/stellaria-pact/governance/src/announcement"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/objection"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/views"
	"github.com/stellaria-pact/governance/src/voting"
)

// Deps are the collaborators of the handler.
type Deps struct {
	Gateway       gateway.Gateway
	Scheduler     *scheduler.Scheduler
	Guard         RoleGuard
	Cooldown      Cooldown
	Voting        *voting.Engine
	Objections    *objection.Engine
	Proposals     *proposal.Engine
	Announcements *announcement.Engine
	Now           func() time.Time
}

// Handler routes inbound interactions to the engines and answers privately.
type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Cooldown == nil {
		d.Cooldown = noCooldown{}
	}
	return &Handler{Deps: d}
}

// action produces the private answer to an interaction.
type action func(ctx context.Context) (gateway.MessagePayload, error)

// respond acknowledges the interaction first, then runs fn and follows up
// with its answer or its rendered error.
func (h *Handler) respond(ctx context.Context, it gateway.Interaction, name string, fn action) {
	err := h.Scheduler.Exec(ctx, scheduler.PriorityReply, "defer "+name, func(ctx context.Context) error {
		return h.Gateway.DeferInteraction(ctx, it, true)
	})
	if err != nil {
		log.Printf("governance: %s: acknowledge failed: %v", name, err)
		return
	}

	payload, err := h.run(ctx, name, fn)
	if err != nil {
		payload = views.ErrorReply(err)
	}
	err = h.Scheduler.Exec(ctx, scheduler.PriorityFollowUp, "follow up "+name, func(ctx context.Context) error {
		return h.Gateway.FollowUp(ctx, it, payload, true)
	})
	if err != nil {
		log.Printf("governance: %s: follow up failed: %v", name, err)
	}
}

// run executes fn, turning panics into internal errors. Anything that is not
// shown to the user verbatim is logged with a stack.
func (h *Handler) run(ctx context.Context, name string, fn action) (p gateway.MessagePayload, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("governance: %s panicked: %v\n%s", name, r, debug.Stack())
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	p, err = fn(ctx)
	if err != nil && !errs.Visible(err) {
		log.Printf("governance: %s failed: %v\n%s", name, err, debug.Stack())
	}
	return p, err
}

// reply answers immediately without deferring.
func (h *Handler) reply(ctx context.Context, it gateway.Interaction, name string, p gateway.MessagePayload) {
	err := h.Scheduler.Exec(ctx, scheduler.PriorityReply, "reply "+name, func(ctx context.Context) error {
		return h.Gateway.ReplyEphemeral(ctx, it, p)
	})
	if err != nil {
		log.Printf("governance: %s: reply failed: %v", name, err)
	}
}

// modal opens a form as the interaction's response.
func (h *Handler) modal(ctx context.Context, it gateway.Interaction, name string, m gateway.Modal) {
	err := h.Scheduler.Exec(ctx, scheduler.PriorityReply, "modal "+name, func(ctx context.Context) error {
		return h.Gateway.SendModal(ctx, it, m)
	})
	if err != nil {
		log.Printf("governance: %s: modal failed: %v", name, err)
	}
}
