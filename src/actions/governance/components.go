package governance

import (
	"context"
	"log"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/objection"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/shared/errs"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stellaria-pact/governance/src/views"
	"github.com/stellaria-pact/governance/src/voting"
)

// Button handles a click on a component of messageID.
func (h *Handler) Button(ctx context.Context, it gateway.Interaction, messageID, customID string) {
	id, err := views.ParseCustomID(customID)
	if err != nil {
		log.Printf("governance: ignoring component %q: %v", customID, err)
		return
	}

	ok, err := h.Cooldown.Allow(ctx, it.UserID+":"+messageID)
	if err != nil {
		log.Printf("governance: cooldown: %v", err)
	}
	if !ok {
		h.reply(ctx, it, "cooldown", views.SlowDown())
		return
	}

	switch id.Kind {
	case views.KindVote:
		h.respond(ctx, it, "vote "+id.Action, func(ctx context.Context) (gateway.MessagePayload, error) {
			qo := voting.VoteQO{MessageID: messageID, UserID: it.UserID, ChoiceIndex: id.Index}
			var (
				d   gov.VoteDetailDTO
				err error
			)
			switch id.Action {
			case views.ActionApprove:
				qo.Choice = gov.ChoiceApprove
				d, err = h.Voting.RecordVoteAndGetDetails(ctx, qo)
			case views.ActionReject:
				qo.Choice = gov.ChoiceReject
				d, err = h.Voting.RecordVoteAndGetDetails(ctx, qo)
			case views.ActionAbstain:
				d, err = h.Voting.DeleteVoteAndGetDetails(ctx, qo)
			default:
				return gateway.MessagePayload{}, errs.Validation("Unknown vote action.")
			}
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.VoteReceipt(d, id.Action, id.Index), nil
		})

	case views.KindSupport:
		h.respond(ctx, it, "support "+id.Action, func(ctx context.Context) (gateway.MessagePayload, error) {
			res, err := h.Objections.Support(ctx, objection.SupportQO{
				MessageID: messageID,
				UserID:    it.UserID,
				Action:    gov.SupportAction(id.Action),
			})
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.SupportReceipt(res), nil
		})

	case views.KindReview:
		h.respond(ctx, it, "review "+id.Action, func(ctx context.Context) (gateway.MessagePayload, error) {
			if err := h.Guard.Require(it, config.RoleCouncilModerator, config.RoleStewards); err != nil {
				return gateway.MessagePayload{}, err
			}
			approve := id.Action == views.ActionApprove
			o, err := h.Objections.Review(ctx, objection.ReviewQO{
				ObjectionID: id.Target,
				ModeratorID: it.UserID,
				Approve:     approve,
			})
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.ReviewReceipt(o, approve), nil
		})

	case views.KindConfirm:
		h.respond(ctx, it, "confirmation "+id.Action, func(ctx context.Context) (gateway.MessagePayload, error) {
			qo := proposal.PanelQO{MessageID: messageID, UserID: it.UserID, RoleKeys: h.Guard.Keys(it)}
			var (
				c   gov.ConfirmationDTO
				err error
			)
			if id.Action == views.ActionCancel {
				c, err = h.Proposals.CancelConfirmation(ctx, qo)
			} else {
				c, err = h.Proposals.Confirm(ctx, qo)
			}
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.ConfirmationReceipt(c), nil
		})

	default:
		log.Printf("governance: unhandled component kind %q", id.Kind)
	}
}
