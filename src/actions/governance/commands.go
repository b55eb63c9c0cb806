package governance

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/stellaria-pact/governance/src/announcement"
	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/discord"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/objection"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/views"
	"github.com/stellaria-pact/governance/src/voting"
)

// Command dispatches one /pact invocation. Commands run in the channel they
// were issued from; for proposal commands that is the proposal thread.
func (h *Handler) Command(ctx context.Context, it gateway.Interaction, inv discord.Invocation) {
	name := "/pact " + inv.Path()
	switch inv.Path() {
	case discord.GroupObjection + " " + discord.SubRaise:
		h.modal(ctx, it, name, views.ObjectionModal())

	case discord.SubAnnounce:
		if err := h.Guard.Require(it, config.RoleStewards, config.RoleCouncilModerator); err != nil {
			h.reply(ctx, it, name, views.ErrorReply(err))
			return
		}
		h.modal(ctx, it, name, views.AnnounceModal(
			inv.Bool(discord.OptAutoExecute),
			inv.Bool(discord.OptRepost),
			inv.Int(discord.OptThreshold),
			inv.Int(discord.OptInterval),
		))

	case discord.GroupVote + " " + discord.SubCreate:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			d, err := h.Voting.CreateVote(ctx, voting.CreateQO{
				ThreadID:  it.ChannelID,
				CreatorID: it.UserID,
				Title:     inv.String(discord.OptTitle),
				Hours:     inv.Int(discord.OptHours),
				Options:   splitOptions(inv.String(discord.OptOptions)),
				Anonymous: inv.Bool(discord.OptAnonymous),
				Realtime:  inv.Bool(discord.OptRealtime),
				Notify:    inv.Bool(discord.OptNotify),
			})
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.VoteCreatedReceipt(d), nil
		})

	case discord.GroupVote + " " + discord.SubAdjust:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			change, _, err := h.Voting.AdjustEndTime(ctx, inv.String(discord.OptMessage), inv.Int(discord.OptHours), h.voteActor(it))
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.EndTimeReceipt(change), nil
		})

	case discord.GroupVote + " " + discord.SubReopen:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			d, err := h.Voting.Reopen(ctx, inv.String(discord.OptMessage), inv.Int(discord.OptHours), h.voteActor(it))
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.ReopenReceipt(d), nil
		})

	case discord.GroupVote + " " + discord.SubSettings:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			setting := inv.String(discord.OptSetting)
			value, _, err := h.Voting.Toggle(ctx, inv.String(discord.OptMessage), setting, h.voteActor(it))
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.ToggleReceipt(setting, value), nil
		})

	case discord.GroupProposal + " " + discord.SubExecute:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			if err := h.Guard.Require(it, config.RoleCouncilModerator, config.RoleExecutionAuditor); err != nil {
				return gateway.MessagePayload{}, err
			}
			c, err := h.Proposals.RequestExecution(ctx, proposal.ExecutionQO{
				ThreadID:  it.ChannelID,
				ChannelID: it.ChannelID,
				UserID:    it.UserID,
				RoleKeys:  h.Guard.Keys(it),
			})
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.ExecutionReceipt(c), nil
		})

	case discord.GroupProposal + " " + discord.SubAbandon:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			p, err := h.Proposals.Abandon(ctx, it.ChannelID, h.proposalActor(it))
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.TransitionReceipt(p), nil
		})

	case discord.GroupProposal + " " + discord.SubFinish:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			p, err := h.Proposals.Finish(ctx, it.ChannelID, h.proposalActor(it))
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.TransitionReceipt(p), nil
		})

	case discord.GroupVoter + " " + discord.SubKick:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			if err := h.Guard.Require(it, config.RoleStewards, config.RoleCouncilModerator); err != nil {
				return gateway.MessagePayload{}, err
			}
			userID := inv.UserID(discord.OptUser)
			if err := h.protected(ctx, userID); err != nil {
				return gateway.MessagePayload{}, err
			}
			var until *time.Time
			if hours := inv.Int(discord.OptMuteHours); hours > 0 {
				t := h.Now().Add(time.Duration(hours) * time.Hour)
				until = &t
			}
			res, err := h.Voting.KickVoter(ctx, it.ChannelID, userID, until)
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			log.Printf("governance: %s kicked %s in %s (%d votes removed)", it.UserID, userID, it.ChannelID, res.RemovedVotes)
			return views.KickReceipt(userID, res.RemovedVotes, until), nil
		})

	case discord.GroupVoter + " " + discord.SubRestore:
		h.respond(ctx, it, name, func(ctx context.Context) (gateway.MessagePayload, error) {
			if err := h.Guard.Require(it, config.RoleStewards, config.RoleCouncilModerator); err != nil {
				return gateway.MessagePayload{}, err
			}
			userID := inv.UserID(discord.OptUser)
			if err := h.Voting.RestoreVoter(ctx, it.ChannelID, userID); err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.RestoreReceipt(userID), nil
		})

	default:
		log.Printf("governance: unknown command %q", name)
		h.reply(ctx, it, name, views.Notice("Unknown command."))
	}
}

func (h *Handler) voteActor(it gateway.Interaction) voting.Actor {
	return voting.Actor{UserID: it.UserID, Privileged: h.Guard.Steward(it)}
}

func (h *Handler) proposalActor(it gateway.Interaction) proposal.Actor {
	return proposal.Actor{UserID: it.UserID, Steward: h.Guard.Steward(it)}
}

func splitOptions(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Modal input ids.
const (
	inputReason  = "reason"
	inputTitle   = "title"
	inputContent = "content"
	inputEnd     = "end"
)

// Modal handles a submitted form.
func (h *Handler) Modal(ctx context.Context, it gateway.Interaction, customID string, values map[string]string) {
	id, err := views.ParseCustomID(customID)
	if err != nil || id.Kind != views.KindModal {
		log.Printf("governance: ignoring modal %q: %v", customID, err)
		return
	}
	switch id.Action {
	case views.ModalObjection:
		h.respond(ctx, it, "raise objection", func(ctx context.Context) (gateway.MessagePayload, error) {
			o, err := h.Objections.Raise(ctx, objection.RaiseQO{
				UserID:   it.UserID,
				ThreadID: it.ChannelID,
				Reason:   values[inputReason],
			})
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.ObjectionReceipt(o), nil
		})

	case views.ModalAnnounce:
		h.respond(ctx, it, "announce", func(ctx context.Context) (gateway.MessagePayload, error) {
			if err := h.Guard.Require(it, config.RoleStewards, config.RoleCouncilModerator); err != nil {
				return gateway.MessagePayload{}, err
			}
			a, err := h.Announcements.Create(ctx, announcement.CreateQO{
				ThreadID:        it.ChannelID,
				AnnouncerID:     it.UserID,
				Title:           values[inputTitle],
				Content:         values[inputContent],
				End:             values[inputEnd],
				AutoExecute:     id.Flag(0),
				Repost:          id.Flag(1),
				Threshold:       id.IntArg(2),
				IntervalMinutes: id.IntArg(3),
			})
			if err != nil {
				return gateway.MessagePayload{}, err
			}
			return views.AnnouncementReceipt(a), nil
		})

	default:
		log.Printf("governance: unknown modal action %q", id.Action)
	}
}
