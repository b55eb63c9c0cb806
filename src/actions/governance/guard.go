package governance

import (
	"context"

	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/gateway"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/shared/errs"
)

// RoleGuard resolves an interaction's guild roles into role keys.
type RoleGuard struct {
	roles config.Roles
}

func NewRoleGuard(roles config.Roles) RoleGuard {
	return RoleGuard{roles: roles}
}

// Keys returns the role keys the member holds.
func (g RoleGuard) Keys(it gateway.Interaction) []string {
	return g.roles.KeysFor(it.RoleIDs)
}

// Has reports whether the member holds any of keys.
func (g RoleGuard) Has(it gateway.Interaction, keys ...string) bool {
	held := g.Keys(it)
	for _, want := range keys {
		for _, k := range held {
			if k == want {
				return true
			}
		}
	}
	return false
}

// Require fails with a Permission error unless the member holds one of keys.
func (g RoleGuard) Require(it gateway.Interaction, keys ...string) error {
	if g.Has(it, keys...) {
		return nil
	}
	return errs.Permission("You don't have permission to use this command.")
}

// Steward reports whether the member may manage any proposal or vote.
func (g RoleGuard) Steward(it gateway.Interaction) bool {
	return g.Has(it, config.RoleStewards)
}

// protected fails when userID holds a steward or moderator role.
func (h *Handler) protected(ctx context.Context, userID string) error {
	roleIDs, err := scheduler.Do(ctx, h.Scheduler, scheduler.PriorityReply, "member roles", func(ctx context.Context) ([]string, error) {
		return h.Gateway.MemberRoles(ctx, userID)
	})
	if gateway.IsNotFound(err) {
		return errs.NotFound("That user is not a member of this server.")
	}
	if err != nil {
		return errs.Gateway("Could not look up that member.", err)
	}
	for _, key := range h.Guard.roles.KeysFor(roleIDs) {
		if key == config.RoleStewards || key == config.RoleCouncilModerator {
			return errs.Permission("Stewards and moderators cannot be removed from a vote.")
		}
	}
	return nil
}
