package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// MemberRoles returns the guild role ids of userID, preferring the state cache.
func MemberRoles(ctx context.Context, s *discordgo.Session, guildID, userID string) ([]string, error) {
	if s.State != nil {
		if member, err := s.State.Member(guildID, userID); err == nil {
			return member.Roles, nil
		}
	}
	member, err := s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("guild member", err)
	}
	return member.Roles, nil
}
