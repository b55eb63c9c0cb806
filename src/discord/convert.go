package discord

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stellaria-pact/governance/src/gateway"
)

// Platform limits on embeds.
const (
	maxEmbedTitle       = 256
	maxEmbedDescription = 4096
	maxEmbedFields      = 25
	maxFieldName        = 256
	maxFieldValue       = 1024
	maxFooter           = 2048
	maxContent          = 2000
)

func messageSend(p gateway.MessagePayload) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:         truncateForDiscord(p.Content, maxContent),
		Embeds:          embeds(p.Embeds),
		Components:      components(p.Rows),
		AllowedMentions: allowedMentions(p),
	}
}

// allowedMentions only pings what the payload names explicitly.
func allowedMentions(p gateway.MessagePayload) *discordgo.MessageAllowedMentions {
	return &discordgo.MessageAllowedMentions{
		Parse: []discordgo.AllowedMentionType{},
		Roles: p.MentionRoles,
		Users: p.MentionUsers,
	}
}

func embeds(in []gateway.Embed) []*discordgo.MessageEmbed {
	out := make([]*discordgo.MessageEmbed, 0, len(in))
	for _, e := range in {
		me := &discordgo.MessageEmbed{
			Title:       truncateForDiscord(e.Title, maxEmbedTitle),
			Description: truncateForDiscord(e.Description, maxEmbedDescription),
			URL:         e.URL,
			Color:       e.Color,
		}
		if e.Footer != "" {
			me.Footer = &discordgo.MessageEmbedFooter{Text: truncateForDiscord(e.Footer, maxFooter)}
		}
		if e.Timestamp != nil {
			me.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
		}
		for i, f := range e.Fields {
			if i == maxEmbedFields {
				break
			}
			me.Fields = append(me.Fields, &discordgo.MessageEmbedField{
				Name:   truncateForDiscord(f.Name, maxFieldName),
				Value:  truncateForDiscord(f.Value, maxFieldValue),
				Inline: f.Inline,
			})
		}
		out = append(out, me)
	}
	return out
}

var buttonStyles = map[gateway.ButtonStyle]discordgo.ButtonStyle{
	gateway.ButtonPrimary:   discordgo.PrimaryButton,
	gateway.ButtonSecondary: discordgo.SecondaryButton,
	gateway.ButtonSuccess:   discordgo.SuccessButton,
	gateway.ButtonDanger:    discordgo.DangerButton,
	gateway.ButtonLink:      discordgo.LinkButton,
}

func components(rows []gateway.ActionRow) []discordgo.MessageComponent {
	out := make([]discordgo.MessageComponent, 0, len(rows))
	for _, row := range rows {
		buttons := make([]discordgo.MessageComponent, 0, len(row.Buttons))
		for _, b := range row.Buttons {
			style, ok := buttonStyles[b.Style]
			if !ok {
				style = discordgo.SecondaryButton
			}
			btn := discordgo.Button{Label: b.Label, Style: style, Disabled: b.Disabled}
			if style == discordgo.LinkButton {
				btn.URL = b.URL
			} else {
				btn.CustomID = b.CustomID
			}
			buttons = append(buttons, btn)
		}
		if len(buttons) > 0 {
			out = append(out, discordgo.ActionsRow{Components: buttons})
		}
	}
	return out
}

func thread(ch *discordgo.Channel) gateway.Thread {
	t := gateway.Thread{
		ID:          ch.ID,
		ParentID:    ch.ParentID,
		Name:        ch.Name,
		OwnerID:     ch.OwnerID,
		AppliedTags: append([]string(nil), ch.AppliedTags...),
	}
	if ch.ThreadMetadata != nil {
		t.Archived = ch.ThreadMetadata.Archived
		t.Locked = ch.ThreadMetadata.Locked
	}
	if ts, err := discordgo.SnowflakeTimestamp(ch.ID); err == nil {
		t.CreatedAt = ts.UTC()
	}
	return t
}

func truncateForDiscord(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	if limit <= 1 {
		return string(runes[:limit])
	}
	return string(runes[:limit-1]) + "…"
}
