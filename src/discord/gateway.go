package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stellaria-pact/governance/src/gateway"
)

var _ gateway.Gateway = (*Gateway)(nil)

// Gateway implements gateway.Gateway on a discordgo session.
type Gateway struct {
	session *discordgo.Session
	guildID string
}

// NewGateway wraps an open session.
func NewGateway(s *discordgo.Session, guildID string) *Gateway {
	return &Gateway{session: s, guildID: guildID}
}

// IsNotFound reports a REST 404.
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// IsForbidden reports a REST 403.
func IsForbidden(err error) bool { return statusOf(err) == http.StatusForbidden }

func statusOf(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	return 0
}

// classify maps REST failures onto the gateway sentinels.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return fmt.Errorf("discord: %s: %w: %v", op, gateway.ErrNotFound, err)
	case IsForbidden(err):
		return fmt.Errorf("discord: %s: %w: %v", op, gateway.ErrForbidden, err)
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}

func (g *Gateway) PostMessage(ctx context.Context, channelID string, p gateway.MessagePayload) (string, error) {
	msg, err := g.session.ChannelMessageSendComplex(channelID, messageSend(p), discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("post message", err)
	}
	return msg.ID, nil
}

func (g *Gateway) EditMessage(ctx context.Context, channelID, messageID string, p gateway.MessagePayload) error {
	embeds := embeds(p.Embeds)
	components := components(p.Rows)
	content := p.Content
	_, err := g.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		ID:              messageID,
		Channel:         channelID,
		Content:         &content,
		Embeds:          &embeds,
		Components:      &components,
		AllowedMentions: allowedMentions(p),
	}, discordgo.WithContext(ctx))
	return classify("edit message", err)
}

func (g *Gateway) FetchMessage(ctx context.Context, channelID, messageID string) (*gateway.Message, error) {
	msg, err := g.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("fetch message", err)
	}
	out := &gateway.Message{ID: msg.ID, ChannelID: msg.ChannelID, Content: msg.Content}
	if msg.Author != nil {
		out.AuthorID = msg.Author.ID
	}
	for _, e := range msg.Embeds {
		ge := gateway.Embed{Title: e.Title, Description: e.Description, URL: e.URL, Color: e.Color}
		if e.Footer != nil {
			ge.Footer = e.Footer.Text
		}
		for _, f := range e.Fields {
			ge.Fields = append(ge.Fields, gateway.EmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out.Embeds = append(out.Embeds, ge)
	}
	return out, nil
}

func (g *Gateway) CreateThread(ctx context.Context, forumID, name string, p gateway.MessagePayload, tags []string) (*gateway.Thread, error) {
	ch, err := g.session.ForumThreadStartComplex(forumID, &discordgo.ThreadStart{
		Name:                name,
		AutoArchiveDuration: 10080,
		AppliedTags:         tags,
	}, messageSend(p), discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("create thread", err)
	}
	t := thread(ch)
	return &t, nil
}

func (g *Gateway) EditThread(ctx context.Context, threadID string, e gateway.ThreadEdit) error {
	edit := &discordgo.ChannelEdit{
		Archived:    e.Archived,
		Locked:      e.Locked,
		AppliedTags: e.AppliedTags,
	}
	if e.Name != nil {
		edit.Name = *e.Name
	}
	_, err := g.session.ChannelEditComplex(threadID, edit, discordgo.WithContext(ctx))
	return classify("edit thread", err)
}

func (g *Gateway) FetchThread(ctx context.Context, threadID string) (*gateway.Thread, error) {
	ch, err := g.session.Channel(threadID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("fetch thread", err)
	}
	t := thread(ch)
	return &t, nil
}

// ListForumThreads merges the guild's active threads under forumID with the
// forum's archived threads, newest first, until since is reached.
func (g *Gateway) ListForumThreads(ctx context.Context, forumID string, since time.Time) ([]gateway.Thread, error) {
	seen := make(map[string]struct{})
	var out []gateway.Thread
	add := func(ch *discordgo.Channel) {
		if ch == nil || ch.ParentID != forumID {
			return
		}
		if _, ok := seen[ch.ID]; ok {
			return
		}
		t := thread(ch)
		if t.CreatedAt.Before(since) {
			return
		}
		seen[ch.ID] = struct{}{}
		out = append(out, t)
	}

	active, err := g.session.GuildThreadsActive(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list active threads", err)
	}
	for _, ch := range active.Threads {
		add(ch)
	}

	var before *time.Time
	for {
		page, err := g.session.ThreadsArchived(forumID, before, 50, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify("list archived threads", err)
		}
		if len(page.Threads) == 0 {
			break
		}
		stop := false
		for _, ch := range page.Threads {
			add(ch)
			if ch.ThreadMetadata != nil {
				ts := ch.ThreadMetadata.ArchiveTimestamp
				before = &ts
				if ts.Before(since) {
					stop = true
				}
			}
		}
		if stop || !page.HasMore || before == nil {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (g *Gateway) FetchUser(ctx context.Context, userID string) (*gateway.User, error) {
	u, err := g.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("fetch user", err)
	}
	display := u.GlobalName
	if display == "" {
		display = u.Username
	}
	return &gateway.User{ID: u.ID, Username: u.Username, DisplayName: display, Bot: u.Bot}, nil
}

func (g *Gateway) MemberRoles(ctx context.Context, userID string) ([]string, error) {
	return MemberRoles(ctx, g.session, g.guildID, userID)
}

func interaction(it gateway.Interaction) *discordgo.Interaction {
	return &discordgo.Interaction{ID: it.ID, Token: it.Token, AppID: it.AppID, ChannelID: it.ChannelID, GuildID: it.GuildID}
}

func (g *Gateway) ReplyEphemeral(ctx context.Context, it gateway.Interaction, p gateway.MessagePayload) error {
	err := g.session.InteractionRespond(interaction(it), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         p.Content,
			Embeds:          embeds(p.Embeds),
			Components:      components(p.Rows),
			AllowedMentions: allowedMentions(p),
			Flags:           discordgo.MessageFlagsEphemeral,
		},
	}, discordgo.WithContext(ctx))
	return classify("reply", err)
}

func (g *Gateway) DeferInteraction(ctx context.Context, it gateway.Interaction, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := g.session.InteractionRespond(interaction(it), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(ctx))
	return classify("defer", err)
}

func (g *Gateway) FollowUp(ctx context.Context, it gateway.Interaction, p gateway.MessagePayload, ephemeral bool) error {
	params := &discordgo.WebhookParams{
		Content:         p.Content,
		Embeds:          embeds(p.Embeds),
		Components:      components(p.Rows),
		AllowedMentions: allowedMentions(p),
	}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	_, err := g.session.FollowupMessageCreate(interaction(it), true, params, discordgo.WithContext(ctx))
	return classify("follow up", err)
}

func (g *Gateway) SendModal(ctx context.Context, it gateway.Interaction, m gateway.Modal) error {
	rows := make([]discordgo.MessageComponent, 0, len(m.Inputs))
	for _, in := range m.Inputs {
		style := discordgo.TextInputShort
		if in.Paragraph {
			style = discordgo.TextInputParagraph
		}
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    in.CustomID,
				Label:       in.Label,
				Style:       style,
				Placeholder: in.Placeholder,
				Value:       in.Value,
				Required:    in.Required,
				MinLength:   in.MinLength,
				MaxLength:   in.MaxLength,
			},
		}})
	}
	err := g.session.InteractionRespond(interaction(it), &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   m.CustomID,
			Title:      m.Title,
			Components: rows,
		},
	}, discordgo.WithContext(ctx))
	return classify("modal", err)
}
