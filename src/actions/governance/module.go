package governance

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/stellaria-pact/governance/src/actions/core"
	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/discord"
	"github.com/stellaria-pact/governance/src/gateway"
)

var _ core.Module = (*Module)(nil)

// Module connects the handler to a discordgo session.
type Module struct {
	config  *config.PactConfig
	session *discordgo.Session
	handler *Handler

	ready     chan struct{}
	readyOnce sync.Once

	runtimeCtx context.Context
	cancel     context.CancelFunc
}

// NewSession creates the bot session with the intents the module needs.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsMessageContent
	// deleted messages are attributed through the state cache
	session.State.MaxMessageCount = 5000
	return session, nil
}

func NewModule(cfg *config.PactConfig, session *discordgo.Session, handler *Handler) *Module {
	m := &Module{
		config:  cfg,
		session: session,
		handler: handler,
		ready:   make(chan struct{}),
	}
	m.initHandlers()
	return m
}

// Name implements core.Module.
func (m *Module) Name() string { return "governance" }

// Ready is closed once the gateway session is ready.
func (m *Module) Ready() <-chan struct{} { return m.ready }

func (m *Module) initHandlers() {
	m.session.AddHandler(m.onReady)
	m.session.AddHandler(m.onInteractionCreate)
	m.session.AddHandler(m.onThreadCreate)
	m.session.AddHandler(m.onMessageCreate)
	m.session.AddHandler(m.onMessageDelete)
}

func (m *Module) ctx() context.Context {
	if m.runtimeCtx != nil {
		return m.runtimeCtx
	}
	return context.Background()
}

func (m *Module) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Printf("governance: logged in as %s", r.User.Username)
	m.handler.Proposals.SetServiceUser(r.User.ID)

	if err := discord.RegisterSlashCommands(s, m.config.GuildID, discord.CommandPact); err != nil {
		log.Printf("governance: failed to register slash commands: %v", err)
	} else {
		log.Printf("governance: slash commands registered")
	}

	m.readyOnce.Do(func() { close(m.ready) })
}

func interactionOf(i *discordgo.InteractionCreate) gateway.Interaction {
	it := gateway.Interaction{
		ID:        i.ID,
		Token:     i.Token,
		AppID:     i.AppID,
		ChannelID: i.ChannelID,
		GuildID:   i.GuildID,
	}
	switch {
	case i.Member != nil && i.Member.User != nil:
		it.UserID = i.Member.User.ID
		it.RoleIDs = i.Member.Roles
	case i.User != nil:
		it.UserID = i.User.ID
	}
	return it
}

func (m *Module) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.GuildID != m.config.GuildID {
		return
	}
	it := interactionOf(i)
	ctx := m.ctx()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != discord.CommandPact {
			return
		}
		m.handler.Command(ctx, it, discord.Flatten(data))
	case discordgo.InteractionMessageComponent:
		if i.Message == nil {
			return
		}
		m.handler.Button(ctx, it, i.Message.ID, i.MessageComponentData().CustomID)
	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		m.handler.Modal(ctx, it, data.CustomID, modalValues(data))
	}
}

func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, c := range data.Components {
		row, ok := c.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, rc := range row.Components {
			if in, ok := rc.(*discordgo.TextInput); ok {
				values[in.CustomID] = in.Value
			}
		}
	}
	return values
}

func (m *Module) onThreadCreate(s *discordgo.Session, t *discordgo.ThreadCreate) {
	if t.Channel == nil || t.GuildID != m.config.GuildID {
		return
	}
	th := gateway.Thread{ID: t.ID, ParentID: t.ParentID, Name: t.Name, OwnerID: t.OwnerID}
	m.handler.ThreadCreated(m.ctx(), th)
}

func (m *Module) onMessageCreate(s *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID != m.config.GuildID {
		return
	}
	m.handler.MessageCreated(m.ctx(), msg.ChannelID, msg.Author.ID)
}

func (m *Module) onMessageDelete(s *discordgo.Session, msg *discordgo.MessageDelete) {
	before := msg.BeforeDelete
	if before == nil || before.Author == nil || before.Author.Bot || msg.GuildID != m.config.GuildID {
		return
	}
	m.handler.MessageDeleted(m.ctx(), msg.ChannelID, before.Author.ID)
}

func (m *Module) Start(ctx context.Context) error {
	m.runtimeCtx, m.cancel = context.WithCancel(ctx)
	if err := m.session.Open(); err != nil {
		m.cancel()
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	return nil
}

func (m *Module) Stop(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			log.Printf("governance: close session: %v", err)
		}
	}
}
