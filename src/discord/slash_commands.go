package discord

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// CommandPact is the single top-level command; everything else hangs off it.
const CommandPact = "pact"

// Subcommand groups and subcommands under /pact.
const (
	GroupObjection = "objection"
	GroupVote      = "vote"
	GroupProposal  = "proposal"
	GroupVoter     = "voter"

	SubRaise    = "raise"
	SubCreate   = "create"
	SubAdjust   = "adjust"
	SubReopen   = "reopen"
	SubSettings = "settings"
	SubExecute  = "execute"
	SubAbandon  = "abandon"
	SubFinish   = "finish"
	SubKick     = "kick"
	SubRestore  = "restore"
	SubAnnounce = "announce"
)

// Option names.
const (
	OptTitle       = "title"
	OptHours       = "hours"
	OptOptions     = "options"
	OptAnonymous   = "anonymous"
	OptRealtime    = "realtime"
	OptNotify      = "notify"
	OptMessage     = "message"
	OptSetting     = "setting"
	OptUser        = "user"
	OptMuteHours   = "mute_hours"
	OptAutoExecute = "auto_execute"
	OptRepost      = "repost"
	OptThreshold   = "threshold"
	OptInterval    = "interval"
)

var (
	minHours   = float64(4)
	maxHours   = float64(168)
	minOne     = float64(1)
	maxMinutes = float64(10080)
)

func messageOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        OptMessage,
		Description: "Message ID of the vote panel",
		Required:    true,
	}
}

func hoursOption(desc string, min *float64) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        OptHours,
		Description: desc,
		Required:    true,
		MinValue:    min,
		MaxValue:    maxHours,
	}
}

func boolOption(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionBoolean,
		Name:        name,
		Description: desc,
	}
}

func userOption(desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        OptUser,
		Description: desc,
		Required:    true,
	}
}

func sub(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommand,
		Name:        name,
		Description: desc,
		Options:     opts,
	}
}

func group(name, desc string, subs ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionSubCommandGroup,
		Name:        name,
		Description: desc,
		Options:     subs,
	}
}

// PactCommand is the /pact definition registered per guild.
func PactCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        CommandPact,
		Description: "Stellaria Pact governance",
		Options: []*discordgo.ApplicationCommandOption{
			group(GroupObjection, "Objections against a proposal",
				sub(SubRaise, "Raise an objection against this proposal"),
			),
			group(GroupVote, "Proposal votes",
				sub(SubCreate, "Create a vote in this proposal thread",
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        OptTitle,
						Description: "What is being voted on",
						Required:    true,
						MaxLength:   200,
					},
					hoursOption("Duration in hours (4-168)", &minHours),
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        OptOptions,
						Description: "Comma separated options; leave empty for approve/reject",
					},
					boolOption(OptAnonymous, "Hide who voted"),
					boolOption(OptRealtime, "Show results while voting is open"),
					boolOption(OptNotify, "Ping the vote notifier role"),
				),
				sub(SubAdjust, "Extend an open vote",
					messageOption(),
					hoursOption("Hours to add", &minOne),
				),
				sub(SubReopen, "Reopen a closed vote",
					messageOption(),
					hoursOption("New duration in hours (4-168)", &minHours),
				),
				sub(SubSettings, "Toggle a vote setting",
					messageOption(),
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        OptSetting,
						Description: "Setting to toggle",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "anonymous", Value: OptAnonymous},
							{Name: "realtime", Value: OptRealtime},
							{Name: "notify", Value: OptNotify},
						},
					},
				),
			),
			group(GroupProposal, "Proposal lifecycle",
				sub(SubExecute, "Request execution of this proposal"),
				sub(SubAbandon, "Abandon this proposal while executing"),
				sub(SubFinish, "Mark this proposal as finished"),
			),
			group(GroupVoter, "Voter moderation",
				sub(SubKick, "Disqualify a user in this thread and remove their votes",
					userOption("User to disqualify"),
					&discordgo.ApplicationCommandOption{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        OptMuteHours,
						Description: "Lift the disqualification after this many hours",
						MinValue:    &minOne,
						MaxValue:    maxHours,
					},
				),
				sub(SubRestore, "Lift a disqualification", userOption("User to restore")),
			),
			sub(SubAnnounce, "Broadcast an announcement for this proposal",
				boolOption(OptAutoExecute, "Move the proposal to executing when it ends"),
				boolOption(OptRepost, "Repost in busy broadcast channels"),
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        OptThreshold,
					Description: "Messages before a repost",
					MinValue:    &minOne,
				},
				&discordgo.ApplicationCommandOption{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        OptInterval,
					Description: "Minimum minutes between reposts",
					MinValue:    &minOne,
					MaxValue:    maxMinutes,
				},
			),
		},
	}
}

var commandDefinitions = map[string]func() *discordgo.ApplicationCommand{
	CommandPact: PactCommand,
}

// RegisterSlashCommands registers the requested slash commands for a guild.
// When no command names are provided, all known commands are registered.
func RegisterSlashCommands(s *discordgo.Session, guildID string, names ...string) error {
	if guildID == "" {
		return fmt.Errorf("discord: guildID is required to register slash commands")
	}
	if len(names) == 0 {
		names = []string{CommandPact}
	}

	var failures []string
	for _, name := range names {
		definition, ok := commandDefinitions[name]
		if !ok {
			log.Printf("discord: unknown slash command %q", name)
			continue
		}

		_, err := s.ApplicationCommandCreate(s.State.User.ID, guildID, definition())
		if err != nil {
			if isDuplicateCommandError(err) {
				log.Printf("discord: slash command %q already registered", name)
				continue
			}
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			log.Printf("discord: failed to register command %q: %v", name, err)
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("discord: slash command registration errors: %s", strings.Join(failures, "; "))
	}
	return nil
}

// DeleteSlashCommands removes all registered slash commands for a guild.
func DeleteSlashCommands(s *discordgo.Session, guildID string) error {
	if guildID == "" {
		return fmt.Errorf("discord: guildID is required to delete slash commands")
	}

	commands, err := s.ApplicationCommands(s.State.User.ID, guildID)
	if err != nil {
		return err
	}
	for _, cmd := range commands {
		if err := s.ApplicationCommandDelete(s.State.User.ID, guildID, cmd.ID); err != nil {
			return err
		}
	}
	return nil
}

func isDuplicateCommandError(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		if strings.Contains(strings.ToLower(restErr.Message.Message), "already exists") {
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "50035") && strings.Contains(msg, "already exists")
}

// Invocation is a flattened /pact call: group and subcommand names plus the
// leaf options by name.
type Invocation struct {
	Group   string
	Sub     string
	Options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

// Flatten walks the option tree of a /pact interaction.
func Flatten(data discordgo.ApplicationCommandInteractionData) Invocation {
	inv := Invocation{Options: map[string]*discordgo.ApplicationCommandInteractionDataOption{}}
	opts := data.Options
	for len(opts) == 1 {
		o := opts[0]
		switch o.Type {
		case discordgo.ApplicationCommandOptionSubCommandGroup:
			inv.Group = o.Name
		case discordgo.ApplicationCommandOptionSubCommand:
			inv.Sub = o.Name
		default:
			inv.Options[o.Name] = o
			return inv
		}
		opts = o.Options
	}
	for _, o := range opts {
		inv.Options[o.Name] = o
	}
	return inv
}

// Path is "group sub" or just "sub".
func (i Invocation) Path() string {
	if i.Group == "" {
		return i.Sub
	}
	return i.Group + " " + i.Sub
}

func (i Invocation) String(name string) string {
	if o, ok := i.Options[name]; ok {
		return strings.TrimSpace(o.StringValue())
	}
	return ""
}

func (i Invocation) Int(name string) int {
	if o, ok := i.Options[name]; ok {
		return int(o.IntValue())
	}
	return 0
}

func (i Invocation) Bool(name string) bool {
	if o, ok := i.Options[name]; ok {
		return o.BoolValue()
	}
	return false
}

// UserID returns the snowflake of a user option.
func (i Invocation) UserID(name string) string {
	if o, ok := i.Options[name]; ok {
		if v, ok := o.Value.(string); ok {
			return v
		}
	}
	return ""
}
