// Package gateway defines the chat-platform surface the governance core talks
// to. Implementations are never called directly by engines; listeners reach
// them through the API scheduler.
package gateway

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("gateway: not found")
	ErrForbidden = errors.New("gateway: forbidden")
)

// Gateway is the outbound chat-platform contract.
type Gateway interface {
	PostMessage(ctx context.Context, channelID string, p MessagePayload) (string, error)
	EditMessage(ctx context.Context, channelID, messageID string, p MessagePayload) error
	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)

	CreateThread(ctx context.Context, forumID, name string, p MessagePayload, tags []string) (*Thread, error)
	EditThread(ctx context.Context, threadID string, e ThreadEdit) error
	FetchThread(ctx context.Context, threadID string) (*Thread, error)
	// ListForumThreads returns active and archived threads of a forum created after since.
	ListForumThreads(ctx context.Context, forumID string, since time.Time) ([]Thread, error)

	FetchUser(ctx context.Context, userID string) (*User, error)
	// MemberRoles returns the guild role ids held by userID.
	MemberRoles(ctx context.Context, userID string) ([]string, error)

	ReplyEphemeral(ctx context.Context, it Interaction, p MessagePayload) error
	DeferInteraction(ctx context.Context, it Interaction, ephemeral bool) error
	// FollowUp answers an interaction that was already deferred.
	FollowUp(ctx context.Context, it Interaction, p MessagePayload, ephemeral bool) error
	SendModal(ctx context.Context, it Interaction, m Modal) error
}

// Interaction identifies an inbound interaction for responses.
type Interaction struct {
	ID        string
	Token     string
	AppID     string
	ChannelID string
	GuildID   string
	UserID    string
	// RoleIDs are the member's guild roles at the time of the interaction.
	RoleIDs []string
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type Embed struct {
	Title       string
	Description string
	URL         string
	Color       int
	Fields      []EmbedField
	Footer      string
	Timestamp   *time.Time
}

type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota + 1
	ButtonSecondary
	ButtonSuccess
	ButtonDanger
	ButtonLink
)

type Button struct {
	Label    string
	CustomID string
	URL      string
	Style    ButtonStyle
	Disabled bool
}

type ActionRow struct {
	Buttons []Button
}

// MessagePayload is a rendered message. On edit the rows replace the
// existing components, so an empty Rows removes every button.
type MessagePayload struct {
	Content      string
	Embeds       []Embed
	Rows         []ActionRow
	MentionRoles []string
	MentionUsers []string
}

// ThreadEdit patches a thread; nil fields are left unchanged.
type ThreadEdit struct {
	Name        *string
	Archived    *bool
	Locked      *bool
	AppliedTags *[]string
}

type Thread struct {
	ID          string
	ParentID    string
	Name        string
	OwnerID     string
	Archived    bool
	Locked      bool
	AppliedTags []string
	CreatedAt   time.Time
}

type Message struct {
	ID        string
	ChannelID string
	AuthorID  string
	Content   string
	Embeds    []Embed
}

type User struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
}

type TextInput struct {
	CustomID    string
	Label       string
	Placeholder string
	Value       string
	Paragraph   bool
	Required    bool
	MinLength   int
	MaxLength   int
}

type Modal struct {
	CustomID string
	Title    string
	Inputs   []TextInput
}

// Bool returns a pointer to v for ThreadEdit fields.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v for ThreadEdit fields.
func String(v string) *string { return &v }

// Tags returns a pointer to tags for ThreadEdit fields.
func Tags(tags []string) *[]string {
	out := append([]string{}, tags...)
	return &out
}

// IsNotFound reports whether err means the target no longer exists.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden reports whether the bot lacks access to the target.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }
