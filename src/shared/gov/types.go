package gov

import (
	"time"

	"gorm.io/datatypes"
)

// ProposalStatus is the lifecycle state of a proposal thread.
type ProposalStatus string

const (
	ProposalDiscussion ProposalStatus = "discussion"
	ProposalExecuting  ProposalStatus = "executing"
	ProposalFrozen     ProposalStatus = "frozen"
	ProposalAbandoned  ProposalStatus = "abandoned"
	ProposalRejected   ProposalStatus = "rejected"
	ProposalFinished   ProposalStatus = "finished"
)

// ObjectionStatus is the lifecycle state of an objection.
type ObjectionStatus string

const (
	ObjectionPendingReview   ObjectionStatus = "pending_review"
	ObjectionCollectingVotes ObjectionStatus = "collecting_votes"
	ObjectionVoting          ObjectionStatus = "voting"
	ObjectionPassed          ObjectionStatus = "passed"
	ObjectionRejected        ObjectionStatus = "rejected"
)

// Final reports whether no further transition is possible.
func (s ObjectionStatus) Final() bool {
	return s == ObjectionPassed || s == ObjectionRejected
}

// VoteKind separates ordinary proposal ballots from the two objection ballots.
type VoteKind string

const (
	VoteKindProposal         VoteKind = "proposal"
	VoteKindObjectionSupport VoteKind = "objection_support"
	VoteKindObjectionFormal  VoteKind = "objection_formal"
)

// Vote session status values.
const (
	VoteSessionClosed int8 = 0
	VoteSessionOpen   int8 = 1
)

// Choice values stored on a user vote. Abstaining deletes the row.
const (
	ChoiceReject  int8 = 0
	ChoiceApprove int8 = 1
)

// ConfirmationStatus is the state of a multi-party approval ticket.
type ConfirmationStatus string

const (
	ConfirmationPending   ConfirmationStatus = "pending"
	ConfirmationCompleted ConfirmationStatus = "completed"
	ConfirmationCanceled  ConfirmationStatus = "canceled"
)

// Announcement status values.
const (
	AnnouncementFinished int8 = 0
	AnnouncementActive   int8 = 1
)

// Proposal is a governance item bound to a discussion forum thread.
type Proposal struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement"`
	ThreadID   string         `gorm:"size:32;uniqueIndex;not null"`
	ProposerID string         `gorm:"size:32;not null"`
	Title      string         `gorm:"size:255;not null"`
	Status     ProposalStatus `gorm:"size:16;index;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Objection challenges a proposal.
type Objection struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement"`
	ProposalID        uint64          `gorm:"index;not null"`
	Proposal          *Proposal       `gorm:"foreignKey:ProposalID"`
	ObjectorID        string          `gorm:"size:32;not null"`
	Reason            string          `gorm:"type:text;not null"`
	RequiredVotes     int             `gorm:"not null"`
	Status            ObjectionStatus `gorm:"size:20;index;not null"`
	ObjectionThreadID *string         `gorm:"size:32;index"`
	ReviewThreadID    *string         `gorm:"size:32;index"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// VoteSession is a single ballot.
type VoteSession struct {
	ID                     uint64       `gorm:"primaryKey;autoIncrement"`
	GuildID                string       `gorm:"size:32;not null"`
	Kind                   VoteKind     `gorm:"size:20;not null"`
	Title                  string       `gorm:"size:255"`
	CreatorID              string       `gorm:"size:32"`
	ContextThreadID        string       `gorm:"size:32;index;not null"`
	ContextChannelID       string       `gorm:"size:32"`
	ContextMessageID       *string      `gorm:"size:32;index"`
	VotingChannelMessageID *string      `gorm:"size:32"`
	ObjectionID            *uint64      `gorm:"index"`
	Objection              *Objection   `gorm:"foreignKey:ObjectionID"`
	Anonymous              bool         `gorm:"not null"`
	Realtime               bool         `gorm:"not null"`
	Notify                 bool         `gorm:"not null"`
	Status                 int8         `gorm:"not null;index:idx_vote_sessions_status_end,priority:1"`
	EndTime                *time.Time   `gorm:"index:idx_vote_sessions_status_end,priority:2"`
	TotalChoices           int          `gorm:"not null"`
	Options                []VoteOption `gorm:"foreignKey:SessionID"`
	Votes                  []UserVote   `gorm:"foreignKey:SessionID"`
	CreatedAt              time.Time
}

// VoteOption is one choice of a multi-option session.
type VoteOption struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID   uint64 `gorm:"not null;uniqueIndex:idx_vote_options_session_choice,priority:1"`
	ChoiceIndex int    `gorm:"not null;uniqueIndex:idx_vote_options_session_choice,priority:2"`
	ChoiceText  string `gorm:"size:255;not null"`
}

// UserVote is one user's pick on one option.
type UserVote struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	SessionID   uint64 `gorm:"not null;uniqueIndex:idx_user_votes_unique,priority:1"`
	UserID      string `gorm:"size:32;not null;uniqueIndex:idx_user_votes_unique,priority:2"`
	ChoiceIndex int    `gorm:"not null;uniqueIndex:idx_user_votes_unique,priority:3"`
	Choice      int8   `gorm:"not null"`
	VotedAt     time.Time
}

// UserActivity counts a user's messages in a thread.
type UserActivity struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	UserID       string     `gorm:"size:32;not null;uniqueIndex:idx_user_activity_user_thread,priority:1"`
	ThreadID     string     `gorm:"size:32;not null;uniqueIndex:idx_user_activity_user_thread,priority:2"`
	MessageCount int        `gorm:"not null"`
	Validation   int8       `gorm:"not null"`
	MuteEndTime  *time.Time
	LastUpdated  time.Time
}

// ConfirmationSession is a multi-role approval ticket. PendingKey carries
// "<context>:<target>" while the ticket is pending and NULL afterwards, so its
// unique index admits one pending row per target on every supported database.
type ConfirmationSession struct {
	ID               uint64                      `gorm:"primaryKey;autoIncrement"`
	Context          string                      `gorm:"size:64;not null;index:idx_confirmation_context_target,priority:1"`
	TargetID         uint64                      `gorm:"not null;index:idx_confirmation_context_target,priority:2"`
	MessageID        *string                     `gorm:"size:32;index"`
	ChannelID        string                      `gorm:"size:32"`
	InitiatorID      string                      `gorm:"size:32;not null"`
	RequiredRoles    datatypes.JSONSlice[string] `gorm:"type:json;not null"`
	ConfirmedParties datatypes.JSONMap           `gorm:"type:json;not null"`
	Status           ConfirmationStatus          `gorm:"size:16;not null"`
	PendingKey       *string                     `gorm:"size:100;uniqueIndex"`
	CancelerID       *string                     `gorm:"size:32"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Announcement is a timed public notice tied to a thread.
type Announcement struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	ThreadID    string    `gorm:"size:32;uniqueIndex;not null"`
	AnnouncerID string    `gorm:"size:32;not null"`
	Title       string    `gorm:"size:255;not null"`
	Content     string    `gorm:"type:text;not null"`
	EndTime     time.Time `gorm:"index:idx_announcements_status_end,priority:2;not null"`
	Status      int8      `gorm:"index:idx_announcements_status_end,priority:1;not null"`
	AutoExecute bool      `gorm:"not null"`
	CreatedAt   time.Time
}

// AnnouncementChannelMonitor drives rebroadcasts of an announcement in one channel.
type AnnouncementChannelMonitor struct {
	ID                    uint64        `gorm:"primaryKey;autoIncrement"`
	AnnouncementID        uint64        `gorm:"not null;uniqueIndex:idx_monitor_announcement_channel,priority:1"`
	Announcement          *Announcement `gorm:"foreignKey:AnnouncementID"`
	ChannelID             string        `gorm:"size:32;not null;index;uniqueIndex:idx_monitor_announcement_channel,priority:2"`
	MessageThreshold      int           `gorm:"not null"`
	TimeIntervalMinutes   int           `gorm:"not null"`
	MessageCountSinceLast int           `gorm:"not null"`
	LastRepostAt          time.Time     `gorm:"not null"`
}

// Setting represents a configuration setting stored in the database
type Setting struct {
	ID     uint16 `gorm:"primaryKey"`
	Name   string `gorm:"size:64;uniqueIndex;not null"`
	Value  string `gorm:"type:text;not null"`
	Active uint8  `gorm:"not null"`
}

// AllModels lists every table managed by the migration.
func AllModels() []interface{} {
	return []interface{}{
		&Setting{},
		&Proposal{},
		&Objection{},
		&VoteSession{},
		&VoteOption{},
		&UserVote{},
		&UserActivity{},
		&ConfirmationSession{},
		&Announcement{},
		&AnnouncementChannelMonitor{},
	}
}
