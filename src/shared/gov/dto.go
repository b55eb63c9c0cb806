package gov

import "time"

// ProposalDTO is the detached view of a Proposal.
type ProposalDTO struct {
	ID         uint64
	ThreadID   string
	ProposerID string
	Title      string
	Status     ProposalStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ToDTO materializes the proposal.
func (p *Proposal) ToDTO() ProposalDTO {
	return ProposalDTO{
		ID:         p.ID,
		ThreadID:   p.ThreadID,
		ProposerID: p.ProposerID,
		Title:      p.Title,
		Status:     p.Status,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

// ObjectionDTO is the detached view of an Objection plus its proposal fields.
type ObjectionDTO struct {
	ID                uint64
	ProposalID        uint64
	ProposalThreadID  string
	ProposalTitle     string
	ProposalStatus    ProposalStatus
	ObjectorID        string
	Reason            string
	RequiredVotes     int
	Status            ObjectionStatus
	ObjectionThreadID string
	ReviewThreadID    string
	CreatedAt         time.Time
}

// ToDTO materializes the objection. Proposal fields are filled when the
// relation was preloaded.
func (o *Objection) ToDTO() ObjectionDTO {
	dto := ObjectionDTO{
		ID:            o.ID,
		ProposalID:    o.ProposalID,
		ObjectorID:    o.ObjectorID,
		Reason:        o.Reason,
		RequiredVotes: o.RequiredVotes,
		Status:        o.Status,
		CreatedAt:     o.CreatedAt,
	}
	if o.ObjectionThreadID != nil {
		dto.ObjectionThreadID = *o.ObjectionThreadID
	}
	if o.ReviewThreadID != nil {
		dto.ReviewThreadID = *o.ReviewThreadID
	}
	if o.Proposal != nil {
		dto.ProposalThreadID = o.Proposal.ThreadID
		dto.ProposalTitle = o.Proposal.Title
		dto.ProposalStatus = o.Proposal.Status
	}
	return dto
}

// OptionTally holds the counts of one ballot option.
type OptionTally struct {
	ChoiceIndex int
	Text        string
	Approve     int
	Reject      int
	Total       int
}

// VoterEntry is one row of the public voter list.
type VoterEntry struct {
	UserID      string
	ChoiceIndex int
	Choice      int8
}

// VoteDetailDTO is everything a vote panel renderer needs.
type VoteDetailDTO struct {
	SessionID              uint64
	GuildID                string
	Kind                   VoteKind
	Title                  string
	CreatorID              string
	ContextThreadID        string
	ContextChannelID       string
	ContextMessageID       string
	VotingChannelMessageID string
	ObjectionID            *uint64
	Anonymous              bool
	Realtime               bool
	Notify                 bool
	IsOpen                 bool
	EndTime                *time.Time
	TotalChoices           int
	Options                []OptionTally
	TotalApprove           int
	TotalReject            int
	TotalVotes             int
	// Voters is nil for anonymous sessions.
	Voters []VoterEntry
}

// IsPassed reports a strict approve majority over reject.
func (d VoteDetailDTO) IsPassed() bool {
	return d.TotalApprove > d.TotalReject
}

// EndTimeChange reports an end-time adjustment.
type EndTimeChange struct {
	Old *time.Time
	New time.Time
}

// SupportAction is the button pressed on a support-collection panel.
type SupportAction string

const (
	SupportActionSupport  SupportAction = "support"
	SupportActionWithdraw SupportAction = "withdraw"
)

// SupportOutcome is what a support click actually did.
type SupportOutcome string

const (
	OutcomeSupported        SupportOutcome = "supported"
	OutcomeAlreadySupported SupportOutcome = "already_supported"
	OutcomeWithdrew         SupportOutcome = "withdrew"
	OutcomeNotSupported     SupportOutcome = "not_supported"
)

// Effective reports whether the click changed the supporter count.
func (o SupportOutcome) Effective() bool {
	return o == OutcomeSupported || o == OutcomeWithdrew
}

// SupportResultDTO is returned by a support-collection click.
type SupportResultDTO struct {
	Outcome            SupportOutcome
	SessionID          uint64
	ObjectionID        uint64
	ProposalID         uint64
	ProposalThreadID   string
	ProposalTitle      string
	ObjectorID         string
	Reason             string
	CurrentSupporters  int
	RequiredSupporters int
	IsGoalReached      bool
	ObjectionStatus    ObjectionStatus
	PanelChannelID     string
	PanelMessageID     string
	EndTime            *time.Time
	// GoalReachedNow is set when this click moved the objection into Voting.
	GoalReachedNow bool
	// Reverted is set when this click moved the objection back to CollectingVotes.
	Reverted bool
}

// ConfirmationDTO is the detached view of a ConfirmationSession.
type ConfirmationDTO struct {
	ID               uint64
	Context          string
	TargetID         uint64
	MessageID        string
	ChannelID        string
	InitiatorID      string
	RequiredRoles    []string
	ConfirmedParties map[string]string
	Status           ConfirmationStatus
	CancelerID       string
}

// ToDTO materializes the confirmation session.
func (c *ConfirmationSession) ToDTO() ConfirmationDTO {
	dto := ConfirmationDTO{
		ID:               c.ID,
		Context:          c.Context,
		TargetID:         c.TargetID,
		ChannelID:        c.ChannelID,
		InitiatorID:      c.InitiatorID,
		RequiredRoles:    append([]string(nil), c.RequiredRoles...),
		ConfirmedParties: c.Parties(),
		Status:           c.Status,
	}
	if c.MessageID != nil {
		dto.MessageID = *c.MessageID
	}
	if c.CancelerID != nil {
		dto.CancelerID = *c.CancelerID
	}
	return dto
}

// Parties returns confirmedParties as role -> user id.
func (c *ConfirmationSession) Parties() map[string]string {
	out := make(map[string]string, len(c.ConfirmedParties))
	for role, v := range c.ConfirmedParties {
		if s, ok := v.(string); ok {
			out[role] = s
		}
	}
	return out
}

// AnnouncementDTO is the detached view of an Announcement.
type AnnouncementDTO struct {
	ID          uint64
	ThreadID    string
	AnnouncerID string
	Title       string
	Content     string
	EndTime     time.Time
	Active      bool
	AutoExecute bool
	CreatedAt   time.Time
}

// ToDTO materializes the announcement.
func (a *Announcement) ToDTO() AnnouncementDTO {
	return AnnouncementDTO{
		ID:          a.ID,
		ThreadID:    a.ThreadID,
		AnnouncerID: a.AnnouncerID,
		Title:       a.Title,
		Content:     a.Content,
		EndTime:     a.EndTime,
		Active:      a.Status == AnnouncementActive,
		AutoExecute: a.AutoExecute,
		CreatedAt:   a.CreatedAt,
	}
}

// MonitorDTO is a monitor joined with its announcement.
type MonitorDTO struct {
	ID                    uint64
	AnnouncementID        uint64
	ChannelID             string
	MessageThreshold      int
	TimeIntervalMinutes   int
	MessageCountSinceLast int
	LastRepostAt          time.Time
	Announcement          AnnouncementDTO
}
