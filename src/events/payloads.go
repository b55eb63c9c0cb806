package events

import "github.com/stellaria-pact/governance/src/shared/gov"

const (
	NameProposalThreadCreated          Name = "proposal_thread_created"
	NameProposalStatusChanged          Name = "proposal_status_changed"
	NameConfirmationUpdated            Name = "confirmation_updated"
	NameObjectionVoteInitiation        Name = "objection_vote_initiation"
	NameObjectionAdminReviewInitiation Name = "objection_admin_review_initiation"
	NameObjectionReviewed              Name = "objection_reviewed"
	NameObjectionSupportChanged        Name = "objection_support_changed"
	NameObjectionGoalReached           Name = "objection_goal_reached"
	NameObjectionThreadCreated         Name = "objection_thread_created"
	NameObjectionFormalVoteInitiation  Name = "objection_formal_vote_initiation"
	NameObjectionVoteFinished          Name = "objection_vote_finished"
	NameObjectionCollectionExpired     Name = "objection_collection_expired"
	NameVoteCreated                    Name = "vote_created"
	NameVoteUpdated                    Name = "vote_updated"
	NameVoteFinished                   Name = "vote_finished"
	NameVoteSettingsChanged            Name = "vote_settings_changed"
	NameAnnouncementCreated            Name = "announcement_created"
	NameAnnouncementExpired            Name = "announcement_expired"
	NameAnnouncementFinished           Name = "announcement_finished"
	NameAnnouncementRepostDue          Name = "announcement_repost_due"
)

// ProposalThreadCreated follows the creation of a proposal row.
type ProposalThreadCreated struct {
	Proposal gov.ProposalDTO
}

func (ProposalThreadCreated) EventName() Name { return NameProposalThreadCreated }

// ProposalStatusChanged asks for the thread tags to follow the status.
type ProposalStatusChanged struct {
	Proposal gov.ProposalDTO
	From     gov.ProposalStatus
	ActorID  string
}

func (ProposalStatusChanged) EventName() Name { return NameProposalStatusChanged }

// ConfirmationUpdated re-renders a confirmation panel.
type ConfirmationUpdated struct {
	Confirmation gov.ConfirmationDTO
	Proposal     gov.ProposalDTO
	// Created is set on the event that opened the ticket.
	Created bool
}

func (ConfirmationUpdated) EventName() Name { return NameConfirmationUpdated }

// ObjectionVoteInitiation asks for a support-collection panel.
type ObjectionVoteInitiation struct {
	Objection gov.ObjectionDTO
	SessionID uint64
	Support   gov.SupportResultDTO
}

func (ObjectionVoteInitiation) EventName() Name { return NameObjectionVoteInitiation }

// ObjectionAdminReviewInitiation asks for a moderator review thread.
type ObjectionAdminReviewInitiation struct {
	Objection gov.ObjectionDTO
}

func (ObjectionAdminReviewInitiation) EventName() Name { return NameObjectionAdminReviewInitiation }

// ObjectionReviewed reports a moderator decision.
type ObjectionReviewed struct {
	Objection   gov.ObjectionDTO
	Approved    bool
	ModeratorID string
	Comment     string
}

func (ObjectionReviewed) EventName() Name { return NameObjectionReviewed }

// ObjectionSupportChanged re-renders a collection panel.
type ObjectionSupportChanged struct {
	Support gov.SupportResultDTO
}

func (ObjectionSupportChanged) EventName() Name { return NameObjectionSupportChanged }

// ObjectionGoalReached fires once when support first reaches the goal.
type ObjectionGoalReached struct {
	Support gov.SupportResultDTO
}

func (ObjectionGoalReached) EventName() Name { return NameObjectionGoalReached }

// ObjectionThreadCreated follows the freeze of the parent proposal.
type ObjectionThreadCreated struct {
	Objection gov.ObjectionDTO
}

func (ObjectionThreadCreated) EventName() Name { return NameObjectionThreadCreated }

// ObjectionFormalVoteInitiation asks for the formal ballot panel.
type ObjectionFormalVoteInitiation struct {
	Objection gov.ObjectionDTO
	Vote      gov.VoteDetailDTO
}

func (ObjectionFormalVoteInitiation) EventName() Name { return NameObjectionFormalVoteInitiation }

// ObjectionVoteFinished reports the outcome of a formal ballot.
type ObjectionVoteFinished struct {
	Objection gov.ObjectionDTO
	Vote      gov.VoteDetailDTO
	Passed    bool
}

func (ObjectionVoteFinished) EventName() Name { return NameObjectionVoteFinished }

// ObjectionCollectionExpired reports a support collection that timed out.
type ObjectionCollectionExpired struct {
	Objection gov.ObjectionDTO
	Vote      gov.VoteDetailDTO
}

func (ObjectionCollectionExpired) EventName() Name { return NameObjectionCollectionExpired }

// VoteCreated asks for a proposal ballot panel.
type VoteCreated struct {
	Vote gov.VoteDetailDTO
}

func (VoteCreated) EventName() Name { return NameVoteCreated }

// VoteUpdated re-renders a realtime panel after a vote.
type VoteUpdated struct {
	Vote gov.VoteDetailDTO
}

func (VoteUpdated) EventName() Name { return NameVoteUpdated }

// VoteFinished reports a closed proposal ballot.
type VoteFinished struct {
	Vote gov.VoteDetailDTO
}

func (VoteFinished) EventName() Name { return NameVoteFinished }

// VoteSettingsChanged re-renders a panel after a flag, deadline or reopen change.
type VoteSettingsChanged struct {
	Vote      gov.VoteDetailDTO
	Setting   string
	Detail    string
	ChangedBy string
}

func (VoteSettingsChanged) EventName() Name { return NameVoteSettingsChanged }

// AnnouncementCreated asks for the initial broadcast.
type AnnouncementCreated struct {
	Announcement gov.AnnouncementDTO
	Channels     []string
}

func (AnnouncementCreated) EventName() Name { return NameAnnouncementCreated }

// AnnouncementExpired asks for the finished tag and notice.
type AnnouncementExpired struct {
	Announcement gov.AnnouncementDTO
}

func (AnnouncementExpired) EventName() Name { return NameAnnouncementExpired }

// AnnouncementFinished fires for expired announcements with auto-execute.
type AnnouncementFinished struct {
	Announcement gov.AnnouncementDTO
}

func (AnnouncementFinished) EventName() Name { return NameAnnouncementFinished }

// AnnouncementRepostDue asks for one monitor's rebroadcast. The listener
// marks the monitor reposted once the message is out.
type AnnouncementRepostDue struct {
	Monitor gov.MonitorDTO
}

func (AnnouncementRepostDue) EventName() Name { return NameAnnouncementRepostDue }
