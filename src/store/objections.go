package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectionRepo manages objections and the support-collection protocol.
type ObjectionRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// CreateObjectionQO describes a new objection and its support shell.
type CreateObjectionQO struct {
	ProposalID      uint64
	ObjectorID      string
	Reason          string
	RequiredVotes   int
	Status          gov.ObjectionStatus
	GuildID         string
	ContextThreadID string
	EndTime         *time.Time
}

// CreateObjectionAndVoteSessionShell inserts the objection and its
// support-collection session (no panel message yet) in one step.
func (r *ObjectionRepo) CreateObjectionAndVoteSessionShell(qo CreateObjectionQO) (objectionID, voteSessionID uint64, err error) {
	now := r.now()
	o := gov.Objection{
		ProposalID:    qo.ProposalID,
		ObjectorID:    qo.ObjectorID,
		Reason:        qo.Reason,
		RequiredVotes: qo.RequiredVotes,
		Status:        qo.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := r.tx.Create(&o).Error; err != nil {
		return 0, 0, fmt.Errorf("create objection: %w", translate(err))
	}

	s := gov.VoteSession{
		GuildID:         qo.GuildID,
		Kind:            gov.VoteKindObjectionSupport,
		ContextThreadID: qo.ContextThreadID,
		ObjectionID:     &o.ID,
		Anonymous:       false,
		Realtime:        true,
		Status:          gov.VoteSessionOpen,
		EndTime:         qo.EndTime,
		CreatedAt:       now,
	}
	if err := r.tx.Create(&s).Error; err != nil {
		return 0, 0, fmt.Errorf("create objection session: %w", translate(err))
	}
	return o.ID, s.ID, nil
}

// CountByProposalID counts objections ever raised against a proposal.
func (r *ObjectionRepo) CountByProposalID(proposalID uint64) (int64, error) {
	var n int64
	if err := r.tx.Model(&gov.Objection{}).Where("proposal_id = ?", proposalID).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// ListByProposalID returns a proposal's objections, oldest first.
func (r *ObjectionRepo) ListByProposalID(proposalID uint64) ([]gov.Objection, error) {
	var out []gov.Objection
	if err := r.tx.Where("proposal_id = ?", proposalID).Order("created_at ASC, id ASC").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// GetByID returns an objection with its proposal.
func (r *ObjectionRepo) GetByID(id uint64) (*gov.Objection, error) {
	var o gov.Objection
	if err := r.tx.Preload("Proposal").First(&o, id).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// GetByReviewThreadID returns the objection reviewed in threadID.
func (r *ObjectionRepo) GetByReviewThreadID(threadID string) (*gov.Objection, error) {
	var o gov.Objection
	if err := r.tx.Preload("Proposal").Where("review_thread_id = ?", threadID).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// GetByObjectionThreadID returns the objection discussed in threadID.
func (r *ObjectionRepo) GetByObjectionThreadID(threadID string) (*gov.Objection, error) {
	var o gov.Objection
	if err := r.tx.Preload("Proposal").Where("objection_thread_id = ?", threadID).First(&o).Error; err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

// UpdateStatus sets an objection's status.
func (r *ObjectionRepo) UpdateStatus(id uint64, status gov.ObjectionStatus) error {
	return r.update(id, map[string]interface{}{"status": status})
}

// UpdateThreadID binds the objection's own discussion thread.
func (r *ObjectionRepo) UpdateThreadID(id uint64, threadID string) error {
	return r.update(id, map[string]interface{}{"objection_thread_id": threadID})
}

// UpdateReviewThreadID binds the moderator review thread.
func (r *ObjectionRepo) UpdateReviewThreadID(id uint64, threadID string) error {
	return r.update(id, map[string]interface{}{"review_thread_id": threadID})
}

func (r *ObjectionRepo) update(id uint64, fields map[string]interface{}) error {
	fields["updated_at"] = r.now()
	res := r.tx.Model(&gov.Objection{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SupportQO is one click on a support-collection panel.
type SupportQO struct {
	SessionID uint64
	UserID    string
	Action    gov.SupportAction
}

// Support applies a support or withdraw click and recounts. The read of the
// user's existing row and the write happen in the same transaction, and the
// unique (session, user, choice) index turns a concurrent duplicate insert
// into a no-op.
func (r *ObjectionRepo) Support(qo SupportQO) (*gov.SupportResultDTO, error) {
	var s gov.VoteSession
	if err := r.tx.Preload("Objection.Proposal").First(&s, qo.SessionID).Error; err != nil {
		return nil, translate(err)
	}
	if s.Kind != gov.VoteKindObjectionSupport || s.Objection == nil || s.Objection.Proposal == nil {
		return nil, ErrWrongKind
	}
	if s.Status != gov.VoteSessionOpen {
		return nil, ErrSessionClosed
	}

	var existing gov.UserVote
	err := r.tx.Where("session_id = ? AND user_id = ? AND choice_index = ?", s.ID, qo.UserID, 1).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, translate(err)
	}

	var outcome gov.SupportOutcome
	switch qo.Action {
	case gov.SupportActionSupport:
		if found {
			outcome = gov.OutcomeAlreadySupported
			break
		}
		row := gov.UserVote{SessionID: s.ID, UserID: qo.UserID, ChoiceIndex: 1, Choice: gov.ChoiceApprove, VotedAt: r.now()}
		res := r.tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}, {Name: "choice_index"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return nil, translate(res.Error)
		}
		if res.RowsAffected == 0 {
			outcome = gov.OutcomeAlreadySupported
		} else {
			outcome = gov.OutcomeSupported
		}
	case gov.SupportActionWithdraw:
		if !found {
			outcome = gov.OutcomeNotSupported
			break
		}
		res := r.tx.Where("session_id = ? AND user_id = ? AND choice_index = ?", s.ID, qo.UserID, 1).Delete(&gov.UserVote{})
		if res.Error != nil {
			return nil, translate(res.Error)
		}
		if res.RowsAffected == 0 {
			outcome = gov.OutcomeNotSupported
		} else {
			outcome = gov.OutcomeWithdrew
		}
	default:
		return nil, fmt.Errorf("store: unknown support action %q", qo.Action)
	}

	var supporters int64
	if err := r.tx.Model(&gov.UserVote{}).Where("session_id = ? AND choice = ?", s.ID, gov.ChoiceApprove).Count(&supporters).Error; err != nil {
		return nil, translate(err)
	}

	o := s.Objection
	dto := &gov.SupportResultDTO{
		Outcome:            outcome,
		SessionID:          s.ID,
		ObjectionID:        o.ID,
		ProposalID:         o.ProposalID,
		ProposalThreadID:   o.Proposal.ThreadID,
		ProposalTitle:      o.Proposal.Title,
		ObjectorID:         o.ObjectorID,
		Reason:             o.Reason,
		CurrentSupporters:  int(supporters),
		RequiredSupporters: o.RequiredVotes,
		IsGoalReached:      int(supporters) >= o.RequiredVotes,
		ObjectionStatus:    o.Status,
		PanelChannelID:     s.ContextChannelID,
		EndTime:            s.EndTime,
	}
	if s.ContextMessageID != nil {
		dto.PanelMessageID = *s.ContextMessageID
	}
	return dto, nil
}
