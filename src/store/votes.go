package store

import (
	"fmt"
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VoteSessionRepo manages ballots and their options.
type VoteSessionRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// CreateVoteSessionQO describes a new ballot shell.
type CreateVoteSessionQO struct {
	GuildID         string
	Kind            gov.VoteKind
	Title           string
	CreatorID       string
	ContextThreadID string
	ObjectionID     *uint64
	Anonymous       bool
	Realtime        bool
	Notify          bool
	EndTime         *time.Time
	Options         []string
}

// Create inserts an open session without a panel message, plus its options.
func (r *VoteSessionRepo) Create(qo CreateVoteSessionQO) (*gov.VoteSession, error) {
	kind := qo.Kind
	if kind == "" {
		kind = gov.VoteKindProposal
	}
	s := gov.VoteSession{
		GuildID:         qo.GuildID,
		Kind:            kind,
		Title:           qo.Title,
		CreatorID:       qo.CreatorID,
		ContextThreadID: qo.ContextThreadID,
		ObjectionID:     qo.ObjectionID,
		Anonymous:       qo.Anonymous,
		Realtime:        qo.Realtime,
		Notify:          qo.Notify,
		Status:          gov.VoteSessionOpen,
		EndTime:         qo.EndTime,
		TotalChoices:    len(qo.Options),
		CreatedAt:       r.now(),
	}
	if err := r.tx.Omit(clause.Associations).Create(&s).Error; err != nil {
		return nil, fmt.Errorf("create vote session: %w", translate(err))
	}
	for i, text := range qo.Options {
		opt := gov.VoteOption{SessionID: s.ID, ChoiceIndex: i + 1, ChoiceText: text}
		if err := r.tx.Create(&opt).Error; err != nil {
			return nil, fmt.Errorf("create vote option: %w", translate(err))
		}
		s.Options = append(s.Options, opt)
	}
	return &s, nil
}

// GetByID returns a session without relations.
func (r *VoteSessionRepo) GetByID(id uint64) (*gov.VoteSession, error) {
	var s gov.VoteSession
	if err := r.tx.First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// GetByContextMessageID returns the session whose panel is messageID.
func (r *VoteSessionRepo) GetByContextMessageID(messageID string) (*gov.VoteSession, error) {
	var s gov.VoteSession
	if err := r.tx.Where("context_message_id = ?", messageID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// GetWithDetails returns the session for a panel message with options and votes.
func (r *VoteSessionRepo) GetWithDetails(messageID string) (*gov.VoteSession, error) {
	var s gov.VoteSession
	if err := r.tx.Preload("Options").Preload("Votes").Where("context_message_id = ?", messageID).First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// GetDetailsByID returns a session by id with options and votes.
func (r *VoteSessionRepo) GetDetailsByID(id uint64) (*gov.VoteSession, error) {
	var s gov.VoteSession
	if err := r.tx.Preload("Options").Preload("Votes").First(&s, id).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// GetByObjection returns the objection's session of the given kind, newest first.
func (r *VoteSessionRepo) GetByObjection(objectionID uint64, kind gov.VoteKind) (*gov.VoteSession, error) {
	var s gov.VoteSession
	if err := r.tx.Where("objection_id = ? AND kind = ?", objectionID, kind).Order("id DESC").First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

// ListExpiredOpen returns open sessions whose end time has passed.
func (r *VoteSessionRepo) ListExpiredOpen() ([]gov.VoteSession, error) {
	var out []gov.VoteSession
	err := r.tx.Where("status = ? AND end_time IS NOT NULL AND end_time <= ?", gov.VoteSessionOpen, r.now()).
		Order("end_time ASC").Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// ListOpenIDsByThread returns the ids of the open sessions bound to threadID.
func (r *VoteSessionRepo) ListOpenIDsByThread(threadID string) ([]uint64, error) {
	var ids []uint64
	if err := r.tx.Model(&gov.VoteSession{}).
		Where("context_thread_id = ? AND status = ?", threadID, gov.VoteSessionOpen).
		Pluck("id", &ids).Error; err != nil {
		return nil, translate(err)
	}
	return ids, nil
}

// AdjustEndTime moves the end time of an open session by hours, starting from
// the current end time or now when none is set.
func (r *VoteSessionRepo) AdjustEndTime(messageID string, hours int) (gov.EndTimeChange, error) {
	s, err := r.GetByContextMessageID(messageID)
	if err != nil {
		return gov.EndTimeChange{}, err
	}
	if s.Status != gov.VoteSessionOpen {
		return gov.EndTimeChange{}, ErrSessionClosed
	}
	base := r.now()
	var old *time.Time
	if s.EndTime != nil {
		base = *s.EndTime
		t := *s.EndTime
		old = &t
	}
	next := base.Add(time.Duration(hours) * time.Hour)
	if err := r.tx.Model(&gov.VoteSession{}).Where("id = ?", s.ID).Update("end_time", next).Error; err != nil {
		return gov.EndTimeChange{}, translate(err)
	}
	return gov.EndTimeChange{Old: old, New: next}, nil
}

// Flag names accepted by Toggle.
const (
	FlagAnonymous = "anonymous"
	FlagRealtime  = "realtime"
	FlagNotify    = "notify"
)

// Toggle flips a boolean flag on an open session and returns the new value.
func (r *VoteSessionRepo) Toggle(messageID, flag string) (bool, error) {
	s, err := r.GetByContextMessageID(messageID)
	if err != nil {
		return false, err
	}
	if s.Status != gov.VoteSessionOpen {
		return false, ErrSessionClosed
	}
	var next bool
	switch flag {
	case FlagAnonymous:
		next = !s.Anonymous
	case FlagRealtime:
		next = !s.Realtime
	case FlagNotify:
		next = !s.Notify
	default:
		return false, fmt.Errorf("store: unknown vote flag %q", flag)
	}
	if err := r.tx.Model(&gov.VoteSession{}).Where("id = ?", s.ID).Update(flag, next).Error; err != nil {
		return false, translate(err)
	}
	return next, nil
}

func (r *VoteSessionRepo) ToggleAnonymous(messageID string) (bool, error) {
	return r.Toggle(messageID, FlagAnonymous)
}

func (r *VoteSessionRepo) ToggleRealtime(messageID string) (bool, error) {
	return r.Toggle(messageID, FlagRealtime)
}

func (r *VoteSessionRepo) ToggleNotify(messageID string) (bool, error) {
	return r.Toggle(messageID, FlagNotify)
}

// Reopen reopens a closed session until newEndTime. Votes are untouched.
func (r *VoteSessionRepo) Reopen(messageID string, newEndTime time.Time) (*gov.VoteSession, error) {
	s, err := r.GetByContextMessageID(messageID)
	if err != nil {
		return nil, err
	}
	if s.Status != gov.VoteSessionClosed {
		return nil, ErrSessionOpen
	}
	if err := r.tx.Model(&gov.VoteSession{}).Where("id = ?", s.ID).
		Updates(map[string]interface{}{"status": gov.VoteSessionOpen, "end_time": newEndTime}).Error; err != nil {
		return nil, translate(err)
	}
	s.Status = gov.VoteSessionOpen
	s.EndTime = &newEndTime
	return s, nil
}

// Close marks an open session closed. It reports false when another caller
// closed it first.
func (r *VoteSessionRepo) Close(id uint64) (bool, error) {
	res := r.tx.Model(&gov.VoteSession{}).Where("id = ? AND status = ?", id, gov.VoteSessionOpen).
		Update("status", gov.VoteSessionClosed)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateContextMessage binds the public panel message of a session.
func (r *VoteSessionRepo) UpdateContextMessage(id uint64, channelID, messageID string) error {
	res := r.tx.Model(&gov.VoteSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{"context_message_id": messageID, "context_channel_id": channelID})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateVotingChannelMessageID binds the mirror message of a session.
func (r *VoteSessionRepo) UpdateVotingChannelMessageID(id uint64, messageID string) error {
	res := r.tx.Model(&gov.VoteSession{}).Where("id = ?", id).Update("voting_channel_message_id", messageID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetProposalThreadIDByObjectionID follows objection -> proposal to the
// proposal thread, used for inherited eligibility.
func (r *VoteSessionRepo) GetProposalThreadIDByObjectionID(objectionID uint64) (string, error) {
	var threadIDs []string
	err := r.tx.Table("objections").
		Select("proposals.thread_id").
		Joins("JOIN proposals ON proposals.id = objections.proposal_id").
		Where("objections.id = ?", objectionID).
		Limit(1).
		Pluck("proposals.thread_id", &threadIDs).Error
	if err != nil {
		return "", translate(err)
	}
	if len(threadIDs) == 0 {
		return "", ErrNotFound
	}
	return threadIDs[0], nil
}

// DeleteOrphanShells removes proposal ballots whose panel was never posted.
func (r *VoteSessionRepo) DeleteOrphanShells(olderThan time.Time) (int64, error) {
	var ids []uint64
	err := r.tx.Model(&gov.VoteSession{}).
		Where("kind = ? AND context_message_id IS NULL AND created_at < ?", gov.VoteKindProposal, olderThan).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, translate(err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := r.tx.Where("session_id IN ?", ids).Delete(&gov.VoteOption{}).Error; err != nil {
		return 0, translate(err)
	}
	if err := r.tx.Where("session_id IN ?", ids).Delete(&gov.UserVote{}).Error; err != nil {
		return 0, translate(err)
	}
	res := r.tx.Where("id IN ?", ids).Delete(&gov.VoteSession{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// UserVoteRepo manages individual votes.
type UserVoteRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// VoteQO identifies one (session, user, choice index) vote.
type VoteQO struct {
	SessionID   uint64
	UserID      string
	ChoiceIndex int
	Choice      int8
}

// Record upserts the user's choice on one option.
func (r *UserVoteRepo) Record(qo VoteQO) error {
	idx := qo.ChoiceIndex
	if idx < 1 {
		idx = 1
	}
	row := gov.UserVote{SessionID: qo.SessionID, UserID: qo.UserID, ChoiceIndex: idx, Choice: qo.Choice, VotedAt: r.now()}
	err := r.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}, {Name: "choice_index"}},
		DoUpdates: clause.AssignmentColumns([]string{"choice", "voted_at"}),
	}).Create(&row).Error
	return translate(err)
}

// Delete removes one vote. A missing row is not an error.
func (r *UserVoteRepo) Delete(qo VoteQO) (bool, error) {
	idx := qo.ChoiceIndex
	if idx < 1 {
		idx = 1
	}
	res := r.tx.Where("session_id = ? AND user_id = ? AND choice_index = ?", qo.SessionID, qo.UserID, idx).Delete(&gov.UserVote{})
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Get returns one vote, or ErrNotFound.
func (r *UserVoteRepo) Get(sessionID uint64, userID string, choiceIndex int) (*gov.UserVote, error) {
	var v gov.UserVote
	err := r.tx.Where("session_id = ? AND user_id = ? AND choice_index = ?", sessionID, userID, choiceIndex).First(&v).Error
	if err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

// CountBySession counts all vote rows of a session.
func (r *UserVoteRepo) CountBySession(sessionID uint64) (int64, error) {
	var n int64
	if err := r.tx.Model(&gov.UserVote{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		return 0, translate(err)
	}
	return n, nil
}

// DeleteAllUserVotesInThread removes a user's votes from the given sessions.
func (r *UserVoteRepo) DeleteAllUserVotesInThread(userID string, sessionIDs []uint64) (int64, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	res := r.tx.Where("user_id = ? AND session_id IN ?", userID, sessionIDs).Delete(&gov.UserVote{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// SetEndTime replaces the end time of a session.
func (r *VoteSessionRepo) SetEndTime(id uint64, end *time.Time) error {
	res := r.tx.Model(&gov.VoteSession{}).Where("id = ?", id).Update("end_time", end)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
