package store

import (
	"errors"
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProposalRepo manages proposals.
type ProposalRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// Create inserts a proposal in Discussion. A proposal already bound to the
// thread yields (nil, nil) so redelivered thread events are harmless.
func (r *ProposalRepo) Create(threadID, proposerID, title string) (*gov.ProposalDTO, error) {
	now := r.now()
	p := gov.Proposal{
		ThreadID:   threadID,
		ProposerID: proposerID,
		Title:      title,
		Status:     gov.ProposalDiscussion,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	res := r.tx.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "thread_id"}}, DoNothing: true}).Create(&p)
	if res.Error != nil {
		err := translate(res.Error)
		if errors.Is(err, ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	dto := p.ToDTO()
	return &dto, nil
}

// GetByThreadID returns the proposal bound to a thread.
func (r *ProposalRepo) GetByThreadID(threadID string) (*gov.Proposal, error) {
	var p gov.Proposal
	if err := r.tx.Where("thread_id = ?", threadID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetByThreadIDForUpdate locks the proposal row for the rest of the unit.
func (r *ProposalRepo) GetByThreadIDForUpdate(threadID string) (*gov.Proposal, error) {
	var p gov.Proposal
	q := r.tx
	if r.tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	if err := q.Where("thread_id = ?", threadID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// GetByID returns a proposal by primary key.
func (r *ProposalRepo) GetByID(id uint64) (*gov.Proposal, error) {
	var p gov.Proposal
	if err := r.tx.First(&p, id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// UpdateStatusByThreadID sets the status of the proposal bound to threadID.
func (r *ProposalRepo) UpdateStatusByThreadID(threadID string, status gov.ProposalStatus) error {
	res := r.tx.Model(&gov.Proposal{}).Where("thread_id = ?", threadID).
		Updates(map[string]interface{}{"status": status, "updated_at": r.now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the status of a proposal by id.
func (r *ProposalRepo) UpdateStatus(id uint64, status gov.ProposalStatus) error {
	res := r.tx.Model(&gov.Proposal{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_at": r.now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ExistingThreadIDs returns which of threadIDs already have a proposal.
func (r *ProposalRepo) ExistingThreadIDs(threadIDs []string) (map[string]struct{}, error) {
	out := make(map[string]struct{}, len(threadIDs))
	if len(threadIDs) == 0 {
		return out, nil
	}
	var ids []string
	if err := r.tx.Model(&gov.Proposal{}).Where("thread_id IN ?", threadIDs).Pluck("thread_id", &ids).Error; err != nil {
		return nil, translate(err)
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}
