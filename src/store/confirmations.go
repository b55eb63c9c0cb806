package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotPending     = errors.New("store: confirmation is not pending")
	ErrRoleNotNeeded  = errors.New("store: role is not required or already confirmed")
	ErrAlreadyParty   = errors.New("store: user already confirmed this session")
	ErrNoMatchingRole = errors.New("store: initiator holds none of the required roles")
)

// ConfirmationRepo manages multi-role approval tickets.
type ConfirmationRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// CreateConfirmationQO describes a new confirmation ticket.
type CreateConfirmationQO struct {
	Context       string
	TargetID      uint64
	ChannelID     string
	InitiatorID   string
	RequiredRoles []string
	// InitiatorRoles are the role keys the initiator holds.
	InitiatorRoles []string
}

func pendingKey(context string, targetID uint64) string {
	return fmt.Sprintf("%s:%d", context, targetID)
}

// Create inserts a pending ticket seeded with the initiator's first matching
// role. A second pending ticket for the same target fails with ErrDuplicate.
func (r *ConfirmationRepo) Create(qo CreateConfirmationQO) (*gov.ConfirmationSession, error) {
	held := make(map[string]struct{}, len(qo.InitiatorRoles))
	for _, role := range qo.InitiatorRoles {
		held[role] = struct{}{}
	}
	parties := datatypes.JSONMap{}
	for _, role := range qo.RequiredRoles {
		if _, ok := held[role]; ok {
			parties[role] = qo.InitiatorID
			break
		}
	}
	if len(parties) == 0 {
		return nil, ErrNoMatchingRole
	}

	now := r.now()
	key := pendingKey(qo.Context, qo.TargetID)
	c := gov.ConfirmationSession{
		Context:          qo.Context,
		TargetID:         qo.TargetID,
		ChannelID:        qo.ChannelID,
		InitiatorID:      qo.InitiatorID,
		RequiredRoles:    datatypes.JSONSlice[string](append([]string(nil), qo.RequiredRoles...)),
		ConfirmedParties: parties,
		Status:           gov.ConfirmationPending,
		PendingKey:       &key,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := r.tx.Create(&c).Error; err != nil {
		return nil, translate(err)
	}
	if complete(&c) {
		if err := r.finish(&c, gov.ConfirmationCompleted, nil); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// GetByID returns a ticket.
func (r *ConfirmationRepo) GetByID(id uint64) (*gov.ConfirmationSession, error) {
	var c gov.ConfirmationSession
	if err := r.tx.First(&c, id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// GetByMessageID returns the ticket whose panel is messageID.
func (r *ConfirmationRepo) GetByMessageID(messageID string) (*gov.ConfirmationSession, error) {
	var c gov.ConfirmationSession
	if err := r.tx.Where("message_id = ?", messageID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// GetPending returns the pending ticket for a target, or ErrNotFound.
func (r *ConfirmationRepo) GetPending(context string, targetID uint64) (*gov.ConfirmationSession, error) {
	var c gov.ConfirmationSession
	if err := r.tx.Where("pending_key = ?", pendingKey(context, targetID)).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

// UpdateMessageID binds the panel message of a ticket.
func (r *ConfirmationRepo) UpdateMessageID(id uint64, messageID string) error {
	res := r.tx.Model(&gov.ConfirmationSession{}).Where("id = ?", id).Update("message_id", messageID)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddConfirmation records userID as the party for role. When every required
// role is filled the ticket becomes Completed.
func (r *ConfirmationRepo) AddConfirmation(id uint64, role, userID string) (*gov.ConfirmationSession, error) {
	c, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != gov.ConfirmationPending {
		return nil, ErrNotPending
	}
	required := false
	for _, rr := range c.RequiredRoles {
		if rr == role {
			required = true
			break
		}
	}
	parties := c.Parties()
	if _, taken := parties[role]; !required || taken {
		return nil, ErrRoleNotNeeded
	}
	for _, uid := range parties {
		if uid == userID {
			return nil, ErrAlreadyParty
		}
	}

	if c.ConfirmedParties == nil {
		c.ConfirmedParties = datatypes.JSONMap{}
	}
	c.ConfirmedParties[role] = userID
	c.UpdatedAt = r.now()
	if err := r.tx.Model(&gov.ConfirmationSession{}).Where("id = ?", c.ID).
		Updates(map[string]interface{}{"confirmed_parties": c.ConfirmedParties, "updated_at": c.UpdatedAt}).Error; err != nil {
		return nil, translate(err)
	}
	if complete(c) {
		if err := r.finish(c, gov.ConfirmationCompleted, nil); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Cancel cancels a pending ticket on behalf of userID.
func (r *ConfirmationRepo) Cancel(id uint64, userID string) (*gov.ConfirmationSession, error) {
	c, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != gov.ConfirmationPending {
		return nil, ErrNotPending
	}
	if err := r.finish(c, gov.ConfirmationCanceled, &userID); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConfirmationRepo) finish(c *gov.ConfirmationSession, status gov.ConfirmationStatus, canceler *string) error {
	fields := map[string]interface{}{
		"status":      status,
		"pending_key": nil,
		"updated_at":  r.now(),
	}
	if canceler != nil {
		fields["canceler_id"] = *canceler
	}
	if err := r.tx.Model(&gov.ConfirmationSession{}).Where("id = ?", c.ID).Updates(fields).Error; err != nil {
		return translate(err)
	}
	c.Status = status
	c.PendingKey = nil
	c.CancelerID = canceler
	return nil
}

// complete reports whether every required role has a confirming party.
func complete(c *gov.ConfirmationSession) bool {
	parties := c.Parties()
	if len(parties) != len(c.RequiredRoles) {
		return false
	}
	for _, role := range c.RequiredRoles {
		if _, ok := parties[role]; !ok {
			return false
		}
	}
	return true
}
