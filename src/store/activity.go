package store

import (
	"errors"
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserActivityRepo manages per (user, thread) message counters.
type UserActivityRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// Get returns the user's activity in a thread, or nil when none is recorded.
func (r *UserActivityRepo) Get(userID, threadID string) (*gov.UserActivity, error) {
	var a gov.UserActivity
	err := r.tx.Where("user_id = ? AND thread_id = ?", userID, threadID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// IncrementOrInsert applies change (+1 or -1) to the counter, never going
// below zero, creating the row when missing.
func (r *UserActivityRepo) IncrementOrInsert(userID, threadID string, change int) error {
	now := r.now()
	expr := gorm.Expr("message_count + ?", change)
	if change < 0 {
		expr = gorm.Expr("CASE WHEN message_count + ? < 0 THEN 0 ELSE message_count + ? END", change, change)
	}

	for attempt := 0; attempt < 2; attempt++ {
		res := r.tx.Model(&gov.UserActivity{}).Where("user_id = ? AND thread_id = ?", userID, threadID).
			Updates(map[string]interface{}{"message_count": expr, "last_updated": now})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}

		initial := change
		if initial < 0 {
			initial = 0
		}
		row := gov.UserActivity{UserID: userID, ThreadID: threadID, MessageCount: initial, Validation: 1, LastUpdated: now}
		ins := r.tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "thread_id"}},
			DoNothing: true,
		}).Create(&row)
		if ins.Error != nil {
			return translate(ins.Error)
		}
		if ins.RowsAffected > 0 {
			return nil
		}
	}
	return nil
}

// SetValidation marks the user valid or disqualified in a thread.
func (r *UserActivityRepo) SetValidation(userID, threadID string, valid bool, muteEndTime *time.Time) error {
	flag := int8(0)
	if valid {
		flag = 1
	}
	now := r.now()
	row := gov.UserActivity{UserID: userID, ThreadID: threadID, Validation: flag, MuteEndTime: muteEndTime, LastUpdated: now}
	err := r.tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "thread_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"validation", "mute_end_time", "last_updated"}),
	}).Create(&row).Error
	return translate(err)
}
