package store

import (
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
)

// AnnouncementRepo manages announcements.
type AnnouncementRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// Create inserts an active announcement.
func (r *AnnouncementRepo) Create(a *gov.Announcement) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	a.Status = gov.AnnouncementActive
	return translate(r.tx.Create(a).Error)
}

// GetByID returns an announcement.
func (r *AnnouncementRepo) GetByID(id uint64) (*gov.Announcement, error) {
	var a gov.Announcement
	if err := r.tx.First(&a, id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// GetByThreadID returns the announcement bound to a thread.
func (r *AnnouncementRepo) GetByThreadID(threadID string) (*gov.Announcement, error) {
	var a gov.Announcement
	if err := r.tx.Where("thread_id = ?", threadID).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

// GetExpired lists active announcements whose end time has passed.
func (r *AnnouncementRepo) GetExpired() ([]gov.Announcement, error) {
	var out []gov.Announcement
	err := r.tx.Where("status = ? AND end_time <= ?", gov.AnnouncementActive, r.now()).
		Order("end_time ASC").Find(&out).Error
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// MarkFinished finishes an active announcement. It reports false when the
// announcement was already finished.
func (r *AnnouncementRepo) MarkFinished(id uint64) (bool, error) {
	res := r.tx.Model(&gov.Announcement{}).Where("id = ? AND status = ?", id, gov.AnnouncementActive).
		Update("status", gov.AnnouncementFinished)
	if res.Error != nil {
		return false, translate(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MonitorRepo manages announcement channel monitors.
type MonitorRepo struct {
	tx  *gorm.DB
	now func() time.Time
}

// Create inserts a monitor. LastRepostAt defaults to now.
func (r *MonitorRepo) Create(m *gov.AnnouncementChannelMonitor) error {
	if m.LastRepostAt.IsZero() {
		m.LastRepostAt = r.now()
	}
	return translate(r.tx.Create(m).Error)
}

// ListByAnnouncement returns the monitors of an announcement.
func (r *MonitorRepo) ListByAnnouncement(announcementID uint64) ([]gov.AnnouncementChannelMonitor, error) {
	var out []gov.AnnouncementChannelMonitor
	if err := r.tx.Where("announcement_id = ?", announcementID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

// GetPendingReposts returns monitors of active announcements that crossed
// both their message threshold and their time interval.
func (r *MonitorRepo) GetPendingReposts() ([]gov.MonitorDTO, error) {
	var rows []gov.AnnouncementChannelMonitor
	err := r.tx.Preload("Announcement").
		Joins("JOIN announcements ON announcements.id = announcement_channel_monitors.announcement_id").
		Where("announcements.status = ? AND announcement_channel_monitors.message_count_since_last >= announcement_channel_monitors.message_threshold",
			gov.AnnouncementActive).
		Order("announcement_channel_monitors.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, translate(err)
	}

	now := r.now()
	var out []gov.MonitorDTO
	for _, m := range rows {
		if !RepostDue(m, now) || m.Announcement == nil {
			continue
		}
		out = append(out, gov.MonitorDTO{
			ID:                    m.ID,
			AnnouncementID:        m.AnnouncementID,
			ChannelID:             m.ChannelID,
			MessageThreshold:      m.MessageThreshold,
			TimeIntervalMinutes:   m.TimeIntervalMinutes,
			MessageCountSinceLast: m.MessageCountSinceLast,
			LastRepostAt:          m.LastRepostAt,
			Announcement:          m.Announcement.ToDTO(),
		})
	}
	return out, nil
}

// RepostDue evaluates the count and interval halves of the rebroadcast rule.
func RepostDue(m gov.AnnouncementChannelMonitor, now time.Time) bool {
	if m.MessageCountSinceLast < m.MessageThreshold {
		return false
	}
	interval := time.Duration(m.TimeIntervalMinutes) * time.Minute
	return !now.Before(m.LastRepostAt.Add(interval))
}

// IncrementCount bumps the counter of every monitor on channelID whose
// announcement is still active.
func (r *MonitorRepo) IncrementCount(channelID string) (int64, error) {
	active := r.tx.Model(&gov.Announcement{}).Select("id").Where("status = ?", gov.AnnouncementActive)
	res := r.tx.Model(&gov.AnnouncementChannelMonitor{}).
		Where("channel_id = ? AND announcement_id IN (?)", channelID, active).
		UpdateColumn("message_count_since_last", gorm.Expr("message_count_since_last + 1"))
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// MarkReposted resets the counter and stamps the repost time.
func (r *MonitorRepo) MarkReposted(id uint64) error {
	res := r.tx.Model(&gov.AnnouncementChannelMonitor{}).Where("id = ?", id).
		Updates(map[string]interface{}{"message_count_since_last": 0, "last_repost_at": r.now()})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByAnnouncement removes all monitors of an announcement.
func (r *MonitorRepo) DeleteByAnnouncement(announcementID uint64) (int64, error) {
	res := r.tx.Where("announcement_id = ?", announcementID).Delete(&gov.AnnouncementChannelMonitor{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// ListMonitoredChannelIDs returns the distinct channels watched for an active announcement.
func (r *MonitorRepo) ListMonitoredChannelIDs() ([]string, error) {
	var ids []string
	err := r.tx.Model(&gov.AnnouncementChannelMonitor{}).
		Joins("JOIN announcements ON announcements.id = announcement_channel_monitors.announcement_id").
		Where("announcements.status = ?", gov.AnnouncementActive).
		Distinct("announcement_channel_monitors.channel_id").
		Pluck("announcement_channel_monitors.channel_id", &ids).Error
	if err != nil {
		return nil, translate(err)
	}
	return ids, nil
}
