package data

import (
	"fmt"
	"strings"
	"sync"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings replaces the cache with every active row of the settings table.
func LoadSettings(db *gorm.DB) error {
	var rows []gov.Setting
	if err := db.Where("active = ?", 1).Find(&rows).Error; err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	values := make(map[string]string, len(rows))
	for _, s := range rows {
		values[s.Name] = s.Value
	}
	SetSettings(values)
	return nil
}

// SaveSetting upserts an active setting and updates the cache.
func SaveSetting(db *gorm.DB, name, value string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("save setting: empty name")
	}
	row := gov.Setting{Name: name, Value: value, Active: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "active"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save setting %s: %w", name, err)
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()
	if settingsCache == nil {
		settingsCache = make(map[string]string)
	}
	settingsCache[name] = value
	return nil
}

// GetSetting reads the cache. LoadSettings must have run first.
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}

// SetSettings replaces the cache contents without touching the database.
func SetSettings(values map[string]string) {
	next := make(map[string]string, len(values))
	for k, v := range values {
		next[k] = v
	}
	settingsMu.Lock()
	settingsCache = next
	settingsMu.Unlock()
}
