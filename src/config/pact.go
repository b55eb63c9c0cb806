package config

import (
	"log"
	"time"

	"github.com/stellaria-pact/governance/src/shared/gov"
	"gorm.io/gorm"
)

// Role keys used by confirmation sessions and the role guard.
const (
	RoleStewards             = "stewards"
	RoleCouncilModerator     = "councilModerator"
	RoleExecutionAuditor     = "executionAuditor"
	RoleVoteCreationNotifier = "voteCreationNotifier"
)

// Tag keys.
const (
	TagDiscussion             = "discussion"
	TagExecuting              = "executing"
	TagFrozen                 = "frozen"
	TagAbandoned              = "abandoned"
	TagRejected               = "rejected"
	TagFinished               = "finished"
	TagAnnouncementInProgress = "announcement_in_progress"
	TagAnnouncementFinished   = "announcement_finished"
)

var tagKeys = []string{
	TagDiscussion, TagExecuting, TagFrozen, TagAbandoned, TagRejected, TagFinished,
	TagAnnouncementInProgress, TagAnnouncementFinished,
}

var roleKeys = []string{RoleStewards, RoleCouncilModerator, RoleExecutionAuditor, RoleVoteCreationNotifier}

// Channels holds the channel ids the service posts into.
type Channels struct {
	Discussion         string
	VotingChannel      string
	ObjectionPublicity string
	ReviewChannel      string
	Broadcast          []string
}

// Tags maps tag keys to forum tag ids.
type Tags map[string]string

// ID returns the forum tag id for key, or "".
func (t Tags) ID(key string) string { return t[key] }

// ForStatus returns the tag key matching a proposal status.
func ForStatus(status gov.ProposalStatus) string {
	switch status {
	case gov.ProposalDiscussion:
		return TagDiscussion
	case gov.ProposalExecuting:
		return TagExecuting
	case gov.ProposalFrozen:
		return TagFrozen
	case gov.ProposalAbandoned:
		return TagAbandoned
	case gov.ProposalRejected:
		return TagRejected
	case gov.ProposalFinished:
		return TagFinished
	}
	return ""
}

// Roles maps role keys to guild role ids.
type Roles map[string][]string

// KeysFor returns the role keys granted by a member's role ids, in key order.
func (r Roles) KeysFor(roleIDs []string) []string {
	held := make(map[string]struct{}, len(roleIDs))
	for _, id := range roleIDs {
		held[id] = struct{}{}
	}
	var keys []string
	for _, key := range roleKeys {
		for _, id := range r[key] {
			if _, ok := held[id]; ok {
				keys = append(keys, key)
				break
			}
		}
	}
	return keys
}

// PactConfig is the process-wide configuration, loaded once.
type PactConfig struct {
	Base
	TimezoneName string
	Location     *time.Location
	Channels     Channels
	Tags         Tags
	// StatusTagKeys lists tag keys that are mutually exclusive on a thread.
	StatusTagKeys []string
	Roles         Roles

	RedisURL          string
	HTTPAddr          string
	HTTPAllowOrigins  []string
	HTTPRatePerMinute int
	JWTSecret         string

	RequiredMessages         int
	SchedulerConcurrency     int
	SchedulerRatePerSecond   float64
	ObjectionCollectionHours int
	ObjectionVoteHours       int
	LoopJitter               time.Duration
	RepostDefaultThreshold   int
	RepostDefaultInterval    int
	ClickCooldown            time.Duration
	EnableWebserver          bool
}

// Load reads the full configuration. db may be nil, in which case only the
// environment is consulted.
func Load(db *gorm.DB) PactConfig {
	base := LoadBase(db)

	cfg := PactConfig{
		Base:         base,
		TimezoneName: setting("timezone", "UTC"),
		Channels: Channels{
			Discussion:         setting("channels.discussion", ""),
			VotingChannel:      setting("channels.voting_channel", ""),
			ObjectionPublicity: setting("channels.objection_publicity", ""),
			ReviewChannel:      setting("channels.review_channel", ""),
			Broadcast:          listSetting("channels.broadcast"),
		},
		Tags:  Tags{},
		Roles: Roles{},

		RedisURL:          setting("redis_url", ""),
		HTTPAddr:          setting("http_addr", ":8087"),
		HTTPAllowOrigins:  listSetting("http_allow_origins"),
		HTTPRatePerMinute: intSetting("http_rate_per_minute", 120),
		JWTSecret:         setting("jwt_secret", ""),

		RequiredMessages:         intSetting("required_messages", 3),
		SchedulerConcurrency:     intSetting("scheduler_concurrency", 10),
		SchedulerRatePerSecond:   floatSetting("scheduler_rate_per_second", 40),
		ObjectionCollectionHours: intSetting("objection_collection_hours", 48),
		ObjectionVoteHours:       intSetting("objection_vote_hours", 48),
		LoopJitter:               time.Duration(intSetting("loop_jitter_seconds", 30)) * time.Second,
		RepostDefaultThreshold:   intSetting("repost_default_threshold", 20),
		RepostDefaultInterval:    intSetting("repost_default_interval_minutes", 60),
		ClickCooldown:            time.Duration(intSetting("click_cooldown_seconds", 2)) * time.Second,
		EnableWebserver:          boolSetting("enable_webserver", true),
	}

	for _, key := range tagKeys {
		if id := setting("tags."+key, ""); id != "" {
			cfg.Tags[key] = id
		}
	}
	for _, key := range roleKeys {
		if ids := listSetting("roles." + key); len(ids) > 0 {
			cfg.Roles[key] = ids
		}
	}

	cfg.StatusTagKeys = listSetting("status_tag_keys")
	if len(cfg.StatusTagKeys) == 0 {
		cfg.StatusTagKeys = []string{TagDiscussion, TagExecuting, TagFrozen, TagAbandoned, TagRejected, TagFinished}
	}

	loc, err := time.LoadLocation(cfg.TimezoneName)
	if err != nil {
		log.Printf("config: invalid timezone %q, falling back to UTC: %v", cfg.TimezoneName, err)
		loc = time.UTC
		cfg.TimezoneName = "UTC"
	}
	cfg.Location = loc

	return cfg
}

// StatusTagIDs returns the forum tag ids of every mutually exclusive status tag.
func (c PactConfig) StatusTagIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(c.StatusTagKeys))
	for _, key := range c.StatusTagKeys {
		if id := c.Tags.ID(key); id != "" {
			out[id] = struct{}{}
		}
	}
	return out
}

// ReplaceStatusTag drops every status tag from current and appends the tag for key.
func (c PactConfig) ReplaceStatusTag(current []string, key string) []string {
	exclusive := c.StatusTagIDs()
	next := make([]string, 0, len(current)+1)
	for _, id := range current {
		if _, drop := exclusive[id]; drop {
			continue
		}
		next = append(next, id)
	}
	if id := c.Tags.ID(key); id != "" {
		next = append(next, id)
	}
	return next
}

// SwapTag removes the tag for from and adds the tag for to.
func (c PactConfig) SwapTag(current []string, from, to string) []string {
	fromID, toID := c.Tags.ID(from), c.Tags.ID(to)
	next := make([]string, 0, len(current)+1)
	for _, id := range current {
		if id == fromID || id == toID {
			continue
		}
		next = append(next, id)
	}
	if toID != "" {
		next = append(next, toID)
	}
	return next
}
