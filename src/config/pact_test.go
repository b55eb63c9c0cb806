package config

import (
	"testing"
	"time"

	"github.com/stellaria-pact/governance/src/data"
	"github.com/stellaria-pact/governance/src/shared/gov"
	"github.com/stretchr/testify/assert"
)

func TestLoadFromSettingsAndEnv(t *testing.T) {
	data.SetSettings(map[string]string{
		"guild_id":            "100",
		"timezone":            "Asia/Shanghai",
		"channels.discussion": "200",
		"channels.broadcast":  "301, 302,,",
		"tags.frozen":         "t-frozen",
		"roles.stewards":      "r1,r2",
		"required_messages":   "5",
	})
	t.Cleanup(func() { data.SetSettings(nil) })
	t.Setenv("CHANNELS_REVIEW_CHANNEL", "400")
	t.Setenv("SCHEDULER_CONCURRENCY", "not-a-number")

	cfg := Load(nil)

	assert.Equal(t, "100", cfg.GuildID)
	assert.Equal(t, "Asia/Shanghai", cfg.Location.String())
	assert.Equal(t, "200", cfg.Channels.Discussion)
	assert.Equal(t, "400", cfg.Channels.ReviewChannel)
	assert.Equal(t, []string{"301", "302"}, cfg.Channels.Broadcast)
	assert.Equal(t, "t-frozen", cfg.Tags.ID(TagFrozen))
	assert.Equal(t, []string{"r1", "r2"}, cfg.Roles[RoleStewards])
	assert.Equal(t, 5, cfg.RequiredMessages)
	assert.Equal(t, 10, cfg.SchedulerConcurrency)
	assert.Equal(t, 30*time.Second, cfg.LoopJitter)
}

func TestInvalidTimezoneFallsBack(t *testing.T) {
	data.SetSettings(map[string]string{"timezone": "Mars/Olympus"})
	t.Cleanup(func() { data.SetSettings(nil) })

	cfg := Load(nil)
	assert.Equal(t, time.UTC, cfg.Location)
}

func TestReplaceStatusTag(t *testing.T) {
	cfg := PactConfig{
		Tags:          Tags{TagDiscussion: "d", TagFrozen: "f", TagExecuting: "e"},
		StatusTagKeys: []string{TagDiscussion, TagFrozen, TagExecuting},
	}

	next := cfg.ReplaceStatusTag([]string{"other", "d"}, ForStatus(gov.ProposalFrozen))
	assert.Equal(t, []string{"other", "f"}, next)

	swapped := cfg.SwapTag([]string{"x", "d"}, TagDiscussion, TagExecuting)
	assert.Equal(t, []string{"x", "e"}, swapped)
}

func TestRoleKeysForMember(t *testing.T) {
	roles := Roles{
		RoleStewards:         {"r-steward"},
		RoleCouncilModerator: {"r-mod", "r-mod2"},
		RoleExecutionAuditor: {"r-audit"},
	}
	assert.Equal(t, []string{RoleStewards, RoleCouncilModerator}, roles.KeysFor([]string{"r-mod2", "x", "r-steward"}))
	assert.Empty(t, roles.KeysFor([]string{"x"}))
	assert.Empty(t, roles.KeysFor(nil))
}
