package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/stellaria-pact/governance/src/data"
	"gorm.io/gorm"
)

// Base contains common configuration fields
type Base struct {
	Token   string
	GuildID string
	DSN     string
}

// LoadBase loads common configuration (discord token, guild ID, DSN)
func LoadBase(db *gorm.DB) Base {
	if db != nil {
		if err := data.LoadSettings(db); err != nil {
			log.Printf("config: settings table unavailable, using env only: %v", err)
		}
	}

	dsn, _ := data.GetDSN()
	return Base{
		Token:   GetSetting("discord_token", "DISCORD_TOKEN", ""),
		GuildID: GetSetting("guild_id", "GUILD_ID", ""),
		DSN:     dsn,
	}
}

// GetSetting retrieves a setting with env fallback
func GetSetting(name, envKey, defaultValue string) string {
	val := data.GetSetting(name)
	if val == "" && envKey != "" {
		val = os.Getenv(envKey)
	}
	if val == "" {
		val = defaultValue
	}
	return val
}

// envKeyFor maps a dotted setting name to its environment variable.
func envKeyFor(name string) string {
	return strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(name))
}

func setting(name, defaultValue string) string {
	return strings.TrimSpace(GetSetting(name, envKeyFor(name), defaultValue))
}

func intSetting(name string, defaultValue int) int {
	raw := setting(name, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: %s=%q is not an integer, using %d", name, raw, defaultValue)
		return defaultValue
	}
	return v
}

func floatSetting(name string, defaultValue float64) float64 {
	raw := setting(name, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: %s=%q is not a number, using %v", name, raw, defaultValue)
		return defaultValue
	}
	return v
}

func boolSetting(name string, defaultValue bool) bool {
	raw := strings.ToLower(setting(name, ""))
	switch raw {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func listSetting(name string) []string {
	raw := setting(name, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
