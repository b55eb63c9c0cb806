package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/stellaria-pact/governance/src/actions/governance"
	"github.com/stellaria-pact/governance/src/config"
	shareddata "github.com/stellaria-pact/governance/src/data"
	"github.com/stellaria-pact/governance/src/discord"
)

var (
	migrateFlag  = flag.Bool("migrate", false, "Create or update the governance tables")
	resetFlag    = flag.Bool("reset-commands", false, "Delete every guild slash command, then register /pact again")
	settingsFlag = flag.Bool("print-settings", false, "Print the effective configuration keys that are set")
	setFlags     settingList
)

// settingList collects repeated -set name=value flags.
type settingList []string

func (l *settingList) String() string { return strings.Join(*l, ",") }

func (l *settingList) Set(v string) error {
	if !strings.Contains(v, "=") {
		return fmt.Errorf("expected name=value, got %q", v)
	}
	*l = append(*l, v)
	return nil
}

func init() {
	flag.Var(&setFlags, "set", "Store a setting as name=value (repeatable)")
}

func main() {
	flag.Parse()
	config.LoadEnv()
	if !*migrateFlag && !*resetFlag && !*settingsFlag && len(setFlags) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	dsn, err := shareddata.GetDSN()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	db, err := shareddata.Connect(dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}

	if *migrateFlag {
		if err := shareddata.Migrate(db); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	for _, kv := range setFlags {
		name, value, _ := strings.Cut(kv, "=")
		if err := shareddata.SaveSetting(db, name, value); err != nil {
			log.Fatalf("settings: %v", err)
		}
		log.Printf("settings: %s saved", name)
	}

	cfg := config.Load(db)

	if *settingsFlag {
		log.Printf("guild=%s timezone=%s discussion=%s voting=%s review=%s broadcast=%v",
			cfg.GuildID, cfg.TimezoneName, cfg.Channels.Discussion, cfg.Channels.VotingChannel,
			cfg.Channels.ReviewChannel, cfg.Channels.Broadcast)
		for key, ids := range cfg.Roles {
			log.Printf("role %s=%v", key, ids)
		}
		for key, id := range cfg.Tags {
			log.Printf("tag %s=%s", key, id)
		}
	}

	if *resetFlag {
		session, err := governance.NewSession(cfg.Token)
		if err != nil {
			log.Fatalf("discord: %v", err)
		}
		if err := session.Open(); err != nil {
			log.Fatalf("discord: open: %v", err)
		}
		defer session.Close()

		if err := discord.DeleteSlashCommands(session, cfg.GuildID); err != nil {
			log.Fatalf("discord: delete commands: %v", err)
		}
		if err := discord.RegisterSlashCommands(session, cfg.GuildID); err != nil {
			log.Fatalf("discord: register commands: %v", err)
		}
		log.Printf("discord: /%s re-registered in guild %s", discord.CommandPact, cfg.GuildID)
	}
}
