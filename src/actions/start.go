package actions

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stellaria-pact/governance/src/actions/core"
	"github.com/stellaria-pact/governance/src/actions/governance"
	"github.com/stellaria-pact/governance/src/announcement"
	"github.com/stellaria-pact/governance/src/config"
	"github.com/stellaria-pact/governance/src/data"
	"github.com/stellaria-pact/governance/src/discord"
	"github.com/stellaria-pact/governance/src/events"
	"github.com/stellaria-pact/governance/src/listeners"
	"github.com/stellaria-pact/governance/src/loops"
	"github.com/stellaria-pact/governance/src/objection"
	"github.com/stellaria-pact/governance/src/proposal"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/store"
	"github.com/stellaria-pact/governance/src/voting"
	"github.com/stellaria-pact/governance/src/webserver"
	"gorm.io/gorm"
)

// Manager is the process-wide module manager.
type Manager = core.Manager

// StartAll wires the governance service and starts the manager.
func StartAll(ctx context.Context, db *gorm.DB) (*Manager, error) {
	cfg := config.Load(db)
	if cfg.Token == "" || cfg.GuildID == "" {
		return nil, fmt.Errorf("actions: discord_token and guild_id are required")
	}
	if cfg.Channels.Discussion == "" {
		log.Printf("actions: channels.discussion is not set, forum threads will not become proposals")
	}

	st := store.New(db)
	bus := events.NewBus()
	sched := scheduler.New(scheduler.Config{
		Concurrency:   cfg.SchedulerConcurrency,
		RatePerSecond: cfg.SchedulerRatePerSecond,
	})

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		client, err := data.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Printf("actions: redis unavailable, click cooldown stays in memory: %v", err)
		} else {
			rdb = client
		}
	}

	session, err := governance.NewSession(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	gw := discord.NewGateway(session, cfg.GuildID)

	objections := objection.New(st, bus, objection.Config{
		GuildID:          cfg.GuildID,
		RequiredMessages: cfg.RequiredMessages,
		CollectionHours:  cfg.ObjectionCollectionHours,
	})
	votes := voting.New(st, bus, voting.Config{
		GuildID:            cfg.GuildID,
		RequiredMessages:   cfg.RequiredMessages,
		ObjectionVoteHours: cfg.ObjectionVoteHours,
	})
	votes.SetObjectionResolver(objections)
	proposals := proposal.New(st, bus, proposal.Config{DiscussionForumID: cfg.Channels.Discussion})
	announcements := announcement.New(st, bus, announcement.Config{
		Location:              cfg.Location,
		BroadcastChannels:     cfg.Channels.Broadcast,
		RepostThreshold:       cfg.RepostDefaultThreshold,
		RepostIntervalMinutes: cfg.RepostDefaultInterval,
	})

	listeners.Register(bus, listeners.Deps{
		Config:        cfg,
		Gateway:       gw,
		Scheduler:     sched,
		Voting:        votes,
		Objections:    objections,
		Proposals:     proposals,
		Announcements: announcements,
	})

	handler := governance.NewHandler(governance.Deps{
		Gateway:       gw,
		Scheduler:     sched,
		Guard:         governance.NewRoleGuard(cfg.Roles),
		Cooldown:      governance.NewCooldown(rdb, cfg.ClickCooldown),
		Voting:        votes,
		Objections:    objections,
		Proposals:     proposals,
		Announcements: announcements,
	})
	bot := governance.NewModule(&cfg, session, handler)

	runner := loops.New(cfg.LoopJitter, bot.Ready(), loops.Tasks(loops.Deps{
		DiscussionForumID: cfg.Channels.Discussion,
		Gateway:           gw,
		Scheduler:         sched,
		Voting:            votes,
		Proposals:         proposals,
		Announcements:     announcements,
	})...)

	mgr := core.NewManager()
	mgr.StopTimeout = 10 * time.Second
	if rdb != nil {
		if err := mgr.Add(core.Closer{Label: "redis", Close: rdb.Close}); err != nil {
			return nil, fmt.Errorf("actions: add redis: %w", err)
		}
	}
	for _, mod := range []core.Module{sched, bot, runner} {
		if err := mgr.Add(mod); err != nil {
			return nil, fmt.Errorf("actions: add %s: %w", mod.Name(), err)
		}
	}

	if cfg.EnableWebserver {
		srv := webserver.NewServer(cfg.HTTPAddr, webserver.Config{
			JWTSecret:     cfg.JWTSecret,
			AllowOrigins:  cfg.HTTPAllowOrigins,
			RatePerMinute: cfg.HTTPRatePerMinute,
		}, webserver.Deps{
			Proposals:  proposals,
			Votes:      votes,
			Objections: objections,
			Scheduler:  sched,
		})
		if err := mgr.Add(srv); err != nil {
			return nil, fmt.Errorf("actions: add webserver: %w", err)
		}
	} else {
		log.Printf("actions: webserver disabled via configuration")
	}

	if err := mgr.Start(ctx); err != nil {
		return nil, err
	}
	return mgr, nil
}
