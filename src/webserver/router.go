// Package webserver serves a read-only view of governance state over HTTP.
package webserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stellaria-pact/governance/src/scheduler"
	"github.com/stellaria-pact/governance/src/shared/gov"
)

// Proposals looks up proposals by thread.
type Proposals interface {
	Get(ctx context.Context, threadID string) (gov.ProposalDTO, error)
}

// Votes looks up ballots by panel message.
type Votes interface {
	Details(ctx context.Context, messageID string) (gov.VoteDetailDTO, error)
}

// Objections looks up objections.
type Objections interface {
	Get(ctx context.Context, id uint64) (gov.ObjectionDTO, error)
	ListForProposal(ctx context.Context, threadID string) ([]gov.ObjectionDTO, error)
}

// StatsSource reports outbound dispatcher counters.
type StatsSource interface {
	Stats() scheduler.Stats
}

// Deps are the read models behind the routes.
type Deps struct {
	Proposals  Proposals
	Votes      Votes
	Objections Objections
	Scheduler  StatsSource
}

// Config tunes the HTTP surface.
type Config struct {
	JWTSecret      string
	AllowOrigins   []string
	RatePerMinute  int
	RequestTimeout time.Duration
}

// New builds the router.
func New(cfg Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID())
	attachRoutes(r, cfg, d)
	return r
}

func attachRoutes(r *gin.Engine, cfg Config, d Deps) {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", requestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	rate := cfg.RatePerMinute
	if rate <= 0 {
		rate = 120
	}
	limiter := NewRateLimiter(rate, time.Minute)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	status := NewStatus(d)
	v1 := r.Group("/v1")
	v1.Use(RateLimitMiddleware(limiter))
	{
		v1.GET("/proposals/:threadId", status.Proposal)
		v1.GET("/votes/:messageId", status.Vote)
		v1.GET("/objections/:id", status.Objection)
	}

	admin := v1.Group("/admin")
	admin.Use(JWTMiddleware([]byte(cfg.JWTSecret)))
	{
		admin.GET("/scheduler", status.Scheduler)
	}
}

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the caller's when given.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
