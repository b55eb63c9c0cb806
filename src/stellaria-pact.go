package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stellaria-pact/governance/src/actions"
	"github.com/stellaria-pact/governance/src/config"
	shareddata "github.com/stellaria-pact/governance/src/data"
)

func main() {
	config.LoadEnv()

	// Use a single DB connection for all modules
	dsn, err := shareddata.GetDSN()
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	db, err := shareddata.Connect(dsn)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := shareddata.Migrate(db); err != nil {
		log.Fatalf("db: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager, err := actions.StartAll(ctx, db)
	if err != nil {
		log.Fatalf("actions start: %v", err)
	}

	// Wait for termination
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutting down")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	manager.Stop(stopCtx)
	cancel()
}
