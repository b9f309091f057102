// fleetscaler is the per-fleet supervisory service. The template builder
// submits exactly one as a long-lived scheduler job next to the worker DAG;
// it reconciles the live runner population against the fleet's targets until
// the batch is removed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtorres/runnerfleet/internal/condor"
	"github.com/mtorres/runnerfleet/internal/config"
	"github.com/mtorres/runnerfleet/internal/github"
	"github.com/mtorres/runnerfleet/internal/scaler"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	var (
		fleetName  = flag.String("fleet", "", "fleet name (runner name prefix and batch name)")
		org        = flag.String("org", "", "organization scope")
		repo       = flag.String("repo", "", "repository scope (empty for organization-scoped)")
		credential = flag.String("credential", "", "path to the admin token file")
		idleTarget = flag.Int("idle-target", 3, "idle workers to keep warm")
		slots      = flag.Int("slots", 10, "total worker slots")
		interval   = flag.Duration("interval", 0, "poll interval override")
	)
	flag.Parse()

	if *fleetName == "" || *org == "" || *credential == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	gh, err := github.NewClient(cfg.Platform.APIBaseURL, *credential)
	if err != nil {
		log.Fatalf("Failed to create platform client: %v", err)
	}
	sched, err := condor.NewScheduler()
	if err != nil {
		log.Fatalf("Failed to create scheduler client: %v", err)
	}

	svc := scaler.New(scaler.Targets{
		FleetName:  *fleetName,
		Org:        *org,
		Repo:       *repo,
		IdleTarget: *idleTarget,
		TotalSlots: *slots,
	}, gh, sched)

	if *interval > 0 {
		svc.SetInterval(*interval)
	} else if cfg.Scaler.PollSeconds > 0 {
		svc.SetInterval(time.Duration(cfg.Scaler.PollSeconds) * time.Second)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Status endpoint for operator introspection; losing it is not fatal.
	go func() {
		addr := fmt.Sprintf("127.0.0.1:%d", cfg.Scaler.StatusPort)
		log.Printf("Status endpoint on http://%s/status", addr)
		if err := http.ListenAndServe(addr, scaler.NewServer(svc).Handler()); err != nil {
			log.Printf("Warning: status server stopped: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received %v, shutting down", sig)
		cancel()
	}()

	log.Printf("Autoscaler for fleet %s starting (idle target %d, %d slots)", *fleetName, *idleTarget, *slots)
	svc.Run(ctx)
}
