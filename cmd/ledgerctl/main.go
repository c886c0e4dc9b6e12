// ledgerctl runs one ledger command against the configured store.
//
// Usage: ledgerctl <command> [args...]
//
// The acting user comes from LEDGER_ACTOR_ID and LEDGER_ACTOR_NAME.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"grain-ledger/internal/adapters/cli"
	"grain-ledger/internal/ai"
	"grain-ledger/internal/app"
	"grain-ledger/internal/archive"
	"grain-ledger/internal/config"
	"grain-ledger/internal/core"
	"grain-ledger/internal/logger"
	"grain-ledger/internal/rates"
	"grain-ledger/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, cli.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	debug, _ := strconv.ParseBool(os.Getenv("LEDGER_DEBUG"))
	log := logger.Must(logger.NewDevelopment(debug))
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(os.Getenv("ENV_FILE"))
	if err != nil {
		return err
	}
	actor, err := actorFromEnv()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, closeStore, err := store.Open(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer closeStore()

	rt := core.NewRuntime(st, cfg.Cash.RegisterName, logger.Named(log, "ledger"))
	if _, err := core.EnsureRegister(ctx, rt); err != nil {
		return err
	}

	var drafter ai.Drafter
	if cfg.AI.OpenAIKey != "" {
		drafter = ai.NewAgent(cfg.AI.OpenAIKey, cfg.AI.Model, logger.Named(log, "ai"))
	}
	var exporter *archive.Exporter
	if cfg.Archive.Enabled() {
		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return err
		}
		if exporter, err = archive.New(ctx, cfg.Archive, loc, logger.Named(log, "archive")); err != nil {
			return err
		}
	}

	svc := app.NewAppService(rt, drafter, rates.NewClient(cfg.Rates, logger.Named(log, "rates")), exporter, nil)
	return cli.Run(ctx, svc, actor, os.Args[1:], os.Stdin, os.Stdout)
}

func actorFromEnv() (core.Actor, error) {
	raw := os.Getenv("LEDGER_ACTOR_ID")
	name := os.Getenv("LEDGER_ACTOR_NAME")
	if raw == "" || name == "" {
		return core.Actor{}, errors.New("LEDGER_ACTOR_ID and LEDGER_ACTOR_NAME must be set")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return core.Actor{}, fmt.Errorf("LEDGER_ACTOR_ID %q is not a positive integer", raw)
	}
	return core.Actor{ID: id, FullName: name}, nil
}
