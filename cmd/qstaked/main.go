package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"qstake/config"
	"qstake/core/schedule"
	"qstake/native/accrual"
	"qstake/native/bank"
	"qstake/native/sidepool"
	"qstake/native/voting"
	"qstake/observability/logging"
	"qstake/rpc"
	"qstake/state"
	"qstake/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the TOML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var logger *slog.Logger
	if cfg.LogFile != "" {
		logger = logging.SetupFile("qstaked", cfg.Environment, cfg.LogFile)
	} else {
		logger = logging.Setup("qstaked", cfg.Environment)
	}

	budget, err := cfg.Budget()
	if err != nil {
		return err
	}
	sched, err := schedule.New(cfg.Boundaries(), budget)
	if err != nil {
		return fmt.Errorf("build schedule: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	mgr := state.NewManager(db)
	assets := bank.NewLedger(mgr)
	vault := bank.NewVault(mgr)
	treasury := bank.NewTreasury(assets, cfg.Treasury(), cfg.Ledger())

	engine := accrual.NewEngine(sched, cfg.Ledger())
	engine.SetState(mgr)
	engine.SetVault(vault)
	engine.SetTreasury(treasury)

	votes := voting.NewLedger()
	pool := sidepool.NewDistributor(cfg.Ledger(), cfg.Authority(), cfg.ClaimWindowSeconds)
	pool.SetState(mgr)
	pool.SetVotingLedger(votes)
	pool.SetAssetLedger(assets)

	logger.Info("ledger initialised",
		"epochs", sched.Count(),
		"reward_rate", sched.RewardRate().String(),
		"period_start", sched.Start(),
		"period_end", sched.End(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpc.NewServer(engine, pool, logger)
	if err := server.Serve(ctx, cfg.RPCAddress); err != nil {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
