package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"deltastake/config"
	"deltastake/core/events"
	"deltastake/integrations/indexer"
	"deltastake/integrations/webhooks"
	"deltastake/native/bank"
	"deltastake/native/inventory"
	"deltastake/native/staking"
	"deltastake/observability/logging"
	telemetry "deltastake/observability/otel"
	"deltastake/rpc"
	stakingstate "deltastake/state/staking"
	"deltastake/storage"
)

const webhookDrainTimeout = 30 * time.Second

func main() {
	configFile := flag.String("config", "./stakingd.toml", "Path to the configuration file")
	fundPlan := flag.String("fund", "", "Path to a YAML funding plan applied by the owner at boot")
	devMint := flag.String("dev-mint", "", "DEV ONLY: mint this amount of reward currency to the owner before funding")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, closer := logging.SetupWithFile("stakingd", cfg.Environment, cfg.LogFile)
	defer closer.Close()

	if err := run(cfg, *fundPlan, *devMint, logger); err != nil {
		logger.Error("stakingd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, fundPlan, devMint string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params, err := cfg.StakingParams()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	secret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}

	if cfg.Telemetry.Enabled() {
		shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store, err := stakingstate.NewStore(db)
	if err != nil {
		return fmt.Errorf("open staking store: %w", err)
	}
	ledger, err := bank.NewLedger(db)
	if err != nil {
		return err
	}
	registry, err := inventory.NewRegistry(db)
	if err != nil {
		return err
	}
	registry.SetLogger(logger)

	engine, err := staking.NewEngine(params)
	if err != nil {
		return err
	}
	engine.SetState(store)
	engine.SetLogger(logger)
	engine.SetVault(bank.NewVault(ledger, cfg.Pool()))
	engine.SetCustody(registry.Custody(cfg.Pool()))
	registry.RegisterReceiver(cfg.Pool(), engine)

	emitters := events.Fanout{}
	var recorder *indexer.Recorder
	if dsn := strings.TrimSpace(cfg.Indexer.DSN); dsn != "" {
		sqlDB, err := indexer.Open(cfg.Indexer.Driver, dsn)
		if err != nil {
			return err
		}
		recorder, err = indexer.NewRecorder(sqlDB, logger)
		if err != nil {
			return err
		}
		emitters = append(emitters, recorder)
		logger.Info("event indexer enabled", slog.String("driver", cfg.Indexer.Driver), logging.MaskField("indexer_dsn", dsn))
	}
	if url := strings.TrimSpace(cfg.Webhook.URL); url != "" {
		secret, err := cfg.WebhookSecret()
		if err != nil {
			return err
		}
		dispatcher, err := webhooks.NewDispatcher(url, secret,
			webhooks.WithEventTypes(cfg.Webhook.Events...),
			webhooks.WithLogger(logger))
		if err != nil {
			return err
		}
		defer func() {
			drainCtx, cancel := context.WithTimeout(context.Background(), webhookDrainTimeout)
			defer cancel()
			if err := dispatcher.Shutdown(drainCtx); err != nil {
				logger.Warn("webhook queue not drained", slog.Any("error", err))
			}
		}()
		emitters = append(emitters, dispatcher)
		logger.Info("webhook delivery enabled", logging.MaskField("webhook_url", url))
	}
	engine.SetEmitter(emitters)

	if devMint != "" {
		amount, ok := new(big.Int).SetString(strings.TrimSpace(devMint), 10)
		if !ok {
			return fmt.Errorf("invalid -dev-mint amount %q", devMint)
		}
		if err := ledger.Mint(params.Owner, amount); err != nil {
			return fmt.Errorf("dev mint: %w", err)
		}
		logger.Warn("minted reward currency to owner", slog.String("amount", amount.String()))
	}
	if fundPlan != "" {
		if err := applyFundingPlan(engine, params.Owner, fundPlan, logger); err != nil {
			return err
		}
	}

	srv, err := rpc.NewServer(rpc.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Auth: rpc.AuthConfig{
			HMACSecret: secret,
			Issuer:     cfg.API.JWTIssuer,
			Audience:   cfg.API.JWTAudience,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.API.RequestsPerMinute,
			Burst:             cfg.API.Burst,
		},
		PoolAddress: cfg.Pool(),
	}, engine, logger)
	if err != nil {
		return err
	}
	srv.SetAssets(registry)
	if cfg.API.DevMint {
		srv.EnableDevMint(registry, ledger)
		logger.Warn("dev mint route enabled", slog.String("environment", cfg.Environment))
	}
	if recorder != nil {
		srv.SetEvents(recorder)
	}
	return srv.Serve(ctx, cfg.API.ListenAddress)
}

func applyFundingPlan(engine *staking.Engine, owner common.Address, path string, logger *slog.Logger) error {
	rounds, err := config.LoadFundingPlan(path)
	if err != nil {
		return err
	}
	for _, round := range rounds {
		err := engine.AddRewardsForPeriods(owner, round.StartPeriod, round.EndPeriod, round.RewardsPerCycle)
		if errors.Is(err, staking.ErrPeriodNotFundable) {
			logger.Warn("skipping funding round for started period",
				slog.Uint64("start_period", round.StartPeriod),
				slog.Uint64("end_period", round.EndPeriod))
			continue
		}
		if err != nil {
			return fmt.Errorf("fund periods [%d, %d]: %w", round.StartPeriod, round.EndPeriod, err)
		}
	}
	logger.Info("funding plan applied", slog.Int("rounds", len(rounds)))
	return nil
}
