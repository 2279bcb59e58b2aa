// Command solver runs the arbitrage solver: registry + routers + selector +
// transaction pipeline driven by a bounded worker scheduler, with a status
// API and a pebble-backed outcome history alongside it. Wiring style mirrors
// the teacher's cmd/node: load config, build a file+console zap logger,
// construct the app graph, start background servers, then block on a
// signal-cancellable context.
package main

import (
	"context"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rainarb/solver/internal/config"
	"github.com/rainarb/solver/internal/errs"
	"github.com/rainarb/solver/internal/history"
	"github.com/rainarb/solver/internal/keysigner"
	"github.com/rainarb/solver/internal/onchain"
	"github.com/rainarb/solver/internal/registry"
	"github.com/rainarb/solver/internal/router"
	"github.com/rainarb/solver/internal/scheduler"
	"github.com/rainarb/solver/internal/selector"
	"github.com/rainarb/solver/internal/statusapi"
	"github.com/rainarb/solver/internal/txpipeline"
	"github.com/rainarb/solver/pkg/util"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.Load("")

	logPath := os.Getenv("LOG_FILE")
	if logPath == "" {
		logPath = "data/solver.log"
	}
	logger, err := util.NewLoggerWithFile(logPath)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("solver_starting", "rpc_url", cfg.RPCURL, "chain_id", cfg.ChainID, "workers", cfg.Workers)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	reg := registry.New(sugar)

	reads := onchain.Unconfigured{}
	ext := router.NewExternalRouter(reads, cfg.PoolBlacklist)
	intra := router.NewIntraOrderbookRouter()
	inter := router.NewInterOrderbookRouter()

	selDeps := &selector.Deps{
		Registry:              reg,
		Quote:                 reads.QuoteOrder,
		External:              ext,
		Intra:                 intra,
		Inter:                 inter,
		EthPrice:              reads.EthPrice,
		GasCoveragePercentage: cfg.GasCoveragePercentage,
		Tracer:                tp.Tracer("solver/selector"),
	}

	chainClient, err := keysigner.Dial(context.Background(), cfg.RPCURL)
	if err != nil {
		sugar.Fatalw("rpc_dial_failed", "err", err)
	}

	signers := make([]txpipeline.Signer, 0, len(cfg.SignerKeyFiles))
	for _, keyFile := range cfg.SignerKeyFiles {
		keyHex, err := os.ReadFile(keyFile)
		if err != nil {
			sugar.Fatalw("signer_key_read_failed", "file", keyFile, "err", err)
		}
		s, err := keysigner.FromPrivateKeyHex(string(keyHex), chainClient)
		if err != nil {
			sugar.Fatalw("signer_key_parse_failed", "file", keyFile, "err", err)
		}
		signers = append(signers, s)
		sugar.Infow("signer_loaded", "address", s.Address().Hex())
	}
	if len(signers) == 0 {
		sugar.Warn("no signer key files configured; scheduler will run selection only, every attempt fails at SIGN")
	}

	deployer := onchain.Deployer{Call: chainClient.CallContract, Address: cfg.ArbContract}

	revertCache := errs.NewSelectorCache(onchain.Unconfigured{}, errs.SeedTable())

	pipeline := &txpipeline.Pipeline{
		Client:                  chainClient,
		Signers:                 txpipeline.NewSignerPool(signers),
		Deployer:                deployer,
		ArbContract:             cfg.ArbContract,
		ChainID:                 big.NewInt(cfg.ChainID),
		GasLimitHeadroomPercent: cfg.GasLimitHeadroomPct,
		ReceiptTimeout:          cfg.ReceiptTimeout,
		FrontrunLookup:          onchain.ClearLogsFromChain(chainClient),
		RevertCache:             revertCache,
	}

	histStore, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		sugar.Fatalw("history_open_failed", "path", cfg.HistoryDBPath, "err", err)
	}
	defer histStore.Close()

	sched := scheduler.New(cfg.Workers)
	sched.Registry = reg
	sched.Selector = selDeps
	sched.Pipeline = pipeline
	sched.Limiter = rate.NewLimiter(rate.Limit(cfg.PollIntervalPerSecond), 1)
	sched.Logger = sugar
	sched.Block = func(ctx context.Context) (uint64, *big.Int, error) {
		block, err := chainClient.BlockNumber(ctx)
		if err != nil {
			return 0, nil, err
		}
		gasPrice, err := chainClient.SuggestGasPrice(ctx)
		if err != nil {
			return 0, nil, err
		}
		return block, gasPrice, nil
	}

	api := statusapi.NewServer(reg, sched, histStore, sugar)
	go func() {
		if err := api.Start(cfg.StatusAPIAddr); err != nil {
			sugar.Fatalw("status_api_failed", "err", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	sugar.Infow("scheduler_started", "workers", cfg.Workers)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting down")
			sched.Stop()
			return
		case <-ticker.C:
			snap := sched.Snapshot()
			sugar.Infow("scheduler_progress",
				"scheduled", snap.Scheduled, "selected", snap.Selected,
				"confirmed", snap.Confirmed, "reverted", snap.Reverted, "timed_out", snap.TimedOut)
		}
	}
}
