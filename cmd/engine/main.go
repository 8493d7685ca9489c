package main

import (
	"context"
	stderrors "errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"orchestrator/internal/api"
	"orchestrator/internal/cache"
	"orchestrator/internal/chain"
	"orchestrator/internal/engine"
	"orchestrator/internal/executor"
	"orchestrator/internal/journal"
	"orchestrator/internal/market"
	"orchestrator/internal/ops"
	"orchestrator/internal/pipeline"
	"orchestrator/internal/signer"
	"orchestrator/internal/stream"
	"orchestrator/pkg/conn"
)

const shutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:          "engine",
	Short:        "Pipeline orchestration engine",
	Long:         `Accepts trading pipelines over HTTP, evaluates them against live market data and submits their steps on chain.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, listen)
	},
}

func init() {
	rootCmd.Flags().String("listen", "", "Override ENGINE_LISTEN_ADDR")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logs.Errorf("engine exited, err: %+v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, listen string) error {
	cfg, err := ops.Load(ctx)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	features := cfg.Features()

	if features.Profiling {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "orchestrator.engine",
			ServerAddress:   cfg.PyroscopeAddr,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return errors.Wrap(err, "start pyroscope")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	rpcClient := rpc.New(cfg.RPCURL)
	local, err := signer.NewLocal(cfg.PrivateKey, signer.NewRPCSender(rpcClient))
	if err != nil {
		return err
	}
	logs.Infof("signer loaded, public key: %s", local.PublicKey())

	rest := market.NewRestClient(&http.Client{Timeout: 5 * time.Second}, cfg.Market.BinanceRESTURL)
	price := cache.NewValue("price", rest.PriceFetcher(cfg.Market.PriceSymbol))
	blockhashFetcher := market.NewRPCBlockhash(rpcClient)
	blockhash := cache.NewValue("blockhash", market.Fetch(blockhashFetcher))
	exec := executor.New(local, blockhash)

	var store pipeline.Store = pipeline.NewMemoryStore()
	if features.RedisStore {
		client, err := conn.NewRedis(ctx, conn.RedisOption{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err != nil {
			return err
		}
		redisStore := pipeline.NewRedisStore(client, pipeline.WithRedisPrefix(cfg.RedisPrefix))
		defer redisStore.Close()
		store = redisStore
	}

	var (
		opts       []engine.Option
		executions api.ExecutionLister
	)
	if features.Journal {
		pg, err := conn.NewPostgres(ctx, conn.PostgresOption{DSN: cfg.PostgresDSN})
		if err != nil {
			return err
		}
		defer pg.Close()

		j := journal.New(pg.DB())
		if err := j.Migrate(ctx); err != nil {
			return err
		}
		opts = append(opts, engine.WithRecorder(j))
		executions = j
	}

	eng := engine.New(cfg.Engine, store, price, cfg.Limits, engine.NewRouter(exec), opts...)
	bridge := engine.NewBridge(eng, cfg.ReplyTimeout)

	feed := market.NewFeed(
		market.NewPriceFeed(cfg.Market.PriceSymbol, price),
		market.NewBlockhashPoller(blockhashFetcher, blockhash, cfg.Market.BlockhashInterval),
		stream.DefaultBackoff(),
	)

	metrics := api.NewMetrics(eng.QueueLen)
	metrics.WatchPriceAge(price.UpdatedAt)
	server := api.NewServer(bridge, api.NewJWTResolver([]byte(cfg.JWTSecret)), metrics, executions)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return eng.Run(gctx)
	})
	eg.Go(func() error {
		return feed.Run(gctx)
	})
	if features.Ingest {
		var filters []chain.Filter
		if cfg.Chain.DataSize > 0 {
			filters = append(filters, chain.Filter{DataSize: cfg.Chain.DataSize})
		}
		sub := chain.NewSubscription(chain.SubscribeConfig{
			Endpoint:  cfg.WSURL,
			ProgramID: cfg.Chain.ProgramID,
			Filters:   filters,
		})
		ingestor := chain.NewIngestor(sub, chain.RawDecoder{}, eng, cfg.Chain.ProcessorBudget)
		eg.Go(func() error {
			return stream.Supervise(gctx, "program", stream.DefaultBackoff(), ingestor.Run)
		})
	}
	eg.Go(func() error {
		logs.Infof("http listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	eg.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sys.Shutdown():
		}
		logs.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logs.Warnf("http shutdown, err: %+v", err)
		}
		eng.Shutdown()
		<-eng.Done()
		return context.Canceled
	})

	if err := eg.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
