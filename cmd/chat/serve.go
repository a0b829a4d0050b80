package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/cache"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/metrics"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/postgres"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/push"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/realtime"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/security"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/service"
	grpcx "github.com/MelvinVerLia/SiLaporRT-sub001/internal/transport/grpc"
	httpx "github.com/MelvinVerLia/SiLaporRT-sub001/internal/transport/http"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/transport/ws"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the websocket, REST and health endpoints",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	// --- config ---
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := initLogger(cfg)
	log.Info("starting chat core", "env", cfg.Logging.Env, "version", cfg.Logging.Version)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- postgres ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	if serveMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	// --- repos ---
	msgRepo := postgres.NewMessageRepository(pool)
	convRepo := postgres.NewConversationRepository(pool)
	pushRepo := postgres.NewPushSubscriptionRepository(pool)

	// --- push ---
	var subs push.SubscriptionStore = pushRepo
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisSubscriptionCache(cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		subs = cache.NewSubscriptions(pushRepo, rc, cfg.Redis.TTL, log)
	} else {
		log.Info("redis disabled, push subscriptions read from postgres")
	}

	provider, closer, err := push.NewProvider(cfg.Push, log)
	if err != nil {
		return fmt.Errorf("push provider: %w", err)
	}
	defer closer.Close()

	m := metrics.New(prometheus.NewRegistry())
	pushSvc := push.NewService(subs, provider, push.Config{Icon: cfg.Push.Icon, Timeout: cfg.Push.DispatchTimeout}, log, m)

	// --- chat core ---
	registry := realtime.NewRegistry()
	reconciler, err := service.NewReconciler(cfg.Chat.DedupeSize)
	if err != nil {
		return err
	}
	coord := service.NewSessionCoordinator(service.CoordinatorConfig{
		MaxBodyLength:  cfg.Chat.MaxBodyLength,
		PersistTimeout: cfg.Chat.PersistTimeout,
		PushTitle:      cfg.Chat.PushTitle,
		PushPreview:    cfg.Chat.PushPreview,
		ClickURLFormat: cfg.Chat.ClickURLFormat,
	}, service.CoordinatorDeps{
		Registry:   registry,
		Directory:  convRepo,
		Store:      msgRepo,
		Reconciler: reconciler,
		Receipts:   service.NewReadReceiptTracker(msgRepo, registry, log, m),
		Typing:     service.NewTypingSignaler(registry, cfg.Chat.TypingExpiry, log, m),
		Push:       pushSvc,
		Log:        log,
		Metrics:    m,
	})
	convSvc := service.NewConversationService(convRepo, msgRepo, log)

	// --- auth ---
	pub, err := security.LoadRSAPublicKeyFromPEM(cfg.Auth.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("auth key: %w", err)
	}
	verifier := security.NewTokenVerifier(pub, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.ClockSkew)

	// --- transports ---
	wsSrv := ws.NewServer(coord, verifier, cfg.WebSocket, cfg.HTTP.AllowedOrigins, log, m)
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        httpx.NewHandler(convSvc, pushSvc, log),
		Verifier:       verifier,
		WS:             wsSrv.HandleWS,
		Metrics:        m.Handler(),
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Log:            log,
	})
	httpSrv := httpx.NewServer(cfg.HTTP, router)
	httpSrv.OnShutdown(wsSrv.CloseAll)

	grpcServer, health := grpcx.NewServer(log, map[string]grpcx.Check{
		"postgres": func(ctx context.Context) error { return postgres.Ping(ctx, pool) },
	})

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listen", "addr", cfg.HTTP.Addr)
		return httpSrv.Run(gctx)
	})
	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		g.Go(func() error {
			log.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			health.Run(gctx, 15*time.Second)
			grpcServer.GracefulStop()
			return nil
		})
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "err", err)
	}

	// let detached push dispatches finish before the provider closes
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Push.DispatchTimeout)
	defer cancel()
	if werr := coord.Wait(waitCtx); werr != nil {
		log.Warn("push dispatches still running at exit", slog.Any("err", werr))
	}
	log.Info("stopped")
	return err
}
