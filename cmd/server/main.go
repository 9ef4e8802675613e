package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmheidat/Transcendence/internal"
	"github.com/mmheidat/Transcendence/internal/auth"
	"github.com/mmheidat/Transcendence/internal/bus"
	"github.com/mmheidat/Transcendence/internal/store"
	"github.com/mmheidat/Transcendence/internal/store/migrations"
	"github.com/mmheidat/Transcendence/pkg/logger"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "配置檔路徑（空字串表示只用預設值與環境變數）")
		logLevel   = flag.String("log-level", "", "日誌級別 (debug, info, warn, error)，覆蓋配置檔")
		logFormat  = flag.String("log-format", "", "日誌格式 (text, json)，覆蓋配置檔")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	log, err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Level == "debug")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("服務器異常結束", "error", err)
		os.Exit(1)
	}
}

func run(cfg *internal.Config, log *slog.Logger) error {
	ctx := context.Background()

	// 持久化閘道
	matchStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 聊天通知匯流排
	notifyBus, err := openBus(ctx, cfg, log)
	if err != nil {
		return err
	}
	if notifyBus != nil {
		defer func() {
			if err := notifyBus.Close(); err != nil {
				log.Warn("關閉匯流排失敗", "error", err)
			}
		}()
	}

	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("create verifier: %w", err)
	}

	coord := internal.NewCoordinator(matchStore, internal.CoordinatorOptions{
		InviteTTL: cfg.Invite.TTL,
		Session: internal.SessionOptions{
			Mode:                cfg.Session.Mode,
			StoreTimeout:        cfg.Session.StoreTimeout,
			ForfeitOnDisconnect: cfg.Session.ForfeitOnDisconnect,
			ForfeitGrace:        cfg.Session.ForfeitGrace,
		},
	}, log)

	var bridge *internal.Bridge
	if notifyBus != nil {
		bridge = internal.NewBridge(notifyBus, cfg.Bus.Channel, coord.Registry(), log)
		if err := bridge.Start(ctx); err != nil {
			return fmt.Errorf("start bridge: %w", err)
		}
		defer func() { _ = bridge.Stop() }()
	}

	hub := internal.NewHub(coord, verifier, internal.HubOptions{
		SendBuffer:     cfg.Server.SendBuffer,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateBurst:      cfg.Server.RateBurst,
		RatePerSecond:  cfg.Server.RatePerSecond,
	}, log)
	// 記憶體實作沒有 Ping，此時健康檢查不含資料庫
	db, _ := matchStore.(internal.Pinger)
	handler := internal.NewHandler(coord, bridge, db, log)

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("GET /ws", hub.ServeWS)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("即時對戰協調服務啟動",
			"port", cfg.Server.Port,
			"bus", cfg.Bus.Driver,
			"postgres", cfg.Postgres.Enabled)
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		log.Info("收到關閉信號，開始優雅關閉", "signal", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 停止接受新連接
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("服務器關閉失敗", "error", err)
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("強制關閉服務器失敗", "error", closeErr)
			}
		}

		// WebSocket 已被 hijack，Shutdown 不會關閉它們
		hub.Stop()
		coord.Stop()
	}

	log.Info("服務器已關閉")
	return nil
}

// openStore 依配置選擇 PostgreSQL 或記憶體實作
func openStore(ctx context.Context, cfg *internal.Config, log *slog.Logger) (store.MatchStore, func(), error) {
	if !cfg.Postgres.Enabled {
		log.Warn("未啟用 PostgreSQL，對局紀錄只保存在記憶體")
		return store.NewMemoryStore(), func() {}, nil
	}

	dsn := cfg.PostgresURL()

	if cfg.Postgres.AutoMigrate {
		m, err := migrations.New(dsn, log)
		if err != nil {
			return nil, nil, fmt.Errorf("create migrator: %w", err)
		}
		upErr := m.Up()
		if closeErr := m.Close(); closeErr != nil {
			log.Warn("關閉遷移管理器失敗", "error", closeErr)
		}
		if upErr != nil {
			return nil, nil, upErr
		}
	}

	pool, err := store.Connect(ctx, dsn, store.PoolOptions{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		return nil, nil, err
	}

	return store.NewPostgresStore(pool, log), pool.Close, nil
}

// openBus 依配置選擇 Redis、NATS 或不啟用
func openBus(ctx context.Context, cfg *internal.Config, log *slog.Logger) (bus.Bus, error) {
	switch cfg.Bus.Driver {
	case internal.BusDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &closingBus{Bus: bus.NewRedisBus(client, log), close: client.Close}, nil

	case internal.BusDriverNATS:
		conn, err := bus.ConnectNATS(cfg.NATS.URL, "realtime")
		if err != nil {
			return nil, err
		}
		return bus.NewNATSBus(conn, log), nil

	default:
		log.Warn("未啟用聊天通知匯流排")
		return nil, nil
	}
}

// closingBus 關閉匯流排時一併關閉底層 Redis client
type closingBus struct {
	bus.Bus
	close func() error
}

func (b *closingBus) Close() error {
	return errors.Join(b.Bus.Close(), b.close())
}
