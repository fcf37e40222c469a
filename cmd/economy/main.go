package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/gameeconomy/internal/audit"
	ledgerapp "github.com/wyfcoding/gameeconomy/internal/ledger/application"
	"github.com/wyfcoding/gameeconomy/internal/ledger/cache"
	"github.com/wyfcoding/gameeconomy/internal/ledger/infrastructure/persistence"
	ledgerhttp "github.com/wyfcoding/gameeconomy/internal/ledger/interfaces/http"
	"github.com/wyfcoding/gameeconomy/internal/ledger/syncbus"
	shopapp "github.com/wyfcoding/gameeconomy/internal/shop/application"
	shopjson "github.com/wyfcoding/gameeconomy/internal/shop/infrastructure/persistence/jsonfile"
	"github.com/wyfcoding/gameeconomy/internal/shop/infrastructure/world"
	shophttp "github.com/wyfcoding/gameeconomy/internal/shop/interfaces/http"
	"github.com/wyfcoding/gameeconomy/pkg/config"
	"github.com/wyfcoding/gameeconomy/pkg/logger"
	"github.com/wyfcoding/gameeconomy/pkg/metrics"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/economy/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	ctx := context.Background()

	// 3. Metrics
	m := metrics.New(cfg.ServiceName)
	if err := m.Register(); err != nil {
		logger.Error(ctx, "Failed to register metrics", "error", err)
		os.Exit(1)
	}
	if cfg.Metrics.Enabled {
		go metrics.StartHTTPServer(cfg.Metrics.Port)
	}

	// 4. Storage
	store, err := persistence.Open(cfg.Storage)
	if err != nil {
		logger.Error(ctx, "Failed to open account store", "type", cfg.Storage.Type, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// 5. Sync bus
	bus, err := buildBus(cfg)
	if err != nil {
		logger.Error(ctx, "Failed to connect sync bus", "kind", cfg.Bus.Kind, "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	// 6. Audit log
	var auditLog *audit.Logger
	if cfg.Audit.Path != "" {
		auditLog, err = audit.New(cfg.Audit.Path, cfg.Audit.QueueSize, m)
		if err != nil {
			logger.Error(ctx, "Failed to open audit log", "path", cfg.Audit.Path, "error", err)
			os.Exit(1)
		}
		defer auditLog.Close()
	}

	// 7. Ledger
	defaultBalance, err := decimal.NewFromString(cfg.Ledger.DefaultBalance)
	if err != nil {
		logger.Error(ctx, "Invalid default balance", "value", cfg.Ledger.DefaultBalance, "error", err)
		os.Exit(1)
	}

	accountCache := cache.New(cache.Config{
		AccountSize: cfg.Cache.AccountSize,
		AccountTTL:  time.Duration(cfg.Cache.AccountTTL) * time.Second,
		NameSize:    cfg.Cache.NameSize,
		NameTTL:     time.Duration(cfg.Cache.NameTTL) * time.Second,
		NamesTTL:    time.Duration(cfg.Cache.NamesTTL) * time.Second,
	})

	gameWorld := world.NewMemory()

	ledger := ledgerapp.NewLedger(store, accountCache, bus, gameWorld, auditLog, m, ledgerapp.Config{
		DefaultBalance:     defaultBalance,
		CurrencySymbol:     cfg.Ledger.CurrencySymbol,
		SymbolBeforeAmount: cfg.Ledger.SymbolBeforeAmount,
		MaxRetries:         cfg.Ledger.CASMaxRetries,
		Backoff:            time.Duration(cfg.Ledger.CASBackoffMs) * time.Millisecond,
	})

	if err := bus.Subscribe(ctx, ledger.HandleNotification); err != nil {
		logger.Error(ctx, "Failed to subscribe to sync bus", "error", err)
		os.Exit(1)
	}

	// 8. Shop engine
	var engine *shopapp.Engine
	if cfg.Shop.Enabled {
		worth, err := parseWorth(cfg.Worth)
		if err != nil {
			logger.Error(ctx, "Invalid worth table", "error", err)
			os.Exit(1)
		}
		registry := shopjson.New(cfg.Shop.Path)
		engine, err = shopapp.NewEngine(ctx, ledger, registry, gameWorld, gameWorld.Inventory(), gameWorld,
			auditLog, m, worth, shopapp.Config{
				PendingTTL:        time.Duration(cfg.Shop.PendingTTL) * time.Second,
				MaxBatch:          cfg.Shop.MaxBatch,
				ReconcileInterval: time.Duration(cfg.Shop.ReconcileInterval) * time.Second,
			})
		if err != nil {
			logger.Error(ctx, "Failed to start shop engine", "error", err)
			os.Exit(1)
		}
	}

	// 9. HTTP
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "dev" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	ledgerhttp.NewHandler(ledger).RegisterRoutes(api)
	if engine != nil {
		shophttp.NewHandler(engine).RegisterRoutes(api)
	}

	// 10. Start
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g.Go(func() error {
		logger.Info(ctx, "HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if engine != nil {
		g.Go(func() error {
			engine.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			logger.Info(ctx, "Shutting down servers")
		case <-ctx.Done():
			logger.Info(ctx, "Context cancelled, shutting down")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "Server exited with error", "error", err)
	}
}

// buildBus 按配置选择同步总线
func buildBus(cfg *config.Config) (syncbus.Bus, error) {
	switch cfg.Bus.Kind {
	case "", "none":
		return syncbus.Noop{}, nil
	case "redis":
		return syncbus.NewRedis(syncbus.RedisConfig{
			Host:     cfg.Bus.Redis.Host,
			Port:     cfg.Bus.Redis.Port,
			Password: cfg.Bus.Redis.Password,
			DB:       cfg.Bus.Redis.DB,
			Channel:  cfg.Bus.Redis.Channel,
		})
	case "kafka":
		return syncbus.NewKafka(syncbus.KafkaConfig{
			Brokers: cfg.Bus.Kafka.Brokers,
			Topic:   cfg.Bus.Kafka.Topic,
			GroupID: cfg.Bus.Kafka.GroupID,
		})
	default:
		return nil, fmt.Errorf("unknown bus kind: %s", cfg.Bus.Kind)
	}
}

// parseWorth 把配置里的价目表解析为十进制
func parseWorth(raw map[string]string) (map[string]decimal.Decimal, error) {
	worth := make(map[string]decimal.Decimal, len(raw))
	for item, price := range raw {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("worth entry %q: %w", item, err)
		}
		worth[item] = d
	}
	return worth, nil
}
