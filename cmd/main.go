package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"nepse-mock-trader/internal/api"
	"nepse-mock-trader/internal/broker"
	"nepse-mock-trader/internal/desk"
	"nepse-mock-trader/internal/executor"
	"nepse-mock-trader/internal/market"
	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/render"
	"nepse-mock-trader/internal/report"
	"nepse-mock-trader/internal/service"
	"nepse-mock-trader/internal/store"
	"nepse-mock-trader/pkg/ta"
)

// 行情源既可以是模拟器也可以是远程推送, 两者都需要后台运行
type runnableSource interface {
	market.QuoteSource
	Run(ctx context.Context)
}

func main() {
	configPath := flag.String("config", "config", "directory containing config.yaml")
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	// 配置加载前先用默认级别
	service.InitLogger("")

	// .env 不存在时忽略
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		service.Logger.Warn("Failed to load env file", zap.String("Path", *envFile), zap.Error(err))
	}

	// 1. 配置和日志
	cfg, err := service.LoadConfig(*configPath)
	if err != nil {
		service.Logger.Fatal("Failed to load config", zap.Error(err))
	}
	service.InitLogger(cfg.App.LogLevel)
	defer service.Logger.Sync()
	logger := service.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. 保证金存储
	collateralStore, err := openStore(cfg.Collateral.StorePath)
	if err != nil {
		logger.Fatal("Failed to open collateral store", zap.String("Path", cfg.Collateral.StorePath), zap.Error(err))
	}
	defer collateralStore.Close()

	exec := executor.NewSimulatorExecutor(ctx, &executor.SimulatorConfig{
		LotSize:           cfg.Order.LotSize,
		PriceBandPercent:  cfg.Order.PriceBandPercent,
		CollateralKey:     cfg.Collateral.Key,
		InitialCollateral: decimal.NewFromFloat(cfg.Collateral.Initial),
		MaxRetries:        cfg.Collateral.MaxRetries,
	}, collateralStore, logger)

	// 3. 行情源
	source, err := newSource(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create quote source", zap.Error(err))
	}

	// 4. 渲染: 终端 + WebSocket
	hub := api.NewHub(logger)
	renderers := render.Multi{hub}
	if cfg.App.Console {
		renderers = append(renderers, render.NewConsole(os.Stdout))
	}

	// 5. 事件总线
	var publisher broker.Publisher = broker.NoopPublisher{}
	if cfg.NATS.Enabled {
		np := broker.NewNATSPublisher(&cfg.NATS, logger)
		if err := np.Connect(); err != nil {
			logger.Warn("NATS unavailable, continuing without cross-process events", zap.Error(err))
		} else {
			publisher = np
		}
	}
	defer publisher.Close()

	// 6. 交易台
	d, err := desk.New(desk.Config{
		Symbol:           cfg.Market.Symbol,
		LotSize:          cfg.Order.LotSize,
		PriceBandPercent: cfg.Order.PriceBandPercent,
		MockHolding:      cfg.Order.MockHolding,
		Mode:             model.TradeMode(cfg.Order.DefaultMode),
		CandleInterval:   cfg.Market.CandleInterval,
		ReportPath:       cfg.Report.Path,
		Origin:           cfg.NATS.ClientID,
	}, desk.Deps{
		Source:    source,
		Executor:  exec,
		Depth:     market.NewDepthSynthesizer(market.NewRand(cfg.Market.Seed)),
		Renderer:  renderers,
		Toaster:   render.NewToaster(renderers, cfg.Order.ToastTTL),
		Publisher: publisher,
		Exporter:  report.NewExcelExporter(),
		TA:        ta.NewCalculator(logger),
		Logger:    logger,
	})
	if err != nil {
		logger.Fatal("Failed to create desk", zap.Error(err))
	}
	hub.SetController(d)

	cancelSub, err := publisher.SubscribeCollateral(d.OnCollateralEvent)
	if err != nil {
		logger.Warn("Failed to subscribe to collateral updates", zap.Error(err))
	} else {
		defer cancelSub()
	}

	go source.Run(ctx)
	if err := d.Start(ctx); err != nil {
		logger.Fatal("Failed to start desk", zap.Error(err))
	}
	go d.Run(ctx)

	healthFn := func() map[string]bool {
		checkCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_, storeErr := collateralStore.Load(checkCtx, cfg.Collateral.Key)
		_, quoteOK := d.Quote()
		return map[string]bool{
			"market": quoteOK,
			"store":  storeErr == nil || errors.Is(storeErr, store.ErrNotFound),
		}
	}

	// 7. HTTP: /ws, /metrics, /healthz
	var httpServer *http.Server
	if cfg.Server.Enabled {
		httpServer = &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           api.NewRouter(hub, healthFn),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("Addr", cfg.Server.Addr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}

	// 8. gRPC 健康检查
	var grpcServer *grpc.Server
	if cfg.GRPC.Enabled {
		grpcServer, err = startHealthServer(ctx, cfg.GRPC.Addr, healthFn, logger)
		if err != nil {
			logger.Error("Failed to start gRPC health server", zap.Error(err))
		}
	}

	logger.Info("Desk running",
		zap.String("Symbol", d.Symbol()),
		zap.String("Source", cfg.Market.Source),
		zap.Bool("NATS", cfg.NATS.Enabled))

	<-ctx.Done()
	logger.Info("Shutting down")

	if cfg.Report.ExportOnExit {
		if path, err := d.Export(context.Background()); err == nil {
			logger.Info("Final report written", zap.String("Path", path))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if httpServer != nil {
		hub.Close()
		httpServer.Shutdown(shutdownCtx)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
}

func openStore(path string) (store.CollateralStore, error) {
	if path == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(path)
}

func newSource(cfg *service.Config, logger *zap.Logger) (runnableSource, error) {
	if cfg.Market.Source == "websocket" {
		return api.NewConnector(cfg.Market.FeedURL, logger), nil
	}

	catalog, err := market.LoadCatalog(cfg.Market.Catalog)
	if err != nil {
		return nil, err
	}
	return market.NewSimulator(catalog, cfg.Market.TickInterval, market.NewRand(cfg.Market.Seed), logger), nil
}

// startHealthServer 注册 grpc 健康服务并定期刷新 market 和 store 的状态
func startHealthServer(ctx context.Context, addr string, check api.HealthFunc, logger *zap.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	server := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)

	update := func() { refreshHealth(healthServer, check) }
	update()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				healthServer.Shutdown()
				return
			case <-ticker.C:
				update()
			}
		}
	}()

	go func() {
		logger.Info("gRPC health server listening", zap.String("Addr", addr))
		if err := server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return server, nil
}

// refreshHealth 每个组件一个服务名, 空服务名表示整体状态
func refreshHealth(hs *health.Server, check api.HealthFunc) {
	overall := healthpb.HealthCheckResponse_SERVING
	for name, ok := range check() {
		status := healthpb.HealthCheckResponse_SERVING
		if !ok {
			status = healthpb.HealthCheckResponse_NOT_SERVING
			overall = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(name, status)
	}
	hs.SetServingStatus("", overall)
}
