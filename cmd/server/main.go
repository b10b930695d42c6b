package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rl1809/pantry/internal/adapter/handler"
	"github.com/rl1809/pantry/internal/adapter/storage"
	"github.com/rl1809/pantry/internal/config"
	"github.com/rl1809/pantry/internal/core/service"
	"github.com/rl1809/pantry/internal/port"
)

const grpcServiceName = "pantry.v1.PantryService"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	log, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, log); err != nil {
		log.Error("pantry stopped", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer backend.close()

	opts := []service.Option{
		service.WithLogger(log),
		service.WithExpiringWindow(cfg.ExpiringWindow),
		service.WithSaveInterval(cfg.SaveInterval),
	}
	if backend.guard != nil {
		opts = append(opts, service.WithIdempotencyGuard(backend.guard))
	}
	pantry := service.NewPantry(backend.repo, opts...)

	if err := pantry.Load(ctx); err != nil {
		return err
	}

	// Start persistence worker
	workerCtx, stopWorker := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pantry.Run(workerCtx)
	}()

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.LoggingInterceptor(log.Named("grpc"))))
	handler.RegisterPantryServiceServer(grpcServer, handler.NewGRPCHandler(pantry, log.Named("grpc")))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		stopWorker()
		wg.Wait()
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", zap.Error(err))
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.NewHTTPHandler(pantry, log.Named("http")).Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Final save happens when the worker sees the cancelled context
	stopWorker()
	wg.Wait()
	log.Info("pantry saved")
	return nil
}

type backend struct {
	repo  port.PantryRepository
	guard port.IdempotencyGuard
	close func()
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (*backend, error) {
	b := &backend{close: func() {}}
	var closers []func()

	var rdb *redis.Client
	if cfg.Storage.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Storage.RedisAddr,
			PoolSize: 20,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		log.Info("connected to redis", zap.String("addr", cfg.Storage.RedisAddr))
		closers = append(closers, func() { rdb.Close() })

		redisAdapter := storage.NewRedisAdapter(rdb, "", cfg.IdempotencyTTL)
		b.guard = redisAdapter
		if cfg.Storage.Driver == config.DriverRedis {
			b.repo = redisAdapter
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("running without persistence")
	case config.DriverFile:
		b.repo = storage.NewFileAdapter(cfg.Storage.FilePath)
		log.Info("using snapshot file", zap.String("path", cfg.Storage.FilePath))
	case config.DriverMySQL:
		db, err := sql.Open("mysql", cfg.Storage.MySQLDSN)
		if err != nil {
			runAll(closers)
			return nil, fmt.Errorf("open mysql: %w", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		closers = append(closers, func() { db.Close() })

		if err := db.PingContext(ctx); err != nil {
			runAll(closers)
			return nil, fmt.Errorf("ping mysql: %w", err)
		}
		mysqlAdapter := storage.NewMySQLAdapter(db)
		if err := mysqlAdapter.EnsureSchema(ctx); err != nil {
			runAll(closers)
			return nil, err
		}
		log.Info("connected to mysql")
		b.repo = mysqlAdapter
	case config.DriverPostgres:
		db, err := gorm.Open(postgres.Open(cfg.Storage.PostgresDSN), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err != nil {
			runAll(closers)
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { sqlDB.Close() })
		}
		pgAdapter := storage.NewPostgresAdapter(db)
		if err := pgAdapter.Migrate(ctx); err != nil {
			runAll(closers)
			return nil, err
		}
		log.Info("connected to postgres")
		b.repo = pgAdapter
	}

	b.close = func() { runAll(closers) }
	return b, nil
}

func runAll(fns []func()) {
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
