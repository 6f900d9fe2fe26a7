package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-employee-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/employee/repo"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-employee-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-employee-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-employee-go/pkg/utilities"
)

// store is what the service and the health check need from a backend.
type store interface {
	employee.Store
	Ping(ctx context.Context) error
}

func main() {
	// best-effort: a missing .env just means the real environment is used
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()
	sugar := lg.Sugar()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	sugar.Infow("starting service-employee-go", "backend", cfg.StoreBackend, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, sugar)
	if err != nil {
		sugar.Fatalf("store: %v", err)
	}
	defer closeStore()

	var revocations auth.RevocationStore
	if cfg.RedisURL != "" {
		rdb, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		revocations = auth.NewRedisRevocationStore(rdb)
	} else {
		sugar.Warn("REDIS_URL not set; refresh tokens cannot be revoked")
	}

	guard, err := auth.NewGuard(cfg.Auth, nil, revocations)
	if err != nil {
		sugar.Fatalf("credential guard: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	svc := employee.NewService(st, guard, sugar)
	svc.Metrics = collector

	handler := router.RegisterRoutes(sugar, router.Deps{
		Employees:    employee.NewHandler(svc, sugar),
		Tokens:       guard,
		LoginLimiter: router.NewLoginLimiter(cfg.LoginRatePerMinute),
		Metrics:      metrics.Handler(reg),
		Status:       collector,
		Health:       st.Ping,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
}

func openStore(ctx context.Context, cfg config.Config, sugar *zap.SugaredLogger) (store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		client, err := database.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, nil, err
		}
		r := repo.NewMongoEmployeeRepo(client.Database(cfg.Mongo.Database))
		if err := r.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return r, func() {
			if err := client.Disconnect(context.Background()); err != nil {
				sugar.Warnf("mongo disconnect failed: %v", err)
			}
		}, nil
	default:
		if cfg.MigrateOnStart {
			if err := database.RunMigrations(cfg.Database.DSN); err != nil {
				return nil, nil, err
			}
			sugar.Info("database migrations applied")
		}
		db, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return repo.NewEmployeeRepo(db), func() { _ = db.Close() }, nil
	}
}
