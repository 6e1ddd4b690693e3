package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/tablekeep/tablekeep/internal/config"
	"github.com/tablekeep/tablekeep/internal/db"
	"github.com/tablekeep/tablekeep/internal/handler"
	"github.com/tablekeep/tablekeep/internal/hub"
	"github.com/tablekeep/tablekeep/internal/job"
	"github.com/tablekeep/tablekeep/internal/lockmgr"
	"github.com/tablekeep/tablekeep/internal/middleware"
	"github.com/tablekeep/tablekeep/internal/repo"
	"github.com/tablekeep/tablekeep/internal/schedule"
	"github.com/tablekeep/tablekeep/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "tablekeep",
		Short: "tablekeep collaborative row review server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run tablekeep server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.Int("lock_ttl_seconds", cfg.Lock.TTLSeconds),
	)

	rowRepo := repo.NewRowRepo(conn)
	pageRepo := repo.NewPageRepo(conn)

	coordinator := lockmgr.New(time.Duration(cfg.Lock.TTLSeconds) * time.Second)
	eventHub := hub.NewHub(cfg.Hub.SubscriberBuffer)

	lockService := service.NewLockService(rowRepo, coordinator, eventHub)
	rowService := service.NewRowService(rowRepo, pageRepo, coordinator, eventHub)

	deps := handler.RouterDeps{
		Locks:     handler.NewLockHandler(lockService),
		Rows:      handler.NewRowHandler(rowService),
		Subscribe: handler.NewSubscribeHandler(eventHub, lockService),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewLockSweeperJob(lockService), cfg.Lock.SweepSpec); err != nil {
		return fmt.Errorf("schedule lock sweeper: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
