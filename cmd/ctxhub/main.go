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

	"github.com/ctxhub/ctxhub/internal/ai"
	"github.com/ctxhub/ctxhub/internal/audit"
	"github.com/ctxhub/ctxhub/internal/chunker"
	"github.com/ctxhub/ctxhub/internal/config"
	"github.com/ctxhub/ctxhub/internal/db"
	"github.com/ctxhub/ctxhub/internal/embedcache"
	"github.com/ctxhub/ctxhub/internal/filestore"
	"github.com/ctxhub/ctxhub/internal/handler"
	"github.com/ctxhub/ctxhub/internal/job"
	"github.com/ctxhub/ctxhub/internal/middleware"
	"github.com/ctxhub/ctxhub/internal/pkg/jwt"
	"github.com/ctxhub/ctxhub/internal/repo"
	"github.com/ctxhub/ctxhub/internal/schedule"
	"github.com/ctxhub/ctxhub/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ctxhub",
		Short: "ctxhub context package registry",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ctxhub server",
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

	var tokenUser, tokenEmail string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an API token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			if tokenUser == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ttl := time.Duration(cfg.JWTTTLHours) * time.Hour
			token, err := jwt.GenerateToken(tokenUser, tokenEmail, []byte(cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "optional email claim")
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	packageRepo := repo.NewPackageRepo(conn)
	versionRepo := repo.NewVersionRepo(conn)
	fileRepo := repo.NewFileRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	vectorRepo := repo.NewVectorRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)
	connectionRepo := repo.NewConnectionRepo(conn)
	syncJobRepo := repo.NewSyncJobRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	embedder := ai.NewEmbedder(aiProvider, cfg.AI.Model)
	manager := ai.NewManager(embedder, ai.ManagerConfig{
		Timeout:    cfg.AI.Timeout,
		Dimension:  cfg.AI.Dimension,
		MaxRetries: cfg.AI.MaxRetries,
	})
	// DB cache inside, LRU outside: a hot entry is served from memory
	// without touching Postgres.
	cached := embedcache.WrapDBCacheToEmbedder(manager, cacheRepo)
	cached = embedcache.WrapLruCacheToEmbedder(cached, cfg.AI.CacheSize,
		time.Duration(cfg.AI.CacheTTLHours)*time.Hour)

	auditor := audit.NewLogger()
	textChunker := chunker.New(chunker.NewDefaultTokenizer())

	packageService := service.NewPackageService(packageRepo, versionRepo, fileRepo, chunkRepo, store)
	ingestService := service.NewIngestService(packageRepo, versionRepo, fileRepo, chunkRepo,
		vectorRepo, cached, textChunker, store, auditor, cfg.Limits, cfg.AI)
	lifecycleService := service.NewLifecycleService(packageRepo, versionRepo, fileRepo, auditor)
	syncService := service.NewSyncService(connectionRepo, syncJobRepo, packageRepo,
		packageService, ingestService, fileRepo, chunkRepo, store, auditor, cfg.Sync)
	searchService := service.NewSearchService(versionRepo, vectorRepo, cached, auditor)

	deps := handler.RouterDeps{
		Packages:  handler.NewPackageHandler(packageService),
		Versions:  handler.NewVersionHandler(packageService, lifecycleService),
		Ingest:    handler.NewIngestHandler(ingestService),
		Sync:      handler.NewSyncHandler(syncService),
		Search:    handler.NewSearchHandler(searchService),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewSyncRepairJob(syncJobRepo, cfg.Sync.StaleAfterMinutes), cfg.Schedule.SyncRepairSpec); err != nil {
		return fmt.Errorf("schedule sync repair: %w", err)
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, 30), cfg.Schedule.CacheCleanupSpec); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewSyncJobCleanupJob(syncJobRepo, 0), cfg.Schedule.CacheCleanupSpec); err != nil {
		return fmt.Errorf("schedule sync job cleanup: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
