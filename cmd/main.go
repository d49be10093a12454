package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"artjournal-backend/internal/config"
	"artjournal-backend/internal/handler"
	"artjournal-backend/internal/imagedata"
	"artjournal-backend/internal/imagegen"
	"artjournal-backend/internal/metrics"
	"artjournal-backend/internal/platform"
	"artjournal-backend/internal/recall"
	"artjournal-backend/internal/service"
	"artjournal-backend/internal/storage"
	"artjournal-backend/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const logPrefix = "[ArtJournal]"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	settings := config.Settings()
	m := metrics.New(prometheus.DefaultRegisterer)

	// 初始化存储与平台客户端
	store := service.NewStore(cfg.Storage)
	platformClient := platform.NewClient(cfg.Platform, cfg.Bot.AccountID, store)

	scheduler := recall.NewScheduler(store, platformClient, recall.Options{
		Grace:    cfg.Recall.GracePeriod,
		Window:   cfg.Recall.Window,
		Limit:    cfg.Recall.Limit,
		Commands: cfg.Recall.Commands,
		BotID:    cfg.Bot.AccountID,
		Observe:  func(s recall.State) { m.ObserveRecall(string(s)) },
	})

	proxy := config.Proxy(settings)
	downloader := imagedata.NewDownloader(config.RequestTimeout(proxy), proxy, cfg.Generation.DownloadCache)

	// 初始化服务
	imageService := service.NewImageService(service.Deps{
		Settings:      settings,
		DefaultModel:  cfg.Generation.DefaultModel,
		Clients:       imagegen.NewRegistry(settings, logPrefix),
		Images:        imagedata.NewResolver(downloader.Download, logPrefix),
		Sender:        platformClient,
		Recalls:       scheduler,
		Store:         store,
		Metrics:       m,
		MaxConcurrent: cfg.Generation.MaxConcurrent,
	})

	// 初始化处理器
	imageHandler := handler.NewImageHandler(imageService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if ds, ok := store.(*storage.DiskStorage); ok && cfg.Storage.BackupInterval > 0 {
		go runBackups(ctx, ds, cfg.Storage.BackupInterval)
	}

	// 创建路由
	router := setupRouter(ctx, cfg, imageHandler)

	// 创建HTTP服务器
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// 启动服务器
	go func() {
		logger.Infof("服务器启动在端口 %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("服务器启动失败: %v", err)
		}
	}()

	// 等待信号优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务器正在关闭...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("服务器关闭失败: %v", err)
	}
	if err := scheduler.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("撤回任务未全部退出: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("存储关闭失败: %v", err)
	}
	logger.Info("服务器已关闭")
}

func runBackups(ctx context.Context, ds *storage.DiskStorage, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ds.Backup(); err != nil {
				logger.Errorf("定时备份失败: %v", err)
			}
		}
	}
}

func setupRouter(ctx context.Context, cfg *config.Config, imageHandler *handler.ImageHandler) *gin.Engine {
	// 设置gin模式
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 中间件
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS配置
	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API路由
	api := router.Group("/api")
	if cfg.RateLimit.Enabled {
		api.Use(handler.RateLimiter(ctx, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst))
	}
	{
		api.POST("/image/generate", imageHandler.Generate)
		api.GET("/chat/:chat_id/messages", imageHandler.GetMessages)
		api.DELETE("/recall/:chat_id", imageHandler.CancelRecalls)
	}

	return router
}
