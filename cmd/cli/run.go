package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"foamcrm/internal/config"
	"foamcrm/internal/handlers"
	"foamcrm/internal/middleware"
	"foamcrm/internal/models"
	"foamcrm/internal/observability"
	"foamcrm/internal/services"
	"foamcrm/pkg/cloudtools"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the foamcrm API server",
	Run:   run,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func run(cmd *cobra.Command, args []string) {
	// 加载配置
	cfg := config.Load()

	// 初始化日志系统
	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	if shutdown, err := observability.SetupTracing(context.Background(), cfg); err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	} else {
		appLogger.Warnf("init tracing: %v", err)
	}

	// 初始化数据库
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	// GORM OTel 插件
	if cfg.Monitoring.Tracing.Enabled {
		_ = db.Use(gormtracing.NewPlugin())
	}
	if err := db.AutoMigrate(
		&models.Customer{},
		&models.Job{},
		&models.CompanySettings{},
		&models.Automation{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 云端工具连接器
	connector := cloudtools.NewConnector(&cloudtools.Config{
		Endpoint:      cfg.CloudTools.Endpoint(),
		Timeout:       cfg.CloudTools.Timeout,
		ClientName:    cfg.CloudTools.ClientName,
		ClientVersion: cfg.CloudTools.ClientVersion,
	}, appLogger)

	// 状态看板 + 推送
	feed := services.NewStatusFeed(appLogger)
	go feed.Run()
	board := services.NewStatusBoard(cfg.CloudSync.StatusTTL)
	board.OnChange(func(msg services.StatusMessage) {
		feed.Broadcast(services.FeedEventStatus, msg)
	})

	// 设置 Gin 模式
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, db, connector, feed, board, appLogger)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Server failed to start: %v", err)
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := connector.Close(); err != nil {
		appLogger.Warnf("close cloud tools connector: %v", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	cfg *config.Config,
	db *gorm.DB,
	connector *cloudtools.Connector,
	feed *services.StatusFeed,
	board *services.StatusBoard,
	appLogger *logrus.Logger,
) *gin.Engine {
	customerService := services.NewCustomerService(db, appLogger)
	jobService := services.NewJobService(db, appLogger)
	companyService := services.NewCompanyService(db, appLogger)
	automationService := services.NewAutomationService(db, appLogger)
	editors := services.NewEditorManager(automationService.Save, appLogger)
	syncService := services.NewCloudSyncService(
		customerService, jobService, companyService,
		connector, board, feed, appLogger,
	)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddlewareWithConfig(cfg))
	router.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		svcName := cfg.Monitoring.Tracing.ServiceName
		if svcName == "" {
			svcName = "foamcrm"
		}
		router.Use(otelgin.Middleware(svcName))
	}

	// 健康检查
	healthHandler := handlers.NewHealthHandler(db, connector, feed, appLogger)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// 指标暴露
	if cfg.Monitoring.Enabled {
		metricsPath := cfg.Monitoring.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		router.GET(metricsPath, handlers.NewMetricsHandler(feed, editors, db).GetMetrics)
	}

	// API 路由组
	api := router.Group("/api/v1")
	if cfg.Security.RBAC.Enabled {
		api.Use(middleware.AuthMiddleware(cfg))
	}
	guard := func(resource string) gin.HandlerFunc {
		if cfg.Security.RBAC.Enabled {
			return middleware.RequireResourcePermission(resource)
		}
		return func(c *gin.Context) { c.Next() }
	}
	{
		customerAPI := api.Group("/")
		customerAPI.Use(guard("customers"))
		handlers.RegisterCustomerRoutes(customerAPI, handlers.NewCustomerHandler(customerService, appLogger))

		jobAPI := api.Group("/")
		jobAPI.Use(guard("jobs"))
		handlers.RegisterJobRoutes(jobAPI, handlers.NewJobHandler(jobService, appLogger))

		companyAPI := api.Group("/")
		companyAPI.Use(guard("company"))
		handlers.RegisterCompanyRoutes(companyAPI, handlers.NewCompanyHandler(companyService, appLogger))

		automationAPI := api.Group("/")
		automationAPI.Use(guard("automations"))
		handlers.RegisterAutomationRoutes(automationAPI, handlers.NewAutomationHandler(automationService, editors, appLogger))

		cloudSyncAPI := api.Group("/")
		cloudSyncAPI.Use(guard("cloudsync"))
		handlers.RegisterCloudSyncRoutes(cloudSyncAPI, handlers.NewCloudSyncHandler(syncService, feed, connector, appLogger))
	}

	return router
}

func corsMiddlewareWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origins := "*"
		methods := "GET, POST, PUT, PATCH, DELETE, OPTIONS"
		headers := "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With"
		if cfg != nil && cfg.Security.CORS.Enabled {
			if len(cfg.Security.CORS.AllowedOrigins) > 0 {
				origins = strings.Join(cfg.Security.CORS.AllowedOrigins, ", ")
			}
			if len(cfg.Security.CORS.AllowedMethods) > 0 {
				methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
			}
			if len(cfg.Security.CORS.AllowedHeaders) > 0 {
				headers = strings.Join(cfg.Security.CORS.AllowedHeaders, ", ")
			}
		}
		c.Header("Access-Control-Allow-Origin", origins)
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Allow-Methods", methods)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
