package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
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
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	// .env 可选，本地开发用
	_ = godotenv.Load()

	// 读取配置文件（默认 ./config.yml）
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	cfg := config.Load()
	applyFlagOverrides(cfg)

	if err := config.InitLogger(cfg); err != nil {
		logrus.Warnf("init logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// OpenTelemetry 初始化（可选）
	if shutdown, err := observability.SetupTracing(context.Background(), cfg); err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	} else {
		appLogger.Warnf("init tracing: %v", err)
	}

	// 连接数据库
	gormLogLevel := logger.Warn
	if cfg.Log.Level == "debug" {
		gormLogLevel = logger.Info
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		if cfg.Database.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
		}
	}
	// GORM OTel 插件
	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(gormtracing.NewPlugin()); err != nil {
			appLogger.Warnf("gorm tracing plugin: %v", err)
		}
	}

	if err := db.AutoMigrate(
		&models.Customer{},
		&models.Job{},
		&models.CompanySettings{},
		&models.Automation{},
	); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 云端工具连接器（MCP 代理）
	connector := cloudtools.NewConnector(&cloudtools.Config{
		Endpoint:      cfg.CloudTools.Endpoint(),
		Timeout:       cfg.CloudTools.Timeout,
		ClientName:    cfg.CloudTools.ClientName,
		ClientVersion: cfg.CloudTools.ClientVersion,
	}, appLogger)

	// 状态看板 + WebSocket 推送
	feed := services.NewStatusFeed(appLogger)
	go feed.Run()
	board := services.NewStatusBoard(cfg.CloudSync.StatusTTL)
	board.OnChange(func(msg services.StatusMessage) {
		feed.Broadcast(services.FeedEventStatus, msg)
	})

	// 初始化业务服务
	customerService := services.NewCustomerService(db, appLogger)
	jobService := services.NewJobService(db, appLogger)
	companyService := services.NewCompanyService(db, appLogger)
	automationService := services.NewAutomationService(db, appLogger)
	editors := services.NewEditorManager(automationService.Save, appLogger)
	syncService := services.NewCloudSyncService(
		customerService, jobService, companyService,
		connector, board, feed, appLogger,
	)

	// 初始化 Gin
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddlewareWithConfig(cfg))
	r.Use(middleware.RateLimitMiddleware(cfg))
	if cfg.Monitoring.Tracing.Enabled {
		svcName := cfg.Monitoring.Tracing.ServiceName
		if svcName == "" {
			svcName = "foamcrm"
		}
		r.Use(otelgin.Middleware(svcName))
	}

	// 健康检查
	healthHandler := handlers.NewHealthHandler(db, connector, feed, appLogger)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// 指标暴露
	if cfg.Monitoring.Enabled {
		metricsPath := cfg.Monitoring.MetricsPath
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		metricsHandler := handlers.NewMetricsHandler(feed, editors, db)
		r.GET(metricsPath, metricsHandler.GetMetrics)
	}

	// API 路由组。RBAC 未启用时单租户部署直接放行。
	api := r.Group("/api/v1")
	if cfg.Security.RBAC.Enabled {
		api.Use(middleware.AuthMiddleware(cfg))
	}
	guard := func(resource string) gin.HandlerFunc {
		if cfg.Security.RBAC.Enabled {
			return middleware.RequireResourcePermission(resource)
		}
		return func(c *gin.Context) { c.Next() }
	}

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

	// 启动服务器
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}
	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := connector.Close(); err != nil {
		appLogger.Warnf("close cloud tools connector: %v", err)
	}
	appLogger.Info("Server exited")
}

// applyFlagOverrides 命令行参数优先于环境变量，环境变量优先于配置文件
func applyFlagOverrides(cfg *config.Config) {
	var (
		dbHost, dbPortStr, dbUser, dbPass, dbName, dbSSLMode string
		srvHost, srvPortStr                                  string
	)
	flagSet := flag.NewFlagSet("server", flag.ContinueOnError)
	flagSet.StringVar(&dbHost, "db-host", getenvDefault("DB_HOST", cfg.Database.Host), "database host")
	flagSet.StringVar(&dbPortStr, "db-port", getenvDefault("DB_PORT", strconv.Itoa(cfg.Database.Port)), "database port")
	flagSet.StringVar(&dbUser, "db-user", getenvDefault("DB_USER", cfg.Database.User), "database user")
	flagSet.StringVar(&dbPass, "db-pass", getenvDefault("DB_PASSWORD", cfg.Database.Password), "database password")
	flagSet.StringVar(&dbName, "db-name", getenvDefault("DB_NAME", cfg.Database.Name), "database name")
	flagSet.StringVar(&dbSSLMode, "db-sslmode", getenvDefault("DB_SSLMODE", cfg.Database.SSLMode), "sslmode (disable, require, verify-ca, verify-full)")
	flagSet.StringVar(&srvHost, "host", getenvDefault("FOAMCRM_HOST", cfg.Server.Host), "server host (listen)")
	flagSet.StringVar(&srvPortStr, "port", getenvDefault("FOAMCRM_PORT", strconv.Itoa(cfg.Server.Port)), "server port")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		logrus.Warnf("parse flags: %v", err)
	}

	cfg.Database.Host = firstNonEmpty(dbHost, cfg.Database.Host)
	cfg.Database.User = firstNonEmpty(dbUser, cfg.Database.User)
	cfg.Database.Password = firstNonEmpty(dbPass, cfg.Database.Password)
	cfg.Database.Name = firstNonEmpty(dbName, cfg.Database.Name)
	cfg.Database.SSLMode = firstNonEmpty(dbSSLMode, cfg.Database.SSLMode)
	cfg.Server.Host = firstNonEmpty(srvHost, cfg.Server.Host)
	if p, err := strconv.Atoi(dbPortStr); err == nil && p > 0 {
		cfg.Database.Port = p
	}
	if p, err := strconv.Atoi(srvPortStr); err == nil && p > 0 {
		cfg.Server.Port = p
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// corsMiddlewareWithConfig CORS 中间件，未配置时放开跨域
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
