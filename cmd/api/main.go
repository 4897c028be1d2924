package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vantagemedia/adserver/internal/config"
	"github.com/vantagemedia/adserver/internal/handler"
	"github.com/vantagemedia/adserver/internal/middleware"
	"github.com/vantagemedia/adserver/internal/migration"
	"github.com/vantagemedia/adserver/internal/repository"
	"github.com/vantagemedia/adserver/internal/repository/memory"
	"github.com/vantagemedia/adserver/internal/service"
	pkgjwt "github.com/vantagemedia/adserver/pkg/jwt"
	pkglogger "github.com/vantagemedia/adserver/pkg/logger"
	pkgredis "github.com/vantagemedia/adserver/pkg/redis"

	"github.com/redis/go-redis/v9"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	pkglogger.Init()
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	pkglogger.InitStructured(env)
	pkglogger.Info("APP_ENV=%s, loaded env files: %v", env, dotenvFiles)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	config.LogResolved(cfg)

	// MySQL catalog, with an in-memory fallback so the delivery API
	// still serves in local setups without a database.
	var (
		adRepo     repository.AdRepository
		zoneRepo   repository.ZoneRepository
		eventRepo  repository.EventRepository
		abtestRepo repository.ABTestRepository
	)
	db, err := initDB(cfg)
	if err != nil {
		pkglogger.Warn("Failed to connect to database: %v (using in-memory catalog)", err)
		catalog := memory.NewCatalog()
		adRepo, zoneRepo, eventRepo, abtestRepo = catalog, catalog, catalog, catalog
	} else {
		pkglogger.Info("Connected to MySQL")
		if err := migration.Run(db); err != nil {
			pkglogger.Warn("Migration warning: %v", err)
		}
		adRepo = repository.NewAdRepository(db)
		zoneRepo = repository.NewZoneRepository(db)
		eventRepo = repository.NewEventRepository(db)
		abtestRepo = repository.NewABTestRepository(db)
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
		)
		if err != nil {
			pkglogger.Warn("Failed to connect to Redis: %v (continuing without Redis)", err)
			redisClient = nil
		} else {
			pkglogger.Info("Connected to Redis")
		}
	}

	jwtManager := pkgjwt.NewManager(
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.ExpiresIn)*time.Second,
	)

	selector := service.NewSelector(rand.NewSource(time.Now().UnixNano()))
	eligibility := service.NewEligibilityService(adRepo, zoneRepo)
	metering := service.NewMeteringService(adRepo, redisClient)
	delivery := service.NewDeliveryService(eligibility, selector, abtestRepo, adRepo, zoneRepo, metering)
	adService := service.NewAdService(adRepo, abtestRepo, eventRepo)
	zoneService := service.NewZoneService(zoneRepo, adRepo)

	deliveryHandler := handler.NewDeliveryHandler(delivery)
	adHandler := handler.NewAdHandler(adService)
	zoneHandler := handler.NewZoneHandler(zoneService)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics())

	corsConfig := cors.DefaultConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/zones/:slug/ad", deliveryHandler.GetAdForZone)
		v1.GET("/zones/:slug/ads", deliveryHandler.GetAdsForZone)
		v1.POST("/events/impression", deliveryHandler.RecordImpression)
		v1.POST("/events/click", deliveryHandler.RecordClick)
		v1.GET("/click/:ref", deliveryHandler.ClickRedirect)
	}

	admin := v1.Group("/admin")
	admin.Use(middleware.JWTAuth(jwtManager), middleware.RequireAdmin())
	{
		admin.GET("/ads", adHandler.List)
		admin.POST("/ads", adHandler.Create)
		admin.GET("/ads/:id", adHandler.Get)
		admin.PUT("/ads/:id", adHandler.Update)
		admin.DELETE("/ads/:id", adHandler.Delete)
		admin.POST("/ads/:id/activate", adHandler.Activate)
		admin.POST("/ads/:id/pause", adHandler.Pause)
		admin.POST("/ads/:id/resume", adHandler.Resume)
		admin.GET("/ads/:id/stats", adHandler.Stats)
		admin.GET("/ads/:id/abtest", adHandler.GetABTest)
		admin.PUT("/ads/:id/abtest", adHandler.UpsertABTest)
		admin.DELETE("/ads/:id/abtest", adHandler.DeleteABTest)

		admin.GET("/zones", zoneHandler.List)
		admin.POST("/zones", zoneHandler.Create)
		admin.GET("/zones/:id", zoneHandler.Get)
		admin.PUT("/zones/:id", zoneHandler.Update)
		admin.DELETE("/zones/:id", zoneHandler.Delete)
		admin.GET("/zones/:id/assignments", zoneHandler.ListAssignments)
		admin.POST("/zones/:id/assignments", zoneHandler.CreateAssignment)
		admin.PUT("/assignments/:id", zoneHandler.UpdateAssignment)
		admin.DELETE("/assignments/:id", zoneHandler.DeleteAssignment)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	pkglogger.Info("Server listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// initDB opens the MySQL connection and applies pool settings
func initDB(cfg *config.Config) (*gorm.DB, error) {
	mysqlCfg, err := mysqldriver.ParseDSN(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	if mysqlCfg.Params == nil {
		mysqlCfg.Params = map[string]string{}
	}
	mysqlCfg.Params["time_zone"] = "'+00:00'"

	logMode := gormlogger.Warn
	if cfg.IsDevelopment() {
		logMode = gormlogger.Info
	}
	db, err := gorm.Open(mysql.Open(mysqlCfg.FormatDSN()), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(logMode),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	return db, nil
}
