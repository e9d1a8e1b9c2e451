package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/cloudnote/cloudnote/backend/go-services/handlers"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/config"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/database"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/draft"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/kvstore"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/note/guard"
	notehandler "github.com/cloudnote/cloudnote/backend/go-services/internal/note/handler"
	noteservice "github.com/cloudnote/cloudnote/backend/go-services/internal/note/service"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/share"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/storage"
	"github.com/cloudnote/cloudnote/backend/go-services/internal/tag"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/logger"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/metrics"
	"github.com/cloudnote/cloudnote/backend/go-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Storage.Endpoint != "")

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Share-Password")
	r.Use(cors.New(corsCfg))

	// Connect to Redis early so both the store and the rate-limiter can use it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	// Optional global rate limiter (per-user when authenticated, otherwise per-IP)
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Pick the note store: Redis when available, then MongoDB, then memory.
	var store kvstore.Store
	var mongoClient *mongo.Client
	switch {
	case redisClient != nil:
		store = kvstore.NewRedis(redisClient)
		logger.Infof("using Redis-backed note store")
	case cfg.MongoDB.URI != "":
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			mongoClient, errConn = database.ConnectMongo(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.Timeout)
			if errConn == nil {
				break
			}
			logger.Warnf("attempt %d/%d: failed to connect to MongoDB: %v", attempt, maxAttempts, errConn)
			if attempt < maxAttempts {
				time.Sleep(backoff)
				backoff *= 2
			}
		}
		if errConn != nil {
			logger.Warnf("could not connect to MongoDB after %d attempts, falling back to memory store: %v", maxAttempts, errConn)
			store = kvstore.NewMemory()
		} else {
			defer func() { _ = mongoClient.Disconnect(context.Background()) }()
			store = kvstore.NewMongo(mongoClient.Database(cfg.MongoDB.Database).Collection("kv"))
			logger.Infof("using MongoDB-backed note store")
		}
	default:
		store = kvstore.NewMemory()
		logger.Warnf("no Redis or MongoDB configured, notes are stored in memory only")
	}

	g := guard.New(store)
	noteSvc := noteservice.New(g)
	tagSvc := tag.NewService(store, g)
	shareSvc := share.NewService(store, g)

	// Draft buffer backs the editor endpoints of co-located tooling; opening
	// it here also surfaces bad paths at startup rather than first use.
	drafts, err := draft.Open(cfg.Notes.DraftDBPath, cfg.Notes.MaxHistory)
	if err != nil {
		logger.Fatalf("failed to open draft buffer at %s: %v", cfg.Notes.DraftDBPath, err)
	}
	defer drafts.Close()

	// Optional MinIO-backed image storage
	var imageStore *storage.MinIOStorage
	if cfg.Storage.Endpoint != "" {
		imageStore, err = storage.NewMinIOStorage(&storage.MinIOConfig{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
		})
		if err != nil {
			logger.Warnf("image storage unavailable: %v", err)
			imageStore = nil
		}
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint, returns 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		deps["store"] = store != nil
		if redisClient != nil {
			deps["redis"] = redisClient.Ping(c.Request.Context()).Err() == nil
			if !deps["redis"] {
				ready = false
			}
		}
		deps["drafts"] = drafts != nil
		deps["images"] = imageStore != nil

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	// Auth: admin password login issuing JWTs
	handlers.NewAuthHandler(cfg).Register(r.Group("/"))
	handlers.RegisterSwagger(r)

	// Public share resolver stays outside auth
	share.RegisterPublicShareRoutes(r, shareSvc)

	// Everything under /api requires a bearer token
	verifier := middleware.NewJWTVerifier(cfg)
	api := r.Group("/", middleware.AuthMiddleware(verifier))
	notehandler.RegisterNoteRoutes(api, noteSvc)
	tag.RegisterTagRoutes(api, tagSvc)
	share.RegisterShareRoutes(api, shareSvc)
	if imageStore != nil {
		handlers.NewImageHandler(imageStore).Register(api)
	}

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting cloudnote service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
