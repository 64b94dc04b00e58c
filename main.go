package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/webident/loginza/handlers"
	"github.com/webident/loginza/internal/avatar"
	"github.com/webident/loginza/internal/config"
	"github.com/webident/loginza/internal/database"
	"github.com/webident/loginza/internal/identity"
	"github.com/webident/loginza/internal/models"
	"github.com/webident/loginza/internal/returnpath"
	"github.com/webident/loginza/internal/sessions"
	"github.com/webident/loginza/internal/tokens"
	"github.com/webident/loginza/internal/usermap"
	"github.com/webident/loginza/internal/users"
	"github.com/webident/loginza/internal/widget"
	"github.com/webident/loginza/pkg/logger"
	"github.com/webident/loginza/pkg/metrics"
	"github.com/webident/loginza/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// initialize logging (can be controlled with LOG_LEVEL env: debug|info|warn|error|fatal)
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: mongo=%v redis=%v minio=%v site=%s",
		cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "", cfg.Loginza.SiteDomain)

	r := gin.New()

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple — production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Global middlewares: logging + recovery
	r.Use(gin.Logger(), gin.Recovery())

	// shared runtime vars used by handlers/readiness
	var (
		identitySvc *identity.Store
		mapSvc      *usermap.Service
		sessionsSvc *sessions.Service
		pathStore   returnpath.Store
	)

	// Connect to Redis early so the rate-limiter and return-path store can use it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":" + cfg.Redis.Port, Password: cfg.Redis.Password})
		if err := redisClient.Ping(context.Background()).Err(); err == nil {
			sessions.SetBlacklistClient(redisClient)
			logger.Infof("Connected to Redis: %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		} else {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
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

	// Return-path store: Redis when available, otherwise process-local
	if redisClient != nil {
		pathStore = returnpath.NewRedisStore(redisClient, "returnpath:", time.Hour, cfg.Loginza.AmnesiaPaths)
	} else {
		pathStore = returnpath.NewMemoryStore(cfg.Loginza.AmnesiaPaths)
	}

	// Basic health endpoint
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness endpoint — return 200 only when critical dependencies are available
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		// storage readiness: identity/mapping services require MongoDB
		if identitySvc == nil || mapSvc == nil {
			deps["storage"] = false
			ready = false
		} else {
			deps["storage"] = true
		}
		deps["sessions"] = sessionsSvc != nil
		if sessionsSvc == nil {
			ready = false
		}
		// Redis is optional: the memory return-path store covers its absence
		deps["redis"] = redisClient != nil

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	ctx := context.Background()

	// Prefer Redis-based sessions when available (fast, in-memory)
	if redisClient != nil {
		srepo := sessions.NewRedisRepository(redisClient, "session:")
		sessionsSvc = sessions.NewService(srepo)
		logger.Infof("Using Redis for session storage")
	}

	// MongoDB-backed repositories (identities, maps, users + fallback sessions)
	var usersRepo users.Repository
	if cfg.MongoDB.URI != "" {
		// Retry/backoff when connecting to MongoDB to tolerate startup races
		const maxAttempts = 5
		backoff := time.Second
		var client *mongo.Client
		var errConn error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			client, errConn = database.ConnectMongo(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout)
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
			logger.Warnf("could not connect to MongoDB after %d attempts: %v", maxAttempts, errConn)
		} else {
			defer func() { _ = client.Disconnect(ctx) }()
			db := client.Database(cfg.MongoDB.Database)
			counters := db.Collection("counters")
			identityRepo := identity.NewMongoRepository(db.Collection("identities"))
			mapRepo := usermap.NewMongoRepository(db.Collection("usermaps"), counters)
			usersRepo = users.NewMongoRepository(db.Collection("users"), counters)

			identitySvc = identity.NewStore(identityRepo, mapRepo)

			// avatar storage is optional; without MinIO photo fields are ignored
			var avatars usermap.AvatarSetter
			if cfg.MinIO.Endpoint != "" {
				if storage, err := avatar.NewMinIOStorage(cfg.MinIO); err != nil {
					logger.Warnf("avatar storage unavailable: %v", err)
				} else {
					avatars = avatar.NewService(storage, usersRepo)
				}
			}

			mapSvc = usermap.NewService(mapRepo, usersRepo, identityRepo, avatars, cfg.Loginza.DefaultEmail)
			mapSvc.Subscribe(usermap.ObserverFunc(func(ctx context.Context, req *usermap.RequestInfo, m *models.UserMap) {
				// host applications hook welcome email / onboarding here
				from := ""
				if req != nil {
					from = req.RemoteAddr
				}
				logger.Infof("new account mapping %d for user %d (identity=%s, from=%s)", m.ID, m.UserID, m.Identity, from)
			}))

			// only create Mongo-backed session repo when a session service isn't already set
			if sessionsSvc == nil {
				srepo := sessions.NewMongoRepository(db.Collection("sessions"))
				sessionsSvc = sessions.NewService(srepo)
			}
		}
	}

	verifier := tokens.NewVerifier(cfg.JWT.Secret)

	// Register handlers if services are available
	if identitySvc != nil && mapSvc != nil && sessionsSvc != nil {
		h := handlers.NewAuthHandler(cfg, identitySvc, mapSvc, usersRepo, sessionsSvc, pathStore)
		h.Register(r.Group("/"), verifier)
	} else {
		logger.Warnf("auth handlers not registered because identity/mapping/session services are unavailable")
	}
	wh := handlers.NewWidgetHandler(widget.NewRenderer(cfg.Loginza), pathStore)
	wh.Register(r.Group("/"))
	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1")
	api.GET("/me", middleware.AuthMiddleware(verifier), func(c *gin.Context) {
		claims, _ := c.Get("claims")
		if usersRepo != nil {
			if cm, ok := claims.(map[string]interface{}); ok {
				if sub, ok := cm["sub"].(string); ok {
					if id, err := strconv.ParseInt(sub, 10, 64); err == nil {
						if u, err := usersRepo.GetByID(c.Request.Context(), id); err == nil && u != nil {
							c.JSON(http.StatusOK, gin.H{"user": u})
							return
						}
					}
				}
			}
		}
		// fallback: return claims
		c.JSON(http.StatusOK, gin.H{"claims": claims})
	})

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("Starting loginza service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
