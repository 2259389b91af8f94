package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/maxlogvn/AiCMR/internal/config"
	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/handler"
	"github.com/maxlogvn/AiCMR/internal/model"
	"github.com/maxlogvn/AiCMR/internal/service"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.App.Development() {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	ctx := context.Background()

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := pg.EnsureSchema(ctx); err != nil {
		log.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	codec := service.NewTokenCodec(
		cfg.Auth.SecretKey,
		cfg.Auth.AccessTokenTTL,
		cfg.Auth.RefreshTokenTTL,
		cfg.Auth.ResetTokenTTL,
	)
	mailer := service.NewLogMailer(log)
	marker := service.NewRedisResetMarker(rdb)
	authSvc := service.NewAuthService(pg, codec, mailer, marker, cfg.Auth, log)
	csrfSvc := service.NewCSRFService(rdb, cfg.Auth.SecretKey, cfg.Auth.SessionTTL, cfg.Auth.CSRFRelaxed, log)
	limiter := service.NewRateLimiter(rdb, cfg.Auth.RateWindow, log)
	policy := service.DefaultRankPolicy()
	userSvc := service.NewUserService(pg, policy, log)
	postSvc := service.NewPostService(pg, policy, log)

	if !cfg.App.Development() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.CORSMiddleware(cfg.App.AllowedOrigins))

	registerRoutes(router, cfg, authSvc, csrfSvc, limiter, userSvc, postSvc, pg, rdb)

	log.Info("server starting", "addr", cfg.HTTP.Addr, "env", cfg.App.Env)
	if err := router.Run(cfg.HTTP.Addr); err != nil {
		log.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func registerRoutes(
	router *gin.Engine,
	cfg config.Config,
	authSvc *service.AuthService,
	csrfSvc *service.CSRFService,
	limiter *service.RateLimiter,
	userSvc *service.UserService,
	postSvc *service.PostService,
	pg *db.Postgres,
	rdb redis.UniversalClient,
) {
	authHandler := handler.NewAuthHandler(authSvc, limiter, cfg.Auth.LoginRateLimit)
	csrfHandler := handler.NewCSRFHandler(csrfSvc)
	userHandler := handler.NewUserHandler(userSvc)
	postHandler := handler.NewPostHandler(postSvc)
	healthHandler := handler.NewHealthHandler(pg, rdb)

	requireAuth := handler.AuthMiddleware(authSvc)
	csrf := handler.CSRFMiddleware(csrfSvc)

	router.GET("/", handler.Root(version))
	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	v1.GET("/csrf-token", csrfHandler.Token)

	auth := v1.Group("/auth")
	auth.POST("/register", handler.RateLimitMiddleware(limiter, "register", 10), csrf, authHandler.Register)
	auth.POST("/login", handler.RateLimitMiddleware(limiter, "login", 20), csrf, authHandler.Login)
	auth.POST("/refresh", handler.RateLimitMiddleware(limiter, "refresh", 60), authHandler.Refresh)
	auth.POST("/logout", requireAuth, csrf, authHandler.Logout)
	auth.POST("/forgot-password", handler.RateLimitMiddleware(limiter, "forgot", 5), authHandler.ForgotPassword)
	auth.POST("/reset-password", handler.RateLimitMiddleware(limiter, "reset", 10), csrf, authHandler.ResetPassword)
	auth.GET("/me", requireAuth, authHandler.Me)

	users := v1.Group("/users", requireAuth, handler.RequireMinRank(model.ModeratorRank))
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.PATCH("/:id", csrf, userHandler.Update)

	posts := v1.Group("/posts")
	posts.GET("", postHandler.ListPublished)
	posts.GET("/:slug", postHandler.GetBySlug)
	v1.GET("/admin/posts", requireAuth, handler.RequireMinRank(model.ModeratorRank), postHandler.ListAll)
	posts.POST("", requireAuth, handler.RequireMinRank(model.MemberRank), csrf, postHandler.Create)
	posts.PATCH("/:id", requireAuth, csrf, postHandler.Update)
	posts.DELETE("/:id", requireAuth, csrf, postHandler.Delete)
}
