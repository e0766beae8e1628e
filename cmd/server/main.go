// Package main runs the collaborative queue HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crowdqueue/backend/config"
	"github.com/crowdqueue/backend/internal/auth"
	"github.com/crowdqueue/backend/internal/history"
	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/playback"
	"github.com/crowdqueue/backend/internal/realtime"
	"github.com/crowdqueue/backend/internal/scheduler"
	"github.com/crowdqueue/backend/internal/selector"
	"github.com/crowdqueue/backend/internal/sessions"
	"github.com/crowdqueue/backend/internal/spotify"
	"github.com/crowdqueue/backend/internal/tracks"
	"github.com/crowdqueue/backend/pkg/database"
	"github.com/crowdqueue/backend/pkg/redis"
	"github.com/crowdqueue/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Spotify account linking and remote player control
	spotifyRepo := spotify.NewRepository(pool)
	spotifyService := spotify.NewService(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL, spotifyRepo, logger)

	// Sessions, queues, selection and advancement
	sessionRepo := sessions.NewRepository(pool)
	trackRepo := tracks.NewRepository(pool)
	resolver := selector.New(sessionRepo, sessionRepo, trackRepo)
	sched := scheduler.New(spotifyService, resolver, trackRepo, hub, cfg.Playback.AdvanceLead, logger)

	sessionTTL := time.Duration(cfg.Session.TTLHours) * time.Hour
	sessionHandler := sessions.NewHandler(sessionRepo, jwtService, sched, hub, sessionTTL, cfg.Session.CodeLength, logger)
	trackHandler := tracks.NewHandler(trackRepo, sessionRepo, sched, hub, logger)
	playbackHandler := playback.NewHandler(sessionRepo, sched, spotifyService, logger)
	spotifyHandler := spotify.NewHandler(spotifyService, spotifyRepo, sessionRepo, logger)

	// Play history
	historyRepo := history.NewRepository(pool)
	historyHandler := history.NewHandler(historyRepo, sessionRepo, logger)

	wsValidate := func(token string) (uuid.UUID, *uuid.UUID, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, nil, "", err
		}
		return claims.SubjectID, claims.SessionID, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}

	// Guests join by session code with just a display name (public)
	router.POST("/sessions/join", sessionHandler.Join)

	// Spotify OAuth callback (state carries the admin's user ID)
	router.GET("/spotify/callback", spotifyHandler.Callback)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Spotify account linking (admins only)
		api.GET("/spotify/connect", middleware.RequireRole("admin"), spotifyHandler.Connect)
		api.GET("/spotify/status", middleware.RequireRole("admin"), spotifyHandler.Status)
		api.DELETE("/spotify/account", middleware.RequireRole("admin"), spotifyHandler.Disconnect)

		// Sessions
		api.POST("/sessions", middleware.RequireRole("admin"), sessionHandler.Create)
		api.GET("/sessions", middleware.RequireRole("admin"), sessionHandler.List)
		api.GET("/sessions/:id", sessionHandler.GetByID)
		api.GET("/sessions/:id/guests", sessionHandler.ListGuests)
		api.DELETE("/sessions/:id", middleware.RequireRole("admin"), sessionHandler.End)

		// Track search and personal queues
		api.GET("/sessions/:id/search", spotifyHandler.Search)
		api.POST("/sessions/:id/queue", trackHandler.Submit)
		api.GET("/sessions/:id/queue", trackHandler.ListQueue)
		api.DELETE("/queue/:id", trackHandler.Withdraw)

		// Playback control (session admin only)
		api.POST("/sessions/:id/playback/start", middleware.RequireRole("admin"), playbackHandler.Start)
		api.POST("/sessions/:id/playback/skip", middleware.RequireRole("admin"), playbackHandler.Skip)
		api.POST("/sessions/:id/playback/pause", middleware.RequireRole("admin"), playbackHandler.Pause)
		api.POST("/sessions/:id/playback/resume", middleware.RequireRole("admin"), playbackHandler.Resume)
		api.PUT("/sessions/:id/playback/volume", middleware.RequireRole("admin"), playbackHandler.Volume)

		// Play history
		api.GET("/sessions/:id/history", historyHandler.ListBySession)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
