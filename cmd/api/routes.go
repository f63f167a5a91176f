package main

import (
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/auth"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/config"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/session"
)

// newRouter はミドルウェアとルーティングを設定した gin エンジンを作成します。
func newRouter(cfg *config.Config, d *deps, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	secret := sessionSecret(cfg, logger)
	sessOpts := session.Options{
		MaxAge:      cfg.SessionMaxAge(),
		IdleTimeout: cfg.SessionIdleTimeout(),
		Secure:      cfg.IsRelease(),
	}
	router.Use(session.Middleware(session.NewCookieStore(secret, sessOpts)))
	router.Use(cors.New(corsConfig(cfg)))

	setupRoutes(router, cfg, d, logger, session.NewStore(sessOpts), string(secret))
	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins()
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
		"X-CSRF-Token", // CSRF保護用ヘッダー
		"X-XSRF-Token",
	}
	corsConfig.ExposeHeaders = []string{"X-CSRF-Token", "Retry-After"}
	return corsConfig
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "celebra-auth-api",
		"version": version,
	})
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, d *deps, logger *slog.Logger, sessions *session.Store, secret string) {
	router.GET("/health", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	csrf := auth.NewCSRFGuard(auth.CSRFOptions{
		Secret:   secret,
		Secure:   cfg.IsRelease(),
		Logger:   logger,
		Recorder: d.recorder,
	})
	guard := auth.NewAccessGuard(sessions, auth.AccessGuardOptions{
		Logger:   logger,
		Recorder: d.recorder,
	})
	manager := auth.NewManager(auth.ManagerOptions{
		Users:      d.users,
		Sessions:   sessions,
		Credential: d.credential,
		Limiter: auth.LimiterConfig{
			MaxAttempts:  cfg.LoginMaxAttempts,
			Window:       cfg.LoginWindow(),
			LockDuration: cfg.LoginLockDuration(),
		},
		Logger:   logger,
		Recorder: d.recorder,
	})

	// 状態を変更する API はすべてダブルサブミットの CSRF 検証を通す
	api := router.Group("/api", csrf.Verify())
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.GET("/csrf", csrf.HandleToken)
			authRoutes.POST("/login", manager.Login)
			authRoutes.POST("/register", manager.Register)

			loggedIn := authRoutes.Group("", guard.RequireLogin())
			loggedIn.POST("/logout", manager.Logout)
			loggedIn.POST("/password", manager.ChangePassword)
			loggedIn.GET("/session", manager.Session)
			loggedIn.GET("/events", manager.Events)
			loggedIn.POST("/select-event", manager.SelectEvent)
		}

		// イベント単位の API はここにぶら下げる
		api.GET("/events/:eventId", guard.RequireEvent("eventId"), manager.EventScope("eventId"))
	}

	router.GET("/events/:eventId", guard.RequireEvent("eventId"), manager.EventScope("eventId"))
}
