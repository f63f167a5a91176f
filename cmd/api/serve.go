package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/config"
)

const shutdownTimeout = 10 * time.Second

// newServeCmd は API サーバーを起動するサブコマンドを作成します。
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "API サーバーを起動します",
		Long: `認証 API サーバーを起動します。設定は環境変数と .env.local から読み込みます。
SIGINT / SIGTERM を受けると処理中のリクエストを待ってから終了します。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := newDeps(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", slog.Any("error", err))
		return err
	}
	defer d.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, d, logger),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting api server",
			slog.String("addr", srv.Addr),
			slog.String("mode", cfg.GinMode),
			slog.Int("bcrypt_cost", d.credential.Cost()),
			slog.String("user_store", cfg.UserStore),
			slog.Bool("audit", cfg.AuditEnabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("api server stopped", slog.Any("error", err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		return err
	}
	logger.Info("stopped")
	return nil
}

// sessionSecret は署名鍵を返します。開発時に未設定なら起動ごとの乱数を使います。
func sessionSecret(cfg *config.Config, logger *slog.Logger) []byte {
	if cfg.SessionSecret != "" {
		return []byte(cfg.SessionSecret)
	}
	logger.Warn("SESSION_SECRET is not set; using an ephemeral secret, sessions will not survive restarts")
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return buf
}
