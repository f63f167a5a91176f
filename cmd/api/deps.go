package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/audit"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/auth"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/config"
	"github.com/josehenriquerds/celebra-mvp-sub003/internal/users"
)

// deps はサーバーと CLI が共有する依存関係です。
type deps struct {
	rdb        *redis.Client
	users      auth.UserStore
	credential *auth.Credential
	recorder   audit.Recorder
	dispatcher *audit.Dispatcher
}

// newDeps は設定に従って依存関係を組み立てます。
// Redis はユーザーストアか監査ログで必要なときだけ接続します。
func newDeps(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{
		credential: auth.NewCredential(auth.HashConfig{
			Cost:    cfg.EffectiveBcryptCost(),
			Workers: cfg.HashWorkers,
		}),
		recorder: audit.Discard,
	}

	if cfg.UserStore == config.UserStoreRedis || cfg.AuditEnabled {
		rdb, err := newRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		d.rdb = rdb
	}

	if cfg.UserStore == config.UserStoreRedis {
		d.users = users.NewRedisStore(d.rdb)
	} else {
		logger.Warn("using in-memory user store; users are lost on restart")
		d.users = users.NewMemoryStore()
	}

	if cfg.AuditEnabled {
		dispatcher, err := setupAudit(cfg, d.rdb, logger)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.dispatcher = dispatcher
		d.recorder = dispatcher
	}
	return d, nil
}

// Close は保持している接続を閉じます。
func (d *deps) Close() {
	if d.dispatcher != nil {
		d.dispatcher.Shutdown()
	}
	if d.rdb != nil {
		_ = d.rdb.Close()
	}
}

func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG").Wrapf(err, "invalid REDIS_URL")
	}
	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, oops.Code("REDIS_UNAVAILABLE").With("addr", opt.Addr).Wrapf(err, "redis ping failed")
	}
	return rdb, nil
}
