// Package users は auth.UserStore の実装（Redis とメモリ）を提供します。
package users

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/auth"
)

const (
	userKeyPrefix  = "user:"
	emailKeyPrefix = "user:email:"

	// WATCH が競合したときの再試行回数
	maxTxRetries = 5
)

// RedisStore はユーザーを Redis に保存します。
// user:<id> に JSON、user:email:<email> に id を持ちます。
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

var _ auth.UserStore = (*RedisStore)(nil)

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// FindByEmail はメールアドレスでユーザーを探します。
func (s *RedisStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	id, err := s.rdb.Get(ctx, emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrUserNotFound
		}
		return nil, oops.Code("USER_STORE_READ").With("email", email).Wrap(err)
	}
	return s.FindByID(ctx, id)
}

// FindByID は ID でユーザーを取得します。
func (s *RedisStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrUserNotFound
		}
		return nil, oops.Code("USER_STORE_READ").With("user_id", id).Wrap(err)
	}
	var user auth.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, oops.Code("USER_STORE_DECODE").With("user_id", id).Wrap(err)
	}
	return &user, nil
}

// Create はユーザーを登録します。ID が空なら採番し、作成日時を設定します。
// メールアドレスが登録済みの場合は auth.ErrEmailTaken を返します。
func (s *RedisStore) Create(ctx context.Context, user *auth.User) error {
	if user == nil {
		return oops.Code("USER_INVALID").Errorf("user is nil")
	}
	user.Email = auth.NormalizeEmail(user.Email)
	if user.Email == "" {
		return oops.Code("USER_INVALID").Errorf("email is required")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := s.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	ok, err := s.rdb.SetNX(ctx, emailKey(user.Email), user.ID, 0).Result()
	if err != nil {
		return oops.Code("USER_STORE_WRITE").With("email", user.Email).Wrap(err)
	}
	if !ok {
		return auth.ErrEmailTaken
	}

	if err := s.save(ctx, s.rdb, user); err != nil {
		// メールの予約だけが残らないように戻す
		_ = s.rdb.Del(context.WithoutCancel(ctx), emailKey(user.Email)).Err()
		return err
	}
	return nil
}

// UpdatePasswordHash はパスワードハッシュを置き換えます。
func (s *RedisStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.update(ctx, id, func(user *auth.User) {
		user.PasswordHash = hash
	})
}

// AddRole はイベントのロールを追加します。同じイベントのロールがあれば置き換えます。
func (s *RedisStore) AddRole(ctx context.Context, id string, role auth.Role) error {
	return s.update(ctx, id, func(user *auth.User) {
		user.Roles = upsertRole(user.Roles, role)
	})
}

// update は WATCH で楽観ロックしながらユーザーを書き換えます。
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*auth.User)) error {
	key := userKey(id)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return auth.ErrUserNotFound
			}
			return oops.Code("USER_STORE_READ").With("user_id", id).Wrap(err)
		}
		var user auth.User
		if err := json.Unmarshal(data, &user); err != nil {
			return oops.Code("USER_STORE_DECODE").With("user_id", id).Wrap(err)
		}
		mutate(&user)
		user.UpdatedAt = s.now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			return s.save(ctx, pipe, &user)
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return oops.Code("USER_STORE_CONFLICT").With("user_id", id).Errorf("too many concurrent updates")
}

func (s *RedisStore) save(ctx context.Context, cmd redis.Cmdable, user *auth.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return oops.Code("USER_STORE_ENCODE").Wrap(err)
	}
	if err := cmd.Set(ctx, userKey(user.ID), payload, 0).Err(); err != nil {
		return oops.Code("USER_STORE_WRITE").With("user_id", user.ID).Wrap(err)
	}
	return nil
}

func upsertRole(roles []auth.Role, role auth.Role) []auth.Role {
	for i, r := range roles {
		if r.EventID == role.EventID {
			roles[i] = role
			return roles
		}
	}
	return append(roles, role)
}

func userKey(id string) string {
	return userKeyPrefix + id
}

func emailKey(email string) string {
	return emailKeyPrefix + email
}
