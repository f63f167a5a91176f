package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

const (
	eventKeyPrefix = "audit:event:"
	recentKey      = "audit:recent"
)

// Store は監査イベントを Redis に保存します。
type Store struct {
	rdb       *redis.Client
	ttl       time.Duration
	retention int64
}

// NewStore は Store を作成します。retention は audit:recent に残す件数です。
func NewStore(rdb *redis.Client, ttl time.Duration, retention int) *Store {
	if retention <= 0 {
		retention = 1000
	}
	return &Store{
		rdb:       rdb,
		ttl:       ttl,
		retention: int64(retention),
	}
}

// Append はイベントを保存し、最新一覧の先頭に追加します。
func (s *Store) Append(ctx context.Context, ev *Event) error {
	if ev == nil {
		return oops.Code("AUDIT_INVALID").Errorf("event is nil")
	}
	if ev.ID == "" {
		return oops.Code("AUDIT_INVALID").Errorf("event id is required")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return oops.Code("AUDIT_ENCODE").Wrap(err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, eventKey(ev.ID), payload, s.ttl)
	pipe.LPush(ctx, recentKey, ev.ID)
	pipe.LTrim(ctx, recentKey, 0, s.retention-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("AUDIT_WRITE").With("event_id", ev.ID).Wrap(err)
	}
	return nil
}

// Get はイベントを取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, id string) (*Event, error) {
	data, err := s.rdb.Get(ctx, eventKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, oops.Code("AUDIT_READ").With("event_id", id).Wrap(err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, oops.Code("AUDIT_DECODE").With("event_id", id).Wrap(err)
	}
	return &ev, nil
}

// Recent は新しい順に最大 n 件のイベントを返します。期限切れのものは飛ばします。
func (s *Store) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	ids, err := s.rdb.LRange(ctx, recentKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, oops.Code("AUDIT_READ").Wrap(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = eventKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, oops.Code("AUDIT_READ").Wrap(err)
	}

	events := make([]Event, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func eventKey(id string) string {
	return eventKeyPrefix + id
}
