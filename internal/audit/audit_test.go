package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, retention int) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour, retention), mr
}

func TestStoreAppendAndGet(t *testing.T) {
	store, mr := newTestStore(t, 10)
	ctx := context.Background()

	ev := &Event{ID: "ev-1", Kind: KindLoginFailed, IP: "10.0.0.1", At: time.Now().UTC()}
	require.NoError(t, store.Append(ctx, ev))

	got, err := store.Get(ctx, "ev-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindLoginFailed, got.Kind)
	assert.Equal(t, "10.0.0.1", got.IP)

	assert.True(t, mr.TTL(eventKey("ev-1")) > 0)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreAppendRejectsInvalid(t *testing.T) {
	store, _ := newTestStore(t, 10)
	assert.Error(t, store.Append(context.Background(), nil))
	assert.Error(t, store.Append(context.Background(), &Event{Kind: KindLogout}))
}

func TestStoreRecentNewestFirstAndTrimmed(t *testing.T) {
	store, mr := newTestStore(t, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Append(ctx, &Event{ID: fmt.Sprintf("ev-%d", i), Kind: KindAccessDenied}))
	}

	events, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "ev-5", events[0].ID)
	assert.Equal(t, "ev-4", events[1].ID)
	assert.Equal(t, "ev-3", events[2].ID)

	// 期限切れのイベントは一覧から外れる
	mr.Del(eventKey("ev-4"))
	events, err = store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-5", events[0].ID)

	none, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDispatcherHandleRecordTask(t *testing.T) {
	store, mr := newTestStore(t, 10)
	d, err := NewDispatcher("redis://"+mr.Addr()+"/0", store, nil)
	require.NoError(t, err)
	t.Cleanup(d.Shutdown)

	body, err := json.Marshal(Event{ID: "ev-42", Kind: KindCSRFRejected, Reason: "mismatch"})
	require.NoError(t, err)

	require.NoError(t, d.handleRecordTask(context.Background(), asynq.NewTask(taskTypeRecord, body)))

	events, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "mismatch", events[0].Reason)
}

func TestDispatcherSkipsBrokenPayload(t *testing.T) {
	store, mr := newTestStore(t, 10)
	d, err := NewDispatcher("redis://"+mr.Addr()+"/0", store, nil)
	require.NoError(t, err)
	t.Cleanup(d.Shutdown)

	err = d.handleRecordTask(context.Background(), asynq.NewTask(taskTypeRecord, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))

	err = d.handleRecordTask(context.Background(), asynq.NewTask(taskTypeRecord, []byte(`{"kind":"logout"}`)))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestDispatcherRecordSurvivesUnreachableRedis(t *testing.T) {
	store, _ := newTestStore(t, 10)
	d, err := NewDispatcher("redis://127.0.0.1:1/0", store, nil)
	require.NoError(t, err)
	d.drainTimeout = 100 * time.Millisecond

	d.Record(context.Background(), Event{Kind: KindLogout})

	done := make(chan struct{})
	go func() {
		d.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Shutdown did not finish")
	}
}

// silentListener は接続を受け付けるだけで何も返さない TCP サーバーです。
func silentListener(t *testing.T) (addr string, closeAll func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	return ln.Addr().String(), func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, conn := range conns {
			_ = conn.Close()
		}
	}
}

func TestDispatcherRecordDoesNotWaitForRedis(t *testing.T) {
	addr, closeAll := silentListener(t)
	store, _ := newTestStore(t, 10)
	d, err := NewDispatcher("redis://"+addr+"/0", store, nil)
	require.NoError(t, err)
	d.drainTimeout = 100 * time.Millisecond
	// 後に登録したものから実行されるので、先に接続を切ってから Shutdown する
	t.Cleanup(d.Shutdown)
	t.Cleanup(closeAll)

	// バッファを溢れさせても呼び出し元は待たされない
	started := time.Now()
	for i := 0; i < bufferSize+10; i++ {
		d.Record(context.Background(), Event{Kind: KindCSRFRejected, Reason: "missing_header"})
	}
	assert.Less(t, time.Since(started), 50*time.Millisecond)
}

func TestDispatcherRecordAfterShutdown(t *testing.T) {
	store, mr := newTestStore(t, 10)
	d, err := NewDispatcher("redis://"+mr.Addr()+"/0", store, nil)
	require.NoError(t, err)
	d.Shutdown()
	d.Shutdown()

	assert.NotPanics(t, func() {
		d.Record(context.Background(), Event{Kind: KindLogout})
	})
	assert.Empty(t, d.pending)
}

func TestDispatcherForwardsToQueue(t *testing.T) {
	store, mr := newTestStore(t, 10)
	d, err := NewDispatcher("redis://"+mr.Addr()+"/0", store, nil)
	require.NoError(t, err)

	d.Record(context.Background(), Event{Kind: KindLoginFailed, IP: "10.0.0.9"})
	d.Shutdown()

	// ワーカーは起動していないので、タスクは audit キューに残っている
	assert.True(t, mr.Exists("asynq:{audit}:pending"))
}

func TestNewDispatcherValidation(t *testing.T) {
	_, err := NewDispatcher("redis://127.0.0.1:6379/0", nil, nil)
	assert.Error(t, err)

	store, _ := newTestStore(t, 10)
	_, err = NewDispatcher("::not a url::", store, nil)
	assert.Error(t, err)
}

func TestDiscardRecorder(t *testing.T) {
	assert.NotPanics(t, func() {
		Discard.Record(context.Background(), Event{Kind: KindLogout})
	})
}
