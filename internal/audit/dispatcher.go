package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/josehenriquerds/celebra-mvp-sub003/internal/metrics"
)

const (
	taskTypeRecord = "audit:record"
	queueName      = "audit"

	enqueueTimeout = 2 * time.Second

	// Shutdown 時にバッファの残りを投入する猶予
	defaultDrainTimeout = 5 * time.Second
	bufferSize          = 256
)

// Dispatcher は監査イベントを Asynq キューに投入し、ワーカーで Store に保存します。
// Record はバッファに積むだけで、投入はバックグラウンドの forward が行います。
type Dispatcher struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	logger *slog.Logger
	now    func() time.Time

	pending      chan Event
	closing      chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
	drainTimeout time.Duration
}

// NewDispatcher は Dispatcher を初期化します。
func NewDispatcher(redisURL string, store *Store, logger *slog.Logger) (*Dispatcher, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, oops.Code("AUDIT_CONFIG").Wrapf(err, "failed to parse redis url")
	}

	d := &Dispatcher{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: 2,
			Queues: map[string]int{
				queueName: 1,
			},
		}),
		mux:     asynq.NewServeMux(),
		store:   store,
		logger:  logger,
		now:     time.Now,
		pending: make(chan Event, bufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),

		drainTimeout: defaultDrainTimeout,
	}
	d.mux.HandleFunc(taskTypeRecord, d.handleRecordTask)
	go d.forward()
	return d, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
// シグナルの処理は呼び出し側で行い、終了時に Shutdown を呼んでください。
func (d *Dispatcher) StartWorkers() error {
	if err := d.server.Start(d.mux); err != nil {
		return oops.Code("AUDIT_WORKER").Wrapf(err, "failed to start audit workers")
	}
	return nil
}

// Shutdown はバッファの残りを投入してから、サーバーとクライアントを閉じます。
// 2 回目以降の呼び出しは何もしません。
func (d *Dispatcher) Shutdown() {
	d.stopOnce.Do(func() {
		close(d.closing)
		<-d.done
		d.server.Shutdown()
		if err := d.client.Close(); err != nil {
			d.logger.Warn("audit client close failed", slog.Any("error", err))
		}
	})
}

// Record はイベントをバッファに積みます。呼び出し元を待たせることはありません。
// バッファが一杯、または停止処理中の場合は捨ててログとメトリクスに残します。
func (d *Dispatcher) Record(_ context.Context, ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = d.now().UTC()
	}

	select {
	case <-d.closing:
		d.drop(ev, "shutdown")
		return
	default:
	}

	select {
	case d.pending <- ev:
	default:
		d.drop(ev, "buffer_full")
	}
}

func (d *Dispatcher) forward() {
	defer close(d.done)
	for {
		select {
		case ev := <-d.pending:
			d.enqueue(context.Background(), ev)
		case <-d.closing:
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	for {
		select {
		case ev := <-d.pending:
			if ctx.Err() != nil {
				d.drop(ev, "shutdown")
				continue
			}
			d.enqueue(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) enqueue(parent context.Context, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		d.logger.Error("audit encode failed", slog.String("kind", string(ev.Kind)), slog.Any("error", err))
		return
	}

	ctx, cancel := context.WithTimeout(parent, enqueueTimeout)
	defer cancel()

	task := asynq.NewTask(taskTypeRecord, body, asynq.Queue(queueName))
	if _, err := d.client.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		d.logger.Error("audit enqueue failed",
			slog.String("kind", string(ev.Kind)),
			slog.String("event_id", ev.ID),
			slog.Any("error", err),
		)
	}
}

func (d *Dispatcher) drop(ev Event, reason string) {
	metrics.AuditDropped(reason)
	d.logger.Warn("audit event dropped",
		slog.String("reason", reason),
		slog.String("kind", string(ev.Kind)),
		slog.String("event_id", ev.ID),
	)
}

func (d *Dispatcher) handleRecordTask(ctx context.Context, task *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(task.Payload(), &ev); err != nil {
		// 壊れたペイロードは再試行しても直らない
		return errors.Join(err, asynq.SkipRetry)
	}
	if ev.ID == "" {
		return errors.Join(errors.New("missing event id in payload"), asynq.SkipRetry)
	}
	return d.store.Append(ctx, &ev)
}
