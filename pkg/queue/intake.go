// Package queue provides the Redis-backed turn intake queue. Producers push
// turn payloads onto a Redis list; the worker pops them and feeds the
// pipeline engine.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// DefaultQueue is the Redis list turns are pushed onto when the
// configuration does not override it.
const DefaultQueue = "ddsa:turns"

// Turn is the wire payload for one queued conversation turn.
type Turn struct {
	ThreadID  string    `json:"thread_id"`
	UserID    string    `json:"user_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnCallback handles one dequeued turn. A returned error is logged; the
// turn is not redelivered.
type TurnCallback func(ctx context.Context, turn Turn) error

// Options configures the intake connection.
type Options struct {
	Addr     string
	Password string
	DB       string
	Queue    string
}

// Intake consumes queued turns from Redis. Turns are processed one at a
// time in arrival order; per-thread serialization is the engine's concern,
// but a single consumer keeps same-thread turns from racing each other.
type Intake struct {
	queue  string
	client redis.UniversalClient
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// resolve applies defaults and parses the DB index.
func (o Options) resolve() (Options, int, error) {
	if o.Addr == "" {
		o.Addr = "localhost:6379"
	}

	if o.Queue == "" {
		o.Queue = DefaultQueue
	}

	db := 0

	if o.DB != "" {
		var err error

		db, err = strconv.Atoi(o.DB)
		if err != nil {
			return o, 0, fmt.Errorf("invalid db value: %w", err)
		}
	}

	return o, db, nil
}

// NewIntake connects to Redis and returns a turn intake.
func NewIntake(ctx context.Context, opts Options, logger *slog.Logger) (*Intake, error) {
	opts, db, err := opts.resolve()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With("module", "turn_intake", "queue", opts.Queue)
	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", db)

	return &Intake{
		queue:  opts.Queue,
		client: client,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

// Enqueue pushes a turn onto the intake queue.
func (i *Intake) Enqueue(ctx context.Context, turn Turn) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to marshal turn: %w", err)
	}

	err = i.client.RPush(ctx, i.queue, payload).Err()
	if err != nil {
		return fmt.Errorf("failed to push turn onto queue: %w", err)
	}

	return nil
}

// Start launches the consumer loop.
func (i *Intake) Start(ctx context.Context, callback TurnCallback) {
	i.wg.Add(1)

	go i.consume(ctx, callback)
}

func (i *Intake) consume(ctx context.Context, callback TurnCallback) {
	defer i.wg.Done()

	i.logger.InfoContext(ctx, "Starting turn consumer")

	for {
		select {
		case <-i.stopCh:
			i.logger.InfoContext(ctx, "Turn consumer stopped")

			return
		case <-ctx.Done():
			i.logger.InfoContext(ctx, "Context cancelled, stopping turn consumer")

			return
		default:
			err := i.processTurn(ctx, callback)
			if err != nil {
				i.logger.ErrorContext(ctx, "Error processing turn", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (i *Intake) processTurn(ctx context.Context, callback TurnCallback) error {
	result, err := i.client.BLPop(ctx, 1*time.Second, i.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop turn from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var turn Turn

	err = json.Unmarshal([]byte(result[1]), &turn)
	if err != nil {
		return fmt.Errorf("failed to decode turn payload: %w", err)
	}

	if turn.ThreadID == "" {
		i.logger.WarnContext(ctx, "Dropping turn without thread ID", "payload", result[1])

		return nil
	}

	err = callback(ctx, turn)
	if err != nil {
		i.logger.ErrorContext(ctx, "Turn processing failed", "thread_id", turn.ThreadID, "error", err)
	}

	return nil
}

// Stop shuts down the consumer and closes the connection.
func (i *Intake) Stop(ctx context.Context) error {
	i.logger.InfoContext(ctx, "Stopping turn intake")

	close(i.stopCh)
	i.wg.Wait()

	if i.client != nil {
		err := i.client.Close()
		if err != nil {
			i.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
		}
	}

	return nil
}
