package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/FoxUshiha/ServerPremiumSub/internal/pkg/cache"
	metrics "github.com/FoxUshiha/ServerPremiumSub/internal/pkg/metrics/counter"
)

const (
	// QueueKey is the Redis list holding pending notices.
	QueueKey = "notify_queue"

	// DefaultDelay is the minimum pause between two deliveries.
	DefaultDelay = 1200 * time.Millisecond

	enqueueTimeout = 2 * time.Second
)

// Job is one pending notice. UserID and LogChannelID are both optional; a
// job carrying neither is dropped by the worker.
type Job struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	LogChannelID string    `json:"log_channel_id,omitempty"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Queue delivers notices through a Redis list drained by exactly one worker,
// one job at a time, with a fixed minimum delay between deliveries. Enqueue
// never waits for the worker, and a failed delivery is logged and dropped,
// never retried.
type Queue struct {
	client      *redis.Client
	messenger   Messenger
	delay       time.Duration
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewQueue creates a notification queue on the shared cache client.
func NewQueue(messenger Messenger, delay time.Duration) *Queue {
	return NewQueueWithClient(cache.GetClient(), messenger, delay)
}

// NewQueueWithClient creates a notification queue on a specific Redis client.
func NewQueueWithClient(client *redis.Client, messenger Messenger, delay time.Duration) *Queue {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Queue{
		client:    client,
		messenger: messenger,
		delay:     delay,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the single delivery worker.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return
	}

	q.running = true
	log.Info("[Notify] Starting delivery worker")

	q.wg.Add(1)
	go q.worker()

	// Flush delivery counters (Redis -> DB) every 5 seconds
	q.flushTicker = time.NewTicker(5 * time.Second)
	q.wg.Add(1)
	go q.flushWorker()
}

// Stop stops the delivery worker and waits for it to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.running {
		return
	}

	log.Info("[Notify] Stopping delivery worker...")
	if q.flushTicker != nil {
		q.flushTicker.Stop()
	}
	close(q.stopCh)
	q.running = false
	q.wg.Wait()
	log.Info("[Notify] Delivery worker stopped")
}

// Enqueue appends a notice to the queue and returns immediately. A Redis
// error drops the notice; notification is best-effort by contract and must
// never block or fail the billing path.
func (q *Queue) Enqueue(userID, logChannelID, message string) {
	job := Job{
		ID:           uuid.New().String(),
		UserID:       userID,
		LogChannelID: logChannelID,
		Message:      message,
		CreatedAt:    time.Now(),
	}

	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[Notify] Failed to marshal notice %s: %v", job.ID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	if err := q.client.LPush(ctx, QueueKey, data).Err(); err != nil {
		log.Errorf("[Notify] Failed to enqueue notice %s: %v", job.ID, err)
	}
}

// Size returns the number of pending notices.
func (q *Queue) Size(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, QueueKey).Result()
}

// worker drains the queue one job at a time.
func (q *Queue) worker() {
	defer q.wg.Done()
	log.Info("[Notify] Delivery worker started")

	ctx := context.Background()

	for {
		select {
		case <-q.stopCh:
			log.Info("[Notify] Delivery worker stopping")
			return
		default:
			result, err := q.client.BRPop(ctx, time.Second, QueueKey).Result()
			if err != nil {
				if err != redis.Nil {
					log.Errorf("[Notify] Error dequeuing notice: %v", err)
					time.Sleep(time.Second)
				}
				continue
			}
			if len(result) < 2 {
				continue
			}

			var job Job
			if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
				log.Errorf("[Notify] Dropping malformed notice: %v", err)
				continue
			}

			q.deliver(ctx, &job)

			// Outbound rate-limit courtesy between deliveries.
			select {
			case <-q.stopCh:
				return
			case <-time.After(q.delay):
			}
		}
	}
}

// flushWorker periodically flushes buffered delivery counters from Redis to DB
func (q *Queue) flushWorker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			log.Info("[Notify] Counter flush worker stopping")
			return
		case <-q.flushTicker.C:
			if err := metrics.FlushAll(q.client); err != nil {
				log.Errorf("[Notify] Counter flush error: %v", err)
			}
		}
	}
}

// deliver sends one notice. Failures are logged and swallowed.
func (q *Queue) deliver(ctx context.Context, job *Job) {
	if job.UserID != "" {
		if err := q.messenger.SendDM(ctx, job.UserID, job.Message); err != nil {
			log.Warnf("[Notify] DM to %s failed: %v", job.UserID, err)
			_ = metrics.AddNoticeFailed(q.client, job.LogChannelID)
		} else {
			_ = metrics.AddNoticeSent(q.client, job.LogChannelID)
		}
	}
	if job.LogChannelID != "" {
		if err := q.messenger.PostLog(ctx, job.LogChannelID, job.Message); err != nil {
			log.Warnf("[Notify] Log post to %s failed: %v", job.LogChannelID, err)
			_ = metrics.AddNoticeFailed(q.client, job.LogChannelID)
		} else {
			_ = metrics.AddNoticeSent(q.client, job.LogChannelID)
		}
	}
}
