// Package queue hands job descriptors to the external OCR worker over Redis
// and relays the worker's progress events back into the process.
//
// Three data paths share one connection: a FIFO list the worker dequeues jobs
// from, a pub/sub channel carrying small progress messages, and a keyed store
// holding full job results. Results are deliberately fetched on a separate
// read path from the progress stream; the stream stays cheap while results
// can be megabytes of manifest.
package queue

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"

	"github.com/mangabako/mangabako/pkg/config"
)

// ErrNoResult is returned when no result is stored for a job ID.
var ErrNoResult = errors.New("no result stored for job")

type Queue struct {
	client          *redis.Client
	log             logger.Logger
	queueName       string
	progressChannel string
	resultKeyPrefix string

	pubsub *redis.PubSub
}

// New constructs a Queue with its own Redis client. The connection is owned
// by the Queue; callers are expected to Ping after construction and Close on
// shutdown.
func New(cfg *config.Config) *Queue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Queue{
		client:          client,
		log:             logger.New(),
		queueName:       cfg.QueueName,
		progressChannel: cfg.ProgressChannel,
		resultKeyPrefix: cfg.ResultKeyPrefix,
	}
}

// Ping checks liveness of the queue backend.
func (q *Queue) Ping(ctx context.Context) error {
	return errors.WithStack(q.client.Ping(ctx).Err())
}

// Close tears down the progress subscription (if any) and the client.
func (q *Queue) Close() error {
	if q.pubsub != nil {
		if err := q.pubsub.Close(); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(q.client.Close())
}

// Enqueue appends a job descriptor to the worker's FIFO. Fire-and-forget from
// the request path; all later state changes arrive via the progress channel.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := q.client.RPush(ctx, q.queueName, data).Err(); err != nil {
		return errors.Wrap(err, "failed to enqueue job")
	}
	return nil
}

// Length returns the number of jobs waiting in the FIFO.
func (q *Queue) Length(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queueName).Result()
	return n, errors.WithStack(err)
}

// Result fetches a completed job's result from the keyed store. Returns
// ErrNoResult when the worker has not written one (or it has expired).
func (q *Queue) Result(ctx context.Context, jobID string) (*Result, error) {
	data, err := q.client.Get(ctx, q.resultKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrap(ErrNoResult, jobID)
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	result := &Result{}
	if err := json.Unmarshal([]byte(data), result); err != nil {
		return nil, errors.Wrap(err, "malformed job result")
	}
	return result, nil
}

// SubscribeProgress subscribes to the worker's progress channel and returns a
// channel of decoded events. Malformed messages are logged and skipped. The
// channel closes when ctx is cancelled or the Queue is closed.
func (q *Queue) SubscribeProgress(ctx context.Context) (<-chan ProgressUpdate, error) {
	if q.pubsub != nil {
		return nil, errors.New("progress channel already subscribed")
	}

	q.pubsub = q.client.Subscribe(ctx, q.progressChannel)

	// Force the subscription to be established before returning.
	if _, err := q.pubsub.Receive(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to subscribe to progress channel")
	}

	events := make(chan ProgressUpdate)
	go func() {
		defer close(events)
		for msg := range q.pubsub.Channel() {
			var update ProgressUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				q.log.Err(err).Warn("dropping malformed progress message")
				continue
			}
			select {
			case events <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (q *Queue) resultKey(jobID string) string {
	return q.resultKeyPrefix + jobID
}
