// Package scheduler runs the durable timers and cross-process handoffs of
// the acquisition pipeline on asynq: reply-abandonment deadlines, analytics
// passes, and approval-resolution nudges.
package scheduler

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"acquisition_backend/platform/config"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	return &Client{
		client: asynq.NewClient(opt),
		queue:  queue,
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleReplyDeadline arms the abandonment timer for a waiting lead.
func (c *Client) ScheduleReplyDeadline(ctx context.Context, payload ReplyDeadlinePayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewReplyDeadlineTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.ProcessAt(runAt), asynq.Queue(c.queue))
	return err
}

// ScheduleTranscriptAnalysis queues an analytics pass, immediately when
// runAt is zero or in the past.
func (c *Client) ScheduleTranscriptAnalysis(ctx context.Context, payload TranscriptAnalysisPayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewTranscriptAnalysisTask(payload)
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.Queue(c.queue)}
	if runAt.After(time.Now()) {
		opts = append(opts, asynq.ProcessAt(runAt))
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	return err
}

// EnqueueApprovalResolved hands a gate decision to the worker process.
func (c *Client) EnqueueApprovalResolved(ctx context.Context, payload ApprovalResolvedPayload) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewApprovalResolvedTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue))
	return err
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
