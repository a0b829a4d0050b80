package push

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/MelvinVerLia/SiLaporRT-sub001/config"
	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/domain"
)

// TaskTypeSend is the asynq task type a push worker subscribes to.
const TaskTypeSend = "push:send"

// AsynqProvider enqueues push jobs onto a Redis-backed asynq queue. The
// worker retries on its own; a failed enqueue is reported like any other
// provider error.
type AsynqProvider struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	log      *slog.Logger
}

func NewAsynqProvider(cfg config.Asynq, log *slog.Logger) (*AsynqProvider, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	return &AsynqProvider{
		client:   asynq.NewClient(opt),
		queue:    cfg.Queue,
		maxRetry: cfg.MaxRetry,
		log:      log,
	}, nil
}

func (p *AsynqProvider) Send(ctx context.Context, sub *domain.PushSubscription, payload domain.PushPayload) error {
	body, err := encodeJob(sub, payload, time.Now())
	if err != nil {
		return fmt.Errorf("encode push job: %w", err)
	}

	info, err := p.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeSend, body),
		asynq.Queue(p.queue),
		asynq.MaxRetry(p.maxRetry),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue push job: %w", err)
	}
	p.log.DebugContext(ctx, "push job queued", "task_id", info.ID, "queue", info.Queue, "user", sub.UserID)
	return nil
}

func (p *AsynqProvider) Close() error {
	return p.client.Close()
}
