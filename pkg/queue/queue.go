package queue

import (
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/easy-diagrams/pkg/config"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

// NewServer builds the worker server. Render tasks go to "critical" so that a
// user waiting on an edit is served before the background sweep.
func NewServer(cfg *config.RedisConfig, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}

	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)
}

// NewScheduler registers periodic tasks in UTC.
func NewScheduler(cfg *config.RedisConfig) *asynq.Scheduler {
	return asynq.NewScheduler(redisOpt(cfg), &asynq.SchedulerOpts{
		Location: time.UTC,
	})
}

func NewInspector(cfg *config.RedisConfig) *asynq.Inspector {
	return asynq.NewInspector(redisOpt(cfg))
}
