package tasks

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"voicematch/internal/config"
)

// Scheduling lives in asynq: the scheduler fires the ticks on their cadences
// and the server runs them on its own worker pool, never on request-handling
// goroutines. Each tick carries its own deadline, so a hung tick is abandoned
// and the next one fires on time.

func NewServer(redisOpt asynq.RedisClientOpt, cfg config.Config) *asynq.Server {
	return asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			Logger: asynqLogger{},
		},
	)
}

func NewMux(h *Handlers) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeMatchTick, h.HandleMatchTick)
	mux.HandleFunc(TypeCleanupTick, h.HandleCleanupTick)
	mux.HandleFunc(TypeContinuityTick, h.HandleContinuityTick)
	mux.HandleFunc(TypeNotifyUser, h.HandleNotifyUser)
	return mux
}

// NewScheduler registers the periodic ticks. Disabling matching drops the
// match and cleanup entries; continuity keeps running so already-paired calls
// are unaffected.
func NewScheduler(redisOpt asynq.RedisClientOpt, cfg config.Config) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger: asynqLogger{},
	})

	register := func(interval time.Duration, taskType string, timeout time.Duration) error {
		spec := fmt.Sprintf("@every %s", interval)
		_, err := scheduler.Register(spec, asynq.NewTask(taskType, nil),
			asynq.Timeout(timeout), asynq.MaxRetry(0))
		if err != nil {
			return fmt.Errorf("register %s: %w", taskType, err)
		}
		return nil
	}

	if cfg.MatchingEnabled {
		if err := register(cfg.MatchInterval, TypeMatchTick, cfg.TickTimeout); err != nil {
			return nil, err
		}
		if err := register(cfg.CleanupInterval, TypeCleanupTick, cfg.TickTimeout); err != nil {
			return nil, err
		}
	} else {
		slog.Warn("matching disabled, match and cleanup ticks not scheduled")
	}

	if err := register(cfg.ContinuityInterval, TypeContinuityTick, cfg.TickTimeout); err != nil {
		return nil, err
	}

	return scheduler, nil
}

// asynqLogger routes asynq's internal logging through slog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) { slog.Debug(fmt.Sprint(args...)) }
func (asynqLogger) Info(args ...any)  { slog.Info(fmt.Sprint(args...)) }
func (asynqLogger) Warn(args ...any)  { slog.Warn(fmt.Sprint(args...)) }
func (asynqLogger) Error(args ...any) { slog.Error(fmt.Sprint(args...)) }
func (asynqLogger) Fatal(args ...any) { slog.Error(fmt.Sprint(args...)) }
