// Package task runs the background jobs. The only job today is the periodic
// status check that snapshots who is online to a JSON file.
package task

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/deddy77/Moun-project/dto"
	"github.com/deddy77/Moun-project/service"
)

const TypeStatusCheck = "status:check"

type statusSnapshot struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Online      []dto.OnlineStatus `json:"online"`
}

// StatusChecker writes the set of currently-online users to a file once a
// minute. The file feeds an external dashboard that polls it.
type StatusChecker struct {
	svc  *service.Service
	path string
}

func NewStatusChecker(svc *service.Service, path string) *StatusChecker {
	return &StatusChecker{svc: svc, path: path}
}

func (c *StatusChecker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	statuses, err := c.svc.OnlineSnapshot(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(statusSnapshot{
		GeneratedAt: time.Now().UTC(),
		Online:      statuses,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Run starts the scheduler that enqueues the status check every minute and the
// worker that processes it. It blocks until either component stops.
func Run(redisURL string, checker *StatusChecker) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	scheduler := asynq.NewScheduler(opt, nil)
	if _, err := scheduler.Register("@every 1m", asynq.NewTask(TypeStatusCheck, nil)); err != nil {
		return err
	}

	srv := asynq.NewServer(opt, asynq.Config{Concurrency: 1})
	mux := asynq.NewServeMux()
	mux.Handle(TypeStatusCheck, checker)

	errc := make(chan error, 2)
	go func() {
		if err := scheduler.Run(); err != nil {
			errc <- err
		}
	}()
	go func() {
		if err := srv.Run(mux); err != nil {
			errc <- err
		}
	}()
	log.Printf("status checker running, writing to %s", checker.path)
	return <-errc
}
