package app

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/telemetry"
)

var ErrWorkerDied = errors.New("media worker died")

const DefaultDeathGrace = 2 * time.Second

// Monitor terminates the process when the media worker dies. The worker is
// never restarted.
type Monitor struct {
	Worker core.Worker
	Grace  time.Duration
	Exit   func(code int)
}

func NewMonitor(w core.Worker) *Monitor {
	return &Monitor{Worker: w, Grace: DefaultDeathGrace, Exit: os.Exit}
}

// Run blocks until ctx is done or the worker dies. On death it logs, waits
// Grace for in-flight logging to flush, then calls Exit(1).
func (m *Monitor) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err := <-m.Worker.Died():
		telemetry.WorkerDied()
		log.Error().Err(err).Str("module", "app.monitor").Str("worker", m.Worker.ID()).Dur("grace", m.Grace).Msg("media worker died, exiting")
		time.Sleep(m.Grace)
		m.Exit(1)
		return ErrWorkerDied
	}
}
