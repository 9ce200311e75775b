package hub

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// startScheduledSweep runs the same registry wellness check the
// disconnect-triggered sweep runs (§4.3) on a fixed interval, closing the
// gap the spec itself names: "the hub does not attempt to notify
// callers... those callers must rely on their own timeout." A registered
// connection is evicted when the wellnessCheck write to it fails; a peer
// that keeps its socket open accepts the write and stays registered.
func (h *Hub) startScheduledSweep(ctx context.Context) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DurationJob(30*time.Second),
		gocron.NewTask(func() {
			if h.State() != Open {
				return
			}
			h.wellnessSweep()
		}),
	)
	if err != nil {
		return nil, err
	}

	s.Start()
	go func() {
		<-ctx.Done()
		_ = s.Shutdown()
	}()
	return s, nil
}
