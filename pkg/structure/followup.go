package structure

import (
	"context"
	"time"

	"github.com/robinjoseph08/golib/logger"
)

// scheduleFollowUp hands off the after-mutation work without blocking the
// caller. With refreshRequested the library gets a full rescan and the
// monitor stays paused until the scan finishes; without it the monitor
// resumes after a short grace delay, long enough for change notifications
// from the mutation itself to drain.
//
// Must be called while holding svc.mu, after svc.pause(). The caller gets
// its synchronous response before any of this runs; failures here are logged
// since there's nobody left to return them to.
func (svc *Service) scheduleFollowUp(ctx context.Context, refreshRequested bool) {
	epoch := svc.pauseEpoch
	log := logger.FromContext(ctx)

	go func() {
		ctx := log.WithContext(context.Background())

		if refreshRequested {
			err := svc.revalidator.Revalidate(ctx)
			if err == nil {
				// The scan owns the monitor now; it resumes it when done.
				return
			}
			log.Err(err).Error("revalidation request error")
			// No scan is coming, so fall back to the delayed resume rather
			// than leave the monitor paused forever.
		}

		time.Sleep(svc.config.MonitorResumeDelay)

		svc.mu.Lock()
		defer svc.mu.Unlock()

		if svc.pauseEpoch != epoch {
			// A newer mutation has paused the monitor since; its follow-up
			// decides when to resume.
			return
		}
		svc.pauser.Resume()
	}()
}
