package job

import (
	"context"

	"github.com/tablekeep/tablekeep/internal/service"
)

// LockSweeperJob turns lazy lock expiry into broadcast events so idle
// subscribers learn about abandoned edits without polling.
type LockSweeperJob struct {
	locks *service.LockService
}

func NewLockSweeperJob(locks *service.LockService) *LockSweeperJob {
	return &LockSweeperJob{locks: locks}
}

func (j *LockSweeperJob) Name() string {
	return "lock_sweeper"
}

func (j *LockSweeperJob) Run(ctx context.Context) error {
	if j.locks == nil {
		return nil
	}
	j.locks.ExpireStale(ctx)
	return nil
}
