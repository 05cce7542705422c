package service

import (
	"context"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

// Maintenance runs the retention sweep and then the stale-run watchdog.
type Maintenance struct {
	sweeper  *RetentionSweeper
	watchdog *Watchdog
	now      func() time.Time
}

type MaintenanceResult struct {
	domain.SweepResult
	Reconciled int `json:"reconciled"`
}

func NewMaintenance(sweeper *RetentionSweeper, watchdog *Watchdog) *Maintenance {
	return &Maintenance{sweeper: sweeper, watchdog: watchdog, now: time.Now}
}

func (m *Maintenance) Run(ctx context.Context) (MaintenanceResult, error) {
	now := m.now()

	sweep, err := m.sweeper.Sweep(ctx, now)
	if err != nil {
		return MaintenanceResult{SweepResult: sweep}, err
	}

	reconciled, err := m.watchdog.Reconcile(ctx, now)
	return MaintenanceResult{SweepResult: sweep, Reconciled: reconciled}, err
}

// Start runs maintenance every interval until ctx is done. A zero interval
// disables the loop.
func (m *Maintenance) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logger.Info.Printf("periodic maintenance disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := m.Run(ctx); err != nil {
					logger.Error.Printf("maintenance failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	logger.Info.Printf("periodic maintenance every %s", interval)
}
