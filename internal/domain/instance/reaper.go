package instance

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

func (s *Service) runReaper(ctx context.Context, interval time.Duration) {
	defer close(s.reaperDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Reap(s.now())
		}
	}
}

// Reap frees instances that were created but never launched, stored or
// referenced and are older than the reaper ttl. It returns how many were
// removed.
func (s *Service) Reap(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready || s.reapTTL <= 0 {
		return 0
	}

	var stale []*Instance
	for _, inst := range s.registry.All() {
		if reapable(inst, now, s.reapTTL) {
			stale = append(stale, inst)
		}
	}
	for _, inst := range stale {
		s.registry.Remove(inst)
		s.logger.Debug("Reaped idle instance",
			zap.String("widget_id", inst.widgetID),
			zap.String("instance_id", inst.id),
			zap.Duration("age", now.Sub(inst.createdAt)),
		)
	}
	if len(stale) > 0 {
		s.metrics.AddReaped(len(stale))
		s.refreshGauges()
	}
	return len(stale)
}

func reapable(inst *Instance, now time.Time, ttl time.Duration) bool {
	return inst.status == types.StatusCreated &&
		inst.pid == 0 &&
		!inst.stored &&
		inst.ref == 0 &&
		inst.pending == 0 &&
		now.Sub(inst.createdAt) > ttl
}
