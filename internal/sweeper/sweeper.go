// Package sweeper runs migration and cleanup sweeps on a schedule,
// separate from request-serving code. Sweeps are safe alongside ad-hoc CLI
// invocations because the tier manager's advisory lock serializes them.
package sweeper

import (
	"context"
	"log"

	rcron "github.com/robfig/cron/v3"

	"github.com/stackmem/stackmem/internal/config"
	"github.com/stackmem/stackmem/internal/frame"
	"github.com/stackmem/stackmem/internal/retrieval"
	"github.com/stackmem/stackmem/internal/tier"
)

// Default schedules: migrate hourly, cleanup (tiers + audit log) daily.
const (
	MigrateSchedule = "@hourly"
	CleanupSchedule = "@daily"
)

// Sweeper owns the background schedule.
type Sweeper struct {
	manager *tier.Manager
	frames  *frame.Store
	audit   *retrieval.AuditStore
	cfg     func() config.Config // re-read each run so reloads apply
	cron    *rcron.Cron
}

// New creates a Sweeper. cfg is called at the start of every sweep so a
// hot-reloaded configuration takes effect without a restart.
func New(manager *tier.Manager, frames *frame.Store, audit *retrieval.AuditStore, cfg func() config.Config) *Sweeper {
	return &Sweeper{manager: manager, frames: frames, audit: audit, cfg: cfg}
}

// Start registers the schedules and begins running them until ctx is done.
func (s *Sweeper) Start(ctx context.Context) error {
	s.cron = rcron.New()

	if _, err := s.cron.AddFunc(MigrateSchedule, func() { s.runMigrate(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(CleanupSchedule, func() { s.runCleanup(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	log.Printf("[sweep] scheduled: migrate %s, cleanup %s", MigrateSchedule, CleanupSchedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule, waiting for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// RunMigrateNow executes one migration sweep outside the schedule.
func (s *Sweeper) RunMigrateNow(ctx context.Context) (tier.MigrateResult, error) {
	return s.manager.Migrate(ctx, s.cfg().TierConfig())
}

func (s *Sweeper) runMigrate(ctx context.Context) {
	res, err := s.manager.Migrate(ctx, s.cfg().TierConfig())
	if err != nil {
		log.Printf("[sweep] migrate failed: %v", err)
		return
	}
	if res.Skipped {
		log.Printf("[sweep] migrate skipped: another sweep holds the lock")
		return
	}
	log.Printf("[sweep] migrate: %d hot->warm, %d warm->cold, %d errors",
		res.HotToWarm, res.WarmToCold, len(res.Errors))
	for _, e := range res.Errors {
		log.Printf("[sweep] migrate entry error (will retry next sweep): %s", e)
	}
}

func (s *Sweeper) runCleanup(ctx context.Context) {
	cfg := s.cfg()

	deleted, err := s.manager.Cleanup(ctx, cfg.Tiers.CleanupRetentionDays, cfg.TierConfig())
	if err != nil {
		log.Printf("[sweep] cleanup failed: %v", err)
	} else if len(deleted) > 0 {
		for _, id := range deleted {
			if err := s.frames.DeleteSubtree(ctx, id); err != nil {
				log.Printf("[sweep] cleanup delete frames for %s: %v", id, err)
			}
		}
		log.Printf("[sweep] cleanup: deleted %d cold traces", len(deleted))
	}

	pruned, err := s.audit.PruneOlderThan(ctx, cfg.Retrieval.AuditRetentionDays)
	if err != nil {
		log.Printf("[sweep] audit prune failed: %v", err)
	} else if pruned > 0 {
		log.Printf("[sweep] audit prune: removed %d entries", pruned)
	}
}
