package scheduler

import (
	"context"

	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/service"
)

// Sweeper is the part of the engine the scheduler drives.
type Sweeper interface {
	SweepExpirations(ctx context.Context) (service.SweepResult, error)
	SweepSettlements(ctx context.Context) (service.SweepResult, error)
	SweepDonationTimeouts(ctx context.Context) (service.SweepResult, error)
}

type sweepJob struct {
	name  string
	sweep func(ctx context.Context) (service.SweepResult, error)
}

func (j sweepJob) Name() string { return j.name }

func (j sweepJob) Run(ctx context.Context) error {
	_, err := j.sweep(ctx)
	return err
}

// SweepEntries returns the three engine sweeps with their configured schedules.
func SweepEntries(sweeper Sweeper, cfg *config.Config) []Entry {
	return []Entry{
		{Spec: cfg.ExpirationSweepSpec, Job: sweepJob{name: service.ExpirationSweep, sweep: sweeper.SweepExpirations}},
		{Spec: cfg.SettlementSweepSpec, Job: sweepJob{name: service.SettlementSweep, sweep: sweeper.SweepSettlements}},
		{Spec: cfg.DonationSweepSpec, Job: sweepJob{name: service.DonationSweep, sweep: sweeper.SweepDonationTimeouts}},
	}
}
