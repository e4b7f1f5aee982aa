package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tillstock/tillstock-backend/pkg/db/models"
	"github.com/tillstock/tillstock-backend/pkg/logger"
)

const defaultStaleRegisterAge = 16 * time.Hour

type staleRegisterRepo interface {
	ListOpenedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]models.CashRegister, error)
}

type staleRegisterObserver interface {
	StaleRegisters(count int)
}

type StaleRegisterJobParams struct {
	Logger     *logger.Logger
	Repository staleRegisterRepo
	Observer   staleRegisterObserver
	MaxOpen    time.Duration
}

// NewStaleRegisterJob reports drawers still OPEN after MaxOpen. It never
// closes them: a close needs a counted cash figure only a person can supply.
func NewStaleRegisterJob(params StaleRegisterJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("register repository required")
	}
	maxOpen := params.MaxOpen
	if maxOpen <= 0 {
		maxOpen = defaultStaleRegisterAge
	}
	return &staleRegisterJob{
		logg:     params.Logger,
		repo:     params.Repository,
		observer: params.Observer,
		maxOpen:  maxOpen,
		now:      time.Now,
	}, nil
}

type staleRegisterJob struct {
	logg     *logger.Logger
	repo     staleRegisterRepo
	observer staleRegisterObserver
	maxOpen  time.Duration
	now      func() time.Time
}

func (j *staleRegisterJob) Name() string { return "stale-registers" }

func (j *staleRegisterJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	regs, err := j.repo.ListOpenedBefore(ctx, nil, now.Add(-j.maxOpen))
	if err != nil {
		return fmt.Errorf("stale registers: %w", err)
	}
	if j.observer != nil {
		j.observer.StaleRegisters(len(regs))
	}
	for _, reg := range regs {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cash_register_id": reg.ID,
			"branch_id":        reg.BranchID,
			"opened_by":        reg.OpenedBy,
			"open_hours":       int(now.Sub(reg.OpenedAt).Hours()),
		})
		j.logg.Warn(logCtx, "cash register left open")
	}
	return nil
}
