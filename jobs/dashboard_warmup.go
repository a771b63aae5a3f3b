package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/dashboard"
)

// DashboardWarmupJob pre-populates the dashboard caches for active regions
// so the first morning request does not pay the rollup cost.
type DashboardWarmupJob struct {
	Dashboard *dashboard.Service
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	clock     func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(dashboardSvc *dashboard.Service, pool *pgxpool.Pool, logger *slog.Logger) *DashboardWarmupJob {
	return &DashboardWarmupJob{
		Dashboard: dashboardSvc,
		Pool:      pool,
		Logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	logger.Info("starting dashboard warmup")

	regionIDs := payload.RegionIDs
	if len(regionIDs) == 0 {
		var err error
		regionIDs, err = j.activeRegions(ctx)
		if err != nil {
			logger.Error("load warmup regions", slog.Any("error", err))
			return err
		}
	}
	if len(regionIDs) == 0 {
		logger.Info("no regions discovered for warmup")
		return nil
	}

	now := j.now()
	for _, regionID := range regionIDs {
		if err := j.warmRegion(ctx, regionID, now); err != nil {
			logger.Error("warm region", slog.Int64("region_id", regionID), slog.Any("error", err))
			return err
		}
	}
	logger.Info("completed dashboard warmup",
		slog.Int("regions", len(regionIDs)),
		slog.Duration("duration", time.Since(now)))
	return nil
}

func (j *DashboardWarmupJob) warmRegion(ctx context.Context, regionID int64, now time.Time) error {
	// Bound each region so a slow rollup cannot stall the whole run.
	regionCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := j.Dashboard.RegionSummary(regionCtx, regionID, dashboard.WindowMonth, now); err != nil {
		return err
	}
	if _, err := j.Dashboard.RegionSummary(regionCtx, regionID, dashboard.WindowWeek, now); err != nil {
		return err
	}
	_, err := j.Dashboard.AgentRanking(regionCtx, regionID, now)
	return err
}

func (j *DashboardWarmupJob) activeRegions(ctx context.Context) ([]int64, error) {
	if j.Pool == nil {
		return nil, nil
	}
	rows, err := j.Pool.Query(ctx, `SELECT id FROM regions WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
