package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"homebuild/project-portal/project-portal-backend/internal/database"
)

// Repository reads the most recent row of each progress source.
// A nil row with a nil error means the source has nothing for the project.
type Repository interface {
	LatestDaily(ctx context.Context, projectID int64) (*DailyUpdate, error)
	LatestWeekly(ctx context.Context, projectID int64) (*WeeklySummary, error)
	LatestMonthly(ctx context.Context, projectID int64) (*MonthlyReport, error)
}

type gormRepository struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewRepository(db *gorm.DB, timeout time.Duration) Repository {
	return &gormRepository{db: db, timeout: timeout}
}

func (r *gormRepository) LatestDaily(ctx context.Context, projectID int64) (*DailyUpdate, error) {
	return latest[DailyUpdate](ctx, r, projectID, "update_date DESC, created_at DESC, id DESC")
}

func (r *gormRepository) LatestWeekly(ctx context.Context, projectID int64) (*WeeklySummary, error) {
	return latest[WeeklySummary](ctx, r, projectID, "week_end_date DESC, created_at DESC, id DESC")
}

func (r *gormRepository) LatestMonthly(ctx context.Context, projectID int64) (*MonthlyReport, error) {
	return latest[MonthlyReport](ctx, r, projectID, "report_date DESC, created_at DESC, id DESC")
}

func latest[T any](ctx context.Context, r *gormRepository, projectID int64, order string) (*T, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var row T
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order(order).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, database.ClassifyError(fmt.Errorf("failed to load latest progress: %w", err))
	}
	return &row, nil
}
