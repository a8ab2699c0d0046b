package progress

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// maxBatchProjects caps CurrentProgressMany so a listing cannot fan out unbounded queries
const maxBatchProjects = 100

// Service aggregates the three progress sources into one current figure
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// NewService creates a new progress service
func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// CurrentProgress returns the most recent snapshot across daily, weekly and
// monthly records. A project without any record is a valid empty state.
func (s *Service) CurrentProgress(ctx context.Context, projectID int64) (*Progress, error) {
	if projectID <= 0 {
		return nil, apperrors.Validation("project_id must be a positive integer")
	}

	candidates := make([]*Snapshot, 0, 3)

	daily, err := s.repo.LatestDaily(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if daily != nil {
		candidates = append(candidates, daily.snapshot())
	}

	weekly, err := s.repo.LatestWeekly(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if weekly != nil {
		candidates = append(candidates, weekly.snapshot())
	}

	monthly, err := s.repo.LatestMonthly(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if monthly != nil {
		candidates = append(candidates, monthly.snapshot())
	}

	latest := mostRecent(candidates)
	if latest == nil {
		return &Progress{ProjectID: projectID, CurrentProgress: decimal.Zero}, nil
	}

	s.logger.Debug("Resolved current progress",
		zap.Int64("project_id", projectID),
		zap.String("source", string(latest.Source)))

	return &Progress{
		ProjectID:       projectID,
		HasUpdates:      true,
		CurrentProgress: latest.CompletionPercentage,
		Latest:          latest,
	}, nil
}

// CurrentProgressMany decorates a project listing. Duplicate ids are
// aggregated once.
func (s *Service) CurrentProgressMany(ctx context.Context, projectIDs []int64) (map[int64]*Progress, error) {
	if len(projectIDs) == 0 {
		return nil, apperrors.Validation("at least one project id is required")
	}

	unique := make([]int64, 0, len(projectIDs))
	seen := make(map[int64]bool, len(projectIDs))
	for _, id := range projectIDs {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) > maxBatchProjects {
		return nil, apperrors.Validation("at most %d distinct project ids may be requested at once", maxBatchProjects)
	}

	result := make(map[int64]*Progress, len(unique))
	for _, id := range unique {
		p, err := s.CurrentProgress(ctx, id)
		if err != nil {
			return nil, err
		}
		result[id] = p
	}
	return result, nil
}

// mostRecent picks the candidate with the latest activity time. Candidates
// are ordered finest granularity first, so ties keep the finer source.
func mostRecent(candidates []*Snapshot) *Snapshot {
	var best *Snapshot
	for _, c := range candidates {
		if best == nil || c.LastActivityAt.After(best.LastActivityAt) {
			best = c
		}
	}
	return best
}
