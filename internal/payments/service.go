package payments

import (
	"context"
	"time"

	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/internal/notifications"
	"homebuild/project-portal/project-portal-backend/pkg/storage"
)

// Service holds the payment request use cases. Actor identity is always an
// explicit argument, never looked up from ambient state.
type Service struct {
	store  Store
	files  storage.ObjectStore
	events notifications.Publisher
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires the service. files and events may be nil; receipts are
// then rejected and events dropped.
func NewService(store Store, files storage.ObjectStore, events notifications.Publisher, logger *zap.Logger) *Service {
	if events == nil {
		events = notifications.NopPublisher{}
	}
	return &Service{
		store:  store,
		files:  files,
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// CreateStage submits a stage payment request on behalf of contractorID
func (s *Service) CreateStage(ctx context.Context, contractorID int64, in NewStageRequest) (*PaymentRequest, error) {
	in.ContractorID = contractorID
	id, err := s.store.CreateStage(ctx, &in)
	if err != nil {
		return nil, err
	}
	return s.afterCreate(ctx, KindStage, id, contractorID)
}

// CreateCustom submits a custom payment request on behalf of contractorID
func (s *Service) CreateCustom(ctx context.Context, contractorID int64, in NewCustomRequest) (*PaymentRequest, error) {
	in.ContractorID = contractorID
	id, err := s.store.CreateCustom(ctx, &in)
	if err != nil {
		return nil, err
	}
	return s.afterCreate(ctx, KindCustom, id, contractorID)
}

func (s *Service) afterCreate(ctx context.Context, kind Kind, id, contractorID int64) (*PaymentRequest, error) {
	created, err := s.store.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	normalize(created)

	s.logger.Info("Payment request submitted",
		zap.String("request_type", string(kind)),
		zap.Int64("request_id", id),
		zap.Int64("project_id", created.ProjectID),
		zap.Int64("actor_id", contractorID),
	)
	s.publish(ctx, notifications.EventSubmitted, created, contractorID)
	return created, nil
}

// publish is best effort; the state change is already committed
func (s *Service) publish(ctx context.Context, eventType notifications.EventType, r *PaymentRequest, actorID int64) {
	event := notifications.Event{
		Type:               eventType,
		RequestType:        string(r.Kind),
		RequestID:          r.ID,
		ProjectID:          r.ProjectID,
		HomeownerID:        r.HomeownerID,
		ContractorID:       r.ContractorID,
		ActorID:            actorID,
		Status:             string(r.Status),
		VerificationStatus: string(r.VerificationStatus),
		OccurredAt:         s.now().UTC(),
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish payment event",
			zap.String("event", string(eventType)),
			zap.String("request_type", string(r.Kind)),
			zap.Int64("request_id", r.ID),
			zap.Error(err),
		)
	}
}

// normalize fills the unified title from the stage name
func normalize(r *PaymentRequest) {
	if r.Kind == KindStage && r.StageName != nil {
		r.Title = *r.StageName
	}
}
