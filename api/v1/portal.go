package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"homebuild/project-portal/project-portal-backend/internal/config"
	"homebuild/project-portal/project-portal-backend/internal/notifications"
	"homebuild/project-portal/project-portal-backend/internal/payments"
	"homebuild/project-portal/project-portal-backend/internal/progress"
	"homebuild/project-portal/project-portal-backend/pkg/storage"
)

// PaymentsAPI holds the payment request API dependencies
type PaymentsAPI struct {
	Handler *payments.Handler
	Service *payments.Service
	Store   payments.Store
}

// SetupPaymentsAPI wires the payment store, service and handler. files may
// be nil when no receipts bucket is configured.
func SetupPaymentsAPI(db *sqlx.DB, cfg *config.Config, files storage.ObjectStore, events notifications.Publisher, logger *zap.Logger) *PaymentsAPI {
	store := payments.NewStore(db, cfg.Database.QueryTimeout.Duration)
	service := payments.NewService(store, files, events, logger)

	return &PaymentsAPI{
		Handler: payments.NewHandler(service, logger),
		Service: service,
		Store:   store,
	}
}

// ProgressAPI holds the progress API dependencies
type ProgressAPI struct {
	Handler    *progress.Handler
	Service    *progress.Service
	Repository progress.Repository
}

// SetupProgressAPI wires the progress read side on the gorm session
func SetupProgressAPI(db *gorm.DB, cfg *config.Config, logger *zap.Logger) *ProgressAPI {
	repository := progress.NewRepository(db, cfg.Database.QueryTimeout.Duration)
	service := progress.NewService(repository, logger)

	return &ProgressAPI{
		Handler:    progress.NewHandler(service, logger),
		Service:    service,
		Repository: repository,
	}
}

// RegisterRoutes mounts both APIs on an authenticated router group
func RegisterRoutes(router *gin.RouterGroup, paymentsAPI *PaymentsAPI, progressAPI *ProgressAPI) {
	paymentsAPI.Handler.RegisterRoutes(router)
	progressAPI.Handler.RegisterRoutes(router)
}
