package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"homebuild/project-portal/project-portal-backend/internal/database"
	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// Store persists both kinds of payment request. Every call is a single
// bounded round trip except Update, which reads before it writes.
type Store interface {
	CreateStage(ctx context.Context, in *NewStageRequest) (int64, error)
	CreateCustom(ctx context.Context, in *NewCustomRequest) (int64, error)
	GetByID(ctx context.Context, kind Kind, id int64) (*PaymentRequest, error)
	ListForHomeowner(ctx context.Context, homeownerID int64) ([]PaymentRequest, error)
	ListForContractor(ctx context.Context, contractorID int64) ([]PaymentRequest, error)
	// Update applies patch only if the row still holds the status pair it was
	// read with. A lost race is reported as InvalidTransition.
	Update(ctx context.Context, kind Kind, id int64, patch Patch) (*PaymentRequest, error)
}

const (
	stageTable  = "stage_payment_requests"
	customTable = "custom_payment_requests"

	commonColumns = `id, project_id, homeowner_id, contractor_id, requested_amount, approved_amount,
		status, verification_status, transaction_reference, receipt_path, homeowner_notes,
		contractor_notes, request_date, response_date, payment_date, paid_by`
	stageColumns  = commonColumns + `, stage_name, completion_percentage, work_description`
	customColumns = commonColumns + `, title, request_reason, urgency_level, category`
)

type postgresStore struct {
	db      *sqlx.DB
	timeout time.Duration
	now     func() time.Time
}

// NewStore returns a Store backed by PostgreSQL
func NewStore(db *sqlx.DB, timeout time.Duration) Store {
	return &postgresStore{db: db, timeout: timeout, now: time.Now}
}

func tableFor(kind Kind) (table, columns string, err error) {
	switch kind {
	case KindStage:
		return stageTable, stageColumns, nil
	case KindCustom:
		return customTable, customColumns, nil
	}
	return "", "", apperrors.Validation("unknown payment request kind %q", kind)
}

func (s *postgresStore) CreateStage(ctx context.Context, in *NewStageRequest) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `INSERT INTO stage_payment_requests
		(project_id, homeowner_id, contractor_id, stage_name, completion_percentage, work_description,
		 requested_amount, contractor_notes, status, verification_status, request_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		in.ProjectID, in.HomeownerID, in.ContractorID, in.StageName, in.CompletionPercentage,
		in.WorkDescription, in.RequestedAmount, nullableString(in.ContractorNotes),
		StatusPending, VerificationPending, s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, database.ClassifyError(fmt.Errorf("failed to create stage payment request: %w", err))
	}
	return id, nil
}

func (s *postgresStore) CreateCustom(ctx context.Context, in *NewCustomRequest) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `INSERT INTO custom_payment_requests
		(project_id, homeowner_id, contractor_id, title, request_reason, urgency_level, category,
		 requested_amount, contractor_notes, status, verification_status, request_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`

	var id int64
	err := s.db.QueryRowContext(ctx, query,
		in.ProjectID, in.HomeownerID, in.ContractorID, in.Title, in.RequestReason, in.UrgencyLevel,
		in.Category, in.RequestedAmount, nullableString(in.ContractorNotes),
		StatusPending, VerificationPending, s.now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, database.ClassifyError(fmt.Errorf("failed to create custom payment request: %w", err))
	}
	return id, nil
}

func (s *postgresStore) GetByID(ctx context.Context, kind Kind, id int64) (*PaymentRequest, error) {
	table, columns, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var req PaymentRequest
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", columns, table)
	if err := s.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("%s payment request %d not found", kind, id)
		}
		return nil, database.ClassifyError(fmt.Errorf("failed to get %s payment request: %w", kind, err))
	}
	req.Kind = kind
	return &req, nil
}

func (s *postgresStore) ListForHomeowner(ctx context.Context, homeownerID int64) ([]PaymentRequest, error) {
	return s.listBy(ctx, "homeowner_id", homeownerID)
}

func (s *postgresStore) ListForContractor(ctx context.Context, contractorID int64) ([]PaymentRequest, error) {
	return s.listBy(ctx, "contractor_id", contractorID)
}

// listBy reads both tables for one party. column is never user input.
func (s *postgresStore) listBy(ctx context.Context, column string, partyID int64) ([]PaymentRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var out []PaymentRequest
	for _, kind := range []Kind{KindStage, KindCustom} {
		table, columns, _ := tableFor(kind)
		query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1 ORDER BY request_date DESC, id DESC", columns, table, column)

		var rows []PaymentRequest
		if err := s.db.SelectContext(ctx, &rows, query, partyID); err != nil {
			return nil, database.ClassifyError(fmt.Errorf("failed to list %s payment requests: %w", kind, err))
		}
		for i := range rows {
			rows[i].Kind = kind
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *postgresStore) Update(ctx context.Context, kind Kind, id int64, patch Patch) (*PaymentRequest, error) {
	table, _, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	current, err := s.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := patch.checkTransitions(current); err != nil {
		return nil, err
	}
	next := patch.applyTo(*current)
	if err := CheckInvariants(&next); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := fmt.Sprintf(`UPDATE %s SET
		status = $1, verification_status = $2, approved_amount = $3, response_date = $4,
		payment_date = $5, transaction_reference = $6, receipt_path = $7, homeowner_notes = $8,
		paid_by = $9, updated_at = $10
		WHERE id = $11 AND status = $12 AND verification_status = $13`, table)

	res, err := s.db.ExecContext(ctx, query,
		next.Status, next.VerificationStatus, next.ApprovedAmount, next.ResponseDate,
		next.PaymentDate, next.TransactionReference, next.ReceiptPath, next.HomeownerNotes,
		next.PaidBy, s.now().UTC(),
		id, current.Status, current.VerificationStatus,
	)
	if err != nil {
		return nil, database.ClassifyError(fmt.Errorf("failed to update %s payment request: %w", kind, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, database.ClassifyError(fmt.Errorf("failed to update %s payment request: %w", kind, err))
	}
	if affected == 0 {
		latest, err := s.GetByID(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		return nil, transitionError(latest, "payment request changed concurrently")
	}
	return &next, nil
}
