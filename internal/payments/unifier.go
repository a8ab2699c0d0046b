package payments

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// Summary aggregates one unified listing. Paid requests count as approved.
type Summary struct {
	TotalRequests        int             `json:"total_requests"`
	PendingRequests      int             `json:"pending_requests"`
	ApprovedRequests     int             `json:"approved_requests"`
	RejectedRequests     int             `json:"rejected_requests"`
	PaidRequests         int             `json:"paid_requests"`
	TotalRequestedAmount decimal.Decimal `json:"total_requested_amount"`
	TotalApprovedAmount  decimal.Decimal `json:"total_approved_amount"`
}

type UnifiedList struct {
	Requests []PaymentRequest `json:"requests"`
	Summary  Summary          `json:"summary"`
}

// UnifiedList merges both kinds for the actor in the given role, newest first.
// Equal request dates fall back to id, then stage before custom.
func (s *Service) UnifiedList(ctx context.Context, role ActorRole, actorID int64) (*UnifiedList, error) {
	if actorID <= 0 {
		return nil, apperrors.Validation("actor id must be positive")
	}

	var (
		rows []PaymentRequest
		err  error
	)
	switch role {
	case RoleHomeowner:
		rows, err = s.store.ListForHomeowner(ctx, actorID)
	case RoleContractor:
		rows, err = s.store.ListForContractor(ctx, actorID)
	default:
		return nil, apperrors.Validation("payment requests can only be listed as homeowner or contractor, not %q", role)
	}
	if err != nil {
		return nil, err
	}

	for i := range rows {
		normalize(&rows[i])
	}
	sortUnified(rows)
	if rows == nil {
		rows = []PaymentRequest{}
	}

	s.logger.Debug("Listed payment requests",
		zap.String("role", string(role)),
		zap.Int64("actor_id", actorID),
		zap.Int("count", len(rows)),
	)
	return &UnifiedList{Requests: rows, Summary: summarize(rows)}, nil
}

// Get returns one request if actorID is one of its parties
func (s *Service) Get(ctx context.Context, kind Kind, id, actorID int64) (*PaymentRequest, error) {
	req, err := s.store.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !req.IsParty(actorID) {
		return nil, apperrors.Forbidden("not a party to %s payment request %d", kind, id)
	}
	normalize(req)
	return req, nil
}

func kindRank(k Kind) int {
	if k == KindStage {
		return 0
	}
	return 1
}

func sortUnified(rows []PaymentRequest) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.RequestDate.Equal(b.RequestDate) {
			return a.RequestDate.After(b.RequestDate)
		}
		if a.ID != b.ID {
			return a.ID > b.ID
		}
		return kindRank(a.Kind) < kindRank(b.Kind)
	})
}

func summarize(rows []PaymentRequest) Summary {
	sum := Summary{
		TotalRequests:        len(rows),
		TotalRequestedAmount: decimal.Zero,
		TotalApprovedAmount:  decimal.Zero,
	}
	for _, r := range rows {
		sum.TotalRequestedAmount = sum.TotalRequestedAmount.Add(r.RequestedAmount)
		switch r.Status {
		case StatusPending:
			sum.PendingRequests++
		case StatusApproved:
			sum.ApprovedRequests++
		case StatusPaid:
			sum.ApprovedRequests++
			sum.PaidRequests++
		case StatusRejected:
			sum.RejectedRequests++
		}
		if r.ApprovedAmount.Valid {
			sum.TotalApprovedAmount = sum.TotalApprovedAmount.Add(r.ApprovedAmount.Decimal)
		}
	}
	return sum
}
