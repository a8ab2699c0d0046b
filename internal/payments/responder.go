package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"homebuild/project-portal/project-portal-backend/internal/notifications"
	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// Action is a homeowner or contractor response to a payment request
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionMarkPaid Action = "mark_paid"
	ActionVerify   Action = "verify"
	ActionDispute  Action = "dispute"
)

func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve":
		return ActionApprove, nil
	case "reject":
		return ActionReject, nil
	case "mark_paid":
		return ActionMarkPaid, nil
	case "verify":
		return ActionVerify, nil
	case "dispute":
		return ActionDispute, nil
	}
	return "", apperrors.Validation("unknown action %q", s)
}

// ResponsePayload carries the optional inputs of an action. Fields that do
// not apply to the action are ignored.
type ResponsePayload struct {
	ApprovedAmount       *decimal.Decimal `json:"approved_amount"`
	Notes                *string          `json:"notes"`
	TransactionReference *string          `json:"transaction_reference"`
	ReceiptPath          *string          `json:"receipt_path"`
}

var actionEvents = map[Action]notifications.EventType{
	ActionApprove:  notifications.EventApproved,
	ActionReject:   notifications.EventRejected,
	ActionMarkPaid: notifications.EventPaid,
	ActionVerify:   notifications.EventVerified,
	ActionDispute:  notifications.EventDisputed,
}

// Respond applies action to one request and persists the result. The
// precondition is re-checked atomically by the store, so of two concurrent
// responses at most one succeeds.
func (s *Service) Respond(ctx context.Context, kind Kind, id, actorID int64, action Action, payload ResponsePayload) (*PaymentRequest, error) {
	if _, ok := actionEvents[action]; !ok {
		return nil, apperrors.Validation("unknown action %q", action)
	}

	current, err := s.store.GetByID(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(current, actorID, action); err != nil {
		return nil, err
	}

	patch, err := s.buildPatch(current, actorID, action, payload)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.Update(ctx, kind, id, patch)
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindInvalidTransition {
			s.logger.Info("Payment response rejected",
				zap.String("request_type", string(kind)),
				zap.Int64("request_id", id),
				zap.String("action", string(action)),
				zap.Int64("actor_id", actorID),
				zap.Error(err),
			)
		}
		return nil, err
	}
	normalize(updated)

	s.logger.Info("Payment request updated",
		zap.String("request_type", string(kind)),
		zap.Int64("request_id", id),
		zap.String("action", string(action)),
		zap.Int64("actor_id", actorID),
		zap.String("status", string(updated.Status)),
		zap.String("verification_status", string(updated.VerificationStatus)),
	)
	s.publish(ctx, actionEvents[action], updated, actorID)
	return updated, nil
}

func authorize(r *PaymentRequest, actorID int64, action Action) error {
	switch action {
	case ActionApprove, ActionReject:
		if actorID != r.HomeownerID {
			return apperrors.Forbidden("only the homeowner can %s this payment request", action)
		}
	case ActionVerify, ActionDispute:
		if !r.IsParty(actorID) {
			return apperrors.Forbidden("not a party to %s payment request %d", r.Kind, r.ID)
		}
		if r.PaidBy != nil && *r.PaidBy == actorID {
			return apperrors.Forbidden("the party that recorded the payment cannot %s it", action)
		}
	default:
		if !r.IsParty(actorID) {
			return apperrors.Forbidden("not a party to %s payment request %d", r.Kind, r.ID)
		}
	}
	return nil
}

// buildPatch checks the transition against current and computes the derived
// fields. Transition errors win over payload errors.
func (s *Service) buildPatch(current *PaymentRequest, actorID int64, action Action, payload ResponsePayload) (Patch, error) {
	now := s.now().UTC()

	switch action {
	case ActionApprove, ActionReject:
		target := StatusApproved
		if action == ActionReject {
			target = StatusRejected
		}
		if !statusFlow.CanTransition(string(current.Status), string(target)) {
			return Patch{}, transitionError(current, "cannot %s a %s payment request", action, current.Status)
		}
		patch := Patch{
			ExpectStatus:   statusPtr(StatusPending),
			Status:         &target,
			ResponseDate:   &now,
			HomeownerNotes: trimmed(payload.Notes),
		}
		if action == ActionApprove {
			amount := current.RequestedAmount
			if payload.ApprovedAmount != nil {
				amount = *payload.ApprovedAmount
			}
			if !amount.IsPositive() {
				return Patch{}, apperrors.ValidationFields(map[string]string{"approved_amount": "must be greater than 0"})
			}
			if amount.GreaterThan(current.RequestedAmount) {
				return Patch{}, apperrors.ValidationFields(map[string]string{"approved_amount": "must not exceed requested_amount"})
			}
			patch.ApprovedAmount = &amount
		}
		return patch, nil

	case ActionMarkPaid:
		if !statusFlow.CanTransition(string(current.Status), string(StatusPaid)) {
			return Patch{}, transitionError(current, "cannot mark a %s payment request as paid", current.Status)
		}
		ref := trimmed(payload.TransactionReference)
		if ref == nil {
			return Patch{}, apperrors.ValidationFields(map[string]string{"transaction_reference": "is required to mark a payment as paid"})
		}
		return Patch{
			ExpectStatus:         statusPtr(StatusApproved),
			Status:               statusPtr(StatusPaid),
			ClearResponseDate:    true,
			PaymentDate:          &now,
			PaidBy:               &actorID,
			TransactionReference: ref,
			ReceiptPath:          trimmed(payload.ReceiptPath),
		}, nil

	default:
		target := VerificationVerified
		if action == ActionDispute {
			target = VerificationDisputed
		}
		if !verificationFlow.CanTransition(string(current.VerificationStatus), string(target)) {
			return Patch{}, transitionError(current, "cannot %s a payment whose verification is %s", action, current.VerificationStatus)
		}
		if !current.HasProof() {
			return Patch{}, transitionError(current, "cannot %s a payment without a transaction reference or receipt", action)
		}
		return Patch{
			ExpectVerification: verificationPtr(VerificationPending),
			VerificationStatus: &target,
		}, nil
	}
}

func statusPtr(s Status) *Status { return &s }

func verificationPtr(v VerificationStatus) *VerificationStatus { return &v }

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	return nullableString(*s)
}
