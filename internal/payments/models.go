package payments

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
	"homebuild/project-portal/project-portal-backend/pkg/workflows"
)

// Kind distinguishes the two payment request tables. Ids are only unique
// within a kind, so (Kind, ID) is the key of a request.
type Kind string

const (
	KindStage  Kind = "stage"
	KindCustom Kind = "custom"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindStage:
		return KindStage, nil
	case KindCustom:
		return KindCustom, nil
	}
	return "", apperrors.Validation("unknown payment request kind %q", s)
}

// Status is the homeowner/contractor-visible lifecycle
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

// VerificationStatus tracks whether submitted payment proof was checked.
// It moves independently of Status.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationDisputed VerificationStatus = "disputed"
)

type UrgencyLevel string

const (
	UrgencyLow    UrgencyLevel = "low"
	UrgencyMedium UrgencyLevel = "medium"
	UrgencyHigh   UrgencyLevel = "high"
)

// ActorRole scopes a unified listing
type ActorRole string

const (
	RoleHomeowner  ActorRole = "homeowner"
	RoleContractor ActorRole = "contractor"
)

var (
	statusFlow = workflows.NewStateMachine(map[string][]string{
		string(StatusPending):  {string(StatusApproved), string(StatusRejected)},
		string(StatusApproved): {string(StatusPaid)},
	})
	verificationFlow = workflows.NewStateMachine(map[string][]string{
		string(VerificationPending): {string(VerificationVerified), string(VerificationDisputed)},
	})
)

// PaymentRequest is the shape shared by both kinds. Stage-only and
// custom-only fields are nil on the other kind.
type PaymentRequest struct {
	ID                   int64               `json:"id" db:"id"`
	Kind                 Kind                `json:"request_type" db:"-"`
	ProjectID            int64               `json:"project_id" db:"project_id"`
	HomeownerID          int64               `json:"homeowner_id" db:"homeowner_id"`
	ContractorID         int64               `json:"contractor_id" db:"contractor_id"`
	Title                string              `json:"title" db:"title"`
	RequestedAmount      decimal.Decimal     `json:"requested_amount" db:"requested_amount"`
	ApprovedAmount       decimal.NullDecimal `json:"approved_amount" db:"approved_amount"`
	Status               Status              `json:"status" db:"status"`
	VerificationStatus   VerificationStatus  `json:"verification_status" db:"verification_status"`
	TransactionReference *string             `json:"transaction_reference" db:"transaction_reference"`
	ReceiptPath          *string             `json:"receipt_path" db:"receipt_path"`
	HomeownerNotes       *string             `json:"homeowner_notes" db:"homeowner_notes"`
	ContractorNotes      *string             `json:"contractor_notes" db:"contractor_notes"`
	RequestDate          time.Time           `json:"request_date" db:"request_date"`
	ResponseDate         *time.Time          `json:"response_date" db:"response_date"`
	PaymentDate          *time.Time          `json:"payment_date" db:"payment_date"`
	PaidBy               *int64              `json:"paid_by" db:"paid_by"`

	StageName            *string             `json:"stage_name,omitempty" db:"stage_name"`
	CompletionPercentage decimal.NullDecimal `json:"completion_percentage,omitempty" db:"completion_percentage"`
	WorkDescription      *string             `json:"work_description,omitempty" db:"work_description"`

	RequestReason *string       `json:"request_reason,omitempty" db:"request_reason"`
	UrgencyLevel  *UrgencyLevel `json:"urgency_level,omitempty" db:"urgency_level"`
	Category      *string       `json:"category,omitempty" db:"category"`
}

// IsParty reports whether actorID is the homeowner or contractor of r
func (r *PaymentRequest) IsParty(actorID int64) bool {
	return actorID == r.HomeownerID || actorID == r.ContractorID
}

// HasProof reports whether a transaction reference or receipt is attached
func (r *PaymentRequest) HasProof() bool {
	return nonEmpty(r.TransactionReference) || nonEmpty(r.ReceiptPath)
}

// Patch is a partial update. Project and party ids are not patchable.
// ExpectStatus / ExpectVerification make the update conditional.
// ClearResponseDate wins over ResponseDate.
type Patch struct {
	ExpectStatus       *Status
	ExpectVerification *VerificationStatus

	Status               *Status
	VerificationStatus   *VerificationStatus
	ApprovedAmount       *decimal.Decimal
	ResponseDate         *time.Time
	ClearResponseDate    bool
	PaymentDate          *time.Time
	PaidBy               *int64
	TransactionReference *string
	ReceiptPath          *string
	HomeownerNotes       *string
}

func (p Patch) applyTo(r PaymentRequest) PaymentRequest {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.VerificationStatus != nil {
		r.VerificationStatus = *p.VerificationStatus
	}
	if p.ApprovedAmount != nil {
		r.ApprovedAmount = decimal.NewNullDecimal(*p.ApprovedAmount)
	}
	switch {
	case p.ClearResponseDate:
		r.ResponseDate = nil
	case p.ResponseDate != nil:
		t := *p.ResponseDate
		r.ResponseDate = &t
	}
	if p.PaymentDate != nil {
		t := *p.PaymentDate
		r.PaymentDate = &t
	}
	if p.PaidBy != nil {
		by := *p.PaidBy
		r.PaidBy = &by
	}
	if p.TransactionReference != nil {
		r.TransactionReference = stringPtr(*p.TransactionReference)
	}
	if p.ReceiptPath != nil {
		r.ReceiptPath = stringPtr(*p.ReceiptPath)
	}
	if p.HomeownerNotes != nil {
		r.HomeownerNotes = stringPtr(*p.HomeownerNotes)
	}
	return r
}

// checkTransitions rejects a patch whose preconditions or target states do
// not follow from current.
func (p Patch) checkTransitions(current *PaymentRequest) error {
	if p.ExpectStatus != nil && current.Status != *p.ExpectStatus {
		return transitionError(current, "payment request is %s, expected %s", current.Status, *p.ExpectStatus)
	}
	if p.ExpectVerification != nil && current.VerificationStatus != *p.ExpectVerification {
		return transitionError(current, "verification is %s, expected %s", current.VerificationStatus, *p.ExpectVerification)
	}
	if p.Status != nil && *p.Status != current.Status &&
		!statusFlow.CanTransition(string(current.Status), string(*p.Status)) {
		return transitionError(current, "cannot move payment request from %s to %s", current.Status, *p.Status)
	}
	if p.VerificationStatus != nil && *p.VerificationStatus != current.VerificationStatus &&
		!verificationFlow.CanTransition(string(current.VerificationStatus), string(*p.VerificationStatus)) {
		return transitionError(current, "cannot move verification from %s to %s", current.VerificationStatus, *p.VerificationStatus)
	}
	return nil
}

// CheckInvariants validates the cross-field rules every stored request obeys.
// The response date only exists while a request is approved or rejected.
func CheckInvariants(r *PaymentRequest) error {
	fields := map[string]string{}

	if !r.RequestedAmount.IsPositive() {
		fields["requested_amount"] = "must be greater than 0"
	}

	responded := r.Status == StatusApproved || r.Status == StatusRejected
	if responded && r.ResponseDate == nil {
		fields["response_date"] = fmt.Sprintf("is required when status is %s", r.Status)
	}
	if !responded && r.ResponseDate != nil {
		fields["response_date"] = fmt.Sprintf("must be empty when status is %s", r.Status)
	}

	if r.Status == StatusPaid {
		if r.PaymentDate == nil {
			fields["payment_date"] = "is required when status is paid"
		}
		if !nonEmpty(r.TransactionReference) {
			fields["transaction_reference"] = "is required when status is paid"
		}
	} else {
		if r.PaymentDate != nil {
			fields["payment_date"] = "may only be set when status is paid"
		}
		if r.PaidBy != nil {
			fields["paid_by"] = "may only be set when status is paid"
		}
	}

	approvedState := r.Status == StatusApproved || r.Status == StatusPaid
	switch {
	case approvedState && !r.ApprovedAmount.Valid:
		fields["approved_amount"] = fmt.Sprintf("is required when status is %s", r.Status)
	case !approvedState && r.ApprovedAmount.Valid:
		fields["approved_amount"] = fmt.Sprintf("must be empty when status is %s", r.Status)
	case r.ApprovedAmount.Valid && !r.ApprovedAmount.Decimal.IsPositive():
		fields["approved_amount"] = "must be greater than 0"
	case r.ApprovedAmount.Valid && r.ApprovedAmount.Decimal.GreaterThan(r.RequestedAmount):
		fields["approved_amount"] = "must not exceed requested_amount"
	}

	if r.VerificationStatus != VerificationPending && !r.HasProof() {
		fields["verification_status"] = "requires a transaction reference or receipt"
	}

	if len(fields) > 0 {
		return apperrors.ValidationFields(fields)
	}
	return nil
}

func transitionError(r *PaymentRequest, format string, args ...any) error {
	return apperrors.InvalidTransition(string(r.Status), string(r.VerificationStatus), format, args...)
}

func nonEmpty(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func stringPtr(s string) *string {
	return &s
}

// nullableString maps "" to NULL for optional text columns
func nullableString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
