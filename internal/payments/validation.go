package payments

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

var hundred = decimal.NewFromInt(100)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			name = fld.Tag.Get("db")
		}
		return name
	})
	return v
}

// NewStageRequest is the payload for a stage-completion payment request.
// ContractorID always comes from the authenticated actor.
type NewStageRequest struct {
	ProjectID            int64           `json:"project_id" db:"project_id" validate:"required,gt=0"`
	HomeownerID          int64           `json:"homeowner_id" db:"homeowner_id" validate:"required,gt=0"`
	ContractorID         int64           `json:"-" db:"contractor_id" validate:"required,gt=0"`
	StageName            string          `json:"stage_name" db:"stage_name" validate:"required,max=120"`
	RequestedAmount      decimal.Decimal `json:"requested_amount" db:"requested_amount"`
	CompletionPercentage decimal.Decimal `json:"completion_percentage" db:"completion_percentage"`
	WorkDescription      string          `json:"work_description" db:"work_description" validate:"max=5000"`
	ContractorNotes      string          `json:"contractor_notes" db:"contractor_notes" validate:"max=2000"`
}

// NewCustomRequest is the payload for an ad-hoc payment request
type NewCustomRequest struct {
	ProjectID       int64           `json:"project_id" db:"project_id" validate:"required,gt=0"`
	HomeownerID     int64           `json:"homeowner_id" db:"homeowner_id" validate:"required,gt=0"`
	ContractorID    int64           `json:"-" db:"contractor_id" validate:"required,gt=0"`
	Title           string          `json:"title" db:"title" validate:"required,max=200"`
	RequestReason   string          `json:"request_reason" db:"request_reason" validate:"required,max=5000"`
	RequestedAmount decimal.Decimal `json:"requested_amount" db:"requested_amount"`
	UrgencyLevel    UrgencyLevel    `json:"urgency_level" db:"urgency_level" validate:"omitempty,oneof=low medium high"`
	Category        string          `json:"category" db:"category" validate:"max=80"`
	ContractorNotes string          `json:"contractor_notes" db:"contractor_notes" validate:"max=2000"`
}

// Validate checks the stage payload, collecting every failing field
func (in *NewStageRequest) Validate() error {
	in.StageName = strings.TrimSpace(in.StageName)
	fields := structErrors(in)
	if !in.RequestedAmount.IsPositive() {
		fields["requested_amount"] = "must be greater than 0"
	}
	if in.CompletionPercentage.IsNegative() || in.CompletionPercentage.GreaterThan(hundred) {
		fields["completion_percentage"] = "must be between 0 and 100"
	}
	return fieldsError(fields)
}

// Validate checks the custom payload. An empty urgency defaults to medium.
func (in *NewCustomRequest) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	in.RequestReason = strings.TrimSpace(in.RequestReason)
	if in.UrgencyLevel == "" {
		in.UrgencyLevel = UrgencyMedium
	}
	fields := structErrors(in)
	if !in.RequestedAmount.IsPositive() {
		fields["requested_amount"] = "must be greater than 0"
	}
	return fieldsError(fields)
}

func structErrors(s any) map[string]string {
	fields := map[string]string{}
	err := validate.Struct(s)
	if err == nil {
		return fields
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = err.Error()
		return fields
	}
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return "is invalid"
	}
}

func fieldsError(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return apperrors.ValidationFields(fields)
}
