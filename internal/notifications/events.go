// Package notifications hands payment lifecycle events to the notification
// collaborator. Delivery to homeowners and contractors happens downstream.
package notifications

import (
	"context"
	"time"
)

// EventType names a payment lifecycle event
type EventType string

const (
	EventSubmitted EventType = "payment_request.submitted"
	EventApproved  EventType = "payment_request.approved"
	EventRejected  EventType = "payment_request.rejected"
	EventPaid      EventType = "payment_request.paid"
	EventVerified  EventType = "payment_request.verified"
	EventDisputed  EventType = "payment_request.disputed"
)

// Event carries identifiers and states only. Amounts, notes and references
// stay in the database.
type Event struct {
	Type               EventType `json:"type"`
	RequestType        string    `json:"request_type"`
	RequestID          int64     `json:"request_id"`
	ProjectID          int64     `json:"project_id"`
	HomeownerID        int64     `json:"homeowner_id"`
	ContractorID       int64     `json:"contractor_id"`
	ActorID            int64     `json:"actor_id"`
	Status             string    `json:"status"`
	VerificationStatus string    `json:"verification_status"`
	OccurredAt         time.Time `json:"occurred_at"`
}

// Publisher delivers events. Callers treat failures as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
