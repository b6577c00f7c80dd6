package models

import (
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the state of a follow/subscribe request. Pending is the
// only non-terminal state.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "Pending"
	RequestStatusApproved  RequestStatus = "Approved"
	RequestStatusDenied    RequestStatus = "Denied"
	RequestStatusCancelled RequestStatus = "Cancelled"
)

// IsTerminal reports whether the status is immutable.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusApproved, RequestStatusDenied, RequestStatusCancelled:
		return true
	}
	return false
}

// FollowRequest is a pending or decided request to create a Follow or
// Subscribe edge. (tenant, idempotency_key) is unique when the key is set.
type FollowRequest struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	Requester      EntityRef     `json:"requester"`
	Target         EntityRef     `json:"target"`
	RequestedKind  EdgeKind      `json:"requested_kind"`
	Scope          EdgeScope     `json:"scope"`
	Status         RequestStatus `json:"status"`
	DecidedBy      string        `json:"decided_by,omitempty"`
	DecidedAt      *time.Time    `json:"decided_at,omitempty"`
	DecisionReason string        `json:"decision_reason,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// CreateFollowRequestRequest is the input for creating a follow/subscribe
// request.
type CreateFollowRequestRequest struct {
	TenantID       string    `json:"tenant_id" validate:"required"`
	Requester      EntityRef `json:"requester"`
	Target         EntityRef `json:"target"`
	RequestedKind  EdgeKind  `json:"requested_kind" validate:"required,oneof=Follow Subscribe"`
	Scope          EdgeScope `json:"scope,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
}

// Validate checks the request shape. Scope defaults to Any.
func (r *CreateFollowRequestRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if strings.TrimSpace(r.TenantID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !r.Requester.IsValid() {
		return fmt.Errorf("requester is missing kind, type or id")
	}
	if !r.Target.IsValid() {
		return fmt.Errorf("target is missing kind, type or id")
	}
	if r.RequestedKind != EdgeKindFollow && r.RequestedKind != EdgeKindSubscribe {
		return fmt.Errorf("requested kind must be Follow or Subscribe, got %q", r.RequestedKind)
	}
	if r.Scope == "" {
		r.Scope = EdgeScopeAny
	}
	if !r.Scope.IsValid() {
		return fmt.Errorf("unknown scope %q", r.Scope)
	}
	return nil
}
