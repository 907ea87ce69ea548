// Package jobs provides the fire-and-forget async job trigger used for
// follow-on workflows after a command commits. Enqueue failures are the
// caller's to log; they never roll back an already-committed state change.
package jobs

import (
	"context"
)

// Well-known job types enqueued by the command pipeline.
const (
	TypeComplianceRemediation = "compliance_remediation"
	TypeNotificationDispatch  = "notification_dispatch"
	TypeRiskReview            = "risk_review"
)

// Enqueuer hands a job to the async worker fleet.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any) error
	Close() error
}
