// Package assess integrates the external fraud, compliance, and risk
// evaluators consulted before a command commits. The evaluators are
// unreliable dependencies: every call runs inside a named circuit breaker
// and carries an explicit timeout.
package assess

import (
	"context"

	"github.com/groblegark/payd/internal/model"
)

// Evaluator names. These double as circuit-breaker operation names so each
// dependency trips independently.
const (
	KindFraud      = "fraud_assessment"
	KindCompliance = "compliance_assessment"
	KindRisk       = "risk_assessment"
)

// Input is the command context handed to an evaluator.
type Input struct {
	CommandType string `json:"command_type"`
	Reason      string `json:"reason,omitempty"`
	AdminID     int64  `json:"admin_id,omitempty"`
}

// Assessment is an evaluator's verdict.
type Assessment struct {
	Approved bool     `json:"approved"`
	Score    float64  `json:"score"`
	Reasons  []string `json:"reasons,omitempty"`
}

// Assessor evaluates an account in the context of a pending command.
type Assessor interface {
	Assess(ctx context.Context, acct *model.Account, in Input) (Assessment, error)
}

// Static is an Assessor returning a fixed verdict, used in tests and when
// an evaluator endpoint is not configured.
type Static struct {
	Result Assessment
	Err    error
}

func (s *Static) Assess(ctx context.Context, acct *model.Account, in Input) (Assessment, error) {
	if s.Err != nil {
		return Assessment{}, s.Err
	}
	return s.Result, nil
}

// Approve returns a Static assessor that approves everything.
func Approve() *Static {
	return &Static{Result: Assessment{Approved: true, Score: 0}}
}
