package command

import (
	"errors"

	"github.com/groblegark/payd/internal/assess"
	"github.com/groblegark/payd/internal/model"
)

// circuitOpenPolicy says what a command does when a required evaluator's
// circuit is open. The policy is declared per command type, never inferred.
type circuitOpenPolicy int

const (
	// rejectOnOpen fails the command with the circuit-open error.
	rejectOnOpen circuitOpenPolicy = iota
	// fallbackToCached proceeds on the last approved assessment for the
	// aggregate when one exists, and rejects otherwise.
	fallbackToCached
)

// commandPolicy declares, per command type, which evaluators must approve
// before commit and what happens when one of their circuits is open.
var commandPolicy = map[string]struct {
	checks []string
	onOpen circuitOpenPolicy
}{
	TypeOpen:                 {checks: []string{assess.KindCompliance}, onOpen: rejectOnOpen},
	TypeActivate:             {checks: []string{assess.KindFraud, assess.KindCompliance, assess.KindRisk}, onOpen: rejectOnOpen},
	TypeSuspend:              {checks: []string{assess.KindFraud}, onOpen: rejectOnOpen},
	TypeUpdatePaymentMethods: {checks: []string{assess.KindFraud, assess.KindCompliance}, onOpen: fallbackToCached},
}

// InfrastructureFailures is the breaker failure filter installed by the
// default wiring: only infrastructure and dependency failures count toward
// a circuit's failure threshold. Domain errors and evaluator disapprovals
// describe the request, not the dependency's health.
func InfrastructureFailures(err error) bool {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return false
	}
	return !model.IsDomainError(err)
}
