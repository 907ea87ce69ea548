// Package events defines the bus topics and publisher interface for
// committed domain events. Delivery is at-least-once: publication happens
// after the durable commit, and a publish failure is logged, never rolled
// back. Subscribers must be idempotent.
package events

import (
	"context"

	"github.com/groblegark/payd/internal/model"
)

// Event topic constants
const (
	TopicPaymentAccount = "payment_account.events"
	TopicCompliance     = "compliance.events"
	TopicSecurity       = "security.events"
)

// Topics returns every channel a committed event is published to. All
// account events go to the payment-account channel; suspensions also feed
// the security channel, and payment-instrument changes feed compliance.
func Topics(typ model.EventType) []string {
	switch typ {
	case model.EventAccountSuspended:
		return []string{TopicPaymentAccount, TopicSecurity}
	case model.EventPaymentMethodsUpdated:
		return []string{TopicPaymentAccount, TopicCompliance}
	default:
		return []string{TopicPaymentAccount}
	}
}

// Publisher is the interface for emitting committed events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
