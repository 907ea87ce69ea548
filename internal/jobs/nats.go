package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// subjectPrefix namespaces job subjects on the shared NATS deployment.
const subjectPrefix = "payd.jobs."

// NATSEnqueuer publishes jobs to per-type NATS subjects where workers
// consume them.
type NATSEnqueuer struct {
	conn *nats.Conn
}

func NewNATSEnqueuer(url string) (*NATSEnqueuer, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSEnqueuer{conn: nc}, nil
}

func (e *NATSEnqueuer) Enqueue(ctx context.Context, jobType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling job payload: %w", err)
	}
	return e.conn.Publish(subjectPrefix+jobType, data)
}

func (e *NATSEnqueuer) Close() error {
	e.conn.Close()
	return nil
}

// NoopEnqueuer is an Enqueuer that does nothing (used when NATS is not configured).
type NoopEnqueuer struct{}

func (n *NoopEnqueuer) Enqueue(ctx context.Context, jobType string, payload any) error {
	return nil
}

func (n *NoopEnqueuer) Close() error {
	return nil
}
