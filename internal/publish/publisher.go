package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"VaultLedger/internal/observability"
	"VaultLedger/internal/vault"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const streamName = "VAULT_LEDGER_EVENTS"

// OutboundPublisher drains the ledger's publish channel and publishes
// committed events to NATS for downstream consumers. Subjects follow
// vault.ledger.events.{event_type}. Publishing is best-effort; consumers
// that need completeness read the event log.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan vault.Output
	metrics   *observability.Metrics
}

// OutboundEvent is the wire form of a published event. Amounts inside the
// payload are decimal strings via big.Int's JSON encoding.
type OutboundEvent struct {
	Sequence  int64     `json:"sequence"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Payload   any       `json:"payload"`
	StateHash []byte    `json:"state_hash"`
	Timestamp time.Time `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan vault.Output, metrics *observability.Metrics) *OutboundPublisher {
	return &OutboundPublisher{js: js, inputChan: inputChan, metrics: metrics}
}

// Run publishes until ctx is cancelled or the channel closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-op.inputChan:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, out); err != nil {
				log.Printf("WARN: outbound publish failed seq=%d: %v", out.Envelope.Sequence, err)
				if op.metrics != nil {
					op.metrics.PublishErrors.Inc()
				}
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, out vault.Output) error {
	evt := OutboundEvent{
		Sequence:  out.Envelope.Sequence,
		EventID:   out.Envelope.EventID.String(),
		EventType: out.Envelope.Type.String(),
		Payload:   out.Envelope.Payload,
		StateHash: out.Envelope.StateHash[:],
		Timestamp: out.Envelope.Timestamp,
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := fmt.Sprintf("vault.ledger.events.%s", evt.EventType)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{"vault.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	log.Printf("INFO: ensured outbound stream %s", streamName)
	return nil
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("WARN: NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Println("INFO: NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
