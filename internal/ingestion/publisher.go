package ingestion

import (
	"context"
	"encoding/json"
	"fmt"

	"RwaLedger/internal/core"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher drains the publish channel and republishes envelopes to NATS
// for downstream consumers (the indexer among them). The engine sends on
// this channel with a NON-BLOCKING send, so a slow publisher drops events
// rather than stalling execution; consumers that need completeness read
// the event log instead.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	log       zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan core.Output, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run publishes until ctx is cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case output, ok := <-p.inputChan:
			if !ok {
				return nil
			}

			if err := p.publish(ctx, output); err != nil {
				// Non-fatal: the event log is the source of truth.
				p.log.Warn().
					Err(err).
					Int64("sequence", output.Envelope.Sequence).
					Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, output core.Output) error {
	data, err := json.Marshal(output.Envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, output.Envelope.EventType.String())
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
