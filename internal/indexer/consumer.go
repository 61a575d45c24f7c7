package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"RwaLedger/internal/event"
	"RwaLedger/internal/ingestion"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Consumer subscribes to the outbound event stream and feeds the retry
// queue. Messages are acked once enqueued and naked when the queue is
// full; redeliveries are absorbed by the queue's dedup key.
type Consumer struct {
	js    jetstream.JetStream
	queue *Queue
	log   zerolog.Logger
	cc    jetstream.ConsumeContext
}

// wireEnvelope mirrors event.Envelope with the payload kept raw so the
// mirror store can decode it per event type.
type wireEnvelope struct {
	Sequence  int64           `json:"sequence"`
	EventType event.EventType `json:"event_type"`
	TxHash    string          `json:"tx_hash"`
	Block     uint64          `json:"block"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewConsumer(js jetstream.JetStream, queue *Queue, log zerolog.Logger) *Consumer {
	return &Consumer{js: js, queue: queue, log: log}
}

// Subscribe creates the durable consumer and starts delivery.
func (c *Consumer) Subscribe(ctx context.Context) error {
	consumer, err := c.js.CreateOrUpdateConsumer(ctx, ingestion.StreamName, jetstream.ConsumerConfig{
		Durable:       "rwa-indexer",
		FilterSubject: ingestion.SubjectPrefix + ".>",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create indexer consumer: %w", err)
	}

	cc, err := consumer.Consume(c.handleMessage)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.cc = cc
	c.log.Info().Str("stream", ingestion.StreamName).Msg("indexer subscribed")
	return nil
}

// handleMessage routes one delivery into the queue. Duplicates are acked
// (the event is already mirrored or in flight); a full queue naks so
// JetStream redelivers within the MaxDeliver budget instead of the event
// silently vanishing from the mirror.
func (c *Consumer) handleMessage(msg jetstream.Msg) {
	var env wireEnvelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		// Unparseable payloads are acked to avoid a redelivery loop.
		c.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("drop unparseable event")
		msg.Ack()
		return
	}

	key := TaskKey{EventType: env.EventType, TxHash: env.TxHash, Block: env.Block}
	err := c.queue.Enqueue(key, env.Sequence, env.Timestamp, env.Payload)
	switch {
	case err == nil, errors.Is(err, ErrDuplicateTask):
		msg.Ack()
	case errors.Is(err, ErrQueueFull):
		msg.Nak()
	default:
		msg.Nak()
	}
}

// Stop halts delivery.
func (c *Consumer) Stop() {
	if c.cc != nil {
		c.cc.Stop()
	}
}
