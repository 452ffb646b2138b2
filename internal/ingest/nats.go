package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gridalert/internal/config"
	"gridalert/internal/engine"

	"github.com/nats-io/nats.go"
)

// NATSSubscriber consumes fault observations via a JetStream queue consumer
// and forwards them to the sink. Poller fleets publish to one subject; the
// deliver group spreads messages across service replicas.
// Params: NATS connection, JetStream queue subscription, and observation sink.
// Returns: NATS ingest lifecycle handle.
type NATSSubscriber struct {
	nc     *nats.Conn
	sub    *nats.Subscription
	logger *slog.Logger
}

// NewNATSSubscriber creates the JetStream queue consumer for observation ingest.
// Params: ingest NATS config, sink, and logger.
// Returns: started subscriber or initialization error.
func NewNATSSubscriber(cfg config.NATSIngestConfig, sink ObservationSink, logger *slog.Logger) (*NATSSubscriber, error) {
	nc, err := nats.Connect(strings.Join(cfg.URL, ","))
	if err != nil {
		return nil, fmt.Errorf("connect nats ingest: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init for ingest: %w", err)
	}

	subscriber := &NATSSubscriber{
		nc:     nc,
		logger: logger,
	}
	ackWait := time.Duration(cfg.AckWaitSec) * time.Second
	nackDelay := time.Duration(cfg.NackDelayMS) * time.Millisecond
	subOpts := []nats.SubOpt{
		nats.BindStream(cfg.Stream),
		nats.Durable(cfg.ConsumerName),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
		nats.MaxDeliver(cfg.MaxDeliver),
		nats.MaxAckPending(cfg.MaxAckPending),
		nats.DeliverAll(),
	}
	sub, err := js.QueueSubscribe(cfg.Subject, cfg.DeliverGroup, func(message *nats.Msg) {
		subscriber.handle(sink, message, nackDelay)
	}, subOpts...)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("queue subscribe %q/%q: %w", cfg.Subject, cfg.DeliverGroup, err)
	}
	subscriber.sub = sub
	return subscriber, nil
}

// handle processes one JetStream message. Malformed payloads and taxonomy
// rejections are acked; redelivering them can never succeed. Backend failures
// are nacked so the observation is retried.
// Params: sink, message, and redelivery delay.
// Returns: none.
func (s *NATSSubscriber) handle(sink ObservationSink, message *nats.Msg, nackDelay time.Duration) {
	observations, decodeErr := decodeObservationPayload(message.Data)
	if decodeErr != nil {
		s.logger.Warn("nats ingest decode failed", "subject", message.Subject, "error", decodeErr.Error())
		s.ackMessage(message, "decode")
		return
	}

	for _, observation := range observations {
		if _, err := sink.Raise(context.Background(), observation); err != nil {
			if errors.Is(err, engine.ErrUnknownKind) || errors.Is(err, engine.ErrUnknownSource) {
				s.logger.Warn("nats ingest rejected observation", "subject", message.Subject, "error", err.Error())
				continue
			}
			s.logger.Error("nats ingest raise failed", "subject", message.Subject, "error", err.Error())
			s.nackMessage(message, nackDelay)
			return
		}
	}
	s.ackMessage(message, "processed")
}

// ackMessage acknowledges a processed or invalid message and logs ack failures.
// Params: JetStream message and short reason.
// Returns: none.
func (s *NATSSubscriber) ackMessage(message *nats.Msg, reason string) {
	if message == nil {
		return
	}
	if err := message.Ack(); err != nil && s.logger != nil {
		s.logger.Warn("nats ingest ack failed", "subject", message.Subject, "reason", reason, "error", err.Error())
	}
}

// nackMessage asks JetStream to redeliver the message and logs nack failures.
// Params: JetStream message and optional delay.
// Returns: none.
func (s *NATSSubscriber) nackMessage(message *nats.Msg, delay time.Duration) {
	if message == nil {
		return
	}
	var err error
	if delay > 0 {
		err = message.NakWithDelay(delay)
	} else {
		err = message.Nak()
	}
	if err != nil && s.logger != nil {
		s.logger.Warn("nats ingest nack failed", "subject", message.Subject, "error", err.Error())
	}
}

// Close stops the NATS subscription and closes the connection.
// Params: none.
// Returns: close error from subscription drain.
func (s *NATSSubscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Drain(); err != nil {
			s.nc.Close()
			return err
		}
	}
	s.nc.Close()
	return nil
}
