package sink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const (
	natsPollInterval      = time.Second
	natsInactiveThreshold = 5 * time.Minute
)

// NATSSource pulls records from a JetStream consumer, one message per call
// to Next. Messages stay on the stream until they are fetched, so a slow
// endpoint holds the stream back instead of dropping records.
//
// A fetched message is acknowledged by Commit. One that is never committed,
// because its send failed or the process stopped, is redelivered once the
// consumer's ack wait expires.
type NATSSource struct {
	subject      string
	consumer     jetstream.Consumer
	pollInterval time.Duration
	pending      jetstream.Msg
}

// NewNATSSource creates or updates the consumer for subject on stream.
// With a durable name the consumer outlives the process and is shared by
// every process using the same name; otherwise it is ephemeral.
func NewNATSSource(ctx context.Context, js jetstream.JetStream, stream, subject, durable string) (*NATSSource, error) {
	config := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable != "" {
		config.Durable = consumerName(durable, subject)
	} else {
		config.InactiveThreshold = natsInactiveThreshold
	}
	consumer, err := js.CreateOrUpdateConsumer(ctx, stream, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer for %q on stream %s %w", subject, stream, err)
	}
	return &NATSSource{subject: subject, consumer: consumer, pollInterval: natsPollInterval}, nil
}

// consumerName derives one consumer per subject from a durable name.
// Consumer names may not contain subject tokens or wildcards.
func consumerName(durable, subject string) string {
	return durable + "_" + strings.NewReplacer(".", "_", "*", "any", ">", "all").Replace(subject)
}

// Subject returns the filtered subject.
func (s *NATSSource) Subject() string {
	return s.subject
}

// Next waits for the next message. The wait is polled so ctx is observed
// at least once per poll interval.
func (s *NATSSource) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		msg, err := s.consumer.Next(jetstream.FetchMaxWait(s.pollInterval))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, jetstream.ErrConsumerDeleted) {
				return "", io.EOF
			}
			return "", err
		}
		s.pending = msg
		return string(msg.Data()), nil
	}
}

// Commit acknowledges the message last returned by Next and waits for the
// server to confirm it.
func (s *NATSSource) Commit(ctx context.Context) error {
	if s.pending == nil {
		return nil
	}
	msg := s.pending
	s.pending = nil
	if err := msg.DoubleAck(ctx); err != nil {
		return fmt.Errorf("failed to ack message on %s %w", s.subject, err)
	}
	return nil
}
