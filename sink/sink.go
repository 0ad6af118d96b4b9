// Package sink delivers a stream of text records to an HTTP endpoint, one
// request per record, with query parameters taken from fields of the record.
package sink

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Sink delivers each record of a Source as one HTTP request.
// Records are handled strictly one at a time: record N+1 is not pulled
// from the Source until the request for record N has resolved.
// A Sink must not be shared between goroutines; run one Sink per stream.
type Sink struct {
	state      State
	dispatcher Dispatcher
	logger     *zap.Logger
}

type sinkOptions struct {
	logger   *zap.Logger
	metrics  *Metrics
	template []TemplateOption
}

// Option is a functional option for configuring New.
type Option func(*sinkOptions)

// WithLogger sets the logger; a no-op logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(o *sinkOptions) {
		o.logger = logger
	}
}

// WithMetrics records every dispatch on m.
func WithMetrics(m *Metrics) Option {
	return func(o *sinkOptions) {
		o.metrics = m
	}
}

// WithTemplateOptions passes options through to BuildTemplate.
func WithTemplateOptions(opts ...TemplateOption) Option {
	return func(o *sinkOptions) {
		o.template = append(o.template, opts...)
	}
}

// New builds the request template from config. Any error wraps ErrConfig
// and the Sink is not usable.
func New(config HTTPConfig, opts ...Option) (*Sink, error) {
	var options sinkOptions
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = zap.NewNop()
	}

	state, err := NewState(config, options.template...)
	if err != nil {
		return nil, err
	}
	return &Sink{
		state:      state,
		dispatcher: Dispatcher{Logger: options.logger, Metrics: options.metrics},
		logger:     options.logger,
	}, nil
}

// State returns the state the first record is processed with.
func (s *Sink) State() State {
	return s.state
}

// Process enriches and dispatches one record and returns the state for
// the next record, which is always state itself.
func (s *Sink) Process(ctx context.Context, state State, record string) (State, Outcome, error) {
	augmentations := Enrich(record, state.Parameters)
	outcome, err := s.dispatcher.Dispatch(ctx, state.Template, augmentations, record)
	return state, outcome, err
}

// Run consumes src until it is exhausted or ctx is cancelled, both of
// which return nil. Cancellation is observed between records; a request
// already in flight is left to complete. A failed clone or transport
// failure stops the stream and is returned. When src is a Committer each
// record is committed after its request has resolved.
func (s *Sink) Run(ctx context.Context, src Source) error {
	state := s.state
	s.logger.Info("sink connected",
		zap.String("method", state.Template.Method()),
		zap.String("endpoint", state.Template.Endpoint()),
		zap.Int("url_parameters", len(state.Parameters)),
	)

	var sent, nonSuccess uint64
	defer func() {
		s.logger.Info("sink closed", zap.Uint64("records", sent), zap.Uint64("non_success", nonSuccess))
	}()

	for seq := uint64(1); ; seq++ {
		if ctx.Err() != nil {
			return nil
		}
		record, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
				return nil
			}
			return fmt.Errorf("failed to read record %d %w", seq, err)
		}

		var outcome Outcome
		state, outcome, err = s.Process(context.WithoutCancel(ctx), state, record)
		if err != nil {
			return fmt.Errorf("record %d: %w", seq, err)
		}
		sent++
		if !outcome.Success() {
			nonSuccess++
		}
		if committer, ok := src.(Committer); ok {
			if err = committer.Commit(context.WithoutCancel(ctx)); err != nil {
				return fmt.Errorf("failed to commit record %d %w", seq, err)
			}
		}
	}
}
