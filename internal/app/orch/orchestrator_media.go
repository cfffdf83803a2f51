package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
	"github.com/dkeye/SFU/internal/telemetry"
)

// Produce creates a producer on the participant's transport, stores it and
// announces it to every other session. The announcement is sent only after
// the registry holds the producer.
func (o *Orchestrator) Produce(ctx context.Context, s *Session, req core.ProduceRequest) (core.ProduceResponse, error) {
	kind, err := domain.ParseKind(req.Kind)
	if err != nil {
		return core.ProduceResponse{}, err
	}
	t, err := o.Registry.ProducerTransport(req.ID, s.ID)
	if err != nil {
		return core.ProduceResponse{}, err
	}
	p, err := t.Produce(ctx, kind, req.RTPParameters)
	if err != nil {
		return core.ProduceResponse{}, fmt.Errorf("produce: %w", err)
	}

	res, err := o.Hub.Announce(s.ID, req.ID, func() error {
		return o.Registry.SetProducer(req.ID, p)
	})
	if err != nil {
		_ = p.Close()
		return core.ProduceResponse{}, err
	}
	telemetry.ProducerAdded(string(kind))
	o.directoryAdd(req.ID)

	log.Info().
		Str("module", "orch").
		Str("sid", string(s.ID)).
		Str("participant", string(req.ID)).
		Str("producer", p.ID()).
		Str("kind", string(kind)).
		Int("announced_to", res.SendTo).
		Msg("producer created")
	return core.ProduceResponse{ID: p.ID()}, nil
}

// Consume creates a consumer for the producer registered under req.ID on the
// session's consumer transport. ProducerPaused in the description is true
// while no media flows to the consumer, which for video lasts until Resume.
func (o *Orchestrator) Consume(ctx context.Context, s *Session, req core.ConsumeRequest) (core.ConsumerDescription, error) {
	p, err := o.Registry.Producer(req.ID)
	if err != nil {
		return core.ConsumerDescription{}, err
	}
	t := s.ConsumerTransport()
	if t == nil {
		return core.ConsumerDescription{}, ErrNoConsumerTransport
	}
	c, err := o.Gateway.Consume(ctx, t, p, req.RTPCapabilities)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(s.ID)).Str("producer", p.ID()).Msg("can not consume")
		return core.ConsumerDescription{}, err
	}
	s.setConsumer(c)
	o.Registry.SetConsumer(req.ID, c)
	telemetry.ConsumerCreated(string(c.Kind()), string(c.Type()))

	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Str("producer", p.ID()).Str("consumer", c.ID()).Bool("paused", c.Paused()).Msg("consumer created")
	return core.ConsumerDescription{
		ProducerID:     p.ID(),
		ID:             c.ID(),
		Kind:           c.Kind(),
		RTPParameters:  c.RTPParameters(),
		Type:           c.Type(),
		ProducerPaused: c.ProducerPaused() || c.Paused(),
	}, nil
}

// Resume resumes the session's most recent consumer.
func (o *Orchestrator) Resume(ctx context.Context, s *Session) error {
	c := s.Consumer()
	if c == nil {
		return ErrNoConsumer
	}
	if err := c.Resume(ctx); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Str("consumer", c.ID()).Msg("consumer resumed")
	return nil
}
