package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

func (o *Orchestrator) RouterRTPCapabilities() core.RTPCapabilities {
	return o.Gateway.RTPCapabilities()
}

// CreateProducerTransport allocates a transport and registers it under
// req.ID. An id held by another live session is refused; the owning session
// may recreate it, which closes the previous transport.
func (o *Orchestrator) CreateProducerTransport(ctx context.Context, s *Session, req core.CreateProducerTransportRequest) (core.TransportParams, error) {
	if err := req.ID.Validate(); err != nil {
		return core.TransportParams{}, err
	}
	if err := o.Registry.Claim(req.ID, s.ID); err != nil {
		return core.TransportParams{}, err
	}
	t, err := o.Gateway.CreateTransport(ctx, req.ForceTCP)
	if err != nil {
		return core.TransportParams{}, err
	}
	prev, err := o.Registry.BindProducerTransport(req.ID, s.ID, t)
	if err != nil {
		_ = t.Close()
		return core.TransportParams{}, err
	}
	if prev != nil {
		_ = prev.Close()
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Str("participant", string(req.ID)).Str("transport", t.ID()).Msg("producer transport created")
	return t.Params(), nil
}

func (o *Orchestrator) CreateConsumerTransport(ctx context.Context, s *Session) (core.TransportParams, error) {
	t, err := o.Gateway.CreateTransport(ctx, false)
	if err != nil {
		return core.TransportParams{}, err
	}
	if prev := s.swapConsumerTransport(t); prev != nil {
		_ = prev.Close()
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Str("transport", t.ID()).Msg("consumer transport created")
	return t.Params(), nil
}

func (o *Orchestrator) ConnectProducerTransport(ctx context.Context, s *Session, req core.ConnectProducerTransportRequest) error {
	t, err := o.Registry.ProducerTransport(req.ID, s.ID)
	if err != nil {
		return err
	}
	if err := t.Connect(ctx, core.ConnectParams{DTLSParameters: req.DTLSParameters, ICEParameters: req.ICEParameters}); err != nil {
		return fmt.Errorf("connect producer transport: %w", err)
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Str("participant", string(req.ID)).Msg("producer transport connected")
	return nil
}

// ConnectConsumerTransport acks even when the session has no consumer
// transport yet; that case is only logged.
func (o *Orchestrator) ConnectConsumerTransport(ctx context.Context, s *Session, req core.ConnectConsumerTransportRequest) error {
	t := s.ConsumerTransport()
	if t == nil {
		log.Warn().Str("module", "orch").Str("sid", string(s.ID)).Msg("no consumer transport")
		return nil
	}
	if err := t.Connect(ctx, core.ConnectParams{DTLSParameters: req.DTLSParameters, ICEParameters: req.ICEParameters}); err != nil {
		return fmt.Errorf("connect consumer transport: %w", err)
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Msg("consumer transport connected")
	return nil
}

func (o *Orchestrator) SetResources(s *Session, r domain.ResourceFlags) {
	s.setResources(r)
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Bool("screen", r.Screen).Bool("video", r.Video).Bool("audio", r.Audio).Msg("resources updated")
}
