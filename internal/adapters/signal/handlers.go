package signal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/app/orch"
	"github.com/dkeye/SFU/internal/core"
)

type handlerFunc func(ctx context.Context, s *orch.Session, data json.RawMessage) (any, error)

func (ctl *SignalWSController) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		core.MethodGetRouterRTPCapabilities: ctl.handleGetRouterRTPCapabilities,
		core.MethodCreateProducerTransport:  ctl.handleCreateProducerTransport,
		core.MethodCreateConsumerTransport:  ctl.handleCreateConsumerTransport,
		core.MethodConnectProducerTransport: ctl.handleConnectProducerTransport,
		core.MethodConnectConsumerTransport: ctl.handleConnectConsumerTransport,
		core.MethodProduce:                  ctl.handleProduce,
		core.MethodConsume:                  ctl.handleConsume,
		core.MethodResume:                   ctl.handleResume,
		core.MethodSetResources:             ctl.handleSetResources,
		core.MethodMessage:                  ctl.handleMessage,
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("bad payload: %w", err)
	}
	return v, nil
}

func (ctl *SignalWSController) handleGetRouterRTPCapabilities(_ context.Context, _ *orch.Session, _ json.RawMessage) (any, error) {
	return ctl.Orch.RouterRTPCapabilities(), nil
}

func (ctl *SignalWSController) handleCreateProducerTransport(ctx context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.CreateProducerTransportRequest](data)
	if err != nil {
		return nil, err
	}
	if err := ctl.allow(s); err != nil {
		return nil, err
	}
	return ctl.Orch.CreateProducerTransport(ctx, s, req)
}

func (ctl *SignalWSController) handleCreateConsumerTransport(ctx context.Context, s *orch.Session, _ json.RawMessage) (any, error) {
	if err := ctl.allow(s); err != nil {
		return nil, err
	}
	return ctl.Orch.CreateConsumerTransport(ctx, s)
}

func (ctl *SignalWSController) handleConnectProducerTransport(ctx context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.ConnectProducerTransportRequest](data)
	if err != nil {
		return nil, err
	}
	if err := ctl.Orch.ConnectProducerTransport(ctx, s, req); err != nil {
		return nil, err
	}
	return core.Ack{}, nil
}

func (ctl *SignalWSController) handleConnectConsumerTransport(ctx context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.ConnectConsumerTransportRequest](data)
	if err != nil {
		return nil, err
	}
	if err := ctl.Orch.ConnectConsumerTransport(ctx, s, req); err != nil {
		return nil, err
	}
	return core.Ack{}, nil
}

func (ctl *SignalWSController) handleProduce(ctx context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.ProduceRequest](data)
	if err != nil {
		return nil, err
	}
	return ctl.Orch.Produce(ctx, s, req)
}

func (ctl *SignalWSController) handleConsume(ctx context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.ConsumeRequest](data)
	if err != nil {
		return nil, err
	}
	return ctl.Orch.Consume(ctx, s, req)
}

func (ctl *SignalWSController) handleResume(ctx context.Context, s *orch.Session, _ json.RawMessage) (any, error) {
	if err := ctl.Orch.Resume(ctx, s); err != nil {
		return nil, err
	}
	return core.Ack{}, nil
}

func (ctl *SignalWSController) handleSetResources(_ context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.SetResourcesRequest](data)
	if err != nil {
		return nil, err
	}
	ctl.Orch.SetResources(s, req.Resources)
	return core.Ack{}, nil
}

func (ctl *SignalWSController) handleMessage(_ context.Context, s *orch.Session, data json.RawMessage) (any, error) {
	req, err := decode[core.MessageRequest](data)
	if err != nil {
		return nil, err
	}
	msg := req.Message
	if len(msg) == 0 {
		msg = json.RawMessage("null")
	}
	log.Info().Str("module", "signal").Str("sid", string(s.ID)).RawJSON("message", msg).Msg("client message")
	return core.Ack{}, nil
}

func (ctl *SignalWSController) allow(s *orch.Session) error {
	if ctl.Limiter == nil || ctl.Limiter.Allow(s.ID) {
		return nil
	}
	return ErrRateLimited
}
