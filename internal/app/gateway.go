package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

var (
	ErrWorkerStart   = errors.New("media worker failed to start")
	ErrCannotConsume = errors.New("cannot consume")
)

// Simulcast consumers are pinned to the highest layers right after creation.
const (
	PreferredSpatialLayer  uint8 = 2
	PreferredTemporalLayer uint8 = 2
)

type GatewayConfig struct {
	Codecs                          []core.RTPCodecCapability
	ListenIPs                       []core.ListenIP
	MaxIncomingBitrate              uint32
	InitialAvailableOutgoingBitrate uint32
}

// WorkerFactory starts the media engine worker.
type WorkerFactory func(ctx context.Context) (core.Worker, error)

// Gateway owns the process' single worker and router.
type Gateway struct {
	cfg    GatewayConfig
	worker core.Worker
	router core.Router
}

// StartGateway creates the worker and its router. Failures are fatal for the
// process and are not retried.
func StartGateway(ctx context.Context, newWorker WorkerFactory, cfg GatewayConfig) (*Gateway, error) {
	worker, err := newWorker(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerStart, err)
	}
	router, err := worker.CreateRouter(ctx, cfg.Codecs)
	if err != nil {
		_ = worker.Close()
		return nil, fmt.Errorf("create router: %w", err)
	}
	log.Info().Str("module", "app.gateway").Str("worker", worker.ID()).Str("router", router.ID()).Msg("router created in worker")
	return &Gateway{cfg: cfg, worker: worker, router: router}, nil
}

func (g *Gateway) Worker() core.Worker { return g.worker }

func (g *Gateway) RTPCapabilities() core.RTPCapabilities { return g.router.RTPCapabilities() }

// CreateTransport allocates a WebRTC transport. The incoming bitrate cap is
// best effort: failing to apply it does not fail the transport.
func (g *Gateway) CreateTransport(ctx context.Context, forceTCP bool) (core.Transport, error) {
	t, err := g.router.CreateWebRTCTransport(ctx, core.TransportOptions{
		ListenIPs:                       g.cfg.ListenIPs,
		EnableUDP:                       !forceTCP,
		EnableTCP:                       true,
		PreferUDP:                       !forceTCP,
		InitialAvailableOutgoingBitrate: g.cfg.InitialAvailableOutgoingBitrate,
	})
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	if g.cfg.MaxIncomingBitrate > 0 {
		if err := t.SetMaxIncomingBitrate(g.cfg.MaxIncomingBitrate); err != nil {
			log.Warn().Err(err).Str("module", "app.gateway").Str("transport", t.ID()).Msg("set max incoming bitrate")
		}
	}
	return t, nil
}

func (g *Gateway) CanConsume(producerID string, caps core.RTPCapabilities) bool {
	return g.router.CanConsume(producerID, caps)
}

// Consume creates a consumer of p on t. Video starts paused, audio does not.
// ErrCannotConsume is returned before t is touched when the capabilities do
// not match.
func (g *Gateway) Consume(ctx context.Context, t core.Transport, p core.Producer, caps core.RTPCapabilities) (core.Consumer, error) {
	if !g.CanConsume(p.ID(), caps) {
		return nil, ErrCannotConsume
	}
	c, err := t.Consume(ctx, core.ConsumeOptions{
		ProducerID:      p.ID(),
		RTPCapabilities: caps,
		Paused:          p.Kind() == domain.KindVideo,
	})
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	if c.Type() == core.ConsumerSimulcast {
		if err := c.SetPreferredLayers(ctx, PreferredSpatialLayer, PreferredTemporalLayer); err != nil {
			log.Warn().Err(err).Str("module", "app.gateway").Str("consumer", c.ID()).Msg("set preferred layers")
		}
	}
	return c, nil
}

func (g *Gateway) Close() error {
	_ = g.router.Close()
	return g.worker.Close()
}
