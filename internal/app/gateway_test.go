package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/core/coretest"
	"github.com/dkeye/SFU/internal/domain"
)

func newTestGateway(t *testing.T, cfg GatewayConfig) (*Gateway, *coretest.Worker) {
	t.Helper()
	w := coretest.NewWorker()
	if cfg.Codecs == nil {
		cfg.Codecs = coretest.Codecs()
	}
	g, err := StartGateway(context.Background(), func(context.Context) (core.Worker, error) { return w, nil }, cfg)
	require.NoError(t, err)
	return g, w
}

func TestStartGatewayWorkerFailure(t *testing.T) {
	boom := errors.New("spawn failed")
	_, err := StartGateway(context.Background(), func(context.Context) (core.Worker, error) { return nil, boom }, GatewayConfig{})
	require.ErrorIs(t, err, ErrWorkerStart)
	require.ErrorIs(t, err, boom)
}

func TestStartGatewayRouterFailure(t *testing.T) {
	w := coretest.NewWorker()
	w.RouterErr = errors.New("bad codecs")
	_, err := StartGateway(context.Background(), func(context.Context) (core.Worker, error) { return w, nil }, GatewayConfig{})
	require.ErrorIs(t, err, w.RouterErr)
}

func TestGatewayRTPCapabilities(t *testing.T) {
	g, w := newTestGateway(t, GatewayConfig{})
	caps := g.RTPCapabilities()
	require.Len(t, caps.Codecs, 2)
	require.Equal(t, "audio/opus", caps.Codecs[0].MimeType)
	require.Equal(t, w.ID(), g.Worker().ID())
}

func TestGatewayCreateTransport(t *testing.T) {
	t.Run("bitrate cap applied", func(t *testing.T) {
		g, w := newTestGateway(t, GatewayConfig{MaxIncomingBitrate: 1500000, InitialAvailableOutgoingBitrate: 1000000})
		tr, err := g.CreateTransport(context.Background(), false)
		require.NoError(t, err)
		fake := w.Router().Transports()[0]
		require.Equal(t, tr.ID(), fake.ID())
		require.Equal(t, uint32(1500000), fake.MaxIncomingBitrate())
		opts := fake.Options()
		require.True(t, opts.EnableUDP)
		require.True(t, opts.EnableTCP)
		require.True(t, opts.PreferUDP)
		require.Equal(t, uint32(1000000), opts.InitialAvailableOutgoingBitrate)
	})
	t.Run("bitrate failure tolerated", func(t *testing.T) {
		g, w := newTestGateway(t, GatewayConfig{MaxIncomingBitrate: 1500000})
		w.Router().BitrateErr = errors.New("not supported")
		tr, err := g.CreateTransport(context.Background(), false)
		require.NoError(t, err)
		require.NotEmpty(t, tr.Params().ICECandidates)
	})
	t.Run("force tcp", func(t *testing.T) {
		g, w := newTestGateway(t, GatewayConfig{})
		_, err := g.CreateTransport(context.Background(), true)
		require.NoError(t, err)
		opts := w.Router().Transports()[0].Options()
		require.False(t, opts.EnableUDP)
		require.True(t, opts.EnableTCP)
		require.False(t, opts.PreferUDP)
	})
	t.Run("engine failure", func(t *testing.T) {
		g, w := newTestGateway(t, GatewayConfig{})
		w.Router().TransportErr = errors.New("no ports")
		_, err := g.CreateTransport(context.Background(), false)
		require.ErrorIs(t, err, w.Router().TransportErr)
	})
}

func TestGatewayConsume(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name       string
		kind       domain.MediaKind
		params     core.RTPParameters
		wantPaused bool
		wantType   core.ConsumerType
	}{
		{"video starts paused", domain.KindVideo, coretest.VideoParams(), true, core.ConsumerSimple},
		{"audio starts unpaused", domain.KindAudio, coretest.AudioParams(), false, core.ConsumerSimple},
		{"simulcast video", domain.KindVideo, coretest.VideoParams(1, 2, 3), true, core.ConsumerSimulcast},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _ := newTestGateway(t, GatewayConfig{})
			send, err := g.CreateTransport(ctx, false)
			require.NoError(t, err)
			recv, err := g.CreateTransport(ctx, false)
			require.NoError(t, err)
			p, err := send.Produce(ctx, tc.kind, tc.params)
			require.NoError(t, err)

			c, err := g.Consume(ctx, recv, p, g.RTPCapabilities())
			require.NoError(t, err)
			require.Equal(t, tc.wantPaused, c.Paused())
			require.Equal(t, tc.wantType, c.Type())

			spatial, temporal, set := c.(*coretest.Consumer).PreferredLayers()
			if tc.wantType == core.ConsumerSimulcast {
				require.True(t, set)
				require.Equal(t, PreferredSpatialLayer, spatial)
				require.Equal(t, PreferredTemporalLayer, temporal)
			} else {
				require.False(t, set)
			}
		})
	}
}

func TestGatewayConsumeIncompatible(t *testing.T) {
	ctx := context.Background()
	g, w := newTestGateway(t, GatewayConfig{})
	send, err := g.CreateTransport(ctx, false)
	require.NoError(t, err)
	recv, err := g.CreateTransport(ctx, false)
	require.NoError(t, err)
	p, err := send.Produce(ctx, domain.KindVideo, coretest.VideoParams())
	require.NoError(t, err)

	require.False(t, g.CanConsume(p.ID(), coretest.AudioOnlyCaps()))
	_, err = g.Consume(ctx, recv, p, coretest.AudioOnlyCaps())
	require.ErrorIs(t, err, ErrCannotConsume)
	require.Empty(t, w.Router().Transports()[1].Consumers())
}
