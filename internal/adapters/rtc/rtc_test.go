package rtc

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/core/coretest"
	"github.com/dkeye/SFU/internal/domain"
)

func TestFmtpLine(t *testing.T) {
	require.Equal(t, "", fmtpLine(nil))
	require.Equal(t, "x-google-start-bitrate=1000", fmtpLine(map[string]any{"x-google-start-bitrate": 1000}))
	require.Equal(t, "a=1;b=two", fmtpLine(map[string]any{"b": "two", "a": 1}))
}

func TestRouterCapabilities(t *testing.T) {
	caps, err := routerCapabilities(&webrtc.MediaEngine{}, coretest.Codecs())
	require.NoError(t, err)
	require.Len(t, caps.Codecs, 2)

	audio, video := caps.Codecs[0], caps.Codecs[1]
	require.Equal(t, uint8(100), audio.PreferredPayloadType)
	require.Equal(t, uint8(101), video.PreferredPayloadType)
	require.Equal(t, audioFeedback, audio.RTCPFeedback)
	require.Equal(t, videoFeedback, video.RTCPFeedback)
}

func TestNewWorkerPortRange(t *testing.T) {
	_, err := NewWorker(context.Background(), WorkerSettings{MinPort: 20000, MaxPort: 10000})
	require.ErrorIs(t, err, ErrBadPortRange)
}

func TestWorkerRouterLifecycle(t *testing.T) {
	ctx := context.Background()
	w, err := NewWorker(ctx, WorkerSettings{MinPort: 40000, MaxPort: 49999, LogLevel: "warn", AnnouncedIP: "203.0.113.7"})
	require.NoError(t, err)
	require.NotEmpty(t, w.ID())

	r, err := w.CreateRouter(ctx, coretest.Codecs())
	require.NoError(t, err)
	require.Len(t, r.RTPCapabilities().Codecs, 2)
	require.False(t, r.CanConsume("unknown", r.RTPCapabilities()))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err = w.CreateRouter(ctx, coretest.Codecs())
	require.ErrorIs(t, err, ErrWorkerClosed)

	rr := r.(*Router)
	_, err = rr.CreateWebRTCTransport(ctx, core.TransportOptions{EnableUDP: true})
	require.ErrorIs(t, err, ErrRouterClosed)
}

func TestWorkerDieOnce(t *testing.T) {
	w, err := NewWorker(context.Background(), WorkerSettings{})
	require.NoError(t, err)
	w.die(context.Canceled)
	w.die(context.DeadlineExceeded)
	require.ErrorIs(t, <-w.Died(), context.Canceled)
	select {
	case err := <-w.Died():
		t.Fatalf("second death reported: %v", err)
	default:
	}
}

func TestLoggerFactoryScopes(t *testing.T) {
	f := newLoggerFactory("debug", []string{"ice", "dtls"})
	require.Equal(t, zerolog.DebugLevel, f.NewLogger("ice").(*leveledLogger).l.GetLevel())
	require.Equal(t, zerolog.DebugLevel, f.NewLogger("dtls").(*leveledLogger).l.GetLevel())
	require.Equal(t, zerolog.ErrorLevel, f.NewLogger("sctp").(*leveledLogger).l.GetLevel())

	require.Equal(t, zerolog.WarnLevel, newLoggerFactory("", nil).level)
	require.Equal(t, zerolog.WarnLevel, newLoggerFactory("loud", nil).level)
}

func TestDTLSParametersConversion(t *testing.T) {
	in := core.DTLSParameters{Role: "client", Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AB:CD"}}}
	out := fromDTLSParameters(in)
	require.Equal(t, webrtc.DTLSRoleClient, out.Role)
	require.Equal(t, "AB:CD", out.Fingerprints[0].Value)

	back := toDTLSParameters(out)
	require.Equal(t, in, back)

	require.Equal(t, webrtc.DTLSRoleAuto, fromDTLSParameters(core.DTLSParameters{}).Role)
}

func TestCodecType(t *testing.T) {
	require.Equal(t, webrtc.RTPCodecTypeAudio, codecType(domain.KindAudio))
	require.Equal(t, webrtc.RTPCodecTypeVideo, codecType(domain.KindVideo))
}
