package rtc

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

const firstDynamicPayloadType = 100

var (
	videoFeedback = []core.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
		{Type: "ccm", Parameter: "fir"},
		{Type: "goog-remb"},
		{Type: "transport-cc"},
	}
	audioFeedback = []core.RTCPFeedback{
		{Type: "transport-cc"},
	}
)

func codecType(kind domain.MediaKind) webrtc.RTPCodecType {
	if kind == domain.KindAudio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// fmtpLine renders codec parameters as an SDP fmtp line with sorted keys.
func fmtpLine(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, params[k]))
	}
	return strings.Join(parts, ";")
}

func toPionFeedback(fb []core.RTCPFeedback) []webrtc.RTCPFeedback {
	out := make([]webrtc.RTCPFeedback, 0, len(fb))
	for _, f := range fb {
		out = append(out, webrtc.RTCPFeedback{Type: f.Type, Parameter: f.Parameter})
	}
	return out
}

// routerCapabilities assigns payload types and RTCP feedback to the
// configured codecs and registers them with m.
func routerCapabilities(m *webrtc.MediaEngine, codecs []core.RTPCodecCapability) (core.RTPCapabilities, error) {
	caps := core.RTPCapabilities{}
	for i, c := range codecs {
		c.PreferredPayloadType = uint8(firstDynamicPayloadType + i)
		if c.Kind == domain.KindAudio {
			c.RTCPFeedback = audioFeedback
		} else {
			c.RTCPFeedback = videoFeedback
		}
		err := m.RegisterCodec(webrtc.RTPCodecParameters{
			RTPCodecCapability: webrtc.RTPCodecCapability{
				MimeType:     c.MimeType,
				ClockRate:    c.ClockRate,
				Channels:     c.Channels,
				SDPFmtpLine:  fmtpLine(c.Parameters),
				RTCPFeedback: toPionFeedback(c.RTCPFeedback),
			},
			PayloadType: webrtc.PayloadType(c.PreferredPayloadType),
		}, codecType(c.Kind))
		if err != nil {
			return core.RTPCapabilities{}, fmt.Errorf("register codec %s: %w", c.MimeType, err)
		}
		caps.Codecs = append(caps.Codecs, c)
	}
	return caps, nil
}

func trackCapability(c core.RTPCodecParameters) webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:     c.MimeType,
		ClockRate:    c.ClockRate,
		Channels:     c.Channels,
		SDPFmtpLine:  fmtpLine(c.Parameters),
		RTCPFeedback: toPionFeedback(c.RTCPFeedback),
	}
}
