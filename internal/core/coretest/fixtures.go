package coretest

import (
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

// Codecs is the router codec list used across tests.
func Codecs() []core.RTPCodecCapability {
	return []core.RTPCodecCapability{
		{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: domain.KindVideo, MimeType: "video/VP8", ClockRate: 90000, Parameters: map[string]any{"x-google-start-bitrate": 1000}},
	}
}

// VideoParams describes a VP8 stream with one encoding per ssrc.
func VideoParams(ssrcs ...uint32) core.RTPParameters {
	if len(ssrcs) == 0 {
		ssrcs = []uint32{1111}
	}
	p := core.RTPParameters{
		Codecs: []core.RTPCodecParameters{{MimeType: "video/VP8", PayloadType: 101, ClockRate: 90000}},
		RTCP:   core.RTCPParameters{CNAME: "test"},
	}
	for _, s := range ssrcs {
		p.Encodings = append(p.Encodings, core.RTPEncodingParameters{SSRC: s})
	}
	return p
}

func AudioParams() core.RTPParameters {
	return core.RTPParameters{
		Codecs:    []core.RTPCodecParameters{{MimeType: "audio/opus", PayloadType: 100, ClockRate: 48000, Channels: 2}},
		Encodings: []core.RTPEncodingParameters{{SSRC: 2222}},
		RTCP:      core.RTCPParameters{CNAME: "test"},
	}
}

// AudioOnlyCaps can decode opus but not VP8.
func AudioOnlyCaps() core.RTPCapabilities {
	return core.RTPCapabilities{Codecs: []core.RTPCodecCapability{Codecs()[0]}}
}
