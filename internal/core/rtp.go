package core

import (
	"strings"

	"github.com/dkeye/SFU/internal/domain"
)

// The types below mirror the JSON shapes exchanged with browser clients
// (mediasoup-client compatible field names).

type RTCPFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type RTPCodecCapability struct {
	Kind                 domain.MediaKind `json:"kind"`
	MimeType             string           `json:"mimeType"`
	PreferredPayloadType uint8            `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32           `json:"clockRate"`
	Channels             uint16           `json:"channels,omitempty"`
	Parameters           map[string]any   `json:"parameters,omitempty"`
	RTCPFeedback         []RTCPFeedback   `json:"rtcpFeedback,omitempty"`
}

type RTPHeaderExtension struct {
	Kind             domain.MediaKind `json:"kind"`
	URI              string           `json:"uri"`
	PreferredID      int              `json:"preferredId"`
	PreferredEncrypt bool             `json:"preferredEncrypt,omitempty"`
	Direction        string           `json:"direction,omitempty"`
}

type RTPCapabilities struct {
	Codecs           []RTPCodecCapability `json:"codecs"`
	HeaderExtensions []RTPHeaderExtension `json:"headerExtensions,omitempty"`
}

type RTPCodecParameters struct {
	MimeType     string         `json:"mimeType"`
	PayloadType  uint8          `json:"payloadType"`
	ClockRate    uint32         `json:"clockRate"`
	Channels     uint16         `json:"channels,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
	RTCPFeedback []RTCPFeedback `json:"rtcpFeedback,omitempty"`
}

type RTPHeaderExtensionParameters struct {
	URI        string         `json:"uri"`
	ID         int            `json:"id"`
	Encrypt    bool           `json:"encrypt,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type RTXParameters struct {
	SSRC uint32 `json:"ssrc"`
}

type RTPEncodingParameters struct {
	SSRC            uint32         `json:"ssrc,omitempty"`
	RID             string         `json:"rid,omitempty"`
	RTX             *RTXParameters `json:"rtx,omitempty"`
	ScalabilityMode string         `json:"scalabilityMode,omitempty"`
	MaxBitrate      uint32         `json:"maxBitrate,omitempty"`
	DTX             bool           `json:"dtx,omitempty"`
}

type RTCPParameters struct {
	CNAME       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize,omitempty"`
}

type RTPParameters struct {
	MID              string                         `json:"mid,omitempty"`
	Codecs           []RTPCodecParameters           `json:"codecs"`
	HeaderExtensions []RTPHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []RTPEncodingParameters        `json:"encodings,omitempty"`
	RTCP             RTCPParameters                 `json:"rtcp"`
}

// ICE / DTLS

type ICEParameters struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type ICECandidate struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Address    string `json:"address"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
	TCPType    string `json:"tcpType,omitempty"`
}

type DTLSFingerprint struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

type DTLSParameters struct {
	Role         string            `json:"role,omitempty"`
	Fingerprints []DTLSFingerprint `json:"fingerprints"`
}

// TransportParams is what a client needs to build its side of a transport.
type TransportParams struct {
	ID             string         `json:"id"`
	ICEParameters  ICEParameters  `json:"iceParameters"`
	ICECandidates  []ICECandidate `json:"iceCandidates"`
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
}

// SupportsCodec reports whether caps lists a codec matching mime type and clock rate
// (and channel count for audio).
func (caps RTPCapabilities) SupportsCodec(c RTPCodecParameters) bool {
	for _, cc := range caps.Codecs {
		if !strings.EqualFold(cc.MimeType, c.MimeType) || cc.ClockRate != c.ClockRate {
			continue
		}
		if c.Channels > 0 && cc.Channels > 0 && cc.Channels != c.Channels {
			continue
		}
		return true
	}
	return false
}

// Match returns the capability entry matching c, if any.
func (caps RTPCapabilities) Match(c RTPCodecParameters) (RTPCodecCapability, bool) {
	for _, cc := range caps.Codecs {
		if strings.EqualFold(cc.MimeType, c.MimeType) && cc.ClockRate == c.ClockRate {
			return cc, true
		}
	}
	return RTPCodecCapability{}, false
}
