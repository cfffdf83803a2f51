package core

import (
	"context"

	"github.com/dkeye/SFU/internal/domain"
)

// The media engine contract. Implementations own packet routing, ICE, DTLS and SRTP;
// the signaling plane only sequences these calls.

type ListenIP struct {
	IP          string `json:"ip"`
	AnnouncedIP string `json:"announcedIp,omitempty"`
}

type TransportOptions struct {
	ListenIPs                       []ListenIP
	EnableUDP                       bool
	EnableTCP                       bool
	PreferUDP                       bool
	InitialAvailableOutgoingBitrate uint32
}

type ConnectParams struct {
	DTLSParameters DTLSParameters
	// ICEParameters are optional; engines running ICE lite without remote
	// credentials ignore them.
	ICEParameters *ICEParameters
}

type ConsumeOptions struct {
	ProducerID      string
	RTPCapabilities RTPCapabilities
	Paused          bool
}

type ConsumerType string

const (
	ConsumerSimple    ConsumerType = "simple"
	ConsumerSimulcast ConsumerType = "simulcast"
	ConsumerSVC       ConsumerType = "svc"
)

type Worker interface {
	ID() string
	CreateRouter(ctx context.Context, codecs []RTPCodecCapability) (Router, error)
	// Died delivers at most one error when the worker stops unexpectedly.
	Died() <-chan error
	Close() error
}

type Router interface {
	ID() string
	RTPCapabilities() RTPCapabilities
	CanConsume(producerID string, caps RTPCapabilities) bool
	CreateWebRTCTransport(ctx context.Context, opts TransportOptions) (Transport, error)
	Close() error
}

type Transport interface {
	ID() string
	Params() TransportParams
	SetMaxIncomingBitrate(bps uint32) error
	Connect(ctx context.Context, params ConnectParams) error
	Produce(ctx context.Context, kind domain.MediaKind, params RTPParameters) (Producer, error)
	Consume(ctx context.Context, opts ConsumeOptions) (Consumer, error)
	Close() error
}

type Producer interface {
	ID() string
	Kind() domain.MediaKind
	RTPParameters() RTPParameters
	Paused() bool
	Close() error
}

type Consumer interface {
	ID() string
	ProducerID() string
	Kind() domain.MediaKind
	RTPParameters() RTPParameters
	Type() ConsumerType
	Paused() bool
	ProducerPaused() bool
	SetPreferredLayers(ctx context.Context, spatial, temporal uint8) error
	Resume(ctx context.Context) error
	Close() error
}
