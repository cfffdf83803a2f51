package core

import (
	"encoding/json"

	"github.com/dkeye/SFU/internal/domain"
)

// Request methods.
const (
	MethodGetRouterRTPCapabilities = "getRouterRtpCapabilities"
	MethodCreateProducerTransport  = "createProducerTransport"
	MethodCreateConsumerTransport  = "createConsumerTransport"
	MethodConnectProducerTransport = "connectProducerTransport"
	MethodConnectConsumerTransport = "connectConsumerTransport"
	MethodProduce                  = "produce"
	MethodConsume                  = "consume"
	MethodResume                   = "resume"
	MethodSetResources             = "setResources"
	MethodMessage                  = "message"
)

// Server-initiated events.
const (
	EventNewProducer    = "newProducer"
	EventProducerClosed = "producerClosed"
)

// Request is one client request. ReqID is echoed in the matching Response.
type Request struct {
	Type  string          `json:"type"`
	ReqID uint64          `json:"reqId"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Response struct {
	Type  string `json:"type"`
	ReqID uint64 `json:"reqId"`
	Data  any    `json:"data,omitempty"`
}

type Notification struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type ErrorData struct {
	Error string `json:"error"`
}

type Ack struct{}

type ParticipantRef struct {
	ID domain.ParticipantID `json:"id"`
}

type CreateProducerTransportRequest struct {
	ID       domain.ParticipantID `json:"id"`
	ForceTCP bool                 `json:"forceTcp,omitempty"`
}

type ConnectProducerTransportRequest struct {
	ID             domain.ParticipantID `json:"id"`
	DTLSParameters DTLSParameters       `json:"dtlsParameters"`
	ICEParameters  *ICEParameters       `json:"iceParameters,omitempty"`
}

type ConnectConsumerTransportRequest struct {
	DTLSParameters DTLSParameters `json:"dtlsParameters"`
	ICEParameters  *ICEParameters `json:"iceParameters,omitempty"`
}

type ProduceRequest struct {
	ID            domain.ParticipantID `json:"id"`
	Kind          string               `json:"kind"`
	RTPParameters RTPParameters        `json:"rtpParameters"`
}

type ProduceResponse struct {
	ID string `json:"id"`
}

type ConsumeRequest struct {
	ID              domain.ParticipantID `json:"id"`
	RTPCapabilities RTPCapabilities      `json:"rtpCapabilities"`
}

type ConsumerDescription struct {
	ProducerID     string           `json:"producerId"`
	ID             string           `json:"id"`
	Kind           domain.MediaKind `json:"kind"`
	RTPParameters  RTPParameters    `json:"rtpParameters"`
	Type           ConsumerType     `json:"type"`
	ProducerPaused bool             `json:"producerPaused"`
}

type SetResourcesRequest struct {
	Resources domain.ResourceFlags `json:"resources"`
}

type MessageRequest struct {
	Message json.RawMessage `json:"message"`
}
