// Package coretest provides an in-memory media engine and signal connection
// for exercising the signaling plane without pion.
package coretest

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

var ErrClosed = errors.New("closed")

type Worker struct {
	mu        sync.Mutex
	id        string
	died      chan error
	dead      bool
	routers   []*Router
	RouterErr error
}

func NewWorker() *Worker {
	return &Worker{id: "worker-" + uuid.NewString()[:8], died: make(chan error, 1)}
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) CreateRouter(_ context.Context, codecs []core.RTPCodecCapability) (core.Router, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.RouterErr != nil {
		return nil, w.RouterErr
	}
	caps := core.RTPCapabilities{}
	for i, c := range codecs {
		c.PreferredPayloadType = uint8(100 + i)
		caps.Codecs = append(caps.Codecs, c)
	}
	r := &Router{id: uuid.NewString(), caps: caps, producers: make(map[string]*Producer)}
	w.routers = append(w.routers, r)
	return r, nil
}

func (w *Worker) Died() <-chan error { return w.died }

// Router returns the most recently created router, or nil.
func (w *Worker) Router() *Router {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.routers) == 0 {
		return nil
	}
	return w.routers[len(w.routers)-1]
}

// Kill simulates an unexpected worker exit.
func (w *Worker) Kill(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return
	}
	w.dead = true
	w.died <- err
}

func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dead = true
	return nil
}

type Router struct {
	mu         sync.Mutex
	id         string
	caps       core.RTPCapabilities
	producers  map[string]*Producer
	transports []*Transport

	// CanConsumeFunc overrides the codec based check when set.
	CanConsumeFunc func(producerID string, caps core.RTPCapabilities) bool
	TransportErr   error
	BitrateErr     error
}

func (r *Router) ID() string { return r.id }

func (r *Router) RTPCapabilities() core.RTPCapabilities { return r.caps }

func (r *Router) CanConsume(producerID string, caps core.RTPCapabilities) bool {
	r.mu.Lock()
	fn := r.CanConsumeFunc
	p, ok := r.producers[producerID]
	r.mu.Unlock()
	if fn != nil {
		return fn(producerID, caps)
	}
	if !ok || len(p.params.Codecs) == 0 {
		return false
	}
	return caps.SupportsCodec(p.params.Codecs[0])
}

func (r *Router) CreateWebRTCTransport(ctx context.Context, opts core.TransportOptions) (core.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TransportErr != nil {
		return nil, r.TransportErr
	}
	id := uuid.NewString()
	t := &Transport{
		router: r,
		opts:   opts,
		params: core.TransportParams{
			ID: id,
			ICEParameters: core.ICEParameters{
				UsernameFragment: id[:8],
				Password:         id,
				ICELite:          true,
			},
			ICECandidates: []core.ICECandidate{{
				Foundation: "udpcandidate",
				Priority:   1076302079,
				IP:         "127.0.0.1",
				Address:    "127.0.0.1",
				Protocol:   "udp",
				Port:       40000,
				Type:       "host",
			}},
			DTLSParameters: core.DTLSParameters{
				Role:         "auto",
				Fingerprints: []core.DTLSFingerprint{{Algorithm: "sha-256", Value: "AA:BB"}},
			},
		},
		bitrateErr: r.BitrateErr,
	}
	r.transports = append(r.transports, t)
	return t, nil
}

func (r *Router) Close() error { return nil }

// Transports returns every transport created so far.
func (r *Router) Transports() []*Transport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Transport(nil), r.transports...)
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.producers[id]
	return p, ok
}

type Transport struct {
	mu         sync.Mutex
	router     *Router
	opts       core.TransportOptions
	params     core.TransportParams
	connected  bool
	closed     bool
	maxBitrate uint32
	bitrateErr error
	consumers  []*Consumer

	ConnectErr error
	ProduceErr error
	ConsumeErr error
}

func (t *Transport) ID() string { return t.params.ID }

func (t *Transport) Params() core.TransportParams { return t.params }

func (t *Transport) Options() core.TransportOptions { return t.opts }

func (t *Transport) SetMaxIncomingBitrate(bps uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bitrateErr != nil {
		return t.bitrateErr
	}
	t.maxBitrate = bps
	return nil
}

func (t *Transport) MaxIncomingBitrate() uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxBitrate
}

func (t *Transport) Connect(_ context.Context, _ core.ConnectParams) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.ConnectErr != nil {
		return t.ConnectErr
	}
	t.connected = true
	return nil
}

func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *Transport) Produce(_ context.Context, kind domain.MediaKind, params core.RTPParameters) (core.Producer, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.ProduceErr != nil {
		t.mu.Unlock()
		return nil, t.ProduceErr
	}
	t.mu.Unlock()

	p := &Producer{id: uuid.NewString(), kind: kind, params: params, router: t.router}
	t.router.mu.Lock()
	t.router.producers[p.id] = p
	t.router.mu.Unlock()
	return p, nil
}

func (t *Transport) Consume(_ context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}
	if t.ConsumeErr != nil {
		return nil, t.ConsumeErr
	}
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, errors.New("producer not found")
	}
	typ := core.ConsumerSimple
	if len(p.params.Encodings) > 1 {
		typ = core.ConsumerSimulcast
	}
	params := core.RTPParameters{
		Codecs:    p.params.Codecs,
		Encodings: []core.RTPEncodingParameters{{SSRC: 1111}},
		RTCP:      core.RTCPParameters{CNAME: "coretest"},
	}
	c := &Consumer{
		id:         uuid.NewString(),
		producerID: p.id,
		kind:       p.kind,
		params:     params,
		typ:        typ,
		paused:     opts.Paused,
	}
	t.consumers = append(t.consumers, c)
	return c, nil
}

func (t *Transport) Consumers() []*Consumer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Consumer(nil), t.consumers...)
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

type Producer struct {
	mu     sync.Mutex
	id     string
	kind   domain.MediaKind
	params core.RTPParameters
	router *Router
	closed bool
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() domain.MediaKind            { return p.kind }
func (p *Producer) RTPParameters() core.RTPParameters { return p.params }
func (p *Producer) Paused() bool                      { return false }

func (p *Producer) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.router.mu.Lock()
	delete(p.router.producers, p.id)
	p.router.mu.Unlock()
	return nil
}

func (p *Producer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type Consumer struct {
	mu         sync.Mutex
	id         string
	producerID string
	kind       domain.MediaKind
	params     core.RTPParameters
	typ        core.ConsumerType
	paused     bool
	layersSet  bool
	spatial    uint8
	temporal   uint8
	closed     bool
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) ProducerID() string                { return c.producerID }
func (c *Consumer) Kind() domain.MediaKind            { return c.kind }
func (c *Consumer) RTPParameters() core.RTPParameters { return c.params }
func (c *Consumer) Type() core.ConsumerType           { return c.typ }
func (c *Consumer) ProducerPaused() bool              { return false }

func (c *Consumer) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Consumer) SetPreferredLayers(_ context.Context, spatial, temporal uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.layersSet = true
	c.spatial, c.temporal = spatial, temporal
	return nil
}

// PreferredLayers reports the last SetPreferredLayers call.
func (c *Consumer) PreferredLayers() (spatial, temporal uint8, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spatial, c.temporal, c.layersSet
}

func (c *Consumer) Resume(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.paused = false
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
