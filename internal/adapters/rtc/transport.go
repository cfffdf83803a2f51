package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

var (
	ErrTransportClosed      = errors.New("transport closed")
	ErrAlreadyConnected     = errors.New("transport already connected")
	ErrNotConnected         = errors.New("transport not connected")
	ErrMissingICEParameters = errors.New("remote ice parameters required")
	ErrNoSSRC               = errors.New("encodings without ssrc are not supported")
	ErrUnknownProducer      = errors.New("unknown producer")
)

// Transport is an ICE-lite + DTLS transport built on pion's ORTC API.
// The handshake runs in the background after Connect; producing waits for it
// up to the worker's handshake timeout.
type Transport struct {
	id       string
	router   *Router
	gatherer *webrtc.ICEGatherer
	ice      *webrtc.ICETransport
	dtls     *webrtc.DTLSTransport
	params   core.TransportParams
	opts     core.TransportOptions
	logger   zerolog.Logger

	ready    chan struct{}
	readyErr error

	mu          sync.Mutex
	connecting  bool
	maxIncoming uint32
	producers   map[string]*Producer
	consumers   map[string]*Consumer
	closed      bool
}

func newTransport(ctx context.Context, r *Router, opts core.TransportOptions) (*Transport, error) {
	if opts.EnableTCP && !opts.EnableUDP {
		log.Warn().Str("module", "rtc").Msg("tcp-only transport requested, gathering udp candidates")
	}
	gatherer, err := r.api.NewICEGatherer(webrtc.ICEGatherOptions{})
	if err != nil {
		return nil, err
	}
	gathered := make(chan struct{})
	gatherer.OnLocalCandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			close(gathered)
		}
	})
	if err := gatherer.Gather(); err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		_ = gatherer.Close()
		return nil, ctx.Err()
	}

	iceParams, err := gatherer.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	candidates, err := gatherer.GetLocalCandidates()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	ice := r.api.NewICETransport(gatherer)
	dtls, err := r.api.NewDTLSTransport(ice, nil)
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}
	dtlsParams, err := dtls.GetLocalParameters()
	if err != nil {
		_ = gatherer.Close()
		return nil, err
	}

	id := uuid.NewString()
	t := &Transport{
		id:        id,
		router:    r,
		gatherer:  gatherer,
		ice:       ice,
		dtls:      dtls,
		opts:      opts,
		ready:     make(chan struct{}),
		producers: make(map[string]*Producer),
		consumers: make(map[string]*Consumer),
		logger:    log.With().Str("module", "rtc").Str("transport", id).Logger(),
		params: core.TransportParams{
			ID: id,
			ICEParameters: core.ICEParameters{
				UsernameFragment: iceParams.UsernameFragment,
				Password:         iceParams.Password,
				ICELite:          true,
			},
			ICECandidates:  toCandidates(candidates),
			DTLSParameters: toDTLSParameters(dtlsParams),
		},
	}
	t.logger.Info().
		Int("candidates", len(candidates)).
		Uint32("initial_outgoing_bitrate", opts.InitialAvailableOutgoingBitrate).
		Msg("transport created")
	return t, nil
}

func toCandidates(in []webrtc.ICECandidate) []core.ICECandidate {
	out := make([]core.ICECandidate, 0, len(in))
	for _, c := range in {
		out = append(out, core.ICECandidate{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Address:    c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
			TCPType:    c.TCPType,
		})
	}
	return out
}

func toDTLSParameters(p webrtc.DTLSParameters) core.DTLSParameters {
	out := core.DTLSParameters{Role: p.Role.String()}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, core.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func fromDTLSParameters(p core.DTLSParameters) webrtc.DTLSParameters {
	out := webrtc.DTLSParameters{Role: webrtc.DTLSRoleAuto}
	switch p.Role {
	case "client":
		out.Role = webrtc.DTLSRoleClient
	case "server":
		out.Role = webrtc.DTLSRoleServer
	}
	for _, f := range p.Fingerprints {
		out.Fingerprints = append(out.Fingerprints, webrtc.DTLSFingerprint{Algorithm: f.Algorithm, Value: f.Value})
	}
	return out
}

func (t *Transport) ID() string { return t.id }

func (t *Transport) Params() core.TransportParams { return t.params }

// Connect starts the ICE and DTLS handshake with the remote parameters and
// returns without waiting for it to finish.
func (t *Transport) Connect(_ context.Context, params core.ConnectParams) error {
	if params.ICEParameters == nil {
		return ErrMissingICEParameters
	}
	t.mu.Lock()
	switch {
	case t.closed:
		t.mu.Unlock()
		return ErrTransportClosed
	case t.connecting:
		t.mu.Unlock()
		return ErrAlreadyConnected
	}
	t.connecting = true
	t.mu.Unlock()

	remoteICE := webrtc.ICEParameters{
		UsernameFragment: params.ICEParameters.UsernameFragment,
		Password:         params.ICEParameters.Password,
	}
	go t.handshake(remoteICE, fromDTLSParameters(params.DTLSParameters))
	return nil
}

func (t *Transport) handshake(ice webrtc.ICEParameters, dtls webrtc.DTLSParameters) {
	role := webrtc.ICERoleControlled
	err := t.ice.Start(nil, ice, &role)
	if err == nil {
		err = t.dtls.Start(dtls)
	}
	t.readyErr = err
	close(t.ready)
	if err != nil {
		t.logger.Warn().Err(err).Msg("handshake failed")
		return
	}
	t.logger.Info().Msg("transport connected")
	t.sendREMB()
}

// waitReady blocks until the handshake started by Connect has finished.
func (t *Transport) waitReady(ctx context.Context) error {
	t.mu.Lock()
	closed, connecting := t.closed, t.connecting
	t.mu.Unlock()
	switch {
	case closed:
		return ErrTransportClosed
	case !connecting:
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, t.router.worker.handshakeTimeout)
	defer cancel()
	select {
	case <-t.ready:
		return t.readyErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) isReady() bool {
	select {
	case <-t.ready:
		return t.readyErr == nil
	default:
		return false
	}
}

// SetMaxIncomingBitrate stores the cap and advertises it to the remote sender
// with REMB once the transport is up.
func (t *Transport) SetMaxIncomingBitrate(bps uint32) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.maxIncoming = bps
	t.mu.Unlock()
	if t.isReady() {
		t.sendREMB()
	}
	return nil
}

func (t *Transport) sendREMB() {
	t.mu.Lock()
	bps := t.maxIncoming
	var ssrcs []uint32
	for _, p := range t.producers {
		ssrcs = append(ssrcs, p.ssrcs...)
	}
	t.mu.Unlock()
	if bps == 0 || len(ssrcs) == 0 {
		return
	}
	_, err := t.dtls.WriteRTCP([]rtcp.Packet{&rtcp.ReceiverEstimatedMaximumBitrate{
		Bitrate: float32(bps),
		SSRCs:   ssrcs,
	}})
	if err != nil {
		t.logger.Debug().Err(err).Msg("write remb")
	}
}

func (t *Transport) Produce(ctx context.Context, kind domain.MediaKind, params core.RTPParameters) (core.Producer, error) {
	if len(params.Codecs) == 0 || len(params.Encodings) == 0 {
		return nil, fmt.Errorf("produce: empty rtp parameters")
	}
	if !t.router.caps.SupportsCodec(params.Codecs[0]) {
		return nil, fmt.Errorf("%w: %s/%d", ErrUnsupportedCodec, params.Codecs[0].MimeType, params.Codecs[0].ClockRate)
	}
	encodings := make([]webrtc.RTPDecodingParameters, 0, len(params.Encodings))
	ssrcs := make([]uint32, 0, len(params.Encodings))
	for _, e := range params.Encodings {
		if e.SSRC == 0 {
			return nil, ErrNoSSRC
		}
		encodings = append(encodings, webrtc.RTPDecodingParameters{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(e.SSRC),
				PayloadType: webrtc.PayloadType(params.Codecs[0].PayloadType),
			},
		})
		ssrcs = append(ssrcs, e.SSRC)
	}
	if err := t.waitReady(ctx); err != nil {
		return nil, fmt.Errorf("produce: %w", err)
	}

	receiver, err := t.router.api.NewRTPReceiver(codecType(kind), t.dtls)
	if err != nil {
		return nil, err
	}
	if err := receiver.Receive(webrtc.RTPReceiveParameters{Encodings: encodings}); err != nil {
		_ = receiver.Stop()
		return nil, err
	}

	p := &Producer{
		id:        uuid.NewString(),
		kind:      kind,
		params:    params,
		ssrcs:     ssrcs,
		transport: t,
		receiver:  receiver,
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = receiver.Stop()
		return nil, ErrTransportClosed
	}
	t.producers[p.id] = p
	t.mu.Unlock()

	p.start(t.router)
	t.router.addProducer(p)
	t.sendREMB()
	t.logger.Info().Str("producer", p.id).Str("kind", string(kind)).Int("layers", len(ssrcs)).Msg("producer created")
	return p, nil
}

func (t *Transport) Consume(ctx context.Context, opts core.ConsumeOptions) (core.Consumer, error) {
	p, ok := t.router.producer(opts.ProducerID)
	if !ok {
		return nil, ErrUnknownProducer
	}
	c, err := newConsumer(ctx, t, p, opts)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = c.Close()
		return nil, ErrTransportClosed
	}
	t.consumers[c.id] = c
	t.mu.Unlock()
	t.logger.Info().Str("consumer", c.id).Str("producer", p.id).Bool("paused", opts.Paused).Msg("consumer created")
	return c, nil
}

func (t *Transport) forgetProducer(id string) {
	t.mu.Lock()
	delete(t.producers, id)
	t.mu.Unlock()
}

func (t *Transport) forgetConsumer(id string) {
	t.mu.Lock()
	delete(t.consumers, id)
	t.mu.Unlock()
}

func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	producers := make([]*Producer, 0, len(t.producers))
	for _, p := range t.producers {
		producers = append(producers, p)
	}
	consumers := make([]*Consumer, 0, len(t.consumers))
	for _, c := range t.consumers {
		consumers = append(consumers, c)
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range consumers {
		errs = append(errs, c.Close())
	}
	for _, p := range producers {
		errs = append(errs, p.Close())
	}
	errs = append(errs, t.dtls.Stop(), t.ice.Stop(), t.gatherer.Close())
	t.router.removeTransport(t.id)
	t.logger.Info().Msg("transport closed")
	return errors.Join(errs...)
}
