package rtc

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/SFU/internal/app/sfu"
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

var ErrUnsupportedCodec = errors.New("unsupported codec")

type Consumer struct {
	id        string
	producer  *Producer
	transport *Transport
	params    core.RTPParameters
	typ       core.ConsumerType
	sender    *webrtc.RTPSender
	out       *sfu.OutTrack

	mu     sync.Mutex
	layer  int
	closed bool
}

func newConsumer(_ context.Context, t *Transport, p *Producer, opts core.ConsumeOptions) (*Consumer, error) {
	codec := p.params.Codecs[0]
	match, ok := opts.RTPCapabilities.Match(codec)
	if !ok {
		return nil, ErrUnsupportedCodec
	}
	id := uuid.NewString()
	track, err := webrtc.NewTrackLocalStaticRTP(trackCapability(codec), id, p.id)
	if err != nil {
		return nil, err
	}
	sender, err := t.router.api.NewRTPSender(track, t.dtls)
	if err != nil {
		return nil, err
	}

	ssrc := rand.Uint32()
	pt := match.PreferredPayloadType
	if pt == 0 {
		pt = codec.PayloadType
	}
	err = sender.Send(webrtc.RTPSendParameters{
		Encodings: []webrtc.RTPEncodingParameters{{
			RTPCodingParameters: webrtc.RTPCodingParameters{
				SSRC:        webrtc.SSRC(ssrc),
				PayloadType: webrtc.PayloadType(pt),
			},
		}},
	})
	if err != nil {
		_ = sender.Stop()
		return nil, err
	}

	consumerCodec := codec
	consumerCodec.PayloadType = pt
	consumerCodec.RTCPFeedback = match.RTCPFeedback
	typ := core.ConsumerSimple
	if len(p.ssrcs) > 1 {
		typ = core.ConsumerSimulcast
	}
	c := &Consumer{
		id:        id,
		producer:  p,
		transport: t,
		typ:       typ,
		sender:    sender,
		params: core.RTPParameters{
			MID:       id[:8],
			Codecs:    []core.RTPCodecParameters{consumerCodec},
			Encodings: []core.RTPEncodingParameters{{SSRC: ssrc}},
			RTCP:      core.RTCPParameters{CNAME: p.params.RTCP.CNAME, ReducedSize: true},
		},
	}
	if opts.Paused {
		c.out = sfu.NewMutedOutTrack(track)
	} else {
		c.out = sfu.NewOutTrack(track)
	}
	c.out.ClockRate = codec.ClockRate
	if !t.router.relays.AddSubscriber(c.key(0), id, c.out) {
		_ = sender.Stop()
		return nil, ErrUnknownProducer
	}
	go c.readRTCP()
	return c, nil
}

func (c *Consumer) key(layer int) sfu.LayerKey {
	return sfu.LayerKey{ProducerID: c.producer.id, Layer: layer}
}

// readRTCP drains receiver reports and forwards key frame requests to the producer.
func (c *Consumer) readRTCP() {
	for {
		pkts, _, err := c.sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			switch pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.producer.RequestKeyFrame()
			}
		}
	}
}

func (c *Consumer) ID() string                        { return c.id }
func (c *Consumer) ProducerID() string                { return c.producer.id }
func (c *Consumer) Kind() domain.MediaKind            { return c.producer.kind }
func (c *Consumer) RTPParameters() core.RTPParameters { return c.params }
func (c *Consumer) Type() core.ConsumerType           { return c.typ }
func (c *Consumer) Paused() bool                      { return c.out.GetState() == sfu.TrackStateMuted }
func (c *Consumer) ProducerPaused() bool              { return c.producer.Paused() }

// SetPreferredLayers moves the consumer to the closest available spatial
// layer not above the requested one. Temporal layers are not switched.
func (c *Consumer) SetPreferredLayers(_ context.Context, spatial, _ uint8) error {
	if c.typ != core.ConsumerSimulcast {
		return nil
	}
	layers := c.transport.router.relays.Layers(c.producer.id)
	if len(layers) == 0 {
		return ErrUnknownProducer
	}
	target := layers[0]
	for _, l := range layers {
		if l <= int(spatial) {
			target = l
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || target == c.layer {
		return nil
	}
	if !c.transport.router.relays.MoveSubscriber(c.key(c.layer), c.key(target), c.id) {
		return ErrUnknownProducer
	}
	c.layer = target
	c.producer.RequestKeyFrame()
	return nil
}

func (c *Consumer) Resume(context.Context) error {
	c.out.MarkOk()
	c.producer.RequestKeyFrame()
	return nil
}

func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	layer := c.layer
	c.mu.Unlock()

	c.transport.router.relays.RemoveSubscriber(c.key(layer), c.id)
	c.out.MarkDelete()
	c.transport.forgetConsumer(c.id)
	return c.sender.Stop()
}
