package rtc

import (
	"sync"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/SFU/internal/app/sfu"
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

type Producer struct {
	id        string
	kind      domain.MediaKind
	params    core.RTPParameters
	ssrcs     []uint32
	transport *Transport
	receiver  *webrtc.RTPReceiver

	closeOnce sync.Once
}

// start runs one relay per received encoding. Encodings are ordered from
// the lowest to the highest layer.
func (p *Producer) start(r *Router) {
	for i, track := range p.receiver.Tracks() {
		read := func() (*rtp.Packet, error) {
			pkt, _, err := track.ReadRTP()
			return pkt, err
		}
		r.relays.StartRelay(r.ctx, sfu.LayerKey{ProducerID: p.id, Layer: i}, read)
	}
}

func (p *Producer) ID() string                        { return p.id }
func (p *Producer) Kind() domain.MediaKind            { return p.kind }
func (p *Producer) RTPParameters() core.RTPParameters { return p.params }

// Paused is always false: producers are never paused by this server.
func (p *Producer) Paused() bool { return false }

// RequestKeyFrame asks the remote sender for a key frame on every layer.
func (p *Producer) RequestKeyFrame() {
	if p.kind != domain.KindVideo {
		return
	}
	pkts := make([]rtcp.Packet, 0, len(p.ssrcs))
	for _, ssrc := range p.ssrcs {
		pkts = append(pkts, &rtcp.PictureLossIndication{MediaSSRC: ssrc})
	}
	if _, err := p.transport.dtls.WriteRTCP(pkts); err != nil {
		p.transport.logger.Debug().Err(err).Str("producer", p.id).Msg("write pli")
	}
}

func (p *Producer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.transport.router.removeProducer(p.id)
		p.transport.forgetProducer(p.id)
		err = p.receiver.Stop()
	})
	return err
}
