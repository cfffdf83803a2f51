package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/app/sfu"
	"github.com/dkeye/SFU/internal/core"
)

var ErrRouterClosed = errors.New("router closed")

// Router owns one pion API (media engine with the router's codecs) and
// forwards producers to consumers through a RelayManager.
type Router struct {
	id     string
	worker *Worker
	api    *webrtc.API
	caps   core.RTPCapabilities
	relays *sfu.RelayManager

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	producers  map[string]*Producer
	transports map[string]*Transport
	closed     bool
}

func newRouter(ctx context.Context, w *Worker, api *webrtc.API, caps core.RTPCapabilities) *Router {
	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	relays := sfu.NewRelayManager()
	relays.OnFault = w.die
	r := &Router{
		id:         uuid.NewString(),
		worker:     w,
		api:        api,
		caps:       caps,
		relays:     relays,
		ctx:        rctx,
		cancel:     cancel,
		producers:  make(map[string]*Producer),
		transports: make(map[string]*Transport),
	}
	log.Info().Str("module", "rtc").Str("router", r.id).Int("codecs", len(caps.Codecs)).Msg("router created")
	return r
}

func (r *Router) ID() string { return r.id }

func (r *Router) RTPCapabilities() core.RTPCapabilities { return r.caps }

// CanConsume reports whether the producer exists and caps can decode its codec.
func (r *Router) CanConsume(producerID string, caps core.RTPCapabilities) bool {
	p, ok := r.producer(producerID)
	if !ok {
		return false
	}
	codecs := p.params.Codecs
	return len(codecs) > 0 && caps.SupportsCodec(codecs[0])
}

func (r *Router) CreateWebRTCTransport(ctx context.Context, opts core.TransportOptions) (core.Transport, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}
	t, err := newTransport(ctx, r, opts)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}
	r.mu.Lock()
	r.transports[t.id] = t
	r.mu.Unlock()
	return t, nil
}

func (r *Router) producer(id string) (*Producer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.producers[id]
	return p, ok
}

func (r *Router) addProducer(p *Producer) {
	r.mu.Lock()
	r.producers[p.id] = p
	r.mu.Unlock()
}

func (r *Router) removeProducer(id string) {
	r.mu.Lock()
	delete(r.producers, id)
	r.mu.Unlock()
	r.relays.StopProducer(id)
}

func (r *Router) removeTransport(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
}

func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	transports := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		transports = append(transports, t)
	}
	r.mu.Unlock()

	var errs []error
	for _, t := range transports {
		errs = append(errs, t.Close())
	}
	r.cancel()
	log.Info().Str("module", "rtc").Str("router", r.id).Msg("router closed")
	return errors.Join(errs...)
}
