package rtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/dkeye/SFU/internal/core"
)

var (
	ErrWorkerClosed = errors.New("worker closed")
	ErrBadPortRange = errors.New("invalid rtc port range")
)

const defaultHandshakeTimeout = 10 * time.Second

type WorkerSettings struct {
	MinPort     uint16
	MaxPort     uint16
	LogLevel    string
	LogTags     []string
	ListenIP    string
	AnnouncedIP string
	// HandshakeTimeout bounds how long produce waits for ICE and DTLS.
	HandshakeTimeout time.Duration
	// IncludeLoopback gathers loopback candidates, for local testing.
	IncludeLoopback bool
}

// Worker is the pion-backed media engine process. Routers created by it share
// its setting engine (ICE lite, port range, NAT mapping).
type Worker struct {
	id               string
	settings         webrtc.SettingEngine
	handshakeTimeout time.Duration

	died    chan error
	dieOnce sync.Once
	closed  atomic.Bool

	mu      sync.Mutex
	routers []*Router
}

func NewWorker(_ context.Context, s WorkerSettings) (*Worker, error) {
	if s.MinPort > s.MaxPort {
		return nil, ErrBadPortRange
	}
	se := webrtc.SettingEngine{
		LoggerFactory: newLoggerFactory(s.LogLevel, s.LogTags),
	}
	se.SetLite(true)
	if s.MinPort > 0 && s.MaxPort > 0 {
		if err := se.SetEphemeralUDPPortRange(s.MinPort, s.MaxPort); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadPortRange, err)
		}
	}
	se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4, webrtc.NetworkTypeUDP6})
	se.SetIncludeLoopbackCandidate(s.IncludeLoopback)
	if s.AnnouncedIP != "" {
		se.SetNAT1To1IPs([]string{s.AnnouncedIP}, webrtc.ICECandidateTypeHost)
	}
	if ip := net.ParseIP(s.ListenIP); ip != nil && !ip.IsUnspecified() {
		se.SetIPFilter(func(candidate net.IP) bool { return candidate.Equal(ip) })
	}

	timeout := s.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	w := &Worker{
		id:               fmt.Sprintf("pion-%d", os.Getpid()),
		settings:         se,
		handshakeTimeout: timeout,
		died:             make(chan error, 1),
	}
	log.Info().Str("module", "rtc").Str("worker", w.id).Uint16("min_port", s.MinPort).Uint16("max_port", s.MaxPort).Msg("worker started")
	return w, nil
}

func (w *Worker) ID() string { return w.id }

func (w *Worker) Died() <-chan error { return w.died }

// die reports a fatal engine failure once.
func (w *Worker) die(err error) {
	if w.closed.Load() {
		return
	}
	w.dieOnce.Do(func() {
		log.Error().Err(err).Str("module", "rtc").Str("worker", w.id).Msg("worker failure")
		w.died <- err
	})
}

func (w *Worker) CreateRouter(ctx context.Context, codecs []core.RTPCodecCapability) (core.Router, error) {
	if w.closed.Load() {
		return nil, ErrWorkerClosed
	}
	m := &webrtc.MediaEngine{}
	caps, err := routerCapabilities(m, codecs)
	if err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(w.settings))
	r := newRouter(ctx, w, api, caps)

	w.mu.Lock()
	w.routers = append(w.routers, r)
	w.mu.Unlock()
	return r, nil
}

func (w *Worker) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.mu.Lock()
	routers := w.routers
	w.routers = nil
	w.mu.Unlock()
	var errs []error
	for _, r := range routers {
		errs = append(errs, r.Close())
	}
	log.Info().Str("module", "rtc").Str("worker", w.id).Msg("worker closed")
	return errors.Join(errs...)
}
