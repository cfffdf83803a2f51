package sfu

import (
	"context"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// LayerKey names one received encoding of a producer. Layer 0 is the
// lowest spatial layer.
type LayerKey struct {
	ProducerID string
	Layer      int
}

type RelayManager struct {
	mu     sync.RWMutex
	relays map[LayerKey]*Relay

	// OnFault is called when a relay loop panics.
	OnFault func(error)
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[LayerKey]*Relay),
	}
}

// StartRelay creates a new Relay for the given layer and starts its loop.
// A relay already running for the key is replaced.
func (m *RelayManager) StartRelay(ctx context.Context, key LayerKey, read ReadFunc) {
	logger := log.With().
		Str("module", "relay").
		Str("producer", key.ProducerID).
		Int("layer", key.Layer).
		Logger()

	relayCtx, cancel := context.WithCancel(ctx)
	relay := NewRelay(read, cancel)

	m.mu.Lock()
	if old, ok := m.relays[key]; ok {
		logger.Info().Msg("replacing existing relay for layer")
		old.markAllDelete()
		if old.cancel != nil {
			old.cancel()
		}
	}
	m.relays[key] = relay
	m.mu.Unlock()

	logger.Info().Msg("starting relay loop")

	go relay.loop(relayCtx, &logger, m.OnFault)
}

// AddSubscriber attaches ot to the relay of key for consumer dst.
func (m *RelayManager) AddSubscriber(key LayerKey, dst string, ot *OutTrack) bool {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	relay.AddOutTrack(dst, ot)
	return true
}

// MoveSubscriber re-attaches consumer dst from one layer to another,
// keeping its OutTrack and state. The OutTrack is rebased so the consumer
// keeps a continuous sequence.
func (m *RelayManager) MoveSubscriber(from, to LayerKey, dst string) bool {
	if from == to {
		return true
	}
	m.mu.RLock()
	src, okFrom := m.relays[from]
	dstRelay, okTo := m.relays[to]
	m.mu.RUnlock()
	if !okFrom || !okTo {
		return false
	}
	ot, ok := src.removeOutTrack(dst)
	if !ok {
		return false
	}
	ot.Rebase()
	dstRelay.AddOutTrack(dst, ot)
	return true
}

// RemoveSubscriber marks the consumer's OutTrack on key for deletion.
func (m *RelayManager) RemoveSubscriber(key LayerKey, dst string) {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return
	}
	if ot, ok := relay.removeOutTrack(dst); ok {
		ot.MarkDelete()
	}
}

// StopProducer stops every layer relay of the producer.
func (m *RelayManager) StopProducer(producerID string) {
	m.mu.Lock()
	var stopped []*Relay
	for key, relay := range m.relays {
		if key.ProducerID == producerID {
			stopped = append(stopped, relay)
			delete(m.relays, key)
		}
	}
	m.mu.Unlock()
	for _, relay := range stopped {
		relay.markAllDelete()
		if relay.cancel != nil {
			relay.cancel()
		}
	}
}

// Layers returns the running layers of a producer in ascending order.
func (m *RelayManager) Layers(producerID string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []int
	for key := range m.relays {
		if key.ProducerID == producerID {
			out = append(out, key.Layer)
		}
	}
	slices.Sort(out)
	return out
}

// HasRelay reports whether a relay exists for key.
func (m *RelayManager) HasRelay(key LayerKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.relays[key]
	return ok
}
