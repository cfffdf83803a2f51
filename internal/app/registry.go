package app

import (
	"errors"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

var (
	ErrNoTransport      = errors.New("no transport")
	ErrNoProducer       = errors.New("producer not found")
	ErrParticipantInUse = errors.New("participant id in use")
)

// ParticipantEntry is the server-side state of one producing participant.
type ParticipantEntry struct {
	ID                domain.ParticipantID
	Owner             core.SessionID
	ProducerTransport core.Transport
	Producer          core.Producer
	// Consumer is the last consumer created against this participant's producer.
	Consumer core.Consumer
}

// Registry maps participant ids to their transports and producers.
// It is the only record of who has produced what.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ParticipantID]*ParticipantEntry
	order   []domain.ParticipantID
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[domain.ParticipantID]*ParticipantEntry),
	}
}

// getOrCreate must be called with mu held.
func (r *Registry) getOrCreate(id domain.ParticipantID, owner core.SessionID) (*ParticipantEntry, error) {
	e, ok := r.entries[id]
	if !ok {
		e = &ParticipantEntry{ID: id, Owner: owner}
		r.entries[id] = e
		r.order = append(r.order, id)
		log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("sid", string(owner)).Msg("created participant")
		return e, nil
	}
	if e.Owner != owner {
		return nil, ErrParticipantInUse
	}
	return e, nil
}

// Claim creates the entry for id if absent and reserves it for owner.
func (r *Registry) Claim(id domain.ParticipantID, owner core.SessionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.getOrCreate(id, owner)
	return err
}

// BindProducerTransport stores t as the producer transport of id and returns
// the transport it replaced, if any. The caller closes the replaced one.
func (r *Registry) BindProducerTransport(id domain.ParticipantID, owner core.SessionID, t core.Transport) (core.Transport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, err := r.getOrCreate(id, owner)
	if err != nil {
		return nil, err
	}
	prev := e.ProducerTransport
	e.ProducerTransport = t
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("transport", t.ID()).Msg("bound producer transport")
	return prev, nil
}

// ProducerTransport returns the producer transport of id. Only the session
// that created it may use it.
func (r *Registry) ProducerTransport(id domain.ParticipantID, owner core.SessionID) (core.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.ProducerTransport == nil {
		return nil, ErrNoTransport
	}
	if e.Owner != owner {
		return nil, ErrParticipantInUse
	}
	return e.ProducerTransport, nil
}

// SetProducer records p for id, overwriting any earlier producer reference.
func (r *Registry) SetProducer(id domain.ParticipantID, p core.Producer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.ProducerTransport == nil {
		return ErrNoTransport
	}
	e.Producer = p
	log.Info().Str("module", "app.registry").Str("participant", string(id)).Str("producer", p.ID()).Msg("set producer")
	return nil
}

func (r *Registry) Producer(id domain.ParticipantID) (core.Producer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.Producer == nil {
		return nil, ErrNoProducer
	}
	return e.Producer, nil
}

func (r *Registry) SetConsumer(id domain.ParticipantID, c core.Consumer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.Consumer = c
	return true
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id domain.ParticipantID) (ParticipantEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return ParticipantEntry{}, false
	}
	return *e, true
}

// ProducerIDs lists participants that have a producer, in insertion order.
func (r *Registry) ProducerIDs() []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantID, 0, len(r.order))
	for _, id := range r.order {
		if r.entries[id].Producer != nil {
			out = append(out, id)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ReleaseOwner removes every entry owned by sid and returns them so the
// caller can close their engine resources.
func (r *Registry) ReleaseOwner(sid core.SessionID) []ParticipantEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var released []ParticipantEntry
	r.order = slices.DeleteFunc(r.order, func(id domain.ParticipantID) bool {
		e := r.entries[id]
		if e.Owner != sid {
			return false
		}
		released = append(released, *e)
		delete(r.entries, id)
		return true
	})
	if len(released) > 0 {
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Int("released", len(released)).Msg("released participants")
	}
	return released
}
