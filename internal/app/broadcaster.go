package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
	"github.com/dkeye/SFU/internal/telemetry"
)

// PublishResult reports delivery stats of one fan-out.
type PublishResult struct {
	SendTo  int
	Dropped []core.SessionID
}

// Broadcaster fans producer events out to connected sessions.
//
// Registry changes that must be visible to receivers run as commit callbacks
// under the broadcaster lock, and so does the replay on Join. A session
// therefore sees every producer exactly once, either replayed or announced.
type Broadcaster struct {
	mu      sync.Mutex
	members map[core.SessionID]core.SignalConnection
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{members: make(map[core.SessionID]core.SignalConnection)}
}

// Join replays one newProducer event per id returned by known, then adds the
// session to the fan-out set. It returns the number of replayed events.
func (b *Broadcaster) Join(sid core.SessionID, conn core.SignalConnection, known func() []domain.ParticipantID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	if known != nil {
		for _, id := range known() {
			frame, err := encodeEvent(core.EventNewProducer, id)
			if err != nil {
				continue
			}
			if err := conn.TrySend(frame); err != nil {
				log.Warn().Err(err).Str("module", "app.broadcaster").Str("sid", string(sid)).Str("participant", string(id)).Msg("replay dropped")
				continue
			}
			n++
		}
	}
	b.members[sid] = conn
	log.Info().Str("module", "app.broadcaster").Str("sid", string(sid)).Int("replayed", n).Msg("session joined")
	return n
}

func (b *Broadcaster) Leave(sid core.SessionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.members, sid)
	log.Info().Str("module", "app.broadcaster").Str("sid", string(sid)).Msg("session left")
}

func (b *Broadcaster) MemberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members)
}

// Announce runs commit and, if it succeeds, sends newProducer{id} to every
// member except from.
func (b *Broadcaster) Announce(from core.SessionID, id domain.ParticipantID, commit func() error) (PublishResult, error) {
	return b.publish(from, core.EventNewProducer, func() ([]domain.ParticipantID, error) {
		if commit != nil {
			if err := commit(); err != nil {
				return nil, err
			}
		}
		return []domain.ParticipantID{id}, nil
	})
}

// Retract runs commit and sends producerClosed for each id it returns.
func (b *Broadcaster) Retract(from core.SessionID, commit func() []domain.ParticipantID) PublishResult {
	res, _ := b.publish(from, core.EventProducerClosed, func() ([]domain.ParticipantID, error) {
		return commit(), nil
	})
	return res
}

func (b *Broadcaster) publish(from core.SessionID, event string, commit func() ([]domain.ParticipantID, error)) (PublishResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids, err := commit()
	if err != nil {
		return PublishResult{}, err
	}
	res := PublishResult{}
	for _, id := range ids {
		frame, err := encodeEvent(event, id)
		if err != nil {
			log.Error().Err(err).Str("module", "app.broadcaster").Msg("encode event")
			continue
		}
		for sid, conn := range b.members {
			if sid == from {
				continue
			}
			if err := conn.TrySend(frame); err != nil {
				res.Dropped = append(res.Dropped, sid)
				continue
			}
			res.SendTo++
		}
	}
	telemetry.BroadcastResult(event, res.SendTo, len(res.Dropped))
	log.Debug().Str("module", "app.broadcaster").Str("from", string(from)).Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res, nil
}

func encodeEvent(event string, id domain.ParticipantID) (core.Frame, error) {
	return json.Marshal(core.Notification{Type: event, Data: core.ParticipantRef{ID: id}})
}
