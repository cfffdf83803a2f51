package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/app"
	"github.com/dkeye/SFU/internal/domain"
	"github.com/dkeye/SFU/internal/telemetry"
)

var (
	ErrNoConsumerTransport = errors.New("no consumer transport")
	ErrNoConsumer          = errors.New("no consumer")
)

const directoryTimeout = 2 * time.Second

type Orchestrator struct {
	Registry  *app.Registry
	Hub       *app.Broadcaster
	Gateway   *app.Gateway
	Directory app.Directory
}

// Connect registers s for broadcasts after replaying every known producer to it.
func (o *Orchestrator) Connect(s *Session) int {
	telemetry.SessionStarted()
	n := o.Hub.Join(s.ID, s.Signal, o.Registry.ProducerIDs)
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Int("replayed", n).Msg("client connected")
	return n
}

// Disconnect releases the session's consumer transport and every participant
// entry the session created, then tells the remaining sessions which
// producers went away.
func (o *Orchestrator) Disconnect(s *Session) {
	o.Hub.Leave(s.ID)
	telemetry.SessionEnded()

	t, c := s.release()
	if c != nil {
		_ = c.Close()
	}
	if t != nil {
		if err := t.Close(); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("sid", string(s.ID)).Msg("close consumer transport")
		}
	}

	var released []app.ParticipantEntry
	o.Hub.Retract(s.ID, func() []domain.ParticipantID {
		released = o.Registry.ReleaseOwner(s.ID)
		var gone []domain.ParticipantID
		for _, e := range released {
			if e.Producer != nil {
				gone = append(gone, e.ID)
			}
		}
		return gone
	})

	for _, e := range released {
		if e.Producer != nil {
			telemetry.ProducerRemoved(string(e.Producer.Kind()))
			_ = e.Producer.Close()
			o.directoryRemove(e.ID)
		}
		if e.ProducerTransport != nil {
			_ = e.ProducerTransport.Close()
		}
	}
	log.Info().Str("module", "orch").Str("sid", string(s.ID)).Int("released", len(released)).Msg("client disconnected")
}

func (o *Orchestrator) directoryAdd(id domain.ParticipantID) {
	if o.Directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := o.Directory.Add(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("participant", string(id)).Msg("directory add")
	}
}

func (o *Orchestrator) directoryRemove(id domain.ParticipantID) {
	if o.Directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()
	if err := o.Directory.Remove(ctx, id); err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("participant", string(id)).Msg("directory remove")
	}
}
