package orch

import (
	"sync"

	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/domain"
)

// Session is the connection-local state of one signaling client. Its
// consumer transport and consumer are never touched by other sessions.
type Session struct {
	ID     core.SessionID
	Signal core.SignalConnection

	mu                sync.Mutex
	consumerTransport core.Transport
	consumer          core.Consumer
	resources         domain.ResourceFlags
}

func NewSession(id core.SessionID, conn core.SignalConnection) *Session {
	return &Session{ID: id, Signal: conn, resources: domain.DefaultResources()}
}

func (s *Session) ConsumerTransport() core.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumerTransport
}

func (s *Session) Consumer() core.Consumer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumer
}

func (s *Session) Resources() domain.ResourceFlags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources
}

func (s *Session) setResources(r domain.ResourceFlags) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resources = r
}

func (s *Session) swapConsumerTransport(t core.Transport) core.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.consumerTransport
	s.consumerTransport = t
	return prev
}

func (s *Session) setConsumer(c core.Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumer = c
}

// release detaches and returns everything the session owns.
func (s *Session) release() (core.Transport, core.Consumer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, c := s.consumerTransport, s.consumer
	s.consumerTransport, s.consumer = nil, nil
	return t, c
}
