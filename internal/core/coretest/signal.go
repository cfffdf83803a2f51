package coretest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/SFU/internal/core"
)

// SignalConn records every frame sent to it.
type SignalConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	// Full makes TrySend fail as if the outbound queue was saturated.
	Full bool
}

func (c *SignalConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	if c.Full {
		return errors.New("backpressure")
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *SignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *SignalConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Notifications decodes recorded frames of the given type.
func (c *SignalConn) Notifications(typ string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, f := range c.frames {
		var n struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(f, &n); err != nil || n.Type != typ {
			continue
		}
		out = append(out, n.Data)
	}
	return out
}

// ProducerIDs returns the ids carried by recorded events of type typ, in order.
func (c *SignalConn) ProducerIDs(typ string) []string {
	var ids []string
	for _, raw := range c.Notifications(typ) {
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(raw, &ref); err == nil {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

func (c *SignalConn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}
