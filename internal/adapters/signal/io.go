package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/app/orch"
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/telemetry"
)

var ErrUnknownRequest = errors.New("unknown request")

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Options.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			deadline := time.Now().Add(ctl.Options.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Info().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Options.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump handles requests one at a time, so each session's requests are
// answered in arrival order.
func (ctl *SignalWSController) readPump(ctx context.Context, s *orch.Session, c *WsSignalConn) {
	sid := string(s.ID)
	defer func() {
		log.Info().Str("module", "signal").Str("sid", sid).Msg("readPump closing")
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Options.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Options.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Options.pongWait()))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", sid).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("sid", sid).Msg("readPump read error")
				}
				return
			}
			ctl.dispatch(ctx, s, data)
		}
	}
}

// dispatch answers one request with exactly one response carrying the same
// type and reqId. Frames that are not a request envelope are dropped.
func (ctl *SignalWSController) dispatch(ctx context.Context, s *orch.Session, data []byte) {
	var req core.Request
	if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.ID)).Msg("bad request frame")
		return
	}

	var (
		result any
		err    error
	)
	if h, ok := ctl.handlers[req.Type]; ok {
		result, err = h(ctx, s, req.Data)
	} else {
		err = ErrUnknownRequest
	}
	telemetry.RequestHandled(req.Type, err)

	resp := core.Response{Type: req.Type, ReqID: req.ReqID, Data: result}
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.ID)).Str("type", req.Type).Uint64("req", req.ReqID).Msg("request failed")
		resp.Data = core.ErrorData{Error: err.Error()}
	}
	ctl.sendJSON(s.Signal, resp)
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	if err := c.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("sendJSON")
	}
}
