package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/SFU/internal/app"
	"github.com/dkeye/SFU/internal/app/orch"
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/core/coretest"
)

type frame struct {
	Type  string          `json:"type"`
	ReqID uint64          `json:"reqId"`
	Data  json.RawMessage `json:"data"`
}

type client struct {
	t      *testing.T
	ws     *websocket.Conn
	nextID uint64
	// events holds notifications read while waiting for a response.
	events []frame
}

func newTestServer(t *testing.T, limiter *RateLimiter) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := coretest.NewWorker()
	g, err := app.StartGateway(context.Background(), func(context.Context) (core.Worker, error) { return w, nil }, app.GatewayConfig{Codecs: coretest.Codecs()})
	require.NoError(t, err)
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Hub: app.NewBroadcaster(), Gateway: g}

	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSignalWSController(o, limiter, DefaultOptions())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

func (c *client) read() frame {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(c.t, c.ws.ReadJSON(&f))
	return f
}

// request sends one request and returns the data of its response.
func (c *client) request(method string, data any) json.RawMessage {
	c.t.Helper()
	c.nextID++
	id := c.nextID
	require.NoError(c.t, c.ws.WriteJSON(map[string]any{"type": method, "reqId": id, "data": data}))
	for {
		f := c.read()
		if f.Type == method && f.ReqID == id {
			return f.Data
		}
		c.events = append(c.events, f)
	}
}

// event returns the next notification of typ, reading more frames if needed.
func (c *client) event(typ string) frame {
	c.t.Helper()
	for i, f := range c.events {
		if f.Type == typ {
			c.events = append(c.events[:i], c.events[i+1:]...)
			return f
		}
	}
	for {
		f := c.read()
		if f.Type == typ {
			return f
		}
		c.events = append(c.events, f)
	}
}

func errorOf(data json.RawMessage) string {
	var e core.ErrorData
	_ = json.Unmarshal(data, &e)
	return e.Error
}

func TestSignalEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	x := dial(t, srv)
	y := dial(t, srv)

	var caps core.RTPCapabilities
	require.NoError(t, json.Unmarshal(y.request(core.MethodGetRouterRTPCapabilities, nil), &caps))
	require.Len(t, caps.Codecs, 2)

	var params core.TransportParams
	require.NoError(t, json.Unmarshal(x.request(core.MethodCreateProducerTransport, map[string]any{"id": "x1"}), &params))
	require.NotEmpty(t, params.ID)
	require.NotEmpty(t, params.ICECandidates)

	ack := x.request(core.MethodConnectProducerTransport, map[string]any{
		"id":             "x1",
		"dtlsParameters": core.DTLSParameters{Role: "client"},
	})
	require.JSONEq(t, `{}`, string(ack))

	var produced core.ProduceResponse
	require.NoError(t, json.Unmarshal(x.request(core.MethodProduce, map[string]any{
		"id":            "x1",
		"kind":          "video",
		"rtpParameters": coretest.VideoParams(),
	}), &produced))
	require.NotEmpty(t, produced.ID)

	ev := y.event(core.EventNewProducer)
	require.JSONEq(t, `{"id":"x1"}`, string(ev.Data))

	require.NoError(t, json.Unmarshal(y.request(core.MethodCreateConsumerTransport, map[string]any{}), &params))
	require.JSONEq(t, `{}`, string(y.request(core.MethodConnectConsumerTransport, map[string]any{"dtlsParameters": core.DTLSParameters{Role: "client"}})))

	var desc core.ConsumerDescription
	require.NoError(t, json.Unmarshal(y.request(core.MethodConsume, map[string]any{"id": "x1", "rtpCapabilities": caps}), &desc))
	require.Equal(t, produced.ID, desc.ProducerID)
	require.True(t, desc.ProducerPaused)

	require.JSONEq(t, `{}`, string(y.request(core.MethodResume, nil)))
	require.Empty(t, x.events)
}

func TestSignalErrorsKeepSessionUsable(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	c := dial(t, srv)

	require.Equal(t, "producer not found", errorOf(c.request(core.MethodConsume, map[string]any{"id": "ghost"})))
	require.Equal(t, "no consumer", errorOf(c.request(core.MethodResume, nil)))
	require.Equal(t, "no transport", errorOf(c.request(core.MethodProduce, map[string]any{"id": "ghost", "kind": "audio"})))
	require.Equal(t, ErrUnknownRequest.Error(), errorOf(c.request("dance", nil)))
	require.Contains(t, errorOf(c.request(core.MethodProduce, "not an object")), "bad payload")

	// connecting a consumer transport that does not exist is acked
	require.JSONEq(t, `{}`, string(c.request(core.MethodConnectConsumerTransport, map[string]any{})))
	require.JSONEq(t, `{}`, string(c.request(core.MethodSetResources, map[string]any{"resources": map[string]bool{"audio": true}})))
	require.JSONEq(t, `{}`, string(c.request(core.MethodMessage, map[string]any{"message": "hello"})))

	var caps core.RTPCapabilities
	require.NoError(t, json.Unmarshal(c.request(core.MethodGetRouterRTPCapabilities, nil), &caps))
	require.NotEmpty(t, caps.Codecs)
}

func TestSignalCannotConsume(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	x := dial(t, srv)
	y := dial(t, srv)
	x.request(core.MethodGetRouterRTPCapabilities, nil)
	y.request(core.MethodGetRouterRTPCapabilities, nil)

	x.request(core.MethodCreateProducerTransport, map[string]any{"id": "x1"})
	x.request(core.MethodConnectProducerTransport, map[string]any{"id": "x1"})
	x.request(core.MethodProduce, map[string]any{"id": "x1", "kind": "video", "rtpParameters": coretest.VideoParams()})
	y.event(core.EventNewProducer)

	y.request(core.MethodCreateConsumerTransport, nil)
	data := y.request(core.MethodConsume, map[string]any{"id": "x1", "rtpCapabilities": coretest.AudioOnlyCaps()})
	require.Equal(t, app.ErrCannotConsume.Error(), errorOf(data))
	require.Equal(t, "no consumer", errorOf(y.request(core.MethodResume, nil)))
}

func TestSignalReplayAndDisconnect(t *testing.T) {
	srv, o := newTestServer(t, nil)
	x := dial(t, srv)
	for _, id := range []string{"a", "b"} {
		x.request(core.MethodCreateProducerTransport, map[string]any{"id": id})
		x.request(core.MethodConnectProducerTransport, map[string]any{"id": id})
		x.request(core.MethodProduce, map[string]any{"id": id, "kind": "audio", "rtpParameters": coretest.AudioParams()})
	}

	late := dial(t, srv)
	require.JSONEq(t, `{"id":"a"}`, string(late.event(core.EventNewProducer).Data))
	require.JSONEq(t, `{"id":"b"}`, string(late.event(core.EventNewProducer).Data))

	require.NoError(t, x.ws.Close())
	require.JSONEq(t, `{"id":"a"}`, string(late.event(core.EventProducerClosed).Data))
	require.JSONEq(t, `{"id":"b"}`, string(late.event(core.EventProducerClosed).Data))
	require.Empty(t, o.Registry.ProducerIDs())
}

func TestSignalRateLimit(t *testing.T) {
	srv, _ := newTestServer(t, NewRateLimiter(1, time.Hour))
	c := dial(t, srv)

	var params core.TransportParams
	require.NoError(t, json.Unmarshal(c.request(core.MethodCreateConsumerTransport, nil), &params))
	require.NotEmpty(t, params.ID)
	require.Equal(t, ErrRateLimited.Error(), errorOf(c.request(core.MethodCreateConsumerTransport, nil)))
}
