package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/SFU/internal/app"
	"github.com/dkeye/SFU/internal/app/orch"
	"github.com/dkeye/SFU/internal/config"
	"github.com/dkeye/SFU/internal/core"
	"github.com/dkeye/SFU/internal/core/coretest"
	"github.com/dkeye/SFU/internal/domain"
)

type failingDirectory struct{ app.Directory }

func (failingDirectory) List(context.Context) ([]domain.ParticipantID, error) {
	return nil, context.DeadlineExceeded
}

func testConfig() *config.Config {
	return &config.Config{
		Mode:           "test",
		Path:           "/ws",
		Secret:         "secret",
		MetricsEnabled: true,
		RateLimit:      10,
		RateInterval:   time.Second,
		ReadLimit:      1 << 16,
		PingPeriod:     time.Minute,
		WriteTimeout:   time.Second,
		SendBuffer:     8,
	}
}

func newTestOrch(t *testing.T) *orch.Orchestrator {
	t.Helper()
	w := coretest.NewWorker()
	g, err := app.StartGateway(context.Background(), func(context.Context) (core.Worker, error) { return w, nil }, app.GatewayConfig{Codecs: coretest.Codecs()})
	require.NoError(t, err)
	return &orch.Orchestrator{Registry: app.NewRegistry(), Hub: app.NewBroadcaster(), Gateway: g}
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := newTestOrch(t)
	r := SetupRouter(context.Background(), testConfig(), o)

	rec := get(t, r, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status   string `json:"status"`
		Worker   string `json:"worker"`
		Sessions int    `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body.Status)
	require.Equal(t, o.Gateway.Worker().ID(), body.Worker)
	require.Zero(t, body.Sessions)
	require.NotEmpty(t, rec.Result().Cookies())
}

func TestListProducers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	o := newTestOrch(t)
	s := orch.NewSession("s1", &coretest.SignalConn{})
	o.Connect(s)
	_, err := o.CreateProducerTransport(ctx, s, core.CreateProducerTransportRequest{ID: "x1"})
	require.NoError(t, err)
	require.NoError(t, o.ConnectProducerTransport(ctx, s, core.ConnectProducerTransportRequest{ID: "x1"}))
	_, err = o.Produce(ctx, s, core.ProduceRequest{ID: "x1", Kind: "audio", RTPParameters: coretest.AudioParams()})
	require.NoError(t, err)

	for name, dir := range map[string]app.Directory{"registry": nil, "directory failure": failingDirectory{}} {
		t.Run(name, func(t *testing.T) {
			o.Directory = dir
			rec := get(t, SetupRouter(ctx, testConfig(), o), "/api/producers")
			require.Equal(t, http.StatusOK, rec.Code)
			require.JSONEq(t, `{"producers":["x1"]}`, rec.Body.String())
		})
	}
}

func TestMetricsToggle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	o := newTestOrch(t)
	cfg := testConfig()
	require.Equal(t, http.StatusOK, get(t, SetupRouter(context.Background(), cfg, o), "/metrics").Code)

	cfg.MetricsEnabled = false
	require.Equal(t, http.StatusNotFound, get(t, SetupRouter(context.Background(), cfg, o), "/metrics").Code)
}
