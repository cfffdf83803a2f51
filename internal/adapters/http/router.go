package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/SFU/internal/adapters/signal"
	"github.com/dkeye/SFU/internal/app/orch"
	"github.com/dkeye/SFU/internal/config"
	"github.com/dkeye/SFU/internal/domain"
)

const directoryTimeout = 2 * time.Second

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type producersResponse struct {
	Producers []domain.ParticipantID `json:"producers"`
}

// listProducers prefers the shared directory and falls back to the local
// registry when none is configured or it fails.
func listProducers(o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if o.Directory != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), directoryTimeout)
			ids, err := o.Directory.List(ctx)
			cancel()
			if err == nil {
				c.JSON(http.StatusOK, producersResponse{Producers: ids})
				return
			}
			log.Warn().Err(err).Str("module", "adapters.http").Msg("directory list, using registry")
		}
		ids := o.Registry.ProducerIDs()
		if ids == nil {
			ids = []domain.ParticipantID{}
		}
		c.JSON(http.StatusOK, producersResponse{Producers: ids})
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SFUSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"worker":   o.Gateway.Worker().ID(),
			"sessions": o.Hub.MemberCount(),
		})
	})
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/api")
	api.GET("/producers", listProducers(o))

	ctrl := signal.NewSignalWSController(
		o,
		signal.NewRateLimiter(cfg.RateLimit, cfg.RateInterval),
		signal.Options{
			ReadLimit:    cfg.ReadLimit,
			PingPeriod:   cfg.PingPeriod,
			WriteTimeout: cfg.WriteTimeout,
			SendBuffer:   cfg.SendBuffer,
		},
	)
	r.GET(cfg.Path, func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("path", cfg.Path).Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
