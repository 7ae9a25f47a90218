package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/metermate/metermate/internal/config"
	historydomain "github.com/metermate/metermate/internal/history/domain"
	meterdomain "github.com/metermate/metermate/internal/meter/domain"
	obslogger "github.com/metermate/metermate/internal/observability/logger"
	obsmetrics "github.com/metermate/metermate/internal/observability/metrics"
	readingdomain "github.com/metermate/metermate/internal/reading/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, metrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(metrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, metrics *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(log, metrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	meterSvc   meterdomain.Service
	readingSvc readingdomain.Service
	historySvc historydomain.Service
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	MeterSvc   meterdomain.Service
	ReadingSvc readingdomain.Service
	HistorySvc historydomain.Service
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		meterSvc:   p.MeterSvc,
		readingSvc: p.ReadingSvc,
		historySvc: p.HistorySvc,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")

	api.POST("/meters", s.CreateMeter)
	api.GET("/meters", s.ListMeters)
	api.GET("/meters/:id", s.GetMeterByID)
	api.PATCH("/meters/:id", s.RenameMeter)
	api.DELETE("/meters/:id", s.DeleteMeter)
	api.GET("/meters/:id/state", s.GetMeterState)
	api.POST("/meters/:id/rebuild", s.RebuildMeterHistory)

	api.POST("/meters/:id/readings", s.AddReading)
	api.GET("/meters/:id/readings", s.ListReadings)
	api.DELETE("/meters/:id/readings", s.PurgeReadings)
	api.POST("/meters/:id/readings/import", s.ImportReadings)
	api.GET("/meters/:id/readings/:reading_id", s.GetReading)
	api.PATCH("/meters/:id/readings/:reading_id", s.UpdateReading)
	api.DELETE("/meters/:id/readings/:reading_id", s.DeleteReading)
}
