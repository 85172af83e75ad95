package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"github.com/godbus/dbus/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apihttp "github.com/GriffinCanCode/widgetd/internal/api/http"
	"github.com/GriffinCanCode/widgetd/internal/api/middleware"
	"github.com/GriffinCanCode/widgetd/internal/api/ws"
	"github.com/GriffinCanCode/widgetd/internal/domain/instance"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/config"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/logging"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/widgetd/internal/ipc"
)

// Version is reported by the control surface
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// Server wires the instance service to its transport and control surface
type Server struct {
	config   *config.Config
	logger   *logging.Logger
	metrics  *monitoring.Metrics
	registry *prometheus.Registry
	service  *instance.Service
	router   *gin.Engine
	conn     *dbus.Conn
	notify   func(state string) (bool, error)
}

// New builds a server from cfg. Nothing runs until Run.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewDefault()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	s := &Server{
		config:   cfg,
		logger:   logger,
		metrics:  metrics,
		registry: reg,
		notify:   func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}

	launcher, bus, err := s.transport()
	if err != nil {
		return nil, err
	}

	s.service = instance.NewService(launcher, bus, cfg.Store.Path, logger.Component("instance")).
		WithMetrics(metrics).
		WithQueueSize(cfg.Instance.QueueSize).
		WithReaper(cfg.Instance.ReapTTL, cfg.Instance.ReapInterval)

	s.router = s.routes()
	return s, nil
}

// transport connects to the configured bus
func (s *Server) transport() (ipc.Launcher, ipc.Bus, error) {
	cfg := s.config.IPC
	if cfg.Bus == config.BusLoopback {
		s.logger.Warn("Using in-process loopback transport; no widget processes will be launched")
		lb := ipc.NewLoopback()
		return lb, lb, nil
	}

	conn, err := ipc.Connect(cfg.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s bus: %w", cfg.Bus, err)
	}
	s.conn = conn
	s.logger.Info("Connected to bus",
		zap.String("bus", cfg.Bus),
		zap.String("launcher", cfg.LauncherDest),
	)
	launcher := ipc.NewDBusLauncher(conn, cfg.LauncherDest, cfg.LauncherPath, cfg.LaunchTimeout)
	return launcher, ipc.NewDBusBus(conn, s.logger.Component("bus")), nil
}

func (s *Server) routes() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if s.config.RateLimit.Enabled {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = s.config.RateLimit.RequestsPerSecond
		rl.Burst = s.config.RateLimit.Burst
		if s.config.RateLimit.Global {
			router.Use(middleware.GlobalRateLimit(rl))
		} else {
			router.Use(middleware.RateLimit(rl))
		}
	}

	apihttp.NewHandlers(s.service, s.logger.Component("http"), Version).
		WithLogLevel(s.logger).
		Register(router)
	router.GET("/v1/events", ws.NewHandler(s.service, s.logger.Component("ws"), s.metrics).HandleConnection)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))
	return router
}

// Handler returns the control surface router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Service returns the instance service
func (s *Server) Service() *instance.Service {
	return s.service
}

// Run initializes the instance service and serves until ctx is cancelled,
// then shuts everything down.
func (s *Server) Run(ctx context.Context) error {
	viewerID := s.config.Viewer.ID
	if err := s.service.Init(ctx, viewerID); err != nil {
		s.closeConn()
		return fmt.Errorf("failed to initialize instance service: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	var srv *http.Server
	if s.config.Server.Enabled {
		srv = &http.Server{
			Addr:              s.config.Server.Addr(),
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
	}

	if sent, err := s.notify(daemon.SdNotifyReady); err != nil {
		s.logger.Warn("Failed to notify systemd of readiness", zap.Error(err))
	} else if sent {
		s.logger.Info("Notified systemd that service is ready")
	}

	g.Go(func() error {
		<-gctx.Done()
		s.notify(daemon.SdNotifyStopping)
		s.logger.Info("Shutting down", zap.String("viewer_id", viewerID))

		var errs []error
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
		}
		if err := s.service.Fini(); err != nil {
			errs = append(errs, err)
		}
		s.closeConn()
		return errors.Join(errs...)
	})

	err := g.Wait()
	s.logger.Sync()
	return err
}

func (s *Server) closeConn() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		s.logger.Warn("Failed to close bus connection", zap.Error(err))
	}
	s.conn = nil
}
