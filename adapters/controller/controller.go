package controller

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Go-routine-4595/sensorhub/auth"
	"github.com/Go-routine-4595/sensorhub/service"
)

type ControllerConfig struct {
	Addr            string        `yaml:"Addr"`
	ReadTimeout     time.Duration `yaml:"ReadTimeout"`
	WriteTimeout    time.Duration `yaml:"WriteTimeout"`
	ShutdownTimeout time.Duration `yaml:"ShutdownTimeout"`
	// AllowOrigin is sent as Access-Control-Allow-Origin; empty disables CORS headers.
	AllowOrigin string `yaml:"AllowOrigin"`
}

// Controller serves the sensor, analytics and auth API over HTTP.
type Controller struct {
	conf    ControllerConfig
	svc     service.Service
	tokens  *auth.TokenService
	creds   *auth.Credentials
	guard   *auth.Guard
	live    http.Handler
	metrics prometheus.Gatherer
	logger  zerolog.Logger
	now     func() time.Time

	mu   sync.Mutex
	addr net.Addr
}

// NewController wires the routes. live serves the websocket feed and metrics
// the /metrics endpoint; either may be nil to leave its route out.
func NewController(
	conf ControllerConfig,
	svc service.Service,
	tokens *auth.TokenService,
	creds *auth.Credentials,
	live http.Handler,
	metrics prometheus.Gatherer,
	logger zerolog.Logger,
) *Controller {
	if conf.Addr == "" {
		conf.Addr = ":3001"
	}
	if conf.ReadTimeout <= 0 {
		conf.ReadTimeout = 10 * time.Second
	}
	if conf.ShutdownTimeout <= 0 {
		conf.ShutdownTimeout = 5 * time.Second
	}

	logger = logger.With().Str("component", "controller").Logger()
	return &Controller{
		conf:    conf,
		svc:     svc,
		tokens:  tokens,
		creds:   creds,
		guard:   auth.NewGuard(tokens, logger),
		live:    live,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Handler returns the full route table behind the access log.
func (c *Controller) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", c.index)

	mux.Handle("GET /api/sensors/latest", c.guard.Soft(http.HandlerFunc(c.latestAll)))
	mux.Handle("GET /api/sensors/{type}/latest", c.guard.Soft(http.HandlerFunc(c.latest)))
	mux.Handle("GET /api/sensors/{type}/predict", c.guard.Hard(http.HandlerFunc(c.predict)))
	mux.Handle("GET /api/sensors/{type}/analysis", c.guard.Hard(http.HandlerFunc(c.analysis)))
	mux.Handle("GET /api/sensors/{type}/alerts", c.guard.Hard(http.HandlerFunc(c.alerts)))

	mux.HandleFunc("POST /api/auth/login", c.login)
	mux.Handle("POST /api/auth/refresh", c.guard.Hard(http.HandlerFunc(c.refresh)))
	mux.Handle("GET /api/auth/verify", c.guard.Hard(http.HandlerFunc(c.verify)))
	mux.Handle("POST /api/auth/logout", c.guard.Soft(http.HandlerFunc(c.logout)))
	mux.HandleFunc("GET /api/auth/info", c.authInfo)
	mux.Handle("POST /api/auth/validate", c.guard.Hard(http.HandlerFunc(c.validate)))

	// older clients look for these under the sensors prefix
	mux.HandleFunc("GET /api/sensors/auth/info", c.authInfo)
	mux.Handle("POST /api/sensors/auth/validate", c.guard.Hard(http.HandlerFunc(c.validate)))

	if c.live != nil {
		mux.Handle("GET /ws", c.live)
	}
	if c.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(c.metrics, promhttp.HandlerOpts{}))
	}

	return c.accessLog(c.cors(mux))
}

// Start listens on the configured address and shuts the server down when
// ctx is canceled. Listen errors are returned, serve errors are logged.
func (c *Controller) Start(ctx context.Context, wg *sync.WaitGroup) error {
	ln, err := net.Listen("tcp", c.conf.Addr)
	if err != nil {
		return errors.Join(err, errors.New("failed to listen on "+c.conf.Addr))
	}
	c.mu.Lock()
	c.addr = ln.Addr()
	c.mu.Unlock()

	srv := &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: c.conf.ReadTimeout,
		WriteTimeout:      c.conf.WriteTimeout,
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		c.logger.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.conf.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			c.logger.Error().Err(err).Msg("http server shutdown")
			return
		}
		c.logger.Info().Msg("http server stopped")
	}()
	return nil
}

// Addr is the bound listen address once Start succeeded.
func (c *Controller) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addr == nil {
		return ""
	}
	return c.addr.String()
}
