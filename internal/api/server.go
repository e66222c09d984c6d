package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/medwatch/internal/infrastructure/config"
	"github.com/nerrad567/medwatch/internal/infrastructure/logging"
	"github.com/nerrad567/medwatch/internal/journal"
	"github.com/nerrad567/medwatch/internal/monitor"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// healthCheckTimeout bounds each dependency check behind /health.
const healthCheckTimeout = 2 * time.Second

// Controller accepts operator inputs. *monitor.Monitor satisfies it.
type Controller interface {
	SelectProfile(id string) error
	Restart() error
	SendCommand(cmd string) error
}

// HealthChecker is a dependency whose state /health reports.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Controller Controller

	// Events is a monitor subscription feeding the status snapshot and
	// the WebSocket relay.
	Events <-chan monitor.Event

	// Journal is optional; without it /journal answers 404.
	Journal journal.Repository

	// Checks are reported by name on /health. Any failure makes the
	// endpoint answer 503.
	Checks map[string]HealthChecker

	// InitialProfile seeds the status snapshot before the monitor
	// announces its profile.
	InitialProfile string

	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	logger     *logging.Logger
	controller Controller
	events     <-chan monitor.Event
	journal    journal.Repository
	checks     map[string]HealthChecker
	version    string

	tracker *Tracker
	hub     *Hub

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	return &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		logger:     deps.Logger,
		controller: deps.Controller,
		events:     deps.Events,
		journal:    deps.Journal,
		checks:     deps.Checks,
		version:    deps.Version,
		tracker:    NewTracker(deps.InitialProfile),
		hub:        NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start binds the listener and serves in the background. The event relay
// runs until ctx is cancelled or Close is called.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(srvCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.relay(srvCtx)
	}()

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// relay applies monitor events to the snapshot and fans them out to
// WebSocket clients.
func (s *Server) relay(ctx context.Context) {
	if s.events == nil {
		<-ctx.Done()
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.events:
			if !ok {
				return
			}
			s.tracker.Apply(ev)
			s.hub.Broadcast(ev.EventType(), ev)
		}
	}
}

// Close gracefully shuts down the server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
