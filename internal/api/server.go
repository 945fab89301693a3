package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/history"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// Unit is the local state the API reads and writes. *systemair.Unit satisfies it.
type Unit interface {
	Set(property string, value int) error
	Snapshot() systemair.Snapshot
}

// Poller drives sync cycles. *coordinator.Coordinator satisfies it.
type Poller interface {
	RequestRefresh()
	Ready() bool
	Available() bool
	LastReport() (coordinator.Report, bool)
}

// HistoryReader lists recorded sync cycles.
type HistoryReader interface {
	GetHistory(ctx context.Context, unitID string, limit int) ([]history.Entry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	UnitID  string
	Host    string
	Unit    Unit
	Poller  Poller
	History HistoryReader // optional
	Version string
}

// Server is the HTTP API server. It is also a coordinator listener that
// relays cycle reports to WebSocket clients.
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	unitID   string
	host     string
	unit     Unit
	poller   Poller
	history  HistoryReader
	version  string
	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a server. Nothing listens until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Unit == nil {
		return nil, fmt.Errorf("unit is required")
	}
	if deps.Poller == nil {
		return nil, fmt.Errorf("poller is required")
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		unitID:  deps.UnitID,
		host:    deps.Host,
		unit:    deps.Unit,
		poller:  deps.Poller,
		history: deps.History,
		version: deps.Version,
		hub:     NewHub(deps.WS, deps.Logger),
	}, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start binds the listener and serves in the background. Binding errors
// such as a port in use are returned.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops background work and shuts the listener down gracefully.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("api health check: %w", err)
	}
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

// OnCycle implements coordinator.Listener.
func (s *Server) OnCycle(rep coordinator.Report) {
	s.hub.Broadcast(EventUnitSynced, newCycleEvent(s.unitID, rep, s.unit.Snapshot()))
}

var _ coordinator.Listener = (*Server)(nil)
