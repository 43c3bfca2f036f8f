// Package web provides the HTTP API, websocket state stream and status page
// of the coop controller.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/history"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/solar"
	"github.com/sweeney/coop-controller/internal/status"
)

// Controller is the command surface served under /api/v1.
type Controller interface {
	OpenDoor() door.MoveResult
	CloseDoor() door.MoveResult
	StopDoor()
	IsDoorOpen() bool
	IsDoorClosed() bool
	SwitchIndoorLight(on bool) error
	SwitchOutdoorLight(on bool) error
	SwitchDoorAutomatic(setting schedule.Setting) schedule.Mode
	GetState() status.Snapshot
	WaitForStateChange(ctx context.Context, timeout time.Duration) (bool, status.Snapshot)
	GetNextAction() (solar.Event, bool)
}

// StateSource notifies about snapshot changes without consuming them.
type StateSource interface {
	Changed() <-chan struct{}
	Snapshot() status.Snapshot
}

// MoveHistory lists recorded door moves, newest first.
type MoveHistory interface {
	Moves(ctx context.Context, limit int) ([]history.Move, error)
}

// Options configures the server.
type Options struct {
	Addr string
	// WaitTimeout is used by /state/wait when no timeout is given.
	WaitTimeout time.Duration
	// MaxWaitTimeout caps the timeout a client may request.
	MaxWaitTimeout time.Duration
}

// Server serves the API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	opts       Options
	ctl        Controller
	state      StateSource
	moves      MoveHistory
	log        *logging.Logger
}

// New creates a Server. moves may be nil when history is disabled.
func New(opts Options, ctl Controller, state StateSource, moves MoveHistory, log *logging.Logger) *Server {
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 30 * time.Second
	}
	if opts.MaxWaitTimeout < opts.WaitTimeout {
		opts.MaxWaitTimeout = opts.WaitTimeout
	}

	s := &Server{
		opts:  opts,
		ctl:   ctl,
		state: state,
		moves: moves,
		log:   log.With("component", "web"),
	}
	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
