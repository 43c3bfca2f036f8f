package button

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/sweeney/coop-controller/internal/gpio"
	"github.com/sweeney/coop-controller/internal/logging"
)

// Executor carries out a reboot or shutdown request.
type Executor func(ctx context.Context, action Action) error

// SystemExecutor runs the system reboot and shutdown commands. The process
// needs the privileges to do so.
func SystemExecutor(ctx context.Context, action Action) error {
	var cmd *exec.Cmd
	switch action {
	case ActionShutdown:
		cmd = exec.CommandContext(ctx, "shutdown", "-h", "now")
	case ActionReboot:
		cmd = exec.CommandContext(ctx, "reboot")
	default:
		return nil
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", action, err, out)
	}
	return nil
}

// Options configures a Monitor.
type Options struct {
	PollInterval time.Duration
	Debounce     time.Duration
	Thresholds   Thresholds
	// PressedLevel is the raw line level of a pressed button.
	PressedLevel int
}

// Monitor polls the button line and executes completed presses.
type Monitor struct {
	board    gpio.Board
	opts     Options
	exec     Executor
	log      *logging.Logger
	now      func() time.Time
	detector *Detector
}

// NewMonitor creates a Monitor. A nil exec uses SystemExecutor.
func NewMonitor(board gpio.Board, opts Options, exec Executor, log *logging.Logger) *Monitor {
	if exec == nil {
		exec = SystemExecutor
	}
	return &Monitor{
		board:    board,
		opts:     opts,
		exec:     exec,
		log:      log.With("component", "button"),
		now:      time.Now,
		detector: NewDetector(opts.Debounce, opts.Thresholds),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	m.run(ctx, ticker.C)
}

func (m *Monitor) run(ctx context.Context, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			m.Poll(ctx)
		}
	}
}

// Poll takes one sample and acts on a completed press.
func (m *Monitor) Poll(ctx context.Context) *Press {
	v, err := m.board.Get(gpio.LineButton)
	if err != nil {
		m.log.Error("button read failed", "error", err)
		return nil
	}

	p := m.detector.Process(Input{Pressed: v == m.opts.PressedLevel, Time: m.now()})
	if p == nil {
		return nil
	}

	m.log.Info("button released", "held", p.Duration.Round(10*time.Millisecond), "action", p.Action)
	if p.Action == ActionNone {
		return p
	}
	if err := m.exec(ctx, p.Action); err != nil {
		m.log.Error("button action failed", "action", p.Action, "error", err)
	}
	return p
}
