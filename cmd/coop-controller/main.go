// Command coop-controller drives a chicken coop door and lights on a
// sunrise/sunset schedule and serves the control API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/coop-controller/internal/button"
	"github.com/sweeney/coop-controller/internal/config"
	"github.com/sweeney/coop-controller/internal/control"
	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/gpio"
	"github.com/sweeney/coop-controller/internal/history"
	"github.com/sweeney/coop-controller/internal/light"
	"github.com/sweeney/coop-controller/internal/logging"
	"github.com/sweeney/coop-controller/internal/mqtt"
	"github.com/sweeney/coop-controller/internal/schedule"
	"github.com/sweeney/coop-controller/internal/sensor"
	"github.com/sweeney/coop-controller/internal/status"
	"github.com/sweeney/coop-controller/internal/store"
	"github.com/sweeney/coop-controller/internal/telemetry"
	"github.com/sweeney/coop-controller/internal/web"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// statusInterval is how often the MQTT connection state is refreshed.
const statusInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "/etc/coop-controller/config.yaml", `YAML config file ("" for built-in defaults)`)
	printState := flag.Bool("print-state", false, "Print door contacts and persisted state and exit")

	flag.Parse()

	if err := run(*configPath, *printState); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, printState bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging, version)

	levels := levelsFromConfig(cfg.GPIO)
	board, err := gpio.NewRealBoard(cfg.GPIO.Chip, pinsFromConfig(cfg.GPIO), levels)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	state := store.New(cfg.Door.StateFile)

	if printState {
		return printBoardState(os.Stdout, board, state, levels)
	}

	rec, loaded, err := state.Load()
	if err != nil {
		logger.Error("reading state file failed, using sensors only", "path", state.Path(), "error", err)
	}

	d := door.New(board, state, doorOptions(cfg.Door, levels), logger)
	l := light.New(board, state, levels, logger)
	d.Restore(rec, loaded)

	calc, err := calculator(cfg)
	if err != nil {
		return err
	}

	schedOpts := []schedule.Option{schedule.WithLogger(logger)}
	if cfg.Sensors.Enabled {
		bus, err := sensor.OpenI2C(cfg.Sensors.Bus, cfg.Sensors.Address)
		if err != nil {
			logger.Error("sensor bus unavailable, running without sensors", "error", err)
		} else {
			defer bus.Close()
			schedOpts = append(schedOpts, schedule.WithSensors(sensor.NewReader(bus, cfg.Sensors.Samples, logger)))
		}
	}
	sched := schedule.New(calc, d, l, scheduleOptions(cfg.Schedule), schedOpts...)

	tracker := status.NewTracker(time.Now(), status.Config{
		Broker:   brokerLabel(cfg.MQTT),
		HTTPAddr: cfg.HTTP.Addr,
		Latitude: cfg.Site.Latitude,
		Timezone: cfg.Site.Timezone,
	})
	ctl := control.New(d, l, sched, tracker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var moves web.MoveHistory
	if cfg.History.Enabled {
		hist, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Error("history unavailable", "path", cfg.History.Path, "error", err)
		} else {
			defer hist.Close()
			moves = hist
			recordHistory(d, sched, hist, logger)
		}
	}

	tel, err := telemetry.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, telemetry.ErrDisabled):
	case err != nil:
		logger.Error("influxdb unavailable", "url", cfg.InfluxDB.URL, "error", err)
	default:
		defer tel.Close()
		tel.SetOnError(func(err error) { logger.Warn("influxdb write failed", "error", err) })
		d.OnMove(tel.WriteMove)
		sched.OnReading(tel.WriteReading)
	}

	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT, logger)
		if err != nil {
			logger.Error("mqtt unavailable", "broker", cfg.MQTT.Broker, "error", err)
		} else {
			defer pub.Close()
			publisher, mqttStatus = pub, pub
			pub.OnCommand(func(payload []byte) {
				if err := mqtt.HandleCommand(ctl, payload, logger); err != nil {
					logger.Warn("mqtt command rejected", "error", err)
				}
			})
			sched.AddNotifier(mqtt.DoorNotifier(pub, logger))
			go mqtt.Forward(ctx, tracker, pub, logger)
		}
	}

	publishSystem(publisher, tracker, mqttStatus, "STARTUP", "", time.Now(), logger)

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{
			Addr:           cfg.HTTP.Addr,
			WaitTimeout:    cfg.HTTP.WaitTimeout,
			MaxWaitTimeout: cfg.HTTP.MaxWaitTimeout,
		}, ctl, tracker, moves, logger)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx) //nolint:errcheck // exiting anyway
		}()
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
	}

	if cfg.Button.Enabled {
		monitor := button.NewMonitor(board, button.Options{
			PollInterval: cfg.Button.PollInterval,
			Debounce:     cfg.Button.Debounce,
			Thresholds:   button.Thresholds{Reboot: cfg.Button.RebootAfter, Shutdown: cfg.Button.ShutdownAfter},
			PressedLevel: levels.ButtonPressed,
		}, nil, logger)
		go monitor.Run(ctx)
	}

	go sched.Run(ctx)

	logger.Info("started",
		"door", d.Position(),
		"latitude", cfg.Site.Latitude,
		"timezone", cfg.Site.Timezone,
		"mqtt", cfg.MQTT.Enabled,
		"history", moves != nil,
	)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	err = runLoop(publisher, mqttStatus, tracker, logger, time.Now, ticker.C, sigCh)

	// stop the scheduler before releasing the motor
	cancel()
	d.Stop()
	return err
}

// runLoop refreshes the MQTT connection state on every tick and publishes
// the SHUTDOWN event when a signal arrives. publisher may be nil.
func runLoop(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, logger *logging.Logger, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			logger.Info("shutting down", "signal", s.String())
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishSystem(publisher, tracker, mqttStatus, "SHUTDOWN", signalName, now(), logger)
			return nil

		case <-tick:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// publishSystem sends a retained lifecycle event carrying the full status.
func publishSystem(publisher mqtt.Publisher, tracker *status.Tracker, mqttStatus mqtt.ConnectionStatus, event, reason string, at time.Time, logger *logging.Logger) {
	if publisher == nil {
		return
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	err := publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  at,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		logger.Warn("failed to publish system event", "event", event, "error", err)
		return
	}
	logger.Info("published system event", "event", event)
}

// recordHistory logs every door move and sensor reading to hist. The final
// stop during shutdown is recorded too, so writes do not use the run context.
func recordHistory(d *door.Controller, sched *schedule.Scheduler, hist *history.Store, logger *logging.Logger) {
	d.OnMove(func(r door.MoveReport) {
		if err := hist.RecordMove(context.Background(), r); err != nil {
			logger.Error("recording door move failed", "error", err)
		}
	})
	sched.OnReading(func(r sensor.Reading) {
		if err := hist.RecordReading(context.Background(), r); err != nil {
			logger.Error("recording sensor reading failed", "error", err)
		}
	})
}

func brokerLabel(cfg config.MQTTConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Broker
}
