// Package telemetry writes door moves and sensor readings to InfluxDB.
//
// Writes are non-blocking and batched; failures are reported through the
// error callback and never reach the caller.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/sweeney/coop-controller/internal/config"
	"github.com/sweeney/coop-controller/internal/door"
	"github.com/sweeney/coop-controller/internal/sensor"
)

const (
	defaultConnectTimeout = 10 * time.Second
	millisecondsPerSecond = 1000

	measurementDoor    = "coop_door"
	measurementSensors = "coop_sensors"
)

// Client wraps the InfluxDB v2 client. It is safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect establishes a connection to the InfluxDB server.
// It returns ErrDisabled when InfluxDB is disabled in cfg.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 10
	}

	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*millisecondsPerSecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := &Client{
		client:    client,
		writeAPI:  writeAPI,
		connected: true,
	}
	go c.handleWriteErrors(writeAPI.Errors())
	return c, nil
}

func (c *Client) handleWriteErrors(errorsCh <-chan error) {
	for err := range errorsCh {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()

		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError sets a callback for asynchronous write failures.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = callback
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// WriteMove records a finished door move.
func (c *Client) WriteMove(r door.MoveReport) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(movePoint(r))
}

// WriteReading records a sensor reading. Empty readings are skipped.
func (c *Client) WriteReading(r sensor.Reading) {
	if !c.IsConnected() {
		return
	}
	if p := readingPoint(r); p != nil {
		c.writeAPI.WritePoint(p)
	}
}

// Close flushes pending writes and closes the client.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()
	c.client.Close()
	return nil
}

func movePoint(r door.MoveReport) *write.Point {
	return write.NewPoint(
		measurementDoor,
		map[string]string{
			"direction": r.Direction.String(),
			"result":    r.Result.String(),
		},
		map[string]interface{}{
			"duration_ms": r.Duration.Milliseconds(),
			"moved":       r.Result.Moved(),
		},
		r.Started,
	)
}

func readingPoint(r sensor.Reading) *write.Point {
	fields := map[string]interface{}{}
	if r.Light != nil {
		fields["light"] = *r.Light
	}
	if r.Temperature != nil {
		fields["temperature"] = *r.Temperature
	}
	if len(fields) == 0 {
		return nil
	}
	return write.NewPoint(measurementSensors, nil, fields, r.Time)
}
