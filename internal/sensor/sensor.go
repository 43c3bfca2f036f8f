// Package sensor reads the coop's light and temperature levels from a
// PCF8591 analog-to-digital converter.
package sensor

import (
	"sort"
	"time"

	"github.com/sweeney/coop-controller/internal/logging"
)

// PCF8591 control bytes: analog output enabled plus the input channel.
const (
	ChannelLight       byte = 0x40
	ChannelTemperature byte = 0x42
)

// DefaultAddress is the PCF8591 I2C address with all address pins low.
const DefaultAddress uint16 = 0x48

// Bus reads raw 8-bit conversions from the ADC.
type Bus interface {
	ReadChannel(control byte) (int, error)
	Close() error
}

// Reading is one sampled set of values. A nil value means no sample
// could be taken.
type Reading struct {
	Light       *float64  `json:"light"`
	Temperature *float64  `json:"temperature"`
	Time        time.Time `json:"time"`
}

// Empty reports whether neither value is present.
func (r Reading) Empty() bool {
	return r.Light == nil && r.Temperature == nil
}

// Reader samples the ADC and reduces the samples to their median.
type Reader struct {
	bus     Bus
	samples int
	now     func() time.Time
	log     *logging.Logger
}

// NewReader creates a Reader taking samples readings per value.
func NewReader(bus Bus, samples int, log *logging.Logger) *Reader {
	if samples < 1 {
		samples = 1
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Reader{bus: bus, samples: samples, now: time.Now, log: log.With("component", "sensor")}
}

// Read samples both channels. Failed samples are skipped; a channel
// without any successful sample has no value.
func (r *Reader) Read() Reading {
	return Reading{
		Light:       r.channel(ChannelLight),
		Temperature: r.channel(ChannelTemperature),
		Time:        r.now(),
	}
}

func (r *Reader) channel(control byte) *float64 {
	values := make([]int, 0, r.samples)
	var lastErr error
	for i := 0; i < r.samples; i++ {
		v, err := r.bus.ReadChannel(control)
		if err != nil {
			lastErr = err
			continue
		}
		values = append(values, v)
	}

	if len(values) == 0 {
		r.log.Error("sensor channel unreadable", "channel", control, "error", lastErr)
		return nil
	}
	if lastErr != nil {
		r.log.Debug("sensor samples skipped", "channel", control, "ok", len(values), "error", lastErr)
	}
	m := median(values)
	return &m
}

// median returns the middle value, averaging the two middle values of an
// even-length set.
func median(values []int) float64 {
	sorted := append([]int(nil), values...)
	sort.Ints(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return float64(sorted[n/2])
	}
	return float64(sorted[n/2-1]+sorted[n/2]) / 2
}
