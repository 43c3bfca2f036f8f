package sensor

import (
	"errors"
	"testing"
)

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []int
		want float64
	}{
		{[]int{5}, 5},
		{[]int{3, 1, 2}, 2},
		{[]int{4, 1, 3, 2}, 2.5},
		{[]int{200, 10, 11, 12, 9, 10, 11, 0, 10, 10}, 10},
	}
	for _, tt := range tests {
		if got := median(tt.in); got != tt.want {
			t.Errorf("median(%v): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestReadMedianFiltersSpikes(t *testing.T) {
	bus := NewFakeBus()
	bus.Script(ChannelLight, 120, 121, 255, 119, 120, 0, 120, 122, 118, 120)
	bus.Script(ChannelTemperature, 80)

	got := NewReader(bus, 10, nil).Read()

	if got.Light == nil || *got.Light != 120 {
		t.Errorf("light: got %v, want 120", got.Light)
	}
	if got.Temperature == nil || *got.Temperature != 80 {
		t.Errorf("temperature: got %v, want 80", got.Temperature)
	}
	if got.Time.IsZero() {
		t.Error("expected sample time to be set")
	}
}

func TestReadSkipsFailedSamples(t *testing.T) {
	bus := NewFakeBus()
	bus.Script(ChannelLight, 50)
	bus.Script(ChannelTemperature, 70)
	bus.FailNext(ChannelLight, 9)

	got := NewReader(bus, 10, nil).Read()

	if got.Light == nil || *got.Light != 50 {
		t.Errorf("light: got %v, want 50 from the one good sample", got.Light)
	}
}

func TestReadNoValueOnBusFailure(t *testing.T) {
	bus := NewFakeBus()
	bus.Err = errors.New("bus gone")

	got := NewReader(bus, 10, nil).Read()

	if got.Light != nil || got.Temperature != nil {
		t.Errorf("expected no values, got light=%v temperature=%v", got.Light, got.Temperature)
	}
	if !got.Empty() {
		t.Error("expected an empty reading")
	}
}
