package door

import (
	"time"

	"github.com/sweeney/coop-controller/internal/gpio"
)

// Vote reports whether a reed contact counts as closed: at least threshold
// of the samples must be closed. Interference from the fence makes single
// reads unreliable, so a contact is never judged on one sample.
func Vote(samples []bool, threshold int) bool {
	n := 0
	for _, closed := range samples {
		if closed {
			n++
		}
	}
	return n >= threshold
}

// sampler reads a reed contact by repeated sampling.
type sampler struct {
	board    gpio.Board
	closed   int
	samples  int
	need     int
	interval time.Duration
}

// read samples line until the vote is decided. It returns early once enough
// closed samples were seen, when stop is closed, or once deadline passes.
// A zero deadline never expires. Read errors count as open samples.
func (s sampler) read(line gpio.Line, stop <-chan struct{}, deadline time.Time) (closed, stopped bool) {
	n := 0
	for i := 0; i < s.samples; i++ {
		select {
		case <-stop:
			return false, true
		default:
		}

		if v, err := s.board.Get(line); err == nil && v == s.closed {
			n++
			if n >= s.need {
				return true, false
			}
		}

		if i == s.samples-1 {
			break
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, false
		}
		if !sleep(s.interval, stop) {
			return false, true
		}
	}
	return false, false
}

// sleep waits for d or until stop is closed. It reports false if stopped.
func sleep(d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}
