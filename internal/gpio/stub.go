//go:build !linux

package gpio

import "errors"

// RealBoard is not available on non-Linux platforms.
type RealBoard struct{}

// NewRealBoard returns an error on non-Linux platforms.
func NewRealBoard(chipName string, pins Pins, levels Levels) (*RealBoard, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Get is not implemented on non-Linux platforms.
func (b *RealBoard) Get(line Line) (int, error) {
	return 0, errors.New("gpio: not supported")
}

// Set is not implemented on non-Linux platforms.
func (b *RealBoard) Set(line Line, value int) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealBoard) Close() error {
	return nil
}
