// ABOUTME: Software gain, pan, balance and mute controls for output lines
// ABOUTME: Applies per-channel multipliers to 16-bit PCM with clipping protection
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
)

// Control names
const (
	ControlGain    = "gain"
	ControlPan     = "pan"
	ControlBalance = "balance"
	ControlMute    = "mute"
)

// Gain limits in decibels. The maximum is a linear gain of 2.
const (
	MinGainDB = -80.0
	MaxGainDB = 6.0206
)

// ErrOutOfRange is returned when a control value is outside its limits
var ErrOutOfRange = errors.New("control value out of range")

// FloatControl is a bounded numeric control safe for concurrent use
type FloatControl struct {
	name      string
	min, max  float64
	precision float64
	bits      atomic.Uint64
}

// NewFloatControl creates a control with an initial value
func NewFloatControl(name string, min, max, precision, initial float64) *FloatControl {
	c := &FloatControl{name: name, min: min, max: max, precision: precision}
	c.bits.Store(math.Float64bits(initial))
	return c
}

func (c *FloatControl) Name() string       { return c.name }
func (c *FloatControl) Minimum() float64   { return c.min }
func (c *FloatControl) Maximum() float64   { return c.max }
func (c *FloatControl) Precision() float64 { return c.precision }

func (c *FloatControl) Value() float64 {
	return math.Float64frombits(c.bits.Load())
}

// Set stores v or returns ErrOutOfRange
func (c *FloatControl) Set(v float64) error {
	if math.IsNaN(v) || v < c.min || v > c.max {
		return fmt.Errorf("%w: %s %.4f not in [%.4f, %.4f]", ErrOutOfRange, c.name, v, c.min, c.max)
	}
	c.bits.Store(math.Float64bits(v))
	return nil
}

// BoolControl is an on/off control safe for concurrent use
type BoolControl struct {
	name string
	v    atomic.Bool
}

// NewBoolControl creates a switch control
func NewBoolControl(name string) *BoolControl {
	return &BoolControl{name: name}
}

func (c *BoolControl) Name() string { return c.name }
func (c *BoolControl) Value() bool  { return c.v.Load() }
func (c *BoolControl) Set(v bool)   { c.v.Store(v) }

// Controls groups the optional controls of a line
type Controls struct {
	Gain    *FloatControl
	Pan     *FloatControl
	Balance *FloatControl
	Mute    *BoolControl
}

// SoftwareControls returns a full control set implemented in software
func SoftwareControls() Controls {
	return Controls{
		Gain:    NewFloatControl(ControlGain, MinGainDB, MaxGainDB, 0.01, 0),
		Pan:     NewFloatControl(ControlPan, -1, 1, 1.0/64, 0),
		Balance: NewFloatControl(ControlBalance, -1, 1, 1.0/64, 0),
		Mute:    NewBoolControl(ControlMute),
	}
}

// Empty reports whether no control is present
func (c Controls) Empty() bool {
	return c.Gain == nil && c.Pan == nil && c.Balance == nil && c.Mute == nil
}

// active reports whether Apply would change any sample
func (c Controls) active() bool {
	if c.Mute != nil && c.Mute.Value() {
		return true
	}
	for _, fc := range []*FloatControl{c.Gain, c.Pan, c.Balance} {
		if fc != nil && fc.Value() != 0 {
			return true
		}
	}
	return false
}

// gain returns the linear gain, zero when muted
func (c Controls) gain() float64 {
	if c.Mute != nil && c.Mute.Value() {
		return 0
	}
	if c.Gain == nil {
		return 1
	}
	return math.Pow(10, c.Gain.Value()/20)
}

// multipliers returns the left and right channel multipliers
func (c Controls) multipliers() (left, right float64) {
	g := c.gain()
	left, right = g, g
	for _, fc := range []*FloatControl{c.Pan, c.Balance} {
		if fc == nil {
			continue
		}
		x := fc.Value()
		left *= math.Min(1, 1-x)
		right *= math.Min(1, 1+x)
	}
	return left, right
}

// Apply scales interleaved 16-bit little-endian PCM in place.
// Pan and balance only affect stereo input.
func (c Controls) Apply(pcm []byte, channels int) {
	if channels <= 0 {
		return
	}
	left, right := c.multipliers()
	if channels != 2 {
		left = c.gain()
		right = left
	}

	frameSize := channels * 2
	for i := 0; i+frameSize <= len(pcm); i += frameSize {
		for ch := 0; ch < channels; ch++ {
			m := left
			if ch == 1 {
				m = right
			}
			off := i + ch*2
			s := int16(binary.LittleEndian.Uint16(pcm[off:]))
			binary.LittleEndian.PutUint16(pcm[off:], uint16(audio.ClampInt16(float64(s)*m)))
		}
	}
}
