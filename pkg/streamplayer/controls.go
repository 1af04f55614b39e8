// ABOUTME: Gain, pan, balance, mute and equalizer settings of the player
// ABOUTME: Getters fall back to neutral values when the device has no such control
package streamplayer

import (
	"fmt"
	"math"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"go.uber.org/zap"
)

// Control setters share one policy: a control the open device does not
// provide (including when no device is open) yields ErrControlUnsupported,
// and a value outside the control's range yields ErrInvalidArgument.

// Gain returns the output gain in dB, 0 without a gain control
func (p *Player) Gain() float64 {
	if c := p.outlet.controls().Gain; c != nil {
		return c.Value()
	}
	return 0
}

// MaximumGain returns the upper gain bound in dB, 0 without a gain control
func (p *Player) MaximumGain() float64 {
	if c := p.outlet.controls().Gain; c != nil {
		return c.Maximum()
	}
	return 0
}

// MinimumGain returns the lower gain bound in dB, 0 without a gain control
func (p *Player) MinimumGain() float64 {
	if c := p.outlet.controls().Gain; c != nil {
		return c.Minimum()
	}
	return 0
}

// Pan returns the pan position in [-1, 1], 0 without a pan control
func (p *Player) Pan() float64 {
	if c := p.outlet.controls().Pan; c != nil {
		return c.Value()
	}
	return 0
}

// Precision is the resolution of the pan control, 0 without one
func (p *Player) Precision() float64 {
	if c := p.outlet.controls().Pan; c != nil {
		return c.Precision()
	}
	return 0
}

// Balance returns the balance in [-1, 1], 0 without a balance control
func (p *Player) Balance() float64 {
	if c := p.outlet.controls().Balance; c != nil {
		return c.Value()
	}
	return 0
}

// Mute reports whether output is muted, false without a mute control
func (p *Player) Mute() bool {
	if c := p.outlet.controls().Mute; c != nil {
		return c.Value()
	}
	return false
}

// SetGain sets a linear gain where 1 is unity. Zero maps to the minimum gain.
func (p *Player) SetGain(linear float64) error {
	if linear < 0 || math.IsNaN(linear) || math.IsInf(linear, 0) {
		return fmt.Errorf("%w: gain %v", ErrInvalidArgument, linear)
	}
	if linear == 0 {
		return p.SetLogScaleGain(p.MinimumGain())
	}
	return p.SetLogScaleGain(20 * math.Log10(linear))
}

// SetLogScaleGain sets the gain in dB
func (p *Player) SetLogScaleGain(db float64) error {
	return p.setFloat(p.outlet.controls().Gain, output.ControlGain, db)
}

// SetPan sets the pan position and reports PanChanged
func (p *Player) SetPan(pan float64) error {
	if err := p.setFloat(p.outlet.controls().Pan, output.ControlPan, pan); err != nil {
		return err
	}
	p.emit(PanChanged, p.EncodedStreamPosition(), pan)
	return nil
}

// SetBalance sets the left/right balance
func (p *Player) SetBalance(balance float64) error {
	return p.setFloat(p.outlet.controls().Balance, output.ControlBalance, balance)
}

// SetMute mutes or unmutes the output
func (p *Player) SetMute(mute bool) error {
	c := p.outlet.controls().Mute
	if c == nil {
		p.log.Warn("Control not supported by output device", zap.String("control", output.ControlMute))
		return fmt.Errorf("%w: %s", ErrControlUnsupported, output.ControlMute)
	}
	c.Set(mute)
	return nil
}

func (p *Player) setFloat(c *output.FloatControl, name string, v float64) error {
	if c == nil {
		p.log.Warn("Control not supported by output device", zap.String("control", name))
		return fmt.Errorf("%w: %s", ErrControlUnsupported, name)
	}
	if err := c.Set(v); err != nil {
		p.log.Warn("Control value rejected", zap.String("control", name), zap.Float64("value", v), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return nil
}

// Equalizer returns a copy of the equalizer band gains, nil if never set
func (p *Player) Equalizer() []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.equalizer == nil {
		return nil
	}
	return append([]float32(nil), p.equalizer...)
}

// SetEqualizer stores band gains and passes them to the current stream if
// its decoder accepts them. Later streams receive them when opened.
func (p *Player) SetEqualizer(bands []float32) {
	p.mu.Lock()
	p.equalizer = append([]float32(nil), bands...)
	eq := p.equalizer
	p.mu.Unlock()

	p.applyEqualizer(eq)
}

// SetEqualizerKey sets a single band
func (p *Player) SetEqualizerKey(value float32, key int) error {
	p.mu.Lock()
	if key < 0 || key >= len(p.equalizer) {
		n := len(p.equalizer)
		p.mu.Unlock()
		return fmt.Errorf("%w: equalizer band %d outside [0, %d)", ErrInvalidArgument, key, n)
	}
	next := append([]float32(nil), p.equalizer...)
	next[key] = value
	p.equalizer = next
	p.mu.Unlock()

	p.applyEqualizer(next)
	return nil
}

func (p *Player) applyEqualizer(bands []float32) {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()
	if sess := p.session.Load(); sess != nil {
		if e, ok := sess.stream.(decode.Equalizer); ok {
			e.SetEqualizer(bands)
		}
	}
}
