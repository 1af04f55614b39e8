// ABOUTME: Simple linear resampler for converting audio sample rates
// ABOUTME: Interpolates across chunk boundaries and adapts S16LE readers
package resample

import (
	"errors"
	"io"
	"math"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
)

// Resampler performs linear interpolation to convert between sample rates.
// The final frame of each chunk is carried into the next so consecutive
// chunks interpolate as one continuous signal.
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64
	position   float64 // read position in frames, relative to the carried frame
	lastSample []int32 // one sample per channel
	primed     bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		lastSample: make([]int32, channels),
	}
}

// Resample converts interleaved input samples at inputRate into output at
// outputRate and returns the number of output samples written. output
// should hold at least OutputSamplesNeeded(len(input)) samples; if it is
// smaller the unconsumed input is dropped.
func (r *Resampler) Resample(input []int32, output []int32) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	outputFrames := len(output) / r.channels

	offset := 0
	if r.primed {
		offset = 1
	}
	total := inputFrames + offset
	frame := func(i, ch int) int32 {
		if i < offset {
			return r.lastSample[ch]
		}
		return input[(i-offset)*r.channels+ch]
	}

	outIdx := 0
	for outIdx < outputFrames {
		idx := int(r.position)
		if idx >= total-1 {
			break
		}
		frac := r.position - float64(idx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := float64(frame(idx, ch))
			s2 := float64(frame(idx+1, ch))
			output[outIdx*r.channels+ch] = int32(math.Round(s1*(1.0-frac) + s2*frac))
		}

		outIdx++
		r.position += r.ratio
	}

	copy(r.lastSample, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.position -= float64(total - 1)
	if r.position < 0 {
		r.position = 0
	}
	r.primed = true

	return outIdx * r.channels
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0.0
	r.primed = false
	for i := range r.lastSample {
		r.lastSample[i] = 0
	}
}

// OutputSamplesNeeded returns an upper bound on the output produced from inputSamples
func (r *Resampler) OutputSamplesNeeded(inputSamples int) int {
	inputFrames := inputSamples/r.channels + 1
	outputFrames := int(float64(inputFrames)/r.ratio) + 1
	return outputFrames * r.channels
}

// InputSamplesNeeded calculates how many input samples are needed to produce output samples
func (r *Resampler) InputSamplesNeeded(outputSamples int) int {
	outputFrames := outputSamples / r.channels
	inputFrames := int(float64(outputFrames) * r.ratio)
	return inputFrames * r.channels
}

// readFrames is the input chunk size used by Reader
const readFrames = 1024

// Reader resamples a signed 16-bit little-endian interleaved PCM stream
type Reader struct {
	src      io.Reader
	rs       *Resampler
	channels int
	in       []byte
	samples  []int32
	out      []int32
	pending  []byte
	buf      []byte
	err      error
}

// NewReader wraps src, producing PCM at outputRate
func NewReader(src io.Reader, inputRate, outputRate, channels int) *Reader {
	rs := New(inputRate, outputRate, channels)
	return &Reader{
		src:      src,
		rs:       rs,
		channels: channels,
		in:       make([]byte, readFrames*channels*2),
		samples:  make([]int32, readFrames*channels),
		out:      make([]int32, rs.OutputSamplesNeeded(readFrames*channels)),
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.fill()
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Reader) fill() {
	n, err := io.ReadFull(r.src, r.in)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	r.err = err

	frames := n / (2 * r.channels)
	if frames == 0 {
		return
	}
	in := audio.BytesToInt16(r.in[:frames*r.channels*2])
	for i, s := range in {
		r.samples[i] = int32(s)
	}

	produced := r.rs.Resample(r.samples[:len(in)], r.out)
	if cap(r.buf) < produced*2 {
		r.buf = make([]byte, produced*2)
	}
	r.buf = r.buf[:produced*2]
	out16 := make([]int16, produced)
	for i, s := range r.out[:produced] {
		out16[i] = audio.ClampInt16(float64(s))
	}
	audio.Int16ToBytes(r.buf, out16)
	r.pending = r.buf
}
