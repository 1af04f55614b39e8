// ABOUTME: Level and spectrum meter fed by player progress callbacks
// ABOUTME: Computes peak, RMS and log-spaced FFT band levels of each PCM chunk
package meter

import (
	"math"
	"math/cmplx"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/streamplayer"
	"github.com/mjibson/go-dsp/fft"
)

const (
	// MinDB is the floor reported for silence
	MinDB = -90.0

	// DefaultBands is the band count used when New is given zero
	DefaultBands = 16

	fftSize = 1024
	lowHz   = 40.0
	highHz  = 16000.0
)

// Levels is a snapshot of the most recent chunk
type Levels struct {
	PeakDB float64
	RMSDB  float64
	// Bands holds per-band magnitude scaled to [0, 1] from MinDB to 0dBFS
	Bands []float64
}

// Silent returns the levels of digital silence
func Silent(bands int) Levels {
	return Levels{PeakDB: MinDB, RMSDB: MinDB, Bands: make([]float64, bands)}
}

// Meter is a streamplayer.Listener that keeps the latest Levels
type Meter struct {
	bands int
	hann  []float64

	mu       sync.Mutex
	channels int
	rate     int
	levels   Levels
}

// New creates a meter with the given number of spectrum bands
func New(bands int) *Meter {
	if bands <= 0 {
		bands = DefaultBands
	}
	hann := make([]float64, fftSize)
	for i := range hann {
		hann[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(fftSize-1))
	}
	return &Meter{bands: bands, hann: hann, levels: Silent(bands), channels: 2, rate: 44100}
}

// Levels returns the latest snapshot
func (m *Meter) Levels() Levels {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.levels
	l.Bands = append([]float64(nil), l.Bands...)
	return l
}

func (m *Meter) Opened(origin any, properties map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := properties[streamplayer.PropOutputChannels].(int); ok && ch > 0 {
		m.channels = ch
	}
	if rate, ok := properties[streamplayer.PropOutputSampleRate].(int); ok && rate > 0 {
		m.rate = rate
	}
	m.levels = Silent(m.bands)
}

func (m *Meter) Progress(encodedBytes, microseconds int64, pcm []byte, properties map[string]any) {
	m.mu.Lock()
	channels, rate := m.channels, m.rate
	m.mu.Unlock()

	l := m.analyze(pcm, channels, rate)

	m.mu.Lock()
	m.levels = l
	m.mu.Unlock()
}

func (m *Meter) StatusUpdated(e streamplayer.Event) {
	switch e.Status {
	case streamplayer.Paused, streamplayer.Stopped, streamplayer.Unset, streamplayer.Seeking:
		m.mu.Lock()
		m.levels = Silent(m.bands)
		m.mu.Unlock()
	}
}

// Analyze measures one chunk of S16LE PCM
func Analyze(pcm []byte, channels, sampleRate, bands int) Levels {
	return New(bands).analyze(pcm, channels, sampleRate)
}

func (m *Meter) analyze(pcm []byte, channels, sampleRate int) Levels {
	l := Silent(m.bands)
	if channels <= 0 || sampleRate <= 0 {
		return l
	}
	samples := audio.BytesToInt16(pcm)
	frames := len(samples) / channels
	if frames == 0 {
		return l
	}

	mono := make([]float64, frames)
	var peak, sumSq float64
	for i := 0; i < frames; i++ {
		var sum float64
		for ch := 0; ch < channels; ch++ {
			v := float64(samples[i*channels+ch]) / 32768
			if a := math.Abs(v); a > peak {
				peak = a
			}
			sumSq += v * v
			sum += v
		}
		mono[i] = sum / float64(channels)
	}
	l.PeakDB = toDB(peak)
	l.RMSDB = toDB(math.Sqrt(sumSq / float64(frames*channels)))

	window := make([]float64, fftSize)
	for i := 0; i < fftSize && i < frames; i++ {
		window[i] = mono[i] * m.hann[i]
	}
	coeffs := fft.FFTReal(window)

	edges := BandEdges(sampleRate, m.bands)
	binHz := float64(sampleRate) / fftSize
	for b := 0; b < m.bands; b++ {
		lo := int(edges[b] / binHz)
		hi := int(math.Ceil(edges[b+1] / binHz))
		lo = max(lo, 1)
		hi = min(max(hi, lo+1), fftSize/2)

		var best float64
		for k := lo; k < hi; k++ {
			best = max(best, cmplx.Abs(coeffs[k]))
		}
		// a full-scale sine through a Hann window peaks at fftSize/4
		db := toDB(best / (fftSize / 4))
		l.Bands[b] = (db - MinDB) / -MinDB
	}
	return l
}

// BandEdges returns bands+1 log-spaced frequencies from 40Hz to 16kHz or Nyquist
func BandEdges(sampleRate, bands int) []float64 {
	hi := min(highHz, float64(sampleRate)/2)
	edges := make([]float64, bands+1)
	for i := range edges {
		edges[i] = lowHz * math.Pow(hi/lowHz, float64(i)/float64(bands))
	}
	return edges
}

func toDB(v float64) float64 {
	if v <= 0 {
		return MinDB
	}
	return max(20*math.Log10(v), MinDB)
}
