// ABOUTME: Playback session value object
// ABOUTME: Holds the open source, its decode stream and negotiated formats; replaced, never mutated
package streamplayer

import (
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/resample"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/source"
	"github.com/google/uuid"
)

// Session property keys added to the opened properties
const (
	PropSessionID        = "session.id"
	PropOutputSampleRate = "output.samplerate.hz"
	PropOutputChannels   = "output.channels"
)

type session struct {
	id         uuid.UUID
	src        source.Source
	stream     decode.Stream
	reader     io.Reader
	fileFormat audio.FileFormat

	// format is what the decoder produces, outFormat what the device plays
	format    audio.Format
	outFormat audio.Format

	// totalBytes is the encoded length when byte seeking is meaningful, else -1
	totalBytes     int64
	durationSecs   int
	durationMillis int64
	speed          float64
	properties     map[string]any
}

// withStream returns a copy of s reading from st
func (s *session) withStream(st decode.Stream) *session {
	next := *s
	next.stream = st
	next.reader = pcmReader(st, s.format, s.outFormat, s.speed)
	return &next
}

// position is the encoded byte offset, recomputed from the stream
func (s *session) position() int64 {
	if s.totalBytes <= 0 {
		return NotSpecified
	}
	rem := s.stream.Remaining()
	if rem < 0 {
		return NotSpecified
	}
	return s.totalBytes - rem
}

// streamProperties are the side properties the decoder reports, if any
func (s *session) streamProperties() map[string]any {
	if ps, ok := s.stream.(decode.PropertySource); ok {
		return ps.Properties()
	}
	return map[string]any{}
}

// pcmReader resamples st when the device rate differs from the decoded rate at speed
func pcmReader(st decode.Stream, format, out audio.Format, speed float64) io.Reader {
	in := int(float64(format.SampleRate) * speed)
	if in == out.SampleRate {
		return st
	}
	return resample.NewReader(st, in, out.SampleRate, format.Channels)
}
