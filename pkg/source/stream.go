// ABOUTME: Byte-stream audio source over a caller-supplied io.Reader
// ABOUTME: Rewinds seekable readers on reopen; forward-only readers decode once
package source

import (
	"fmt"
	"io"
	"sync"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
)

// StreamSource plays encoded audio from a reader. The reader is never
// closed by the source; its owner closes it.
type StreamSource struct {
	r io.Reader

	mu       sync.Mutex
	consumed bool
	primed   decode.Stream // opened by FileFormat, handed to the next DecodedStream
	ff       *audio.FileFormat
}

// NewStream creates a source reading from r
func NewStream(r io.Reader) *StreamSource {
	return &StreamSource{r: r}
}

func (s *StreamSource) Kind() Kind           { return Stream }
func (s *StreamSource) Origin() any          { return s.r }
func (s *StreamSource) IsByteSeekable() bool { return false }
func (s *StreamSource) String() string       { return fmt.Sprintf("stream:%T", s.r) }

// Reopenable reports whether DecodedStream can be called more than once
func (s *StreamSource) Reopenable() bool {
	_, ok := s.r.(io.Seeker)
	return ok
}

func (s *StreamSource) DecodedStream() (decode.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.primed != nil {
		st := s.primed
		s.primed = nil
		return st, nil
	}
	return s.openLocked()
}

func (s *StreamSource) openLocked() (decode.Stream, error) {
	if s.consumed {
		seeker, ok := s.r.(io.Seeker)
		if !ok {
			return nil, ErrNotReopenable
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind stream: %w", err)
		}
	}
	s.consumed = true

	size := int64(-1)
	if seeker, ok := s.r.(io.Seeker); ok {
		if end, err := seeker.Seek(0, io.SeekEnd); err == nil {
			size = end
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind stream: %w", err)
		}
	}

	// hide Close so the decoder does not close the caller's reader
	st, err := decode.Open(struct{ io.Reader }{s.r}, size, "")
	if err != nil {
		return nil, err
	}
	return st, nil
}

// FileFormat probes seekable readers; forward-only readers report the
// PCM format of a decoder that is kept for the next DecodedStream call.
func (s *StreamSource) FileFormat() (audio.FileFormat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ff != nil {
		return *s.ff, nil
	}

	if rs, ok := s.r.(io.ReadSeeker); ok {
		ff, err := decode.Probe(rs, "")
		if err != nil {
			return audio.FileFormat{}, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return audio.FileFormat{}, fmt.Errorf("rewind stream: %w", err)
		}
		s.ff = &ff
		return ff, nil
	}

	st := s.primed
	if st == nil {
		var err error
		if st, err = s.openLocked(); err != nil {
			return audio.FileFormat{}, err
		}
		s.primed = st
	}
	ff := audio.FileFormat{
		Type:        codecOf(st),
		ByteLength:  -1,
		FrameLength: -1,
		Format:      st.Format(),
		Properties:  map[string]any{},
	}
	s.ff = &ff
	return ff, nil
}

func (s *StreamSource) DurationSeconds() int {
	ff, err := s.FileFormat()
	if err != nil {
		return -1
	}
	return ff.DurationSeconds()
}

func (s *StreamSource) DurationMillis() int64 {
	ff, err := s.FileFormat()
	if err != nil {
		return -1
	}
	return ff.DurationMillis()
}
