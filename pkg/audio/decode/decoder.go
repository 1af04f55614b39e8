// ABOUTME: Stream interface definition and shared streaming machinery
// ABOUTME: Sniffs the codec, counts encoded bytes and implements Read/Skip over decoded blocks
package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
)

var (
	// ErrUnsupportedFormat is returned when no decoder recognises the data
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrClosed is returned by Read after Close
	ErrClosed = errors.New("decode: stream closed")
)

// sniffLen is enough to cover an Ogg first page with its identification header
const sniffLen = 64

// Stream is a forward-only decoded PCM stream (signed 16-bit little-endian, interleaved)
type Stream interface {
	io.Reader

	// Format describes the PCM produced by Read
	Format() audio.Format

	// Skip discards decoded audio until at least n more encoded bytes have
	// been consumed. It returns the encoded bytes actually skipped, which is
	// 0 once the stream is exhausted.
	Skip(n int64) (int64, error)

	// Remaining returns the encoded bytes not yet consumed, or -1 if the
	// encoded length is unknown.
	Remaining() int64

	// Close releases decoder resources. Safe to call more than once.
	Close() error
}

// PropertySource is implemented by streams that report side properties
// (position, bitrate) alongside the PCM they produce.
type PropertySource interface {
	Properties() map[string]any
}

// Equalizer is implemented by streams that accept equalizer band gains
type Equalizer interface {
	SetEqualizer(bands []float32)
}

// blockDecoder produces one block of decoded S16LE PCM per call. The
// returned slice is only valid until the next call.
type blockDecoder interface {
	decodeBlock() ([]byte, error)
	close() error
}

// counter counts bytes read from the encoded source
type counter struct {
	r io.Reader
	n atomic.Int64
}

func (c *counter) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// seekCounter is a counter over an io.ReadSeeker; seeking moves the count
type seekCounter struct {
	*counter
	s io.Seeker
}

func (c *seekCounter) Seek(offset int64, whence int) (int64, error) {
	pos, err := c.s.Seek(offset, whence)
	if err == nil {
		c.n.Store(pos)
	}
	return pos, err
}

// stream adapts a blockDecoder to the Stream interface
type stream struct {
	dec     blockDecoder
	codec   audio.Codec
	format  audio.Format
	src     *counter
	length  int64
	closer  io.Closer
	pending []byte
	err     error
	decoded atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func (s *stream) Format() audio.Format { return s.format }

func (s *stream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		s.pending, s.err = s.dec.decodeBlock()
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	s.decoded.Add(int64(n))
	return n, nil
}

func (s *stream) Skip(n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	start := s.src.n.Load()
	target := start + n

	s.decoded.Add(int64(len(s.pending)))
	s.pending = nil
	for s.src.n.Load() < target && s.err == nil {
		var block []byte
		block, s.err = s.dec.decodeBlock()
		s.decoded.Add(int64(len(block)))
	}

	skipped := s.src.n.Load() - start
	if s.err != nil && !errors.Is(s.err, io.EOF) {
		return skipped, s.err
	}
	return skipped, nil
}

func (s *stream) Remaining() int64 {
	if s.length <= 0 {
		return -1
	}
	if r := s.length - s.src.n.Load(); r > 0 {
		return r
	}
	return 0
}

func (s *stream) Properties() map[string]any {
	pos := s.src.n.Load()
	props := map[string]any{
		audio.PropType:         s.codec,
		audio.PropPositionByte: pos,
	}

	frameSize := int64(s.format.FrameSize())
	if frameSize == 0 || s.format.SampleRate == 0 {
		return props
	}
	micros := s.decoded.Load() / frameSize * 1_000_000 / int64(s.format.SampleRate)
	props[audio.PropPositionMicro] = micros
	if micros > 0 {
		props[audio.PropBitrate] = pos * 8 * 1_000_000 / micros
	}
	return props
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.dec.close()
		if s.closer != nil {
			if err := s.closer.Close(); err != nil && s.closeErr == nil {
				s.closeErr = err
			}
		}
		if s.err == nil {
			s.err = ErrClosed
		}
	})
	return s.closeErr
}

// Open sniffs the codec of r and returns a decoded Stream. size is the
// encoded length in bytes (-1 if unknown) and hint is a file name or URL
// path used when the magic bytes are inconclusive. If r is an io.Closer,
// closing the stream closes it.
func Open(r io.Reader, size int64, hint string) (Stream, error) {
	closer, _ := r.(io.Closer)

	codec, head, rr, err := sniff(r, hint)
	if err != nil {
		return nil, err
	}

	s, err := openCodec(codec, head, rr, size)
	if err != nil {
		return nil, err
	}
	s.codec = codec
	s.closer = closer
	return s, nil
}

// Sniff identifies the codec of the data at the start of r without
// consuming it for later readers: r is rewound if it is an io.Seeker,
// otherwise the returned reader replays the sniffed bytes.
func Sniff(r io.Reader, hint string) (audio.Codec, io.Reader, error) {
	codec, _, rr, err := sniff(r, hint)
	return codec, rr, err
}

func sniff(r io.Reader, hint string) (audio.Codec, []byte, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return audio.CodecUnknown, nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	head = head[:n]

	codec := detect(head, hint)
	if codec == audio.CodecUnknown {
		return codec, nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, describe(head, hint))
	}

	if rs, ok := r.(io.ReadSeeker); ok {
		if _, err := rs.Seek(-int64(n), io.SeekCurrent); err == nil {
			return codec, head, r, nil
		}
	}
	return codec, head, io.MultiReader(bytes.NewReader(head), r), nil
}

// detect matches magic bytes first and falls back to the name hint
func detect(head []byte, hint string) audio.Codec {
	switch {
	case bytes.HasPrefix(head, []byte("fLaC")):
		return audio.CodecFLAC
	case len(head) >= 12 && bytes.HasPrefix(head, []byte("RIFF")) && string(head[8:12]) == "WAVE":
		return audio.CodecWAV
	case bytes.HasPrefix(head, []byte("OggS")):
		if bytes.Contains(head, []byte("OpusHead")) {
			return audio.CodecOpus
		}
		if bytes.Contains(head, []byte("\x01vorbis")) {
			return audio.CodecVorbis
		}
		return audio.CodecUnknown
	case bytes.HasPrefix(head, []byte("ID3")):
		return audio.CodecMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return audio.CodecMP3
	}

	switch strings.ToLower(filepath.Ext(hint)) {
	case ".mp3":
		return audio.CodecMP3
	case ".flac":
		return audio.CodecFLAC
	case ".wav", ".wave":
		return audio.CodecWAV
	case ".opus":
		return audio.CodecOpus
	case ".ogg", ".oga":
		return audio.CodecVorbis
	}
	return audio.CodecUnknown
}

func describe(head []byte, hint string) string {
	if hint != "" {
		return hint
	}
	if len(head) > 4 {
		head = head[:4]
	}
	return fmt.Sprintf("magic %q", head)
}

func openCodec(codec audio.Codec, head []byte, r io.Reader, size int64) (*stream, error) {
	cnt := &counter{r: r}
	s := &stream{src: cnt, length: size}

	var err error
	switch codec {
	case audio.CodecMP3:
		// go-mp3 scans the whole source when it can seek; keep it forward-only
		s.dec, s.format, err = newMP3Decoder(cnt)
	case audio.CodecFLAC:
		s.dec, s.format, err = newFLACDecoder(cnt)
	case audio.CodecWAV:
		s.dec, s.format, err = newWAVDecoder(cnt)
	case audio.CodecOpus:
		s.dec, s.format, err = newOpusDecoder(cnt, head)
	case audio.CodecVorbis:
		s.dec, s.format, err = newVorbisDecoder(cnt)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, codec)
	}
	if err != nil {
		return nil, err
	}
	if s.length <= 0 {
		s.length = -1
	}
	return s, nil
}
