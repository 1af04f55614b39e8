// ABOUTME: Ogg Vorbis audio decoder
// ABOUTME: Streams Ogg Vorbis through beep's vorbis streamer and converts to 16-bit
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/vorbis"
)

const vorbisBlockFrames = 1024

type vorbisDecoder struct {
	streamer beep.StreamSeekCloser
	channels int
	samples  [][2]float64
	out      []byte
}

func newVorbisDecoder(r io.Reader) (*vorbisDecoder, audio.Format, error) {
	streamer, bf, err := vorbis.Decode(io.NopCloser(r))
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: vorbis: %v", ErrUnsupportedFormat, err)
	}

	// beep mixes everything down to at most two channels
	channels := bf.NumChannels
	if channels > 2 {
		channels = 2
	}
	format := audio.Format{
		SampleRate: int(bf.SampleRate),
		Channels:   channels,
		BitDepth:   16,
	}
	if !format.Valid() {
		streamer.Close()
		return nil, audio.Format{}, fmt.Errorf("%w: vorbis: invalid header %s", ErrUnsupportedFormat, format)
	}

	return &vorbisDecoder{
		streamer: streamer,
		channels: channels,
		samples:  make([][2]float64, vorbisBlockFrames),
		out:      make([]byte, vorbisBlockFrames*channels*2),
	}, format, nil
}

func (d *vorbisDecoder) decodeBlock() ([]byte, error) {
	n, ok := d.streamer.Stream(d.samples)
	if !ok || n == 0 {
		if err := d.streamer.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	i := 0
	for _, frame := range d.samples[:n] {
		for ch := 0; ch < d.channels; ch++ {
			s := audio.ClampInt16(frame[ch] * audio.Max16Bit)
			binary.LittleEndian.PutUint16(d.out[i:], uint16(s))
			i += 2
		}
	}
	return d.out[:i], nil
}

func (d *vorbisDecoder) close() error {
	return d.streamer.Close()
}
