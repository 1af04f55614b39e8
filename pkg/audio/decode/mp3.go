// ABOUTME: MP3 audio decoder
// ABOUTME: Streams MP3 through go-mp3, which always yields 16-bit stereo
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// mp3BlockSize is one MPEG-1 Layer III frame of decoded stereo PCM
const mp3BlockSize = 1152 * 4

type mp3Decoder struct {
	dec *mp3.Decoder
	buf []byte
}

func newMP3Decoder(r io.Reader) (*mp3Decoder, audio.Format, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: mp3: %v", ErrUnsupportedFormat, err)
	}

	format := audio.Format{
		SampleRate: dec.SampleRate(),
		Channels:   2, // go-mp3 outputs stereo even for mono sources
		BitDepth:   16,
	}
	return &mp3Decoder{dec: dec, buf: make([]byte, mp3BlockSize)}, format, nil
}

func (d *mp3Decoder) decodeBlock() ([]byte, error) {
	n, err := d.dec.Read(d.buf)
	return d.buf[:n], err
}

func (d *mp3Decoder) close() error {
	return nil
}
