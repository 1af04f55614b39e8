// ABOUTME: Ogg Opus audio decoder
// ABOUTME: Streams Ogg Opus through libopusfile at its fixed 48kHz output rate
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// opusMaxFrame is 120ms at 48kHz, the longest Opus packet
const opusMaxFrame = 5760

type opusDecoder struct {
	stream   *opus.Stream
	channels int
	pcm      []int16
	out      []byte
}

func newOpusDecoder(r io.Reader, head []byte) (*opusDecoder, audio.Format, error) {
	_, id, ok := parseOggID(head)
	if !ok || id.channels == 0 {
		return nil, audio.Format{}, fmt.Errorf("%w: opus: missing OpusHead", ErrUnsupportedFormat)
	}

	stream, err := opus.NewStream(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%w: opus: %v", ErrUnsupportedFormat, err)
	}

	format := audio.Format{
		SampleRate: opusOutputRate,
		Channels:   id.channels,
		BitDepth:   16,
	}
	return &opusDecoder{
		stream:   stream,
		channels: id.channels,
		pcm:      make([]int16, opusMaxFrame*id.channels),
		out:      make([]byte, opusMaxFrame*id.channels*2),
	}, format, nil
}

func (d *opusDecoder) decodeBlock() ([]byte, error) {
	n, err := d.stream.Read(d.pcm)
	if err != nil {
		return nil, err
	}
	samples := n * d.channels
	audio.Int16ToBytes(d.out, d.pcm[:samples])
	return d.out[:samples*2], nil
}

func (d *opusDecoder) close() error {
	return d.stream.Close()
}
